// Package glossary loads curated per-event term lists from YAML files and
// provides the cached lookup the salience scorer consults.
package glossary

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/user/cuecard/internal/types"
)

// file is the YAML document shape:
//
//	terms:
//	  - term: raft
//	    definition: consensus protocol
type file struct {
	Terms []struct {
		Term       string `yaml:"term"`
		Definition string `yaml:"definition"`
	} `yaml:"terms"`
}

// LoadFile reads a glossary YAML file into glossary terms for the event.
func LoadFile(path string, eventID types.EventID) ([]*types.GlossaryTerm, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read glossary file: %w", err)
	}
	return Parse(data, eventID)
}

// Parse decodes a glossary YAML document into terms for the event. Blank
// terms are skipped.
func Parse(data []byte, eventID types.EventID) ([]*types.GlossaryTerm, error) {
	var doc file
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse glossary file: %w", err)
	}

	out := make([]*types.GlossaryTerm, 0, len(doc.Terms))
	for _, t := range doc.Terms {
		term := strings.TrimSpace(t.Term)
		if term == "" {
			continue
		}
		out = append(out, &types.GlossaryTerm{
			EventID:    eventID,
			Term:       term,
			Definition: strings.TrimSpace(t.Definition),
		})
	}
	return out, nil
}

// Cache is a case-insensitive term lookup built once per runtime creation.
type Cache struct {
	terms map[string]string
}

// NewCache builds a cache from glossary terms.
func NewCache(terms []*types.GlossaryTerm) *Cache {
	c := &Cache{terms: make(map[string]string, len(terms))}
	for _, t := range terms {
		c.terms[strings.ToLower(t.Term)] = t.Definition
	}
	return c
}

// Terms returns the cached terms in no particular order.
func (c *Cache) Terms() []string {
	out := make([]string, 0, len(c.terms))
	for term := range c.terms {
		out = append(out, term)
	}
	return out
}

// Has reports whether the term is in the glossary.
func (c *Cache) Has(term string) bool {
	_, ok := c.terms[strings.ToLower(term)]
	return ok
}

// Definition returns the stored definition for a term, empty when unknown.
func (c *Cache) Definition(term string) string {
	return c.terms[strings.ToLower(term)]
}

// Len returns the number of cached terms.
func (c *Cache) Len() int {
	return len(c.terms)
}
