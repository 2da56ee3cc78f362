package glossary

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/user/cuecard/internal/types"
)

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "glossary.yaml")
	content := `terms:
  - term: raft
    definition: consensus protocol
  - term: "  quorum  "
  - term: ""
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	terms, err := LoadFile(path, "ev-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(terms) != 2 {
		t.Fatalf("expected 2 terms, got %d", len(terms))
	}
	if terms[0].Term != "raft" || terms[0].Definition != "consensus protocol" {
		t.Errorf("unexpected first term: %+v", terms[0])
	}
	if terms[1].Term != "quorum" {
		t.Errorf("term not trimmed: %q", terms[1].Term)
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"), "ev"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestCacheLookup(t *testing.T) {
	cache := NewCache([]*types.GlossaryTerm{
		{Term: "Raft", Definition: "consensus"},
	})
	if !cache.Has("raft") || !cache.Has("RAFT") {
		t.Error("lookup should be case-insensitive")
	}
	if cache.Has("paxos") {
		t.Error("unknown term reported present")
	}
	if cache.Definition("raft") != "consensus" {
		t.Error("definition lost")
	}
	if cache.Len() != 1 {
		t.Errorf("expected 1 term, got %d", cache.Len())
	}
}
