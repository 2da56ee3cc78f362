// Package salience decides whether a candidate concept is worth turning
// into a card right now: a composite score gated by a per-event rate limiter.
package salience

import (
	"strings"
	"time"

	"github.com/user/cuecard/internal/store"
	"github.com/user/cuecard/internal/types"
)

// Candidate is a concept under consideration for card emission.
type Candidate struct {
	ConceptID    string
	Label        string
	BaseWeight   float64
	FromGlossary bool
	FromFact     bool
}

// Weights holds the tunable scoring constants.
type Weights struct {
	FirstMentionBonus   float64       `json:"first_mention_bonus"`
	ExtraMentionCap     float64       `json:"extra_mention_cap"`
	QuestionCueBonus    float64       `json:"question_cue_bonus"`
	GlossaryBonus       float64       `json:"glossary_bonus"`
	FactBonus           float64       `json:"fact_bonus"`
	RecencyPenaltyLast  float64       `json:"recency_penalty_last"`
	RecencyPenaltyOther float64       `json:"recency_penalty_other"`
	SuppressionPenalty  float64       `json:"suppression_penalty"`
	Threshold           float64       `json:"threshold"`
	Freshness           time.Duration `json:"-"`
	RecentCardWindow    int           `json:"recent_card_window"`
	Interrogatives      []string      `json:"interrogatives"`
}

// DefaultWeights returns the documented default scoring constants.
func DefaultWeights() Weights {
	return Weights{
		FirstMentionBonus:   1.5,
		ExtraMentionCap:     2,
		QuestionCueBonus:    1.0,
		GlossaryBonus:       1.0,
		FactBonus:           0.5,
		RecencyPenaltyLast:  3.0,
		RecencyPenaltyOther: 1.0,
		SuppressionPenalty:  0,
		Threshold:           2.5,
		Freshness:           5 * time.Minute,
		RecentCardWindow:    10,
		Interrogatives:      []string{"what", "why", "how", "when", "who", "where", "which"},
	}
}

// Scorer computes salience scores for card candidates.
type Scorer struct {
	weights Weights
}

// NewScorer creates a scorer with the given weights.
func NewScorer(weights Weights) *Scorer {
	return &Scorer{weights: weights}
}

// Threshold returns the emission threshold.
func (s *Scorer) Threshold() float64 {
	return s.weights.Threshold
}

// Score computes the composite salience score for a candidate against the
// recent transcript window and the event's card history.
func (s *Scorer) Score(c Candidate, window []types.TranscriptChunk, cards *store.CardsStore) float64 {
	score := c.BaseWeight * 2

	mentions, questionCue := s.scanWindow(c.Label, window)

	if !cards.HasRecentConcept(c.ConceptID, s.weights.Freshness) {
		score += s.weights.FirstMentionBonus
	}
	if mentions > 1 {
		extra := float64(mentions - 1)
		if extra > s.weights.ExtraMentionCap {
			extra = s.weights.ExtraMentionCap
		}
		score += extra
	}
	if questionCue {
		score += s.weights.QuestionCueBonus
	}
	if c.FromGlossary {
		score += s.weights.GlossaryBonus
	}
	if c.FromFact {
		score += s.weights.FactBonus
	}

	recent := cards.GetRecent(s.weights.RecentCardWindow)
	if len(recent) > 0 && recent[0].ConceptID == c.ConceptID {
		score -= s.weights.RecencyPenaltyLast
	} else {
		for _, rec := range recent {
			if rec.ConceptID == c.ConceptID {
				score -= s.weights.RecencyPenaltyOther
				break
			}
		}
	}

	score -= s.weights.SuppressionPenalty
	return score
}

// Passes reports whether the candidate's score clears the threshold.
func (s *Scorer) Passes(c Candidate, window []types.TranscriptChunk, cards *store.CardsStore) bool {
	return s.Score(c, window, cards) > s.weights.Threshold
}

// scanWindow counts chunks mentioning the label and detects a question cue:
// a mentioning line that contains a question mark or a configured
// interrogative term.
func (s *Scorer) scanWindow(label string, window []types.TranscriptChunk) (mentions int, questionCue bool) {
	needle := strings.ToLower(label)
	if needle == "" {
		return 0, false
	}
	for _, chunk := range window {
		line := strings.ToLower(chunk.Text)
		if !strings.Contains(line, needle) {
			continue
		}
		mentions++
		if strings.Contains(line, "?") {
			questionCue = true
			continue
		}
		for _, term := range s.weights.Interrogatives {
			if strings.HasPrefix(line, term+" ") || strings.Contains(line, " "+term+" ") {
				questionCue = true
				break
			}
		}
	}
	return mentions, questionCue
}
