// Package contradiction tracks per-session statement history and scores new
// statements for lexical contradiction against recent history.
package contradiction

import (
	"strings"

	"github.com/candor-labs/candor/pkg/core/types"
)

// Strategy scores a statement against prior history. Implementations return a
// value in [0,100]. The keyword strategy below is a coarse lexical heuristic,
// not semantic inference; a model-backed strategy can replace it without
// touching the fusion engine.
type Strategy interface {
	Score(history []types.StatementEntry, statement string) float64
}

// KeywordStrategy counts contradictory word pairs between the new statement
// and a sliding window of recent statements.
type KeywordStrategy struct {
	// Pairs are the contradictory word pairs checked in either direction.
	Pairs [][2]string
	// PerHit is the score added per detected pair occurrence.
	PerHit float64
	// Window is the number of most recent prior statements consulted.
	Window int
}

// DefaultPairs returns the standard contradictory pair table.
func DefaultPairs() [][2]string {
	return [][2]string{
		{"yes", "no"},
		{"always", "never"},
		{"did", "didn't"},
		{"was", "wasn't"},
		{"will", "won't"},
	}
}

// NewKeywordStrategy returns the standard keyword strategy: default pairs,
// 25 points per hit, a 5-statement window.
func NewKeywordStrategy() *KeywordStrategy {
	return &KeywordStrategy{
		Pairs:  DefaultPairs(),
		PerHit: 25,
		Window: 5,
	}
}

// Score counts contradictory pair occurrences between statement and the last
// Window entries of history, case-insensitively and in either direction, and
// returns min(100, hits*PerHit). An empty statement scores 0.
func (s *KeywordStrategy) Score(history []types.StatementEntry, statement string) float64 {
	if statement == "" {
		return 0
	}

	current := strings.ToLower(statement)

	window := history
	if s.Window > 0 && len(window) > s.Window {
		window = window[len(window)-s.Window:]
	}

	hits := 0
	for _, prior := range window {
		priorText := strings.ToLower(prior.Text)
		for _, pair := range s.Pairs {
			if strings.Contains(current, pair[0]) && strings.Contains(priorText, pair[1]) {
				hits++
			} else if strings.Contains(current, pair[1]) && strings.Contains(priorText, pair[0]) {
				hits++
			}
		}
	}

	score := float64(hits) * s.PerHit
	if score > 100 {
		return 100
	}
	return score
}
