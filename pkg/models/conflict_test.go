package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchingConflict_CanTransition(t *testing.T) {
	tests := []struct {
		name     string
		from     ConflictStatus
		to       ConflictStatus
		expected bool
	}{
		{"pending to resolved_match", ConflictStatusPending, ConflictStatusResolvedMatch, true},
		{"pending to resolved_new", ConflictStatusPending, ConflictStatusResolvedNew, true},
		{"pending to auto_resolved", ConflictStatusPending, ConflictStatusAutoResolved, true},
		{"pending to pending", ConflictStatusPending, ConflictStatusPending, false},
		{"resolved_match is terminal", ConflictStatusResolvedMatch, ConflictStatusResolvedNew, false},
		{"resolved_new is terminal", ConflictStatusResolvedNew, ConflictStatusResolvedMatch, false},
		{"auto_resolved is terminal", ConflictStatusAutoResolved, ConflictStatusResolvedMatch, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conflict := &MatchingConflict{Status: tt.from}
			assert.Equal(t, tt.expected, conflict.CanTransition(tt.to))
		})
	}
}

func TestMatchingConflict_IsTerminal(t *testing.T) {
	assert.False(t, (&MatchingConflict{Status: ConflictStatusPending}).IsTerminal())
	assert.True(t, (&MatchingConflict{Status: ConflictStatusResolvedMatch}).IsTerminal())
	assert.True(t, (&MatchingConflict{Status: ConflictStatusResolvedNew}).IsTerminal())
	assert.True(t, (&MatchingConflict{Status: ConflictStatusAutoResolved}).IsTerminal())
}

func TestMatchingConflict_BestCandidate(t *testing.T) {
	candidates, err := json.Marshal([]ConflictCandidate{
		{EntityID: "sup-1", Code: "SUP-1", Name: "Acme Industrial", Score: 0.91},
		{EntityID: "sup-2", Code: "SUP-2", Name: "Acme Industries", Score: 0.88},
	})
	require.NoError(t, err)

	conflict := &MatchingConflict{Candidates: candidates}

	best := conflict.BestCandidate()
	require.NotNil(t, best)
	assert.Equal(t, "sup-1", best.EntityID)
	assert.InDelta(t, 0.91, best.Score, 0.0001)
}

func TestMatchingConflict_BestCandidate_Empty(t *testing.T) {
	assert.Nil(t, (&MatchingConflict{}).BestCandidate())
	assert.Nil(t, (&MatchingConflict{Candidates: []byte("not json")}).BestCandidate())
}
