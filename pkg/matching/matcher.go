package matching

import (
	"sort"

	"github.com/openprocure/fern/pkg/models"
	"github.com/openprocure/fern/pkg/normalizers"
	"github.com/openprocure/fern/pkg/similarity"
)

// Outcome classifies a match attempt
type Outcome string

const (
	// OutcomeMatched means an existing entity was resolved with high confidence
	OutcomeMatched Outcome = "matched"
	// OutcomeConflict means plausible candidates exist but none is certain
	// enough to auto-match; a reviewer must adjudicate
	OutcomeConflict Outcome = "conflict"
	// OutcomeCreate means no plausible candidate exists; create a new entity
	OutcomeCreate Outcome = "create"
)

// Match methods for matched outcomes
const (
	MatchedByCode  = "code"
	MatchedByName  = "name"
	MatchedByFuzzy = "fuzzy"
)

// Result is the outcome of resolving one incoming reference
type Result struct {
	Outcome           Outcome
	EntityID          string
	MatchedBy         string
	HighestSimilarity float64 // normalized 0-1
	Candidates        []models.ConflictCandidate
}

// Config holds the matcher thresholds. Similarity values are normalized to
// [0,1] before comparison.
type Config struct {
	// AutoMatchThreshold is the minimum similarity for an unsupervised match
	AutoMatchThreshold float64
	// ConflictThreshold is the minimum similarity for a candidate to be
	// worth a reviewer's attention
	ConflictThreshold float64
	// MaxCandidates caps how many fuzzy candidates are scored and ranked
	MaxCandidates int
	// MaxConflictCandidates caps how many candidates a conflict carries
	MaxConflictCandidates int
}

// DefaultConfig returns the default matcher configuration
func DefaultConfig() Config {
	return Config{
		AutoMatchThreshold:    0.95,
		ConflictThreshold:     0.75,
		MaxCandidates:         5,
		MaxConflictCandidates: 3,
	}
}

// scorer is the similarity function the matcher ranks candidates with
type scorer interface {
	Score(a, b string) float64
}

// Matcher resolves incoming references against an EntityCache. It never
// touches storage; callers persist the outcome.
type Matcher struct {
	config Config
	scorer scorer
}

// NewMatcher creates a matcher with the given configuration
func NewMatcher(config Config) *Matcher {
	if config.MaxCandidates <= 0 {
		config.MaxCandidates = 5
	}
	if config.MaxConflictCandidates <= 0 {
		config.MaxConflictCandidates = 3
	}
	return &Matcher{
		config: config,
		scorer: similarity.NewScorer(),
	}
}

// MatchSupplier resolves an incoming supplier reference against the cache
func (m *Matcher) MatchSupplier(cache *EntityCache, code, name string) Result {
	return m.match(&cache.suppliers, code, name)
}

// MatchMaterial resolves an incoming material reference against the cache
func (m *Matcher) MatchMaterial(cache *EntityCache, code, description string) Result {
	return m.match(&cache.materials, code, description)
}

// match runs the resolution pipeline: exact code, then exact normalized name,
// then fuzzy ranking. An exact code match always wins regardless of how the
// names compare.
func (m *Matcher) match(idx *entityIndex, code, name string) Result {
	if entry := idx.lookupCode(code); entry != nil {
		return Result{
			Outcome:           OutcomeMatched,
			EntityID:          entry.id,
			MatchedBy:         MatchedByCode,
			HighestSimilarity: 1.0,
		}
	}

	normalizedName := normalizers.NormalizeEntityName(name)
	if entry := idx.lookupName(normalizedName); entry != nil {
		return Result{
			Outcome:           OutcomeMatched,
			EntityID:          entry.id,
			MatchedBy:         MatchedByName,
			HighestSimilarity: 1.0,
		}
	}

	if normalizedName == "" {
		return Result{Outcome: OutcomeCreate}
	}

	candidates := m.rankCandidates(idx, normalizedName)
	if len(candidates) == 0 {
		return Result{Outcome: OutcomeCreate}
	}

	best := candidates[0]
	if best.Score >= m.config.AutoMatchThreshold {
		return Result{
			Outcome:           OutcomeMatched,
			EntityID:          best.EntityID,
			MatchedBy:         MatchedByFuzzy,
			HighestSimilarity: best.Score,
			Candidates:        candidates,
		}
	}
	if best.Score >= m.config.ConflictThreshold {
		conflictCandidates := make([]models.ConflictCandidate, 0, m.config.MaxConflictCandidates)
		for _, candidate := range candidates {
			if candidate.Score < m.config.ConflictThreshold {
				break
			}
			conflictCandidates = append(conflictCandidates, candidate)
			if len(conflictCandidates) == m.config.MaxConflictCandidates {
				break
			}
		}
		return Result{
			Outcome:           OutcomeConflict,
			HighestSimilarity: best.Score,
			Candidates:        conflictCandidates,
		}
	}

	return Result{
		Outcome:           OutcomeCreate,
		HighestSimilarity: best.Score,
	}
}

// rankCandidates scores every cached entity against the normalized incoming
// name and returns the top candidates sorted by score descending. The sort is
// stable over cache insertion order, so equal scores rank the entity that was
// encountered first.
func (m *Matcher) rankCandidates(idx *entityIndex, normalizedName string) []models.ConflictCandidate {
	candidates := make([]models.ConflictCandidate, 0, len(idx.entries))
	for _, entry := range idx.entries {
		if entry.normalizedName == "" {
			continue
		}
		score := m.scorer.Score(normalizedName, entry.normalizedName) / 100.0
		if score <= 0 {
			continue
		}
		candidates = append(candidates, models.ConflictCandidate{
			EntityID: entry.id,
			Code:     entry.code,
			Name:     entry.name,
			Score:    score,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	if len(candidates) > m.config.MaxCandidates {
		candidates = candidates[:m.config.MaxCandidates]
	}
	return candidates
}
