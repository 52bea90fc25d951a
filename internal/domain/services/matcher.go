package services

import (
	"sort"
	"strings"

	"github.com/narravid/narravid/internal/domain/entities"
)

// MatchPolicy is the tunable fuzzy-resolution policy. The source material
// left threshold and tie-break scoring open, so both are configuration
// rather than a fixed algorithm.
type MatchPolicy struct {
	// SuggestThreshold is the minimum similarity for a suggested merge.
	SuggestThreshold float64
	// AmbiguityMargin: top scores closer than this are treated as a tie.
	AmbiguityMargin float64
	// MaxSuggestions caps the targets attached to one queue item.
	MaxSuggestions int
}

// DefaultMatchPolicy returns the policy used when config supplies nothing.
func DefaultMatchPolicy() MatchPolicy {
	return MatchPolicy{SuggestThreshold: 0.72, AmbiguityMargin: 0.08, MaxSuggestions: 3}
}

// scoreSurfaces computes the similarity of two normalized surface forms in
// [0,1], combining containment and edit distance. Containment ("Alexis" vs
// "don Alexis") scores high because narrative aliases are usually
// qualifications of a shorter form.
func scoreSurfaces(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	if containsWord(a, b) || containsWord(b, a) {
		shorter, longer := len([]rune(a)), len([]rune(b))
		if shorter > longer {
			shorter, longer = longer, shorter
		}
		ratio := float64(shorter) / float64(longer)
		// Containment floors at 0.75 so one-word aliases of long names
		// still surface as suggestions.
		if ratio < 0.75 {
			ratio = 0.75
		}
		return ratio
	}
	return editSimilarity(a, b)
}

// containsWord reports whether needle appears in haystack on word
// boundaries.
func containsWord(haystack, needle string) bool {
	hw := strings.Fields(haystack)
	nw := strings.Fields(needle)
	if len(nw) == 0 || len(nw) > len(hw) {
		return false
	}
	for i := 0; i+len(nw) <= len(hw); i++ {
		match := true
		for j := range nw {
			if hw[i+j] != nw[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// editSimilarity converts Levenshtein distance into a similarity in [0,1].
func editSimilarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	if longest == 0 {
		return 0
	}
	return 1 - float64(levenshtein(ra, rb))/float64(longest)
}

// levenshtein computes the edit distance between two rune slices.
func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = minInt(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

func minInt(values ...int) int {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

// matchEntities scores a normalized surface against every same-kind entity's
// canonical name and aliases, returning suggestions above the policy
// threshold sorted by descending score.
func matchEntities(surface string, candidates []*entities.Entity, policy MatchPolicy) []entities.MergeSuggestion {
	var suggestions []entities.MergeSuggestion
	for _, ent := range candidates {
		best := scoreSurfaces(surface, ent.NormalizedName)
		for _, alias := range ent.Aliases {
			if s := scoreSurfaces(surface, entities.NormalizeSurface(alias)); s > best {
				best = s
			}
		}
		if best >= policy.SuggestThreshold {
			suggestions = append(suggestions, entities.MergeSuggestion{
				EntityID: ent.ID,
				Name:     ent.Name,
				Score:    best,
			})
		}
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		return suggestions[i].Score > suggestions[j].Score
	})
	if policy.MaxSuggestions > 0 && len(suggestions) > policy.MaxSuggestions {
		suggestions = suggestions[:policy.MaxSuggestions]
	}
	return suggestions
}

// ambiguous reports whether the two best suggestions are too close to pick
// one automatically.
func ambiguous(suggestions []entities.MergeSuggestion, policy MatchPolicy) bool {
	if len(suggestions) < 2 {
		return false
	}
	return suggestions[0].Score-suggestions[1].Score < policy.AmbiguityMargin
}
