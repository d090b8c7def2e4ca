// Package search provides deterministic skill-overlap ranking for candidate
// search. It holds no state and does no I/O, so it is safe for concurrent use.
//
// Skills are compared as whole phrases after normalization (case folding,
// collapsed whitespace), so "Node.js" and "node.js " match but "Java" and
// "JavaScript" do not. Scoring uses Jaccard similarity between the query skill
// set and the candidate skill set: score = |Q ∩ S| / |Q ∪ S|.
package search

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
)

// Doc is one searchable profile.
type Doc struct {
	ID     string
	Skills []string
}

// Result is a ranked profile id with its similarity score.
type Result struct {
	ID    string
	Score float64
}

// SkillScore returns the Jaccard similarity of query and skills in [0, 1].
// It is 0 when either side is empty after normalization.
func SkillScore(query, skills []string) float64 {
	return jaccard(SkillSet(query), SkillSet(skills))
}

// Rank scores docs against query and returns them best first. Ties keep the
// input order, so callers pass docs already sorted by their tie-breaker.
//
// With an empty query every doc is returned with score 0. Otherwise docs that
// share no skill with the query are dropped.
func Rank(query []string, docs []Doc) []Result {
	q := SkillSet(query)
	out := make([]Result, 0, len(docs))
	for _, d := range docs {
		if len(q) == 0 {
			out = append(out, Result{ID: d.ID})
			continue
		}
		score := jaccard(q, SkillSet(d.Skills))
		if score <= 0 {
			continue
		}
		out = append(out, Result{ID: d.ID, Score: score})
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].Score > out[b].Score
	})
	return out
}

// SkillSet normalizes skills into a set. Blank entries are dropped.
func SkillSet(skills []string) map[string]struct{} {
	if len(skills) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(skills))
	for _, s := range skills {
		if n := Normalize(s); n != "" {
			out[n] = struct{}{}
		}
	}
	return out
}

// Normalize case-folds s, trims it, and collapses inner whitespace runs to a
// single space. Profiles dedupe skills with the same key.
func Normalize(s string) string {
	// A Caser is stateful, so each call gets its own.
	return strings.Join(strings.Fields(cases.Fold().String(s)), " ")
}

func jaccard(a, b map[string]struct{}) float64 {
	over := overlap(a, b)
	if over == 0 {
		return 0
	}
	union := float64(len(a) + len(b) - over)
	if union <= 0 {
		return 0
	}
	return float64(over) / union
}

func overlap(a, b map[string]struct{}) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	n := 0
	if len(a) > len(b) {
		a, b = b, a
	}
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}
