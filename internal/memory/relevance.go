package memory

import (
	"math"
	"regexp"
	"strings"
)

// Scorer measures how well an entry's content matches a query.
// Both results are in [0, 1].
type Scorer interface {
	Score(content, query string) (similarity, recall float64)
}

var tokenPattern = regexp.MustCompile(`[a-z0-9._\-]+`)

// LexicalScorer compares token-frequency vectors. It is a stand-in for an
// embedding model and can be swapped through WithScorer.
type LexicalScorer struct{}

func (LexicalScorer) Score(content, query string) (float64, float64) {
	a := tokenize(content)
	b := tokenize(query)
	if len(a) == 0 || len(b) == 0 {
		return 0, 0
	}
	return cosine(a, b), keywordRecall(a, b)
}

func tokenize(text string) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		if len(t) >= 2 {
			out = append(out, t)
		}
	}
	return out
}

func counts(tokens []string) map[string]float64 {
	m := make(map[string]float64, len(tokens))
	for _, t := range tokens {
		m[t]++
	}
	return m
}

func cosine(a, b []string) float64 {
	ca, cb := counts(a), counts(b)
	var dot, na, nb float64
	for k, v := range ca {
		dot += v * cb[k]
		na += v * v
	}
	for _, v := range cb {
		nb += v * v
	}
	if na <= 1e-12 || nb <= 1e-12 {
		return 0
	}
	return clamp(dot/(math.Sqrt(na)*math.Sqrt(nb)), 0, 1)
}

// keywordRecall is the share of distinct query tokens present in the content.
func keywordRecall(content, query []string) float64 {
	have := make(map[string]bool, len(content))
	for _, t := range content {
		have[t] = true
	}
	want := make(map[string]bool, len(query))
	for _, t := range query {
		want[t] = true
	}
	hit := 0
	for t := range want {
		if have[t] {
			hit++
		}
	}
	return clamp(float64(hit)/float64(len(want)), 0, 1)
}
