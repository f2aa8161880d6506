// Package scorer computes relevance between a query and a capture record.
//
// Every function here is pure: no I/O, no shared state, and malformed or
// empty input yields a zero score or an empty highlight list rather than
// an error.
package scorer

import (
	"math"
	"strings"
	"unicode"
)

// Keyword relevance weights
const (
	TitleMatchWeight = 0.5
	TaskMatchWeight  = 0.3
	BodyMatchWeight  = 0.2
	WordMatchWeight  = 0.1

	// Words of this many runes or fewer are ignored by per-word scoring
	MinWordLength = 2
)

// Semantic approximation bonuses
const (
	VerbatimBonus  = 0.3
	TaskWordBonus  = 0.2
	highlightRunes = 30
)

// DefaultMaxHighlights is used when ExtractHighlights receives max <= 0
const DefaultMaxHighlights = 3

// KeywordRelevance scores a record against query by weighted substring
// matching. The full query matched in the title, the first matching task
// title and the body add fixed weights; every query word longer than
// MinWordLength found anywhere adds WordMatchWeight. Clamped to 1.
func KeywordRelevance(query, windowTitle, bodyText string, taskTitles []string) float64 {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return 0
	}

	title := strings.ToLower(windowTitle)
	body := strings.ToLower(bodyText)

	var score float64
	if strings.Contains(title, q) {
		score += TitleMatchWeight
	}
	for _, task := range taskTitles {
		if strings.Contains(strings.ToLower(task), q) {
			score += TaskMatchWeight
			break
		}
	}
	if strings.Contains(body, q) {
		score += BodyMatchWeight
	}

	combined := combinedText(windowTitle, bodyText, taskTitles)
	for _, word := range Words(q) {
		if len([]rune(word)) <= MinWordLength {
			continue
		}
		if strings.Contains(combined, word) {
			score += WordMatchWeight
		}
	}

	return clamp01(score)
}

// ApproximateSemanticRelevance estimates semantic closeness without
// embeddings. It is the Jaccard similarity of the query and record word
// sets, plus VerbatimBonus when the whole query appears in the record and
// TaskWordBonus when any query word appears in a task title. This is a
// lexical stand-in used only when vector search is unavailable; it is not
// a learned measure.
func ApproximateSemanticRelevance(query, windowTitle, bodyText string, taskTitles []string) float64 {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return 0
	}

	queryWords := wordSet(q)
	if len(queryWords) == 0 {
		return 0
	}
	combined := combinedText(windowTitle, bodyText, taskTitles)
	textWords := wordSet(combined)

	var intersection int
	for w := range queryWords {
		if _, ok := textWords[w]; ok {
			intersection++
		}
	}
	union := len(queryWords) + len(textWords) - intersection

	var score float64
	if union > 0 {
		score = float64(intersection) / float64(union)
	}

	if strings.Contains(combined, q) {
		score += VerbatimBonus
	}

taskLoop:
	for _, task := range taskTitles {
		lowered := strings.ToLower(task)
		for w := range queryWords {
			if strings.Contains(lowered, w) {
				score += TaskWordBonus
				break taskLoop
			}
		}
	}

	return clamp01(score)
}

// CosineSimilarity returns the raw cosine similarity in [-1, 1]. Vectors of
// different length or with zero norm yield 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if math.IsNaN(cos) {
		return 0
	}
	return math.Max(-1, math.Min(1, cos))
}

// RemapCosine maps a raw cosine value onto [0, 1] via (cos+1)/2 so vector
// scores sit on the same scale as keyword scores.
func RemapCosine(cos float64) float64 {
	return clamp01((cos + 1) / 2)
}

// VectorRelevance is the remapped cosine score used to rank vector hits.
// Degenerate vectors score 0 instead of the 0.5 a raw 0 would remap to.
func VectorRelevance(a, b []float32) float64 {
	if len(a) != len(b) || isZero(a) || isZero(b) {
		return 0
	}
	return RemapCosine(CosineSimilarity(a, b))
}

// ExtractHighlights returns short snippets showing where query matched.
// The title highlight comes first, then an OCR window of highlightRunes
// either side of the first body match, then matching task titles.
func ExtractHighlights(query, windowTitle, bodyText string, taskTitles []string, max int) []string {
	if max <= 0 {
		max = DefaultMaxHighlights
	}
	q := strings.TrimSpace(query)
	if q == "" {
		return nil
	}

	var out []string
	if indexFold(windowTitle, q) >= 0 {
		out = append(out, "Title: ..."+windowTitle+"...")
	}

	if len(out) < max {
		if pos := indexFold(bodyText, q); pos >= 0 {
			runes := []rune(bodyText)
			start := pos - highlightRunes
			if start < 0 {
				start = 0
			}
			end := pos + len([]rune(q)) + highlightRunes
			if end > len(runes) {
				end = len(runes)
			}
			out = append(out, "OCR: ..."+string(runes[start:end])+"...")
		}
	}

	for _, task := range taskTitles {
		if len(out) >= max {
			break
		}
		if indexFold(task, q) >= 0 {
			out = append(out, "Task: "+task)
		}
	}

	if len(out) > max {
		out = out[:max]
	}
	return out
}

// Words splits text into lower-cased letter/digit tokens
func Words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func wordSet(text string) map[string]struct{} {
	words := Words(text)
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

func combinedText(windowTitle, bodyText string, taskTitles []string) string {
	var b strings.Builder
	b.WriteString(windowTitle)
	b.WriteByte(' ')
	b.WriteString(bodyText)
	for _, task := range taskTitles {
		b.WriteByte(' ')
		b.WriteString(task)
	}
	return strings.ToLower(b.String())
}

// indexFold returns the rune offset of the first case-insensitive match of
// sub in s, or -1.
func indexFold(s, sub string) int {
	hay := []rune(s)
	needle := []rune(sub)
	if len(needle) == 0 || len(needle) > len(hay) {
		return -1
	}
	for i := range hay {
		hay[i] = unicode.ToLower(hay[i])
	}
	for i := range needle {
		needle[i] = unicode.ToLower(needle[i])
	}

outer:
	for i := 0; i+len(needle) <= len(hay); i++ {
		for j := range needle {
			if hay[i+j] != needle[j] {
				continue outer
			}
		}
		return i
	}
	return -1
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
