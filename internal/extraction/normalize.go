package extraction

import (
	"regexp"
	"strings"
)

var whitespacePattern = regexp.MustCompile(`\s+`)

// CanonicalName normalizes an entity name for identity comparison:
// lowercase, trimmed, inner whitespace collapsed, trailing punctuation
// stripped. Graph MERGE keys on this value.
func CanonicalName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = whitespacePattern.ReplaceAllString(name, " ")
	name = strings.TrimRight(name, ".,!?;:")
	return name
}

// SimilarNames reports whether two canonical names are close enough to be
// the same entity. Very short names never merge: "Alice" and "Alike" are
// different people.
func SimilarNames(name1, name2 string) bool {
	if len(name1) < 10 || len(name2) < 10 {
		return false
	}

	if strings.Contains(name1, name2) || strings.Contains(name2, name1) {
		len1, len2 := len(name1), len(name2)
		ratio := float64(min(len1, len2)) / float64(max(len1, len2))
		return ratio >= 0.8
	}

	words1 := strings.Fields(name1)
	words2 := strings.Fields(name2)
	if len(words1) == 0 || len(words2) == 0 {
		return false
	}

	matches := 0
	wordSet := make(map[string]bool)
	for _, word := range words1 {
		if len(word) > 3 {
			wordSet[word] = true
		}
	}
	for _, word := range words2 {
		if len(word) > 3 && wordSet[word] {
			matches++
		}
	}

	avgWords := (len(words1) + len(words2)) / 2
	if avgWords > 0 {
		similarity := float64(matches) / float64(avgWords)
		return similarity >= 0.7
	}

	return false
}

// Normalize merges duplicate entities (max confidence wins), re-points
// relationships at the merged survivors, applies the confidence floor and
// drops self-loops. Entity order follows first appearance.
func Normalize(result *Result, confidenceMin float64) *Result {
	out := &Result{}
	if result == nil {
		return out
	}

	var survivors []Entity
	var survivorCanon []string
	// raw canonical name -> survivor index, covering merged aliases
	aliases := make(map[string]int)

	for _, e := range result.Entities {
		canon := CanonicalName(e.Name)
		if canon == "" {
			continue
		}

		if idx, ok := aliases[canon]; ok {
			if e.Confidence > survivors[idx].Confidence {
				survivors[idx].Confidence = e.Confidence
			}
			continue
		}

		merged := false
		for idx := range survivors {
			if SimilarNames(canon, survivorCanon[idx]) {
				if e.Confidence > survivors[idx].Confidence {
					survivors[idx].Confidence = e.Confidence
				}
				aliases[canon] = idx
				merged = true
				break
			}
		}
		if merged {
			continue
		}

		aliases[canon] = len(survivors)
		survivors = append(survivors, e)
		survivorCanon = append(survivorCanon, canon)
	}

	// Floor after merging so a confident duplicate rescues a hesitant one
	kept := make([]int, len(survivors))
	for i := range kept {
		kept[i] = -1
	}
	for idx, e := range survivors {
		if e.Confidence >= confidenceMin {
			kept[idx] = len(out.Entities)
			out.Entities = append(out.Entities, e)
		}
	}

	resolve := func(name string) (int, bool) {
		canon := CanonicalName(name)
		if canon == "" {
			return 0, false
		}
		idx, ok := aliases[canon]
		if !ok {
			for i := range survivorCanon {
				if SimilarNames(canon, survivorCanon[i]) {
					idx, ok = i, true
					break
				}
			}
		}
		if !ok || kept[idx] < 0 {
			return 0, false
		}
		return kept[idx], true
	}

	type relKey struct {
		source, target, relType string
	}
	seen := make(map[relKey]int)

	for _, r := range result.Relationships {
		if r.Confidence < confidenceMin {
			continue
		}
		srcIdx, ok := resolve(r.Source)
		if !ok {
			continue
		}
		tgtIdx, ok := resolve(r.Target)
		if !ok {
			continue
		}
		if srcIdx == tgtIdx {
			continue
		}

		rel := Relationship{
			Source:     out.Entities[srcIdx].Name,
			Target:     out.Entities[tgtIdx].Name,
			Type:       r.Type,
			Confidence: r.Confidence,
		}
		key := relKey{rel.Source, rel.Target, rel.Type}
		if at, dup := seen[key]; dup {
			if rel.Confidence > out.Relationships[at].Confidence {
				out.Relationships[at].Confidence = rel.Confidence
			}
			continue
		}
		seen[key] = len(out.Relationships)
		out.Relationships = append(out.Relationships, rel)
	}

	return out
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
