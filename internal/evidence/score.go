package evidence

import (
	"fmt"
	"sort"
)

// HypothesisScore is one row of a ranking. Lower inconsistency means the
// hypothesis survives more of the evidence
type HypothesisScore struct {
	HypothesisID  string  `json:"hypothesis_id"`
	Statement     string  `json:"statement"`
	Inconsistency float64 `json:"inconsistency"`
	Supporting    int     `json:"supporting"`
	Contradicting int     `json:"contradicting"`
}

// Report carries everything a scoring pass produces
type Report struct {
	Ranking         []HypothesisScore         `json:"ranking"`
	Classifications map[string]Classification `json:"classifications"`
}

// Classify buckets one piece of evidence by how it bears on the
// hypothesis set. Only diagnostic evidence discriminates between
// hypotheses, so only it can change a ranking's order
func (m *Matrix) Classify(evidenceID string) (Classification, error) {
	if !m.hasEvidence(evidenceID) {
		return "", fmt.Errorf("unknown evidence %q", evidenceID)
	}
	return m.classify(evidenceID), nil
}

func (m *Matrix) classify(evidenceID string) Classification {
	supports, contradicts := 0, 0
	for _, h := range m.Hypotheses {
		switch r := m.RatingOf(evidenceID, h.ID); {
		case r > RatingNeutral:
			supports++
		case r < RatingNeutral:
			contradicts++
		}
	}
	switch {
	case supports > 0 && contradicts > 0:
		return ClassDiagnostic
	case supports > 0:
		return ClassConsistent
	case contradicts > 0:
		return ClassAnomalous
	default:
		return ClassIrrelevant
	}
}

// ClassifyAll classifies every evidence row, keyed by evidence id
func (m *Matrix) ClassifyAll() map[string]Classification {
	classes := make(map[string]Classification, len(m.Evidence))
	for _, e := range m.Evidence {
		classes[e.ID] = m.classify(e.ID)
	}
	return classes
}

// Score ranks hypotheses by weighted inconsistency, least contradicted
// first. Each inconsistent cell contributes its magnitude times the
// evidence weight, doubled when the evidence is diagnostic. Consistent
// cells only move the supporting count: the method ranks by the evidence
// against a hypothesis, not the evidence for it
func (m *Matrix) Score() []HypothesisScore {
	if len(m.Hypotheses) == 0 {
		return nil
	}
	classes := m.ClassifyAll()

	scores := make([]HypothesisScore, 0, len(m.Hypotheses))
	for _, h := range m.Hypotheses {
		row := HypothesisScore{HypothesisID: h.ID, Statement: h.Statement}
		for _, e := range m.Evidence {
			rating := m.RatingOf(e.ID, h.ID)
			if rating == RatingNeutral {
				continue
			}
			if rating > RatingNeutral {
				row.Supporting++
				continue
			}
			row.Contradicting++
			weight := e.Weight
			if weight == 0 {
				weight = 1
			}
			penalty := float64(-rating) * weight
			if classes[e.ID] == ClassDiagnostic {
				penalty *= 2
			}
			row.Inconsistency += penalty
		}
		scores = append(scores, row)
	}

	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Inconsistency != scores[j].Inconsistency {
			return scores[i].Inconsistency < scores[j].Inconsistency
		}
		return scores[i].HypothesisID < scores[j].HypothesisID
	})
	return scores
}

// Evaluate runs classification and scoring in one pass
func (m *Matrix) Evaluate() Report {
	return Report{Ranking: m.Score(), Classifications: m.ClassifyAll()}
}
