// Package evidence implements analysis of competing hypotheses: evidence
// items are rated against every hypothesis on a consistency scale, then
// hypotheses are ranked by the weight of the evidence against them.
package evidence

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Rating grades one piece of evidence against one hypothesis on the
// five-step consistency scale
type Rating int

const (
	RatingStronglyInconsistent Rating = -2 // II
	RatingInconsistent         Rating = -1 // I
	RatingNeutral              Rating = 0  // N
	RatingConsistent           Rating = 1  // C
	RatingStronglyConsistent   Rating = 2  // CC
)

var ratingCodes = map[Rating]string{
	RatingStronglyInconsistent: "II",
	RatingInconsistent:         "I",
	RatingNeutral:              "N",
	RatingConsistent:           "C",
	RatingStronglyConsistent:   "CC",
}

// ParseRating reads a consistency code. The doubled letters mark the
// strong ends of the scale; an empty cell reads as neutral
func ParseRating(code string) (Rating, error) {
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case "CC":
		return RatingStronglyConsistent, nil
	case "C":
		return RatingConsistent, nil
	case "N", "":
		return RatingNeutral, nil
	case "I":
		return RatingInconsistent, nil
	case "II":
		return RatingStronglyInconsistent, nil
	default:
		return RatingNeutral, fmt.Errorf("unknown consistency rating %q", code)
	}
}

func (r Rating) String() string {
	if code, ok := ratingCodes[r]; ok {
		return code
	}
	return strconv.Itoa(int(r))
}

// MarshalJSON writes the letter code so matrices read the way analysts
// write them
func (r Rating) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// UnmarshalJSON accepts either a letter code or a bare integer in [-2, 2]
func (r *Rating) UnmarshalJSON(data []byte) error {
	var code string
	if err := json.Unmarshal(data, &code); err == nil {
		parsed, perr := ParseRating(code)
		if perr != nil {
			return perr
		}
		*r = parsed
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("rating must be a consistency code or an integer: %w", err)
	}
	if n < int(RatingStronglyInconsistent) || n > int(RatingStronglyConsistent) {
		return fmt.Errorf("rating %d outside the [-2, 2] scale", n)
	}
	*r = Rating(n)
	return nil
}

// Classification is the four-way split of evidence value against a
// hypothesis set
type Classification string

const (
	// ClassDiagnostic evidence supports some hypotheses and contradicts
	// others, so it discriminates between them
	ClassDiagnostic Classification = "diagnostic"
	// ClassConsistent evidence fits at least one hypothesis and
	// contradicts none
	ClassConsistent Classification = "consistent"
	// ClassAnomalous evidence contradicts at least one hypothesis and
	// supports none
	ClassAnomalous Classification = "anomalous"
	// ClassIrrelevant evidence is neutral everywhere
	ClassIrrelevant Classification = "irrelevant"
)

// Hypothesis is one competing explanation under analysis
type Hypothesis struct {
	ID        string `json:"id"`
	Statement string `json:"statement"`
}

// Evidence is one observed item rated against the hypotheses. Weight
// scales its influence on scoring; unset (zero) counts as 1
type Evidence struct {
	ID        string  `json:"id"`
	Statement string  `json:"statement"`
	Weight    float64 `json:"weight,omitempty"`
}

// Matrix is a competing-hypotheses worksheet: hypotheses in columns,
// evidence in rows, consistency ratings in the cells. Ratings is keyed
// by evidence id, then hypothesis id; missing cells read as neutral
type Matrix struct {
	Hypotheses []Hypothesis                 `json:"hypotheses"`
	Evidence   []Evidence                   `json:"evidence"`
	Ratings    map[string]map[string]Rating `json:"ratings,omitempty"`
}

// NewMatrix builds an unrated worksheet over the given hypotheses and
// evidence items
func NewMatrix(hypotheses []Hypothesis, items []Evidence) *Matrix {
	return &Matrix{
		Hypotheses: hypotheses,
		Evidence:   items,
		Ratings:    make(map[string]map[string]Rating),
	}
}

// Rate records how one piece of evidence bears on one hypothesis
func (m *Matrix) Rate(evidenceID, hypothesisID string, rating Rating) error {
	if !m.hasEvidence(evidenceID) {
		return fmt.Errorf("unknown evidence %q", evidenceID)
	}
	if !m.hasHypothesis(hypothesisID) {
		return fmt.Errorf("unknown hypothesis %q", hypothesisID)
	}
	if rating < RatingStronglyInconsistent || rating > RatingStronglyConsistent {
		return fmt.Errorf("rating %d outside the [-2, 2] scale", rating)
	}
	if m.Ratings == nil {
		m.Ratings = make(map[string]map[string]Rating)
	}
	row := m.Ratings[evidenceID]
	if row == nil {
		row = make(map[string]Rating)
		m.Ratings[evidenceID] = row
	}
	row[hypothesisID] = rating
	return nil
}

// RatingOf returns the recorded rating, neutral when the cell is unrated
func (m *Matrix) RatingOf(evidenceID, hypothesisID string) Rating {
	return m.Ratings[evidenceID][hypothesisID]
}

// Validate rejects blank or duplicate identifiers, negative weights, and
// ratings that point at unknown rows or columns
func (m *Matrix) Validate() error {
	var problems []string

	hypotheses := make(map[string]bool, len(m.Hypotheses))
	for i, h := range m.Hypotheses {
		switch {
		case h.ID == "":
			problems = append(problems, fmt.Sprintf("hypothesis %d has no id", i))
		case hypotheses[h.ID]:
			problems = append(problems, fmt.Sprintf("duplicate hypothesis id %q", h.ID))
		default:
			hypotheses[h.ID] = true
		}
	}

	items := make(map[string]bool, len(m.Evidence))
	for i, e := range m.Evidence {
		switch {
		case e.ID == "":
			problems = append(problems, fmt.Sprintf("evidence %d has no id", i))
		case items[e.ID]:
			problems = append(problems, fmt.Sprintf("duplicate evidence id %q", e.ID))
		default:
			items[e.ID] = true
		}
		if e.Weight < 0 {
			problems = append(problems, fmt.Sprintf("evidence %q has negative weight", e.ID))
		}
	}

	for _, evidenceID := range sortedKeys(m.Ratings) {
		if !items[evidenceID] {
			problems = append(problems, fmt.Sprintf("rating references unknown evidence %q", evidenceID))
		}
		row := m.Ratings[evidenceID]
		for _, hypothesisID := range sortedKeys(row) {
			if !hypotheses[hypothesisID] {
				problems = append(problems, fmt.Sprintf("rating references unknown hypothesis %q", hypothesisID))
			}
			if r := row[hypothesisID]; r < RatingStronglyInconsistent || r > RatingStronglyConsistent {
				problems = append(problems, fmt.Sprintf("rating %d for %s/%s outside the [-2, 2] scale", r, evidenceID, hypothesisID))
			}
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid matrix: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (m *Matrix) hasEvidence(id string) bool {
	for _, e := range m.Evidence {
		if e.ID == id {
			return true
		}
	}
	return false
}

func (m *Matrix) hasHypothesis(id string) bool {
	for _, h := range m.Hypotheses {
		if h.ID == id {
			return true
		}
	}
	return false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
