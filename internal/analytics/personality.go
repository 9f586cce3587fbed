package analytics

import (
	"regexp"
	"sort"
	"strings"
)

// Big Five trait names
const (
	TraitOpenness          = "openness"
	TraitConscientiousness = "conscientiousness"
	TraitExtraversion      = "extraversion"
	TraitAgreeableness     = "agreeableness"
	TraitNeuroticism       = "neuroticism"
)

// Signals are the observable writing habits a profile is derived from
type Signals struct {
	Capitalization     string   `json:"capitalization"`
	Punctuation        string   `json:"punctuation"`
	CommonWords        []string `json:"common_words"`
	CommonPhrases      []string `json:"common_phrases"`
	ToneMarkers        []string `json:"tone_markers"`
	AvgTextLength      float64  `json:"avg_text_length"`
	VocabularyRichness float64  `json:"vocabulary_richness"`
	ExclamationRate    float64  `json:"exclamation_rate"`
	QuestionRate       float64  `json:"question_rate"`
}

// TraitProfile is a Big Five estimate for one entity, derived entirely
// from the texts attributed to it. Same texts in, same profile out.
type TraitProfile struct {
	EntityID   string             `json:"entity_id"`
	Traits     map[string]float64 `json:"traits"`
	Signals    Signals            `json:"signals"`
	SampleSize int                `json:"sample_size"`
}

// ProfilePersonality estimates Big Five traits on [0,1] from an entity's
// attributed texts. With no texts every trait sits at the 0.5 midpoint.
func ProfilePersonality(entityID string, texts []string) *TraitProfile {
	profile := &TraitProfile{
		EntityID:   entityID,
		Traits:     neutralTraits(),
		SampleSize: len(texts),
	}
	if len(texts) == 0 {
		profile.Signals.ToneMarkers = []string{"neutral"}
		return profile
	}

	sig := Signals{
		Capitalization: analyzeCapitalization(texts),
		Punctuation:    analyzePunctuation(texts),
		CommonWords:    extractCommonWords(texts, 10),
		CommonPhrases:  extractCommonPhrases(texts, 2, 8),
		ToneMarkers:    analyzeTone(texts),
	}

	totalLength := 0
	exclaim := 0
	question := 0
	for _, t := range texts {
		totalLength += len(t)
		if strings.Contains(t, "!") {
			exclaim++
		}
		if strings.Contains(t, "?") {
			question++
		}
	}
	n := float64(len(texts))
	sig.AvgTextLength = float64(totalLength) / n
	sig.ExclamationRate = float64(exclaim) / n
	sig.QuestionRate = float64(question) / n
	sig.VocabularyRichness = vocabularyRichness(texts)

	profile.Signals = sig
	profile.Traits = estimateTraits(texts, sig)
	return profile
}

func neutralTraits() map[string]float64 {
	return map[string]float64{
		TraitOpenness:          0.5,
		TraitConscientiousness: 0.5,
		TraitExtraversion:      0.5,
		TraitAgreeableness:     0.5,
		TraitNeuroticism:       0.5,
	}
}

func estimateTraits(texts []string, sig Signals) map[string]float64 {
	traits := make(map[string]float64, 5)

	extraversion := 0.3 + 0.4*sig.ExclamationRate
	if hasMarker(sig.ToneMarkers, "enthusiastic") {
		extraversion += 0.15
	}
	if hasMarker(sig.ToneMarkers, "expressive") {
		extraversion += 0.1
	}
	traits[TraitExtraversion] = clamp01(extraversion)

	openness := 0.2 + 0.6*sig.VocabularyRichness
	if hasMarker(sig.ToneMarkers, "detailed") {
		openness += 0.1
	}
	if hasMarker(sig.ToneMarkers, "inquisitive") {
		openness += 0.1
	}
	traits[TraitOpenness] = clamp01(openness)

	conscientiousness := 0.3
	if sig.Capitalization == "normal" {
		conscientiousness += 0.25
	}
	switch sig.Punctuation {
	case "normal":
		conscientiousness += 0.15
	case "minimal":
		conscientiousness -= 0.1
	}
	traits[TraitConscientiousness] = clamp01(conscientiousness)

	pos, neg := sentimentCounts(texts)
	agreeableness := 0.5
	if pos+neg > 0 {
		agreeableness = 0.5 + 0.5*float64(pos-neg)/float64(pos+neg)
	}
	traits[TraitAgreeableness] = clamp01(agreeableness)

	neuroticism := 0.35 + 0.5*anxietyRate(texts)
	if sig.Punctuation == "heavy" {
		neuroticism += 0.1
	}
	traits[TraitNeuroticism] = clamp01(neuroticism)

	return traits
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func hasMarker(markers []string, want string) bool {
	for _, m := range markers {
		if m == want {
			return true
		}
	}
	return false
}

var positiveWords = []string{"thanks", "thank", "please", "great", "appreciate", "agree", "love", "wonderful", "glad"}

var negativeWords = []string{"hate", "wrong", "stupid", "awful", "terrible", "worst", "annoying"}

var anxietyWords = []string{"worry", "worried", "afraid", "anxious", "stress", "stressed", "fear", "nervous"}

func sentimentCounts(texts []string) (pos, neg int) {
	for _, t := range texts {
		lower := strings.ToLower(t)
		for _, w := range positiveWords {
			if strings.Contains(lower, w) {
				pos++
				break
			}
		}
		for _, w := range negativeWords {
			if strings.Contains(lower, w) {
				neg++
				break
			}
		}
	}
	return pos, neg
}

func anxietyRate(texts []string) float64 {
	hits := 0
	for _, t := range texts {
		lower := strings.ToLower(t)
		for _, w := range anxietyWords {
			if strings.Contains(lower, w) {
				hits++
				break
			}
		}
	}
	return float64(hits) / float64(len(texts))
}

func vocabularyRichness(texts []string) float64 {
	wordRegex := regexp.MustCompile(`[a-zA-Z]+`)
	unique := make(map[string]bool)
	total := 0
	for _, t := range texts {
		for _, w := range wordRegex.FindAllString(strings.ToLower(t), -1) {
			unique[w] = true
			total++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(len(unique)) / float64(total)
}

// Signal helpers below look at raw writing habits

func analyzeCapitalization(texts []string) string {
	lowercase := 0
	uppercase := 0
	normal := 0

	for _, t := range texts {
		if t == strings.ToLower(t) {
			lowercase++
		} else if t == strings.ToUpper(t) {
			uppercase++
		} else if len(t) > 0 && t[0] >= 'A' && t[0] <= 'Z' {
			normal++
		}
	}

	total := len(texts)
	if lowercase > total*70/100 {
		return "lowercase"
	}
	if uppercase > total*50/100 {
		return "uppercase"
	}
	if normal > total*50/100 {
		return "normal"
	}
	return "mixed"
}

func analyzePunctuation(texts []string) string {
	punctCount := 0
	totalChars := 0

	for _, t := range texts {
		totalChars += len(t)
		for _, c := range t {
			if c == '!' || c == '?' || c == '.' || c == ',' || c == ';' || c == ':' {
				punctCount++
			}
		}
	}

	if totalChars == 0 {
		return "minimal"
	}

	ratio := float64(punctCount) / float64(totalChars)
	if ratio < 0.02 {
		return "minimal"
	}
	if ratio > 0.08 {
		return "heavy"
	}
	return "normal"
}

func extractCommonWords(texts []string, limit int) []string {
	wordCount := make(map[string]int)
	stopWords := map[string]bool{
		"the": true, "a": true, "an": true, "is": true, "are": true,
		"was": true, "were": true, "be": true, "been": true, "being": true,
		"have": true, "has": true, "had": true, "do": true, "does": true,
		"did": true, "will": true, "would": true, "could": true, "should": true,
		"may": true, "might": true, "must": true, "shall": true,
		"i": true, "you": true, "he": true, "she": true, "it": true,
		"we": true, "they": true, "me": true, "him": true, "her": true,
		"us": true, "them": true, "my": true, "your": true, "his": true,
		"its": true, "our": true, "their": true, "this": true, "that": true,
		"these": true, "those": true, "and": true, "but": true, "or": true,
		"so": true, "if": true, "then": true, "than": true, "of": true,
		"in": true, "on": true, "at": true, "to": true, "for": true,
		"with": true, "by": true, "from": true, "up": true, "about": true,
		"into": true, "through": true, "during": true, "before": true,
		"after": true, "above": true, "below": true, "between": true,
		"under": true, "again": true, "further": true, "once": true,
		"just": true, "like": true, "dont": true, "im": true,
	}

	wordRegex := regexp.MustCompile(`[a-zA-Z]+`)

	for _, t := range texts {
		words := wordRegex.FindAllString(strings.ToLower(t), -1)
		for _, word := range words {
			if len(word) > 2 && !stopWords[word] {
				wordCount[word]++
			}
		}
	}

	type wordFreq struct {
		word  string
		count int
	}
	var sorted []wordFreq
	for word, count := range wordCount {
		sorted = append(sorted, wordFreq{word, count})
	}
	// Ties break alphabetically so profiles stay reproducible
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].count != sorted[j].count {
			return sorted[i].count > sorted[j].count
		}
		return sorted[i].word < sorted[j].word
	})

	var result []string
	for i := 0; i < limit && i < len(sorted); i++ {
		result = append(result, sorted[i].word)
	}
	return result
}

func extractCommonPhrases(texts []string, ngram int, limit int) []string {
	count := make(map[string]int)
	tokenize := regexp.MustCompile(`[a-zA-Z0-9']+`).FindAllString

	for _, t := range texts {
		words := tokenize(strings.ToLower(t), -1)
		if len(words) < ngram {
			continue
		}
		for i := 0; i <= len(words)-ngram; i++ {
			ng := strings.Join(words[i:i+ngram], " ")
			if len(ng) < 4 {
				continue
			}
			count[ng]++
		}
	}

	type kv struct {
		k string
		v int
	}
	var arr []kv
	for k, v := range count {
		arr = append(arr, kv{k, v})
	}
	sort.Slice(arr, func(i, j int) bool {
		if arr[i].v != arr[j].v {
			return arr[i].v > arr[j].v
		}
		return arr[i].k < arr[j].k
	})

	out := []string{}
	for _, it := range arr {
		out = append(out, it.k)
		if len(out) >= limit {
			break
		}
	}
	return out
}

func analyzeTone(texts []string) []string {
	var markers []string

	exclamations := 0
	questions := 0
	laughter := 0
	caps := 0
	longTexts := 0

	for _, t := range texts {
		if strings.Contains(t, "!") {
			exclamations++
		}
		if strings.Contains(t, "?") {
			questions++
		}
		lower := strings.ToLower(t)
		if strings.Contains(lower, "lol") || strings.Contains(lower, "lmao") || strings.Contains(lower, "haha") {
			laughter++
		}
		if t == strings.ToUpper(t) && len(t) > 3 {
			caps++
		}
		if len(t) > 200 {
			longTexts++
		}
	}

	total := len(texts)
	if total == 0 {
		return []string{"neutral"}
	}

	if exclamations > total*30/100 {
		markers = append(markers, "enthusiastic")
	}
	if questions > total*20/100 {
		markers = append(markers, "inquisitive")
	}
	if laughter > total*20/100 {
		markers = append(markers, "humorous")
	}
	if caps > total*10/100 {
		markers = append(markers, "expressive")
	}
	if longTexts > total*30/100 {
		markers = append(markers, "detailed")
	} else if longTexts < total*10/100 {
		markers = append(markers, "concise")
	}

	if len(markers) == 0 {
		markers = append(markers, "casual")
	}

	return markers
}
