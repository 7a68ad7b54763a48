package similarity

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/agext/levenshtein"

	"github.com/yungbote/syllabridge-backend/internal/domain/syllabus"
)

type Scorer struct {
	weights Weights
}

// NewScorer falls back to DefaultWeights when w is invalid.
func NewScorer(w Weights) *Scorer {
	if w.Validate() != nil {
		w = DefaultWeights()
	}
	return &Scorer{weights: w}
}

var defaultScorer = NewScorer(DefaultWeights())

// Score compares two profiles with the default weights.
func Score(a, b Profile) float64 { return defaultScorer.Score(a, b) }

// Score returns a deterministic similarity in [0,1]. It is symmetric and
// Score(p, p) == 1 for any profile with a title.
func (s *Scorer) Score(a, b Profile) float64 {
	type dim struct {
		weight float64
		value  float64
		empty  bool
	}
	dims := []dim{
		{s.weights.Title, titleScore(a, b), normalizeText(a.Title) == "" && normalizeText(b.Title) == ""},
		{s.weights.Instructor, textRatio(a.Instructor, b.Instructor), normalizeText(a.Instructor) == "" && normalizeText(b.Instructor) == ""},
		{s.weights.Schedule, scheduleScore(a.Meetings, b.Meetings), len(a.Meetings) == 0 && len(b.Meetings) == 0},
	}
	ka, kb := keywords(a), keywords(b)
	dims = append(dims, dim{s.weights.Content, jaccard(ka, kb), len(ka) == 0 && len(kb) == 0})

	var total, weightSum float64
	for _, d := range dims {
		if d.empty || d.weight == 0 {
			continue
		}
		total += d.weight * d.value
		weightSum += d.weight
	}
	if weightSum == 0 {
		return 0
	}
	score := total / weightSum
	if sameIdentifier(a.Identifier, b.Identifier) {
		score += identifierBonus
	}
	return clamp01(score)
}

func titleScore(a, b Profile) float64 {
	base := textRatio(a.Title, b.Title)
	ca, okA := ParseCourseCode(firstNonEmpty(a.CourseCode, a.Title))
	cb, okB := ParseCourseCode(firstNonEmpty(b.CourseCode, b.Title))
	if okA && okB && ca.Department == cb.Department {
		if ca.Number == cb.Number {
			base += exactCodeBonus
		} else {
			base += departmentCodeBonus
		}
	}
	return clamp01(base)
}

func textRatio(a, b string) float64 {
	na, nb := normalizeText(a), normalizeText(b)
	if na == "" && nb == "" {
		return 1
	}
	if na == "" || nb == "" {
		return 0
	}
	return levenshtein.Similarity(na, nb, nil)
}

// CourseCode is a department prefix plus catalog number, e.g. CS 101.
type CourseCode struct {
	Department string
	Number     string
}

var courseCodePattern = regexp.MustCompile(`\b([A-Za-z]{2,4})\s*-?\s*(\d{3,4}[A-Za-z]?)\b`)

func ParseCourseCode(s string) (CourseCode, bool) {
	m := courseCodePattern.FindStringSubmatch(s)
	if m == nil {
		return CourseCode{}, false
	}
	return CourseCode{Department: strings.ToUpper(m[1]), Number: strings.ToUpper(m[2])}, true
}

func scheduleScore(a, b []syllabus.Meeting) float64 {
	da, ha := scheduleSets(a)
	db, hb := scheduleSets(b)
	return (jaccard(da, db) + jaccard(ha, hb)) / 2
}

func scheduleSets(ms []syllabus.Meeting) (days, hours map[string]struct{}) {
	days = map[string]struct{}{}
	hours = map[string]struct{}{}
	for _, m := range ms {
		for _, d := range m.Days {
			days[strings.ToUpper(strings.TrimSpace(d))] = struct{}{}
		}
		start, err1 := syllabus.ParseClock(m.StartTime)
		end, err2 := syllabus.ParseClock(m.EndTime)
		if err1 != nil || err2 != nil || end <= start {
			continue
		}
		for h := start / 60; h <= (end-1)/60; h++ {
			hours[strconv.Itoa(h)] = struct{}{}
		}
	}
	return days, hours
}

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "from": {}, "this": {}, "that": {}, "are": {},
	"will": {}, "you": {}, "your": {}, "our": {}, "into": {}, "course": {}, "class": {}, "week": {},
}

func keywords(p Profile) map[string]struct{} {
	out := map[string]struct{}{}
	add := func(s string) {
		for _, tok := range strings.Fields(normalizeText(s)) {
			if len(tok) < 3 {
				continue
			}
			if _, skip := stopwords[tok]; skip {
				continue
			}
			out[tok] = struct{}{}
		}
	}
	add(p.Description)
	for _, t := range p.EventTitles {
		add(t)
	}
	return out
}

// jaccard treats two empty sets as identical.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter := 0
	for k := range a {
		if _, ok := b[k]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

var placeholderIdentifiers = map[string]struct{}{
	"": {}, "n/a": {}, "na": {}, "none": {}, "personal": {}, "tba": {}, "tbd": {}, "0": {},
}

// IsPlaceholderIdentifier reports identifiers that carry no information.
func IsPlaceholderIdentifier(id string) bool {
	_, ok := placeholderIdentifiers[strings.ToLower(strings.TrimSpace(id))]
	return ok
}

func sameIdentifier(a, b string) bool {
	if IsPlaceholderIdentifier(a) || IsPlaceholderIdentifier(b) {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func normalizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := true
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimSpace(b.String())
}

// NormalizeTitle is the canonical form used for fingerprints and lookups.
func NormalizeTitle(s string) string { return normalizeText(s) }

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
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
