package suppliers

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Recorder receives replacement counts per category.
type Recorder interface {
	Add(category string, n int)
}

const specialCodePlaceholder = "[CIF]"

// rule is one literal supplier value compiled for matching.
type rule struct {
	re          *regexp.Regexp
	bounded     bool
	placeholder string
	statsKey    string
}

// Ruleset is the compiled, immutable form of one supplier profile.
type Ruleset struct {
	id      string
	enabled bool
	rules   []rule
}

// ID returns the supplier identifier.
func (rs *Ruleset) ID() string { return rs.id }

// Enabled reports whether the supplier allows anonymization.
func (rs *Ruleset) Enabled() bool { return rs.enabled }

// compileProfile builds rules in canonical field order, skipping blank
// values. Every value is matched as a case-insensitive literal.
func compileProfile(id string, p Profile) *Ruleset {
	rs := &Ruleset{id: id, enabled: p.Enabled()}
	for _, f := range Fields {
		for _, value := range p.Values(f) {
			value = strings.TrimSpace(value)
			if value == "" {
				continue
			}
			rs.rules = append(rs.rules, compileValue(f, value))
		}
	}
	return rs
}

func compileValue(f Field, value string) rule {
	quoted := regexp.QuoteMeta(value)
	if f != FieldSpecialCodes {
		return rule{
			re:          regexp.MustCompile(`(?i)` + quoted),
			bounded:     true,
			placeholder: f.Placeholder(),
			statsKey:    f.StatsKey(),
		}
	}
	if strings.IndexFunc(value, unicode.IsDigit) >= 0 {
		return rule{
			re:          regexp.MustCompile(`(?i)(?:CIF:\s*)?` + quoted),
			placeholder: specialCodePlaceholder,
			statsKey:    f.StatsKey(),
		}
	}
	return rule{
		re:          regexp.MustCompile(`(?i)` + quoted),
		placeholder: f.Placeholder(),
		statsKey:    f.StatsKey(),
	}
}

// Apply runs every rule in order over text, each on the output of the
// previous one, and records match counts on rec.
func (rs *Ruleset) Apply(text string, rec Recorder) string {
	for _, r := range rs.rules {
		var matches [][]int
		if r.bounded {
			matches = findBounded(r.re, text)
		} else {
			matches = r.re.FindAllStringIndex(text, -1)
		}
		if len(matches) == 0 {
			continue
		}
		rec.Add(r.statsKey, len(matches))
		text = splice(text, matches, r.placeholder)
	}
	return text
}

// findBounded returns the non-overlapping matches of re whose both ends sit
// on a word boundary. Word characters are Unicode letters, digits and
// underscore, so accented names are bounded correctly.
func findBounded(re *regexp.Regexp, text string) [][]int {
	var out [][]int
	pos := 0
	for pos < len(text) {
		loc := re.FindStringIndex(text[pos:])
		if loc == nil {
			break
		}
		start, end := pos+loc[0], pos+loc[1]
		if end > start && isBoundary(text, start) && isBoundary(text, end) {
			out = append(out, []int{start, end})
			pos = end
			continue
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		if size == 0 {
			break
		}
		pos = start + size
	}
	return out
}

func isBoundary(text string, i int) bool {
	before, after := false, false
	if i > 0 {
		r, _ := utf8.DecodeLastRuneInString(text[:i])
		before = isWordRune(r)
	}
	if i < len(text) {
		r, _ := utf8.DecodeRuneInString(text[i:])
		after = isWordRune(r)
	}
	return before != after
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// splice replaces the given non-overlapping spans with a literal token.
func splice(text string, spans [][]int, token string) string {
	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, s := range spans {
		b.WriteString(text[last:s[0]])
		b.WriteString(token)
		last = s[1]
	}
	b.WriteString(text[last:])
	return b.String()
}
