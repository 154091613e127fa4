package anonymizer

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	CategoryCompanyHeuristic = "empresa_heuristica"
	CategoryAddressHeuristic = "direccion_heuristica"

	CompanyPlaceholder = "[NOMBRE_EMPRESA_DETECTADO]"
	AddressPlaceholder = "[DIRECCION_DETECTADA]"
)

// Lines strictly between these lengths may be company names.
const (
	minCompanyLineLen = 10
	maxCompanyLineLen = 80
)

var addressKeywords = []string{"CALLE", "AVENIDA", "PLAZA", "PASEO"}

// LineClassifier is the last-resort pass: it replaces whole lines that look
// like an unlabeled company name or an address.
type LineClassifier struct{}

// Apply classifies each line independently. A replaced line counts as one
// replacement regardless of its length.
func (LineClassifier) Apply(text string, stats *Stats) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		// a replaced CRLF line keeps its \r
		eol := ""
		if strings.HasSuffix(line, "\r") {
			eol = "\r"
		}
		switch {
		case looksLikeCompany(line):
			lines[i] = CompanyPlaceholder + eol
			stats.Add(CategoryCompanyHeuristic, 1)
		case looksLikeAddress(line):
			lines[i] = AddressPlaceholder + eol
			stats.Add(CategoryAddressHeuristic, 1)
		}
	}
	return strings.Join(lines, "\n")
}

// looksLikeCompany matches all-caps lines made of letters and spaces only.
func looksLikeCompany(line string) bool {
	trimmed := strings.TrimSpace(line)
	n := utf8.RuneCountInString(trimmed)
	if n <= minCompanyLineLen || n >= maxCompanyLineLen {
		return false
	}
	for _, r := range trimmed {
		if r != ' ' && !unicode.IsLetter(r) {
			return false
		}
	}
	return trimmed == strings.ToUpper(trimmed)
}

// looksLikeAddress matches lines holding a street keyword and a digit.
func looksLikeAddress(line string) bool {
	upper := strings.ToUpper(line)
	keyword := false
	for _, k := range addressKeywords {
		if strings.Contains(upper, k) {
			keyword = true
			break
		}
	}
	if !keyword {
		return false
	}
	return strings.IndexFunc(line, unicode.IsDigit) >= 0
}
