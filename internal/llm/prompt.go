package llm

import (
	"embed"
	"fmt"
	"strings"
	"unicode/utf8"
)

//go:embed templates/*.txt
var templateFS embed.FS

// DocumentPlaceholder marks where the document text goes in a template.
const DocumentPlaceholder = "{documento_extraido}"

// Kind selects the prompt template.
type Kind string

const (
	KindDocument  Kind = "documento"
	KindSalesData Kind = "dades_venda"
)

// ParseKind validates a prompt kind name.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindDocument, KindSalesData:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown prompt kind: %q", s)
}

func loadTemplate(kind Kind) (string, error) {
	data, err := templateFS.ReadFile("templates/" + string(kind) + ".txt")
	if err != nil {
		return "", fmt.Errorf("load %s template: %w", kind, err)
	}
	return string(data), nil
}

// EstimateTokens approximates the token count as one token per four
// characters, rounded up.
func EstimateTokens(s string) int {
	return (utf8.RuneCountInString(s) + 3) / 4
}

// Budget bounds the size of one completion request.
type Budget struct {
	MaxTotalTokens  int
	MaxOutputTokens int
	SafetyMargin    int
}

// Fit renders the prompt and, when it does not leave room for the output,
// drops four characters from the end of the document per excess token.
// It returns the prompt, its estimated tokens and the number of characters
// removed.
func (b Budget) Fit(template, document string) (prompt string, tokens int, trimmed int) {
	prompt = strings.ReplaceAll(template, DocumentPlaceholder, document)
	tokens = EstimateTokens(prompt)

	limit := b.MaxTotalTokens - b.SafetyMargin
	if tokens+b.MaxOutputTokens <= limit {
		return prompt, tokens, 0
	}

	excess := tokens + b.MaxOutputTokens - limit
	runes := []rune(document)
	cut := excess * 4
	if cut > len(runes) {
		cut = len(runes)
	}
	document = string(runes[:len(runes)-cut])

	prompt = strings.ReplaceAll(template, DocumentPlaceholder, document)
	return prompt, EstimateTokens(prompt), cut
}

func preview(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max]) + "..."
}
