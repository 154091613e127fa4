package anonymizer

import (
	"fmt"
	"regexp"
	"strings"
)

// Category names of the built-in detector groups. They double as stats keys.
const (
	CategoryTaxID          = "cif_nif_nie"
	CategoryEmail          = "email"
	CategoryPhone          = "telefono"
	CategoryIBAN           = "iban"
	CategoryBankAccount    = "cuenta_bancaria"
	CategoryAddress        = "direccion"
	CategoryDocumentNumber = "numero_documento"
	CategoryPrice          = "precio"
)

// DetectorGroup is a named, ordered list of patterns targeting one kind of
// sensitive value.
type DetectorGroup struct {
	Name     string
	Patterns []*regexp.Regexp
}

// Placeholder returns the token that replaces every match of the group.
func (g DetectorGroup) Placeholder() string {
	return Placeholder(g.Name)
}

// Placeholder builds the bracketed token for a category name.
func Placeholder(name string) string {
	return "[" + strings.ToUpper(name) + "]"
}

// GroupInfo describes a detector group for the admin surface.
type GroupInfo struct {
	Name        string   `json:"nombre"`
	Placeholder string   `json:"placeholder"`
	Count       int      `json:"patrones"`
	Patterns    []string `json:"expresiones"`
}

// Library applies its detector groups to text. It is immutable after
// construction and safe for concurrent use.
type Library struct {
	groups []DetectorGroup
}

// NewLibrary creates a library from groups, preserving their order.
func NewLibrary(groups []DetectorGroup) *Library {
	return &Library{groups: groups}
}

// DefaultLibrary returns the built-in Spanish-document detector groups.
func DefaultLibrary() *Library {
	return NewLibrary(defaultGroups())
}

// Select returns a library holding only the named groups, in declaration
// order. The name "all" keeps every group.
func (l *Library) Select(names []string) (*Library, error) {
	enabled := make(map[string]bool, len(l.groups))
	for _, name := range names {
		if name == "all" {
			for _, g := range l.groups {
				enabled[g.Name] = true
			}
			continue
		}

		found := false
		for _, g := range l.groups {
			if g.Name == name {
				enabled[g.Name] = true
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown detector: %s", name)
		}
	}

	groups := make([]DetectorGroup, 0, len(enabled))
	for _, g := range l.groups {
		if enabled[g.Name] {
			groups = append(groups, g)
		}
	}
	return NewLibrary(groups), nil
}

// Apply runs every group in declaration order and every pattern in order
// within its group. Each pattern sees the output of the previous one, so
// overlapping detectors may count the same region more than once.
func (l *Library) Apply(text string, stats *Stats) string {
	for _, group := range l.groups {
		placeholder := group.Placeholder()
		for _, re := range group.Patterns {
			matches := re.FindAllStringIndex(text, -1)
			if len(matches) == 0 {
				continue
			}
			stats.Add(group.Name, len(matches))
			text = re.ReplaceAllLiteralString(text, placeholder)
		}
	}
	return text
}

// Groups describes the active detector groups.
func (l *Library) Groups() []GroupInfo {
	infos := make([]GroupInfo, 0, len(l.groups))
	for _, g := range l.groups {
		exprs := make([]string, len(g.Patterns))
		for i, re := range g.Patterns {
			exprs[i] = re.String()
		}
		infos = append(infos, GroupInfo{
			Name:        g.Name,
			Placeholder: g.Placeholder(),
			Count:       len(g.Patterns),
			Patterns:    exprs,
		})
	}
	return infos
}

func defaultGroups() []DetectorGroup {
	return []DetectorGroup{
		{
			Name: CategoryTaxID,
			Patterns: compileAll(
				`\b[XYZ]\d{7}[A-Z]\b`,
				`\b\d{8}[A-Z]\b`,
				`\b[ABCDEFGHJNPQRSUVW]\d{6,7}[0-9A-J]\b`,
				`\b[ABCDEFGHJNPQRSUVW]\d{8}\b`,
				`\b[ABCDEFGHJNPQRSUVW]\d{8}[0-9A-J]\b`,
			),
		},
		{
			Name: CategoryEmail,
			Patterns: compileAll(
				`\b[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}\b`,
			),
		},
		{
			Name: CategoryPhone,
			Patterns: compileAll(
				`(?:(?:\+34|\b0034)\s*|\b)[6789]\d{8}\b`,
				`\+\d{1,3}\s*\d{3,4}\s*\d{3,4}\s*\d{3,4}\b`,
				`(?:(?:\+34|\b0034)\s*|\b)\d{3}\s*\d{3}\s*\d{3}\b`,
				`(?:(?:\+34|\b0034)\s*|\b)\d{2}\s*\d{3}\s*\d{2}\s*\d{2}\b`,
				`\b\d{3}-\d{3}-\d{3}\b`,
			),
		},
		{
			Name: CategoryIBAN,
			Patterns: compileAll(
				`\bES\d{2}\s*\d{4}\s*\d{4}\s*\d{2}\s*\d{10}\b`,
				`\b[A-Z]{2}\d{2}\s*(?:\d{4}\s*){3,8}\d{1,4}\b`,
				`\b[A-Z]{2}\d{2}-\d{4}-\d{4}-\d{2}-\d{10}\b`,
				`\b[A-Z]{2}\d{2}(?:-\d{4}){3,8}-\d{1,4}\b`,
			),
		},
		{
			Name: CategoryBankAccount,
			Patterns: compileAll(
				`\b\d{4}\s*\d{4}\s*\d{2}\s*\d{10}\b`,
				`\b\d{20}\b`,
			),
		},
		{
			Name: CategoryAddress,
			Patterns: compileAll(
				`(?i)\b(?:C/|Calle|Avda?\.?|Avenida|Paseo|Plaza|Pz\.?|Polígono|Pol\.?)\s+[^,\n\r]{5,50}`,
				`(?i)\b\d{5}\s+[A-Z][a-z]+(?:\s+[A-Z][a-z]+)*\b`,
				`(?i)\b(?:Av\.?|Avenida)\s+[A-Za-z]+\s+\d+[^,\n\r]*\b`,
			),
		},
		{
			Name: CategoryDocumentNumber,
			Patterns: compileAll(
				// the prefix is case-insensitive, the body is not, so words
				// like "Factura" or "Pedido" are left alone
				`\b(?i:FAC|FACT|PED|ALB|ORD)[A-Z0-9\-]{3,15}\b`,
				`\b\d{4,8}/\d{2,4}\b`,
			),
		},
		{
			Name: CategoryPrice,
			Patterns: compileAll(
				`\b\d{1,6}[,.]\d{2}\s*€`,
				`€\s*\d{1,6}[,.]\d{2}\b`,
			),
		},
	}
}

func compileAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, expr := range exprs {
		out[i] = regexp.MustCompile(expr)
	}
	return out
}
