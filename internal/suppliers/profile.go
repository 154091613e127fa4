package suppliers

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

var (
	// ErrNotFound is returned when a supplier id has no profile.
	ErrNotFound = errors.New("supplier not found")
	// ErrUnknownField is returned for field names outside the fixed set.
	ErrUnknownField = errors.New("unknown supplier field")
	// ErrBlankValue is returned when adding an empty or whitespace value.
	ErrBlankValue = errors.New("blank supplier value")
	// ErrBlankID is returned when a supplier id is empty.
	ErrBlankID = errors.New("blank supplier id")
)

// Field names one list of literal values in a supplier profile.
type Field string

const (
	FieldCompanyNames Field = "nombres_empresa"
	FieldAddresses    Field = "direcciones"
	FieldPhones       Field = "telefonos"
	FieldEmails       Field = "emails"
	FieldIBAN         Field = "iban"
	FieldBankAccounts Field = "cuentas_bancarias"
	FieldContacts     Field = "contactos"
	FieldSpecialCodes Field = "codigos_especiales"
)

// Fields lists every known field in the order rules are applied.
var Fields = []Field{
	FieldCompanyNames,
	FieldAddresses,
	FieldPhones,
	FieldEmails,
	FieldIBAN,
	FieldBankAccounts,
	FieldContacts,
	FieldSpecialCodes,
}

// anonymizeKey is the optional toggle stored next to the field lists.
const anonymizeKey = "anonimizar"

// ParseField validates a field name.
func ParseField(name string) (Field, error) {
	for _, f := range Fields {
		if string(f) == name {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownField, name)
}

// StatsKey is the category recorded for replacements made by this field.
func (f Field) StatsKey() string {
	return string(f) + "_proveedor"
}

// Placeholder is the token used for ordinary values of this field.
func (f Field) Placeholder() string {
	if f == FieldCompanyNames {
		return "[NOMBRES_EMPRESA_PROVEEDOR]"
	}
	return "[" + strings.ToUpper(string(f)) + "_PROVEEDOR]"
}

// Profile holds the literal values known for one supplier.
type Profile struct {
	CompanyNames []string `json:"nombres_empresa" toml:"nombres_empresa"`
	Addresses    []string `json:"direcciones" toml:"direcciones"`
	Phones       []string `json:"telefonos" toml:"telefonos"`
	Emails       []string `json:"emails" toml:"emails"`
	IBAN         []string `json:"iban" toml:"iban"`
	BankAccounts []string `json:"cuentas_bancarias" toml:"cuentas_bancarias"`
	Contacts     []string `json:"contactos" toml:"contactos"`
	SpecialCodes []string `json:"codigos_especiales" toml:"codigos_especiales"`

	// Anonymize is nil when unset, which means anonymization applies.
	Anonymize *bool `json:"anonimizar,omitempty" toml:"anonimizar,omitempty"`
}

// Enabled reports whether anonymization applies to this supplier.
func (p Profile) Enabled() bool {
	return p.Anonymize == nil || *p.Anonymize
}

// Values returns the list stored for field.
func (p *Profile) Values(f Field) []string {
	if ptr := p.list(f); ptr != nil {
		return *ptr
	}
	return nil
}

// SetValues replaces the list stored for field.
func (p *Profile) SetValues(f Field, values []string) {
	if ptr := p.list(f); ptr != nil {
		*ptr = values
	}
}

func (p *Profile) list(f Field) *[]string {
	switch f {
	case FieldCompanyNames:
		return &p.CompanyNames
	case FieldAddresses:
		return &p.Addresses
	case FieldPhones:
		return &p.Phones
	case FieldEmails:
		return &p.Emails
	case FieldIBAN:
		return &p.IBAN
	case FieldBankAccounts:
		return &p.BankAccounts
	case FieldContacts:
		return &p.Contacts
	case FieldSpecialCodes:
		return &p.SpecialCodes
	}
	return nil
}

// Clone returns a deep copy. Nil lists become empty lists so encoded
// profiles always carry every field.
func (p Profile) Clone() Profile {
	var out Profile
	for _, f := range Fields {
		src := p.Values(f)
		dst := make([]string, len(src))
		copy(dst, src)
		out.SetValues(f, dst)
	}
	if p.Anonymize != nil {
		v := *p.Anonymize
		out.Anonymize = &v
	}
	return out
}

// decodeProfiles converts a generically decoded document into profiles.
// Entries that are not objects, fields that are not lists of strings and
// a non-boolean toggle are skipped; unknown fields are ignored.
func decodeProfiles(doc map[string]any, logger *zap.Logger) map[string]Profile {
	out := make(map[string]Profile, len(doc))
	for id, raw := range doc {
		obj, ok := raw.(map[string]any)
		if !ok {
			logger.Warn("Skipping supplier entry that is not an object", zap.String("supplier", id))
			continue
		}
		out[id] = decodeProfile(id, obj, logger)
	}
	return out
}

func decodeProfile(id string, obj map[string]any, logger *zap.Logger) Profile {
	var p Profile
	for key, raw := range obj {
		if key == anonymizeKey {
			if b, ok := raw.(bool); ok {
				p.Anonymize = &b
			} else {
				logger.Warn("Ignoring non-boolean anonymization toggle", zap.String("supplier", id))
			}
			continue
		}
		f, err := ParseField(key)
		if err != nil {
			logger.Warn("Ignoring unknown supplier field",
				zap.String("supplier", id),
				zap.String("field", key),
			)
			continue
		}
		values, ok := stringList(raw)
		if !ok {
			logger.Warn("Skipping malformed supplier field",
				zap.String("supplier", id),
				zap.String("field", key),
			)
			continue
		}
		p.SetValues(f, values)
	}
	return p
}

func stringList(raw any) ([]string, bool) {
	switch v := raw.(type) {
	case []string:
		return v, true
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}
