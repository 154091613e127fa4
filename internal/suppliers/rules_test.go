package suppliers

import "testing"

type countRecorder map[string]int

func (c countRecorder) Add(category string, n int) { c[category] += n }

func boolPtr(b bool) *bool { return &b }

func TestRulesetApply(t *testing.T) {
	tests := []struct {
		name    string
		profile Profile
		input   string
		want    string
		counts  map[string]int
	}{
		{
			name:    "company name is case-insensitive",
			profile: Profile{CompanyNames: []string{"Acme Corp"}},
			input:   "Factura de ACME CORP y acme corp",
			want:    "Factura de [NOMBRES_EMPRESA_PROVEEDOR] y [NOMBRES_EMPRESA_PROVEEDOR]",
			counts:  map[string]int{"nombres_empresa_proveedor": 2},
		},
		{
			name:    "ordinary fields are word bounded",
			profile: Profile{Contacts: []string{"Ana"}},
			input:   "Ana Banana, contacto: ana.",
			want:    "[CONTACTOS_PROVEEDOR] Banana, contacto: [CONTACTOS_PROVEEDOR].",
			counts:  map[string]int{"contactos_proveedor": 2},
		},
		{
			name:    "boundaries respect accented letters",
			profile: Profile{Contacts: []string{"José"}},
			input:   "Josélito y José",
			want:    "Josélito y [CONTACTOS_PROVEEDOR]",
			counts:  map[string]int{"contactos_proveedor": 1},
		},
		{
			name:    "special code with digits takes CIF label",
			profile: Profile{SpecialCodes: []string{"B12345678"}},
			input:   "CIF: B12345678 / ref XB12345678",
			want:    "[CIF] / ref X[CIF]",
			counts:  map[string]int{"codigos_especiales_proveedor": 2},
		},
		{
			name:    "special code without digits is unbounded",
			profile: Profile{SpecialCodes: []string{"ACM"}},
			input:   "ACMEX acm",
			want:    "[CODIGOS_ESPECIALES_PROVEEDOR]EX [CODIGOS_ESPECIALES_PROVEEDOR]",
			counts:  map[string]int{"codigos_especiales_proveedor": 2},
		},
		{
			name:    "values are literal, not patterns",
			profile: Profile{Phones: []string{"555.12.34"}},
			input:   "Tel 555.12.34 y 555x12x34",
			want:    "Tel [TELEFONOS_PROVEEDOR] y 555x12x34",
			counts:  map[string]int{"telefonos_proveedor": 1},
		},
		{
			name:    "blank values are skipped",
			profile: Profile{Emails: []string{"", "   "}},
			input:   "nothing to see",
			want:    "nothing to see",
			counts:  map[string]int{},
		},
		{
			name:    "values are trimmed before matching",
			profile: Profile{Addresses: []string{"  Calle Mayor 1  "}},
			input:   "en Calle Mayor 1, Madrid",
			want:    "en [DIRECCIONES_PROVEEDOR], Madrid",
			counts:  map[string]int{"direcciones_proveedor": 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := countRecorder{}
			got := compileProfile("s", tt.profile).Apply(tt.input, rec)
			if got != tt.want {
				t.Errorf("Apply() = %q, want %q", got, tt.want)
			}
			if len(rec) != len(tt.counts) {
				t.Fatalf("counts = %v, want %v", rec, tt.counts)
			}
			for k, v := range tt.counts {
				if rec[k] != v {
					t.Errorf("count[%s] = %d, want %d", k, rec[k], v)
				}
			}
		})
	}
}

func TestRulesetFieldOrder(t *testing.T) {
	// company names run before contacts, so the longer company value wins
	p := Profile{
		Contacts:     []string{"Acme"},
		CompanyNames: []string{"Acme Corp"},
	}
	rec := countRecorder{}
	got := compileProfile("s", p).Apply("Acme Corp", rec)
	if got != "[NOMBRES_EMPRESA_PROVEEDOR]" {
		t.Errorf("got %q", got)
	}
	if rec["contactos_proveedor"] != 0 {
		t.Errorf("contacts should not match after company replacement: %v", rec)
	}
}

func TestRulesetEnabled(t *testing.T) {
	if !compileProfile("a", Profile{}).Enabled() {
		t.Error("unset toggle should mean enabled")
	}
	if compileProfile("a", Profile{Anonymize: boolPtr(false)}).Enabled() {
		t.Error("explicit false should disable")
	}
}

func TestParseField(t *testing.T) {
	for _, f := range Fields {
		got, err := ParseField(string(f))
		if err != nil || got != f {
			t.Errorf("ParseField(%q) = %q, %v", f, got, err)
		}
	}
	if _, err := ParseField("telefono_movil"); err == nil {
		t.Error("expected error for unknown field")
	}
}
