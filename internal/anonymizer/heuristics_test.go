package anonymizer

import "testing"

func TestLineClassifier(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		company int
		address int
	}{
		{"all caps company", "SUMINISTROS INDUSTRIALES DEL NORTE", CompanyPlaceholder, 1, 0},
		{"surrounding spaces are trimmed", "   HIERROS DEL SUR SL   ", CompanyPlaceholder, 1, 0},
		{"accented capitals", "CONSTRUCCIONES ÁLVAREZ", CompanyPlaceholder, 1, 0},
		{"too short", "ACME CORP", "ACME CORP", 0, 0},
		{"mixed case", "Suministros Industriales", "Suministros Industriales", 0, 0},
		{"digits are not a company", "PEDIDO NUMERO DOCE 12", "PEDIDO NUMERO DOCE 12", 0, 0},
		{"address line", "Calle del Olmo 14", AddressPlaceholder, 0, 1},
		{"address keyword without digit", "Plaza Mayor", "Plaza Mayor", 0, 0},
		{"all caps address is a company first", "AVENIDA DE LA PAZ SIN NUMERO", CompanyPlaceholder, 1, 0},
		{"placeholders pass through", "[EMAIL]", "[EMAIL]", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stats := NewStats()
			got := LineClassifier{}.Apply(tt.input, stats)
			if got != tt.want {
				t.Errorf("Apply(%q) = %q, want %q", tt.input, got, tt.want)
			}
			if stats.ByType[CategoryCompanyHeuristic] != tt.company {
				t.Errorf("company count = %d, want %d", stats.ByType[CategoryCompanyHeuristic], tt.company)
			}
			if stats.ByType[CategoryAddressHeuristic] != tt.address {
				t.Errorf("address count = %d, want %d", stats.ByType[CategoryAddressHeuristic], tt.address)
			}
		})
	}
}

func TestLineClassifierKeepsLineStructure(t *testing.T) {
	input := "Albarán\nDISTRIBUCIONES GARCIA LOPEZ\n\nPaseo de Gracia 21\nfin"
	want := "Albarán\n" + CompanyPlaceholder + "\n\n" + AddressPlaceholder + "\nfin"

	stats := NewStats()
	if got := (LineClassifier{}).Apply(input, stats); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if stats.TotalReplacements != 2 {
		t.Errorf("total = %d, want 2", stats.TotalReplacements)
	}
}

func TestLineClassifierKeepsCRLF(t *testing.T) {
	input := "Proveedor\r\nHERRAMIENTAS DEL NORTE SOCIEDAD\r\nCalle Mayor 5\r\n"
	want := "Proveedor\r\n" + CompanyPlaceholder + "\r\n" + AddressPlaceholder + "\r\n"

	stats := NewStats()
	if got := (LineClassifier{}).Apply(input, stats); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if stats.TotalReplacements != 2 {
		t.Errorf("total = %d, want 2", stats.TotalReplacements)
	}
}
