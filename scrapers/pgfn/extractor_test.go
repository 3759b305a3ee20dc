package pgfn

import (
	"testing"
)

func TestExtractDebtorsPayloadShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{
			"map with named collection",
			`{"pagina":1,"devedores":[{"id":"11111111000100","nome":"ACME TRANSPORTES LTDA"}]}`,
			1,
		},
		{
			"bare list",
			`[{"id":"11111111000100","nome":"ACME TRANSPORTES LTDA"}]`,
			1,
		},
		{
			"map with sole unnamed list field",
			`{"total":2,"resultado":[{"id":"11111111000100","nome":"A"},{"id":"22222222000100","nome":"B"}]}`,
			2,
		},
		{
			"map with several list fields matches none",
			`{"a":[{"id":"1"}],"b":[{"id":"2"}]}`,
			0,
		},
		{
			"empty map",
			`{}`,
			0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ExtractDebtors([]byte(tt.body))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(result.Debtors) != tt.want {
				t.Errorf("expected %d debtors, got %d", tt.want, len(result.Debtors))
			}
			for _, d := range result.Debtors {
				if d.Cnpj == "" {
					t.Error("surfaced a debtor with an empty identifier")
				}
			}
		})
	}
}

func TestExtractDebtorsInvalidJSON(t *testing.T) {
	if _, err := ExtractDebtors([]byte("<html>not json</html>")); err == nil {
		t.Error("expected an error for non-JSON payload")
	}
}

func TestExtractDebtorsIdentifierCandidates(t *testing.T) {
	body := `{"devedores":[
		{"id":"11111111000100","nome":"BY ID"},
		{"cnpj":"22222222000100","nome":"BY CNPJ"},
		{"idDevedor":"33333333000100","nome":"BY ID DEVEDOR"},
		{"identificador":"44444444000100","nome":"BY IDENTIFICADOR"},
		{"nome":"NO IDENTIFIER AT ALL"}
	]}`

	result, err := ExtractDebtors([]byte(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Debtors) != 4 {
		t.Fatalf("expected 4 debtors, got %d", len(result.Debtors))
	}
	if result.DroppedRows != 1 {
		t.Errorf("expected 1 dropped row, got %d", result.DroppedRows)
	}
}

func TestExtractDebtorsNameCandidates(t *testing.T) {
	// the portal has shipped both plain and camelCase name keys
	body := `{"devedores":[
		{"id":"11111111000100","razaoSocial":"CAMEL CASE LTDA"},
		{"id":"22222222000100","razaosocial":"LOWER CASE LTDA"}
	]}`

	result, err := ExtractDebtors([]byte(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Debtors) != 2 {
		t.Fatalf("expected 2 debtors, got %d", len(result.Debtors))
	}
	if result.Debtors[0].Name != "CAMEL CASE LTDA" {
		t.Errorf("razaoSocial not mapped, got %q", result.Debtors[0].Name)
	}
	if result.Debtors[1].Name != "LOWER CASE LTDA" {
		t.Errorf("razaosocial not mapped, got %q", result.Debtors[1].Name)
	}
}

func TestExtractDebtorsDeduplicationFirstSeenWins(t *testing.T) {
	body := `{"devedores":[
		{"id":"11111111000100","nome":"FIRST NAME"},
		{"id":"11111111000100","nome":"SECOND NAME"},
		{"id":"11111111000100","nome":"THIRD NAME"},
		{"id":"22222222000100","nome":"OTHER"}
	]}`

	result, err := ExtractDebtors([]byte(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Debtors) != 2 {
		t.Fatalf("expected 2 debtors after dedup, got %d", len(result.Debtors))
	}
	if result.Debtors[0].Name != "FIRST NAME" {
		t.Errorf("first-seen record must win, got %q", result.Debtors[0].Name)
	}
	if result.Debtors[1].Cnpj != "22222222000100" {
		t.Errorf("input order must be preserved, got %q", result.Debtors[1].Cnpj)
	}
}

func TestExtractDebtorsAmountCoercion(t *testing.T) {
	tests := []struct {
		name  string
		total string
		want  float64
		known bool
	}{
		{"regional thousands and decimal", `"1.234,56"`, 1234.56, true},
		{"regional zero", `"0,00"`, 0.0, true},
		{"already numeric", `1234.56`, 1234.56, true},
		{"unparsable becomes unknown", `"abc"`, 0, false},
		{"null becomes unknown", `null`, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := `{"devedores":[{"id":"11111111000100","nome":"ACME","totaldivida":` + tt.total + `}]}`
			result, err := ExtractDebtors([]byte(body))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(result.Debtors) != 1 {
				t.Fatalf("expected 1 debtor, got %d", len(result.Debtors))
			}

			got, ok := result.Debtors[0].TotalDebt.Get()
			if ok != tt.known {
				t.Fatalf("expected known=%v, got %v", tt.known, ok)
			}
			if tt.known && got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestExtractDebtorsFieldMapping(t *testing.T) {
	body := `{"devedores":[{"id":" 11111111000100 ","nome":"ACME TRANSPORTES LTDA","nomefantasia":"ACME","totaldivida":"10.500,00"}]}`

	result, err := ExtractDebtors([]byte(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d := result.Debtors[0]
	if d.Cnpj != "11111111000100" {
		t.Errorf("identifier must be trimmed, got %q", d.Cnpj)
	}
	if d.Name != "ACME TRANSPORTES LTDA" || d.TradeName != "ACME" {
		t.Errorf("unexpected names: %q / %q", d.Name, d.TradeName)
	}
	if total, ok := d.TotalDebt.Get(); !ok || total != 10500.0 {
		t.Errorf("expected total 10500.0, got %v ok=%v", total, ok)
	}
}

func TestExtractInscriptions(t *testing.T) {
	body := `{"inscricoes":[
		{"inscricao":"12 3 45 678901-23","natureza":"SIMPLES NACIONAL","valor":"1.000,50"},
		{"inscricao":"12 3 45 678901-23","natureza":"DUPLICATE"},
		{"natureza":"NO NUMBER"}
	]}`

	records, dropped, err := ExtractInscriptions("11111111000100", []byte(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 inscription after dedup, got %d", len(records))
	}
	if dropped != 1 {
		t.Errorf("expected 1 dropped row, got %d", dropped)
	}

	r := records[0]
	if r.Cnpj != "11111111000100" {
		t.Errorf("inscription must carry the owning cnpj, got %q", r.Cnpj)
	}
	if r.InscriptionNumber != "12 3 45 678901-23" {
		t.Errorf("unexpected inscription number %q", r.InscriptionNumber)
	}
	if r.Category != "SIMPLES NACIONAL" {
		t.Errorf("unexpected category %q", r.Category)
	}
	if amount, ok := r.Amount.Get(); !ok || amount != 1000.50 {
		t.Errorf("expected amount 1000.50, got %v ok=%v", amount, ok)
	}
}
