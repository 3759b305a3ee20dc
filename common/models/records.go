package models

import (
	"regexp"

	"github.com/samber/mo"
)

var nonDigits = regexp.MustCompile(`\D+`)

// OnlyDigits reduces a tax identifier to its canonical digits-only form.
func OnlyDigits(s string) string {
	return nonDigits.ReplaceAllString(s, "")
}

// DebtorRecord is one normalized debtor row surfaced by the PGFN portal.
// Identity key is Cnpj; records with the same key are deduplicated
// first-seen wins before they reach any caller.
type DebtorRecord struct {
	Cnpj      string             `json:"cnpj"`
	Name      string             `json:"name"`
	TradeName string             `json:"trade_name,omitempty"`
	TotalDebt mo.Option[float64] `json:"total_debt,omitempty"`
}

// InscriptionRecord is one debt registration belonging to a debtor.
// Identity key is (Cnpj, InscriptionNumber).
type InscriptionRecord struct {
	Cnpj              string             `json:"cnpj"`
	InscriptionNumber string             `json:"inscription_number"`
	Category          string             `json:"category,omitempty"`
	Amount            mo.Option[float64] `json:"amount,omitempty"`
}
