package pgfn

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/samber/mo"

	"github.com/debtwatch/pgfn-scraper-service/common/models"
)

// Candidate field names per extracted value, in priority order. The
// portal has renamed row fields across versions, so the candidate
// tables are data rather than control flow.
var (
	rowCollectionFields = []string{"devedores"}
	identifierFields    = []string{"id", "cnpj", "idDevedor", "identificador"}
	nameFields          = []string{"nome", "razaoSocial", "razaosocial", "name"}
	tradeNameFields     = []string{"nomefantasia", "fantasia", "nomeFantasia"}
	totalDebtFields     = []string{"totaldivida", "totalDivida", "valortotal", "total"}
	inscriptionFields   = []string{"inscricao", "numeroinscricao", "numeroInscricao"}
	categoryFields      = []string{"natureza", "categoria", "tipo"}
	amountFields        = []string{"valor", "montante", "totaldivida"}
)

// ExtractResult carries the normalized rows of one captured payload
// plus the count of rows dropped for lacking an identifier.
type ExtractResult struct {
	Debtors     []models.DebtorRecord
	DroppedRows int
}

// ExtractDebtors normalizes one captured search payload. The body is
// either a map holding the row collection under a known field (or its
// sole list-valued field), or directly a list of row maps. Rows missing
// every identifier candidate are dropped and counted, never fatal.
// Output is deduplicated by identifier, first seen wins.
func ExtractDebtors(body []byte) (ExtractResult, error) {
	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return ExtractResult{}, fmt.Errorf("payload is not valid JSON: %w", err)
	}

	rows := rowCollection(payload)

	result := ExtractResult{}
	for _, raw := range rows {
		row, ok := raw.(map[string]any)
		if !ok {
			result.DroppedRows++
			continue
		}

		cnpj := strings.TrimSpace(firstString(row, identifierFields))
		if cnpj == "" {
			result.DroppedRows++
			continue
		}

		result.Debtors = append(result.Debtors, models.DebtorRecord{
			Cnpj:      cnpj,
			Name:      strings.TrimSpace(firstString(row, nameFields)),
			TradeName: strings.TrimSpace(firstString(row, tradeNameFields)),
			TotalDebt: firstAmount(row, totalDebtFields),
		})
	}

	before := len(result.Debtors)
	result.Debtors = lo.UniqBy(result.Debtors, func(d models.DebtorRecord) string { return d.Cnpj })
	if dupes := before - len(result.Debtors); dupes > 0 {
		log.Debug().Int("duplicates", dupes).Msg("Dropped duplicate debtor rows")
	}

	return result, nil
}

// ExtractInscriptions normalizes a per-debtor detail payload into
// inscription rows owned by cnpj, with the same shape tolerance as
// ExtractDebtors.
func ExtractInscriptions(cnpj string, body []byte) ([]models.InscriptionRecord, int, error) {
	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, 0, fmt.Errorf("payload is not valid JSON: %w", err)
	}

	rows := rowCollection(payload)

	var records []models.InscriptionRecord
	dropped := 0
	for _, raw := range rows {
		row, ok := raw.(map[string]any)
		if !ok {
			dropped++
			continue
		}

		number := strings.TrimSpace(firstString(row, inscriptionFields))
		if number == "" {
			dropped++
			continue
		}

		records = append(records, models.InscriptionRecord{
			Cnpj:              cnpj,
			InscriptionNumber: number,
			Category:          strings.TrimSpace(firstString(row, categoryFields)),
			Amount:            firstAmount(row, amountFields),
		})
	}

	records = lo.UniqBy(records, func(r models.InscriptionRecord) string {
		return r.Cnpj + "|" + r.InscriptionNumber
	})
	return records, dropped, nil
}

// rowCollection locates the list of row maps inside a payload: the
// known collection field first, then the sole list-valued field of a
// map, then the payload itself when it is already a list.
func rowCollection(payload any) []any {
	switch v := payload.(type) {
	case []any:
		return v
	case map[string]any:
		for _, field := range rowCollectionFields {
			if list, ok := v[field].([]any); ok {
				return list
			}
		}
		var found []any
		lists := 0
		for _, value := range v {
			if list, ok := value.([]any); ok {
				lists++
				found = list
			}
		}
		if lists == 1 {
			return found
		}
	}
	return nil
}

func firstString(row map[string]any, candidates []string) string {
	for _, field := range candidates {
		if value, ok := row[field]; ok && value != nil {
			switch s := value.(type) {
			case string:
				if s != "" {
					return s
				}
			case float64:
				return strconv.FormatFloat(s, 'f', -1, 64)
			}
		}
	}
	return ""
}

func firstAmount(row map[string]any, candidates []string) mo.Option[float64] {
	for _, field := range candidates {
		value, ok := row[field]
		if !ok || value == nil {
			continue
		}
		if parsed, ok := parseAmount(value); ok {
			return mo.Some(parsed)
		}
		// present but unparsable means unknown, not an error
		return mo.None[float64]()
	}
	return mo.None[float64]()
}

// parseAmount coerces a portal amount to a float. Numeric values pass
// through; strings get the pt-BR normalization (thousands dot removed,
// decimal comma to decimal point) before parsing.
func parseAmount(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, false
		}
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	}
	return 0, false
}
