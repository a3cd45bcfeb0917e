package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger-core/internal/shared"
)

// BreakdownFormat tags the shape a payroll breakdown arrived in.
type BreakdownFormat string

const (
	// BreakdownLegacy is the flat {"gross":..,"<code>":..,"net":..} object.
	BreakdownLegacy BreakdownFormat = "LEGACY"
	// BreakdownStructured carries explicit earnings and deductions arrays.
	BreakdownStructured BreakdownFormat = "STRUCTURED"
)

// Withholding is one amount withheld from gross pay.
type Withholding struct {
	Code   string          `json:"code"`
	Amount decimal.Decimal `json:"amount"`
}

// PayrollBreakdown is the canonical form every payroll consumer reads.
// Gross always equals the withholdings plus Net.
type PayrollBreakdown struct {
	Format       BreakdownFormat `json:"format"`
	Gross        decimal.Decimal `json:"gross"`
	Withholdings []Withholding   `json:"withholdings"`
	Net          decimal.Decimal `json:"net"`
}

// ErrBreakdownInvalid reports an undecodable or inconsistent breakdown.
var ErrBreakdownInvalid = shared.Validation("integration: invalid payroll breakdown")

type structuredLine struct {
	Code   string          `json:"code"`
	Amount decimal.Decimal `json:"amount"`
}

type structuredBreakdown struct {
	Version    int              `json:"version"`
	Earnings   []structuredLine `json:"earnings"`
	Deductions []structuredLine `json:"deductions"`
	Net        *decimal.Decimal `json:"net"`
}

// DecodePayrollBreakdown resolves a legacy or structured blob into the
// canonical breakdown.
func DecodePayrollBreakdown(raw []byte) (PayrollBreakdown, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return PayrollBreakdown{}, fmt.Errorf("%w: %v", ErrBreakdownInvalid, err)
	}
	var (
		out PayrollBreakdown
		err error
	)
	if _, ok := probe["earnings"]; ok {
		out, err = decodeStructured(raw)
	} else if _, ok := probe["version"]; ok {
		out, err = decodeStructured(raw)
	} else {
		out, err = decodeLegacy(probe)
	}
	if err != nil {
		return PayrollBreakdown{}, err
	}
	return out, out.validate()
}

func decodeStructured(raw []byte) (PayrollBreakdown, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var s structuredBreakdown
	if err := dec.Decode(&s); err != nil {
		return PayrollBreakdown{}, fmt.Errorf("%w: %v", ErrBreakdownInvalid, err)
	}
	out := PayrollBreakdown{Format: BreakdownStructured}
	for _, e := range s.Earnings {
		out.Gross = out.Gross.Add(round2(e.Amount))
	}
	byCode := make(map[string]decimal.Decimal)
	for _, d := range s.Deductions {
		code := normalizeCode(d.Code)
		if code == "" {
			return PayrollBreakdown{}, fmt.Errorf("%w: deduction code required", ErrBreakdownInvalid)
		}
		byCode[code] = byCode[code].Add(round2(d.Amount))
	}
	out.Withholdings = sortedWithholdings(byCode)
	if s.Net != nil {
		out.Net = round2(*s.Net)
	} else {
		out.Net = out.Gross.Sub(sumWithholdings(out.Withholdings))
	}
	return out, nil
}

func decodeLegacy(fields map[string]json.RawMessage) (PayrollBreakdown, error) {
	out := PayrollBreakdown{Format: BreakdownLegacy}
	byCode := make(map[string]decimal.Decimal)
	var haveGross, haveNet bool
	for key, value := range fields {
		var amount decimal.Decimal
		if err := json.Unmarshal(value, &amount); err != nil {
			return PayrollBreakdown{}, fmt.Errorf("%w: field %q: %v", ErrBreakdownInvalid, key, err)
		}
		amount = round2(amount)
		switch code := normalizeCode(key); code {
		case "gross":
			out.Gross, haveGross = amount, true
		case "net":
			out.Net, haveNet = amount, true
		default:
			if !amount.IsZero() {
				byCode[code] = byCode[code].Add(amount)
			}
		}
	}
	if !haveGross || !haveNet {
		return PayrollBreakdown{}, fmt.Errorf("%w: legacy breakdown needs gross and net", ErrBreakdownInvalid)
	}
	out.Withholdings = sortedWithholdings(byCode)
	return out, nil
}

func (b PayrollBreakdown) validate() error {
	if !b.Gross.IsPositive() || b.Net.IsNegative() {
		return fmt.Errorf("%w: gross must be positive and net non-negative", ErrBreakdownInvalid)
	}
	for _, w := range b.Withholdings {
		if w.Amount.IsNegative() {
			return fmt.Errorf("%w: negative withholding %s", ErrBreakdownInvalid, w.Code)
		}
	}
	if total := sumWithholdings(b.Withholdings).Add(b.Net); !total.Equal(b.Gross) {
		return fmt.Errorf("%w: gross %s does not equal withholdings plus net %s", ErrBreakdownInvalid, b.Gross, total)
	}
	return nil
}

func sortedWithholdings(byCode map[string]decimal.Decimal) []Withholding {
	out := make([]Withholding, 0, len(byCode))
	for code, amount := range byCode {
		out = append(out, Withholding{Code: code, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

func sumWithholdings(ws []Withholding) decimal.Decimal {
	total := decimal.Zero
	for _, w := range ws {
		total = total.Add(w.Amount)
	}
	return total
}

func normalizeCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}
