package fiscal

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/emissor/backend/internal/domain/shared"
)

// Field widths of the 43 data digits of an access key, in composition order
const (
	widthStateCode    = 2
	widthYearMonth    = 4
	widthIssuerTaxID  = 14
	widthModel        = 2
	widthSeries       = 3
	widthNumber       = 9
	widthEmissionType = 1
	widthNumericCode  = 8

	// AccessKeyLength is the full key length including the check digit
	AccessKeyLength = 44
)

// ErrInvalidComponent signals an access key component that does not fit
// its fixed width or contains non-digit characters
var ErrInvalidComponent = shared.NewDomainError("INVALID_COMPONENT", "Access key component does not fit its field")

// stateCodes maps the two-letter UF to its IBGE numeric code
var stateCodes = map[string]string{
	"RO": "11", "AC": "12", "AM": "13", "RR": "14", "PA": "15",
	"AP": "16", "TO": "17", "MA": "21", "PI": "22", "CE": "23",
	"RN": "24", "PB": "25", "PE": "26", "AL": "27", "SE": "28",
	"BA": "29", "MG": "31", "ES": "32", "RJ": "33", "SP": "35",
	"PR": "41", "SC": "42", "RS": "43", "MS": "50", "MT": "51",
	"GO": "52", "DF": "53",
}

// StateCodeForUF resolves the IBGE state code for a two-letter UF
func StateCodeForUF(uf string) (string, error) {
	code, ok := stateCodes[strings.ToUpper(strings.TrimSpace(uf))]
	if !ok {
		return "", shared.NewDomainError("INVALID_COMPONENT", fmt.Sprintf("Unknown state UF: %s", uf))
	}
	return code, nil
}

// AccessKeyComponents are the fields concatenated into the 43 data digits
// of an access key. Immutable once computed; the numeric code is drawn
// fresh at generation time and stored, never derived.
type AccessKeyComponents struct {
	StateCode    string // 2 digits, IBGE state code
	YearMonth    string // 4 digits, AAMM of the issue date
	IssuerTaxID  string // 14 digits, CNPJ zero-padded
	Model        string // 2 digits, document model (55 NFe, 65 NFCe, 57 CTe)
	Series       string // up to 3 digits
	Number       string // up to 9 digits
	EmissionType string // 1 digit
	NumericCode  string // 8 digits
}

// NewAccessKeyComponents builds components from document data. The numeric
// code must come from NewNumericCode so collisions stay improbable when the
// same issuer/series/number is re-emitted.
func NewAccessKeyComponents(stateUF string, issueDate time.Time, issuerTaxID, model string, series int, number int64, emissionType int, numericCode string) (AccessKeyComponents, error) {
	stateCode, err := StateCodeForUF(stateUF)
	if err != nil {
		return AccessKeyComponents{}, err
	}
	return AccessKeyComponents{
		StateCode:    stateCode,
		YearMonth:    issueDate.Format("0601"),
		IssuerTaxID:  issuerTaxID,
		Model:        model,
		Series:       fmt.Sprintf("%d", series),
		Number:       fmt.Sprintf("%d", number),
		EmissionType: fmt.Sprintf("%d", emissionType),
		NumericCode:  numericCode,
	}, nil
}

// NewNumericCode draws a fresh 8-digit code, uniform over the full space
func NewNumericCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(100_000_000))
	if err != nil {
		return "", fmt.Errorf("drawing numeric code: %w", err)
	}
	return fmt.Sprintf("%08d", n.Int64()), nil
}

// Compose concatenates the components in fixed order, zero-padding each
// field to its width. Fails with INVALID_COMPONENT when a field does not
// fit or contains non-digit characters.
func Compose(c AccessKeyComponents) (string, error) {
	fields := []struct {
		name  string
		value string
		width int
	}{
		{"state code", c.StateCode, widthStateCode},
		{"year-month", c.YearMonth, widthYearMonth},
		{"issuer tax id", c.IssuerTaxID, widthIssuerTaxID},
		{"model", c.Model, widthModel},
		{"series", c.Series, widthSeries},
		{"number", c.Number, widthNumber},
		{"emission type", c.EmissionType, widthEmissionType},
		{"numeric code", c.NumericCode, widthNumericCode},
	}

	var b strings.Builder
	b.Grow(AccessKeyLength - 1)
	for _, f := range fields {
		padded, err := padDigits(f.value, f.width)
		if err != nil {
			return "", shared.NewDomainError("INVALID_COMPONENT", fmt.Sprintf("Access key %s: %s", f.name, err.Error()))
		}
		b.WriteString(padded)
	}
	return b.String(), nil
}

// CheckDigit computes the mod-11 check digit over the 43 data digits.
// Weights cycle 2..9 applied right-to-left; remainder below 2 yields 0,
// otherwise 11 minus the remainder.
func CheckDigit(data43 string) (int, error) {
	if len(data43) != AccessKeyLength-1 {
		return 0, shared.NewDomainError("INVALID_COMPONENT", fmt.Sprintf("Check digit input must have 43 digits, got %d", len(data43)))
	}
	sum := 0
	weight := 2
	for i := len(data43) - 1; i >= 0; i-- {
		d := data43[i]
		if d < '0' || d > '9' {
			return 0, shared.NewDomainError("INVALID_COMPONENT", fmt.Sprintf("Non-digit character %q in access key data", d))
		}
		sum += int(d-'0') * weight
		weight++
		if weight > 9 {
			weight = 2
		}
	}
	rem := sum % 11
	if rem < 2 {
		return 0, nil
	}
	return 11 - rem, nil
}

// GenerateKey composes the data digits and appends the check digit
func GenerateKey(c AccessKeyComponents) (string, error) {
	data, err := Compose(c)
	if err != nil {
		return "", err
	}
	dv, err := CheckDigit(data)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%d", data, dv), nil
}

// VerifyKey recomputes the check digit from the first 43 digits and
// compares it to the last one
func VerifyKey(key string) bool {
	if len(key) != AccessKeyLength {
		return false
	}
	dv, err := CheckDigit(key[:AccessKeyLength-1])
	if err != nil {
		return false
	}
	return byte('0'+dv) == key[AccessKeyLength-1]
}

func padDigits(value string, width int) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("field is empty")
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("contains non-digit character %q", r)
		}
	}
	if len(value) > width {
		return "", fmt.Errorf("%d digits exceed field width %d", len(value), width)
	}
	return strings.Repeat("0", width-len(value)) + value, nil
}
