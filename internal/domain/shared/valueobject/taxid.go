package valueobject

import (
	"fmt"
	"strings"
)

// TaxIDKind distinguishes the two Brazilian federal taxpayer registries
type TaxIDKind string

const (
	TaxIDCNPJ TaxIDKind = "CNPJ" // legal entities, 14 digits
	TaxIDCPF  TaxIDKind = "CPF"  // natural persons, 11 digits
)

// TaxID is a normalized Brazilian federal taxpayer identifier
type TaxID struct {
	Digits string    `json:"digits"`
	Kind   TaxIDKind `json:"kind"`
}

// NewTaxID normalizes and validates a CNPJ or CPF, accepting the usual
// punctuated forms ("12.345.678/0001-95", "123.456.789-09")
func NewTaxID(raw string) (TaxID, error) {
	digits := normalizeDigits(raw)
	switch len(digits) {
	case 14:
		if !validCNPJ(digits) {
			return TaxID{}, fmt.Errorf("invalid CNPJ check digits: %s", raw)
		}
		return TaxID{Digits: digits, Kind: TaxIDCNPJ}, nil
	case 11:
		if !validCPF(digits) {
			return TaxID{}, fmt.Errorf("invalid CPF check digits: %s", raw)
		}
		return TaxID{Digits: digits, Kind: TaxIDCPF}, nil
	default:
		return TaxID{}, fmt.Errorf("tax ID must have 11 or 14 digits, got %d", len(digits))
	}
}

// Padded14 returns the identifier left-padded with zeros to 14 digits,
// the width used inside access keys.
func (t TaxID) Padded14() string {
	if len(t.Digits) >= 14 {
		return t.Digits
	}
	return strings.Repeat("0", 14-len(t.Digits)) + t.Digits
}

// String implements fmt.Stringer
func (t TaxID) String() string {
	return t.Digits
}

// IsZero reports whether the value is unset
func (t TaxID) IsZero() bool {
	return t.Digits == ""
}

func normalizeDigits(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func allSameDigit(digits string) bool {
	for i := 1; i < len(digits); i++ {
		if digits[i] != digits[0] {
			return false
		}
	}
	return true
}

func validCNPJ(digits string) bool {
	if allSameDigit(digits) {
		return false
	}
	w1 := []int{5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
	w2 := []int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
	if cnpjDigit(digits[:12], w1) != int(digits[12]-'0') {
		return false
	}
	return cnpjDigit(digits[:13], w2) == int(digits[13]-'0')
}

func cnpjDigit(digits string, weights []int) int {
	sum := 0
	for i, w := range weights {
		sum += int(digits[i]-'0') * w
	}
	rem := sum % 11
	if rem < 2 {
		return 0
	}
	return 11 - rem
}

func validCPF(digits string) bool {
	if allSameDigit(digits) {
		return false
	}
	if cpfDigit(digits, 9, 10) != int(digits[9]-'0') {
		return false
	}
	return cpfDigit(digits, 10, 11) == int(digits[10]-'0')
}

func cpfDigit(digits string, length, startWeight int) int {
	sum := 0
	for i := 0; i < length; i++ {
		sum += int(digits[i]-'0') * (startWeight - i)
	}
	rem := (sum * 10) % 11
	if rem == 10 {
		return 0
	}
	return rem
}
