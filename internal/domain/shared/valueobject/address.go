package valueobject

import (
	"fmt"
	"strings"
)

// Address is a Brazilian street address as carried on fiscal documents
type Address struct {
	Street   string `json:"street"`
	Number   string `json:"number"`
	District string `json:"district"`
	City     string `json:"city"`
	CityCode string `json:"city_code"` // 7-digit IBGE municipality code
	State    string `json:"state"`     // two-letter UF, e.g. SP
	ZipCode  string `json:"zip_code"`  // CEP, 8 digits
}

// NewAddress creates a validated address
func NewAddress(street, number, district, city, cityCode, state, zipCode string) (Address, error) {
	state = strings.ToUpper(strings.TrimSpace(state))
	if street == "" || city == "" {
		return Address{}, fmt.Errorf("street and city are required")
	}
	if len(state) != 2 {
		return Address{}, fmt.Errorf("state must be a two-letter UF, got %q", state)
	}
	zip := normalizeDigits(zipCode)
	if zip != "" && len(zip) != 8 {
		return Address{}, fmt.Errorf("CEP must have 8 digits, got %q", zipCode)
	}
	code := normalizeDigits(cityCode)
	if code != "" && len(code) != 7 {
		return Address{}, fmt.Errorf("IBGE city code must have 7 digits, got %q", cityCode)
	}
	return Address{
		Street:   strings.TrimSpace(street),
		Number:   strings.TrimSpace(number),
		District: strings.TrimSpace(district),
		City:     strings.TrimSpace(city),
		CityCode: code,
		State:    state,
		ZipCode:  zip,
	}, nil
}

// IsZero reports whether the address is unset
func (a Address) IsZero() bool {
	return a == Address{}
}

// String implements fmt.Stringer
func (a Address) String() string {
	parts := []string{a.Street}
	if a.Number != "" {
		parts = append(parts, a.Number)
	}
	parts = append(parts, a.City, a.State)
	return strings.Join(parts, ", ")
}
