// Package identity validates Ecuadorian national identity numbers (cédulas).
package identity

import "strings"

// Normalize strips spaces and dashes from a raw cédula.
func Normalize(raw string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return -1
		}
		return r
	}, strings.TrimSpace(raw))
}

// ValidCedula reports whether the input is a valid 10-digit Ecuadorian cédula.
// The tenth digit is a check digit computed with coefficients 2,1,2,1,... over
// the first nine digits, where two-digit products are reduced by 9.
func ValidCedula(raw string) bool {
	c := Normalize(raw)
	if len(c) != 10 {
		return false
	}

	digits := make([]int, 10)
	for i, r := range c {
		if r < '0' || r > '9' {
			return false
		}
		digits[i] = int(r - '0')
	}

	// Province code 01-24; 30 is used for Ecuadorians registered abroad.
	province := digits[0]*10 + digits[1]
	if (province < 1 || province > 24) && province != 30 {
		return false
	}

	sum := 0
	for i := 0; i < 9; i++ {
		p := digits[i]
		if i%2 == 0 {
			p *= 2
			if p >= 10 {
				p -= 9
			}
		}
		sum += p
	}

	check := 0
	if sum%10 != 0 {
		check = 10 - sum%10
	}
	return check == digits[9]
}
