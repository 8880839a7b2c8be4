package domain

import (
	"fmt"
	"math"
)

// Money is an amount in centavos. Stores persist it as an integer column.
type Money int64

// MoneyFromFloat converts reais to Money, rounding to the nearest centavo.
func MoneyFromFloat(f float64) Money {
	return Money(math.Round(f * 100))
}

// Float returns the amount in reais.
func (m Money) Float() float64 { return float64(m) / 100 }

// Times multiplies a unit price by a quantity.
func (m Money) Times(qty int) Money { return m * Money(qty) }

// String formats the amount the way receipts and notifications show it: "R$ 23,00".
func (m Money) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}

	whole := v / 100
	cents := v % 100

	// thousands separated by dots, decimals by a comma
	digits := fmt.Sprintf("%d", whole)
	grouped := make([]byte, 0, len(digits)+len(digits)/3)
	for i := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			grouped = append(grouped, '.')
		}
		grouped = append(grouped, digits[i])
	}

	return fmt.Sprintf("%sR$ %s,%02d", sign, grouped, cents)
}
