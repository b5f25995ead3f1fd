// Package core provides the crowdfunding domain model.
//
// This file contains the asset amount type and the helpers used to parse and
// combine amounts without overflowing.
package core

import (
	"math"
	"strconv"
	"strings"
	"unicode"
)

// Amount is a quantity of a fungible asset expressed in its smallest unit.
type Amount int64

// ParseAmount converts a decimal integer string into an Amount.
//
// Only plain base-10 digits are accepted: no sign, no separators, no fraction.
// The result must be strictly positive.
//
// Examples:
//
//	ParseAmount("600")  -> 600, nil
//	ParseAmount(" 42 ") -> 42, nil
//	ParseAmount("-1")   -> 0, ErrInvalidAmount
//	ParseAmount("1.5")  -> 0, ErrInvalidAmount
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	a := Amount(v)
	if err := a.Validate(); err != nil {
		return 0, err
	}
	return a, nil
}

// Validate reports ErrInvalidAmount unless the amount is strictly positive.
func (a Amount) Validate() error {
	if a <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Add returns a+b, or ErrInvalidAmount if the sum would overflow.
func (a Amount) Add(b Amount) (Amount, error) {
	if b > 0 && a > Amount(math.MaxInt64)-b {
		return 0, ErrInvalidAmount
	}
	return a + b, nil
}

func (a Amount) String() string {
	return strconv.FormatInt(int64(a), 10)
}
