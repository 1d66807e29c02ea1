// Copyright (c) 2013, 2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package util

import (
	"math"
	"testing"
)

func TestAmountCreation(t *testing.T) {
	tests := []struct {
		name     string
		amount   float64
		valid    bool
		expected Amount
	}{
		// Positive tests.
		{
			name:     "zero",
			amount:   0,
			valid:    true,
			expected: 0,
		},
		{
			name:     "one coin",
			amount:   1,
			valid:    true,
			expected: Amount(SatoshiPerCoin),
		},
		{
			name:     "one satoshi",
			amount:   1e-8,
			valid:    true,
			expected: 1,
		},
		{
			name:     "rounding up",
			amount:   54.999999999999943157,
			valid:    true,
			expected: 5500000000,
		},
		{
			name:     "rounding down",
			amount:   55.000000000000056843,
			valid:    true,
			expected: 5500000000,
		},
		{
			name:     "negative one coin",
			amount:   -1,
			valid:    true,
			expected: -Amount(SatoshiPerCoin),
		},

		// Negative tests.
		{
			name:   "not-a-number",
			amount: math.NaN(),
			valid:  false,
		},
		{
			name:   "positive infinity",
			amount: math.Inf(1),
			valid:  false,
		},
		{
			name:   "negative infinity",
			amount: math.Inf(-1),
			valid:  false,
		},
	}

	for _, test := range tests {
		a, err := NewAmount(test.amount)
		switch {
		case test.valid && err != nil:
			t.Errorf("%v: unexpected error %v", test.name, err)
			continue
		case !test.valid && err == nil:
			t.Errorf("%v: expected error", test.name)
			continue
		}
		if a != test.expected {
			t.Errorf("%v: got %v, want %v", test.name, a,
				test.expected)
		}
	}
}

func TestAmountUnitConversions(t *testing.T) {
	tests := []struct {
		name      string
		amount    Amount
		unit      AmountUnit
		converted float64
		s         string
	}{
		{
			name:      "MCOIN",
			amount:    Amount(MaxSatoshi),
			unit:      AmountMegaCoin,
			converted: 25000,
			s:         "25000 MCOIN",
		},
		{
			name:      "kCOIN",
			amount:    44433322211100,
			unit:      AmountKiloCoin,
			converted: 444.33322211100,
			s:         "444.333222111 kCOIN",
		},
		{
			name:      "COIN",
			amount:    44433322211100,
			unit:      AmountCoin,
			converted: 444333.22211100,
			s:         "444333.222111 COIN",
		},
		{
			name:      "Satoshi",
			amount:    44433322211100,
			unit:      AmountSatoshi,
			converted: 44433322211100,
			s:         "44433322211100 Satoshi",
		},
		{
			name:      "non-standard unit",
			amount:    44433322211100,
			unit:      AmountUnit(-1),
			converted: 4443332.2211100,
			s:         "4443332.22111 1e-1 COIN",
		},
	}

	for _, test := range tests {
		f := test.amount.ToUnit(test.unit)
		if f != test.converted {
			t.Errorf("%v: ToUnit got %v, want %v", test.name, f,
				test.converted)
			continue
		}

		s := test.amount.Format(test.unit)
		if s != test.s {
			t.Errorf("%v: Format got %q, want %q", test.name, s, test.s)
		}
	}
}

func TestAmountMulF64(t *testing.T) {
	tests := []struct {
		name string
		amt  Amount
		mul  float64
		res  Amount
	}{
		{
			name: "multiply by one",
			amt:  Amount(SatoshiPerCoin),
			mul:  1,
			res:  Amount(SatoshiPerCoin),
		},
		{
			name: "triple",
			amt:  Amount(SatoshiPerCoin),
			mul:  3,
			res:  Amount(3 * SatoshiPerCoin),
		},
		{
			name: "fraction rounds to nearest",
			amt:  100,
			mul:  1.5109,
			res:  151,
		},
		{
			name: "multiply by zero",
			amt:  Amount(SatoshiPerCoin),
			mul:  0,
			res:  0,
		},
		{
			name: "negative multiplier",
			amt:  Amount(SatoshiPerCoin),
			mul:  -0.5,
			res:  -Amount(SatoshiPerCoin) / 2,
		},
	}

	for _, test := range tests {
		if got := test.amt.MulF64(test.mul); got != test.res {
			t.Errorf("%v: got %v, want %v", test.name, got, test.res)
		}
	}
}
