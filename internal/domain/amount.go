package domain

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"cosmossdk.io/math"
)

// NativeDecimals is the number of fractional digits of the ledger's native unit
// (1 ether = 10^18 wei).
const NativeDecimals = math.LegacyPrecision

// Amount is a non-negative price in display units. The zero value is zero.
type Amount struct {
	dec math.LegacyDec
}

func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, fmt.Errorf("empty amount")
	}
	dec, err := math.LegacyNewDecFromStr(s)
	if err != nil {
		return Amount{}, err
	}
	if dec.IsNegative() {
		return Amount{}, fmt.Errorf("negative amount %s", s)
	}
	return Amount{dec: dec}, nil
}

// AmountFromInt converts a whole number of display units.
func AmountFromInt(i *big.Int) Amount {
	if i == nil {
		return Amount{}
	}
	return Amount{dec: math.LegacyNewDecFromBigInt(i)}
}

// AmountFromSmallestUnit converts an integer amount of the smallest denomination.
func AmountFromSmallestUnit(i *big.Int) Amount {
	if i == nil {
		return Amount{}
	}
	return Amount{dec: math.LegacyNewDecFromBigIntWithPrec(i, NativeDecimals)}
}

func (a Amount) value() math.LegacyDec {
	if a.dec.IsNil() {
		return math.LegacyZeroDec()
	}
	return a.dec
}

// SmallestUnit returns the exact integer amount in the smallest denomination.
func (a Amount) SmallestUnit() *big.Int {
	return a.value().BigInt()
}

func (a Amount) IsZero() bool {
	return a.value().IsZero()
}

func (a Amount) Equal(b Amount) bool {
	return a.value().Equal(b.value())
}

// String renders the amount without trailing fractional zeros.
func (a Amount) String() string {
	s := a.value().String()
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}
	return s
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		s = n.String()
	}
	parsed, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
