package entities

import (
	"math/big"
	"strings"

	domainerrors "geneledger/contexts/data-marketplace/dataset-registry/domain/errors"
)

// TokenDecimals is the number of base units per whole token, as a power of ten.
const TokenDecimals = 18

// Amount is an integer count of base token units. Values are immutable; every
// arithmetic method returns a fresh Amount. The zero value is zero.
type Amount struct {
	v *big.Int
}

func NewAmount(units int64) Amount {
	return Amount{v: big.NewInt(units)}
}

// ParseAmount parses a non-negative base-10 integer of base units.
func ParseAmount(raw string) (Amount, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return Amount{}, &domainerrors.ValidationError{Field: "amount", Reason: "is required"}
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return Amount{}, &domainerrors.ValidationError{Field: "amount", Reason: "must be an integer count of base units"}
	}
	if parsed.Sign() < 0 {
		return Amount{}, &domainerrors.ValidationError{Field: "amount", Reason: "must not be negative"}
	}
	return Amount{v: parsed}, nil
}

// ParseTokenAmount converts a non-negative decimal token amount such as "1.5" into
// base units, rejecting more than TokenDecimals fractional digits.
func ParseTokenAmount(raw string) (Amount, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return Amount{}, &domainerrors.ValidationError{Field: "amount", Reason: "is required"}
	}
	if strings.HasPrefix(value, "-") {
		return Amount{}, &domainerrors.ValidationError{Field: "amount", Reason: "must not be negative"}
	}

	whole, frac, _ := strings.Cut(value, ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > TokenDecimals {
		return Amount{}, &domainerrors.ValidationError{Field: "amount", Reason: "has too many decimal places"}
	}
	frac += strings.Repeat("0", TokenDecimals-len(frac))

	parsed, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok || strings.ContainsAny(whole+frac, "+-") {
		return Amount{}, &domainerrors.ValidationError{Field: "amount", Reason: "must be a decimal token amount"}
	}
	return Amount{v: parsed}, nil
}

func (a Amount) big() *big.Int {
	if a.v == nil {
		return new(big.Int)
	}
	return a.v
}

func (a Amount) Add(other Amount) Amount {
	return Amount{v: new(big.Int).Add(a.big(), other.big())}
}

func (a Amount) Cmp(other Amount) int {
	return a.big().Cmp(other.big())
}

func (a Amount) Equal(other Amount) bool {
	return a.Cmp(other) == 0
}

func (a Amount) Sign() int {
	return a.big().Sign()
}

func (a Amount) IsZero() bool {
	return a.Sign() == 0
}

func (a Amount) IsNegative() bool {
	return a.Sign() < 0
}

// BigInt returns a copy of the underlying value.
func (a Amount) BigInt() *big.Int {
	return new(big.Int).Set(a.big())
}

func (a Amount) String() string {
	return a.big().String()
}

func (a Amount) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Amount) UnmarshalText(text []byte) error {
	parsed, err := ParseAmount(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
