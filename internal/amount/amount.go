// Package amount converts human-entered decimal amounts into the fixed-point
// integers the settlement network expects, and back again for display.
package amount

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/punchamoorthee/handlepay/internal/domain"
	"github.com/shopspring/decimal"
)

// TokenDecimals is the number of fractional digits of the settlement token.
const TokenDecimals int32 = 18

var (
	ErrMalformed   = fmt.Errorf("%w: malformed amount", domain.ErrValidation)
	ErrNotPositive = fmt.Errorf("%w: amount must be greater than zero", domain.ErrValidation)
	ErrOverflow    = fmt.Errorf("%w: amount does not fit in 256 bits", domain.ErrValidation)
	ErrTooLarge    = fmt.Errorf("%w: amount exceeds the largest recordable value", domain.ErrValidation)
)

// MaxStorable is the exclusive upper bound of a recorded amount. Transfers
// are stored as NUMERIC(38, 18), which leaves 20 integer digits.
var MaxStorable = decimal.New(1, 20)

// Only plain digits with an optional single '.' separator are accepted.
var plainDecimal = regexp.MustCompile(`^[0-9]*(\.[0-9]*)?$`)

var mask128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// Uint256 is a 256-bit unsigned value split into two 128-bit halves, the way
// the token contract receives it.
type Uint256 struct {
	Low  *big.Int
	High *big.Int
}

// Calldata renders both halves as hex felts, low first.
func (u Uint256) Calldata() []string {
	return []string{"0x" + u.Low.Text(16), "0x" + u.High.Text(16)}
}

func parse(s string) (decimal.Decimal, error) {
	if !plainDecimal.MatchString(s) || strings.Trim(s, ".") == "" {
		return decimal.Zero, ErrMalformed
	}
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	if frac == "" {
		frac = "0"
	}
	d, err := decimal.NewFromString(whole + "." + frac)
	if err != nil {
		return decimal.Zero, ErrMalformed
	}
	return d, nil
}

// ParsePositive validates a user-entered amount before anything else sees it.
// Amounts that could not be recorded are rejected here, before any value
// moves on chain.
func ParsePositive(s string) (decimal.Decimal, error) {
	d, err := parse(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, err
	}
	if !d.IsPositive() {
		return decimal.Zero, ErrNotPositive
	}
	if d.GreaterThanOrEqual(MaxStorable) {
		return decimal.Zero, ErrTooLarge
	}
	return d, nil
}

// Normalize returns s × 10^decimals as an integer. Fractional digits beyond
// decimals are truncated, never rounded. A result of zero is rejected since a
// zero transfer must never reach the network.
func Normalize(s string, decimals int32) (*big.Int, error) {
	d, err := parse(s)
	if err != nil {
		return nil, err
	}
	v := d.Shift(decimals).Truncate(0).BigInt()
	if v.Sign() <= 0 {
		return nil, ErrNotPositive
	}
	if v.BitLen() > 256 {
		return nil, ErrOverflow
	}
	return v, nil
}

// NormalizeUint256 is Normalize followed by Split.
func NormalizeUint256(s string, decimals int32) (Uint256, error) {
	v, err := Normalize(s, decimals)
	if err != nil {
		return Uint256{}, err
	}
	return Split(v), nil
}

func Split(v *big.Int) Uint256 {
	return Uint256{
		Low:  new(big.Int).And(v, mask128),
		High: new(big.Int).Rsh(v, 128),
	}
}

func Join(low, high *big.Int) *big.Int {
	v := new(big.Int).Lsh(high, 128)
	return v.Add(v, low)
}

// Format turns a scaled integer back into a decimal amount.
func Format(v *big.Int, decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(v, -decimals)
}
