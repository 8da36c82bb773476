package vault

import (
	"fmt"
	"math/big"
	"strings"
)

// TokenDecimals is the base precision of the vault's accounting token.
const TokenDecimals = 18

var weiPerToken = new(big.Int).Exp(big.NewInt(10), big.NewInt(TokenDecimals), nil)

// ParseUnits converts a human-readable token amount ("100", "0.5") to wei.
func ParseUnits(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty token amount")
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, fmt.Errorf("invalid token amount %q", s)
	}
	if r.Sign() < 0 {
		return nil, fmt.Errorf("negative token amount %q", s)
	}
	r.Mul(r, new(big.Rat).SetInt(weiPerToken))
	// Truncate sub-wei dust toward zero.
	return new(big.Int).Quo(r.Num(), r.Denom()), nil
}

// FormatUnits renders a wei amount as a token string with 4 decimal places,
// for log output only. Status documents carry exact wei decimal strings.
func FormatUnits(wei *big.Int) string {
	if wei == nil {
		return "0.0000"
	}
	r := new(big.Rat).SetFrac(wei, weiPerToken)
	return r.FloatString(4)
}
