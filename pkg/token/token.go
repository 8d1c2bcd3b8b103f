package token

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrUnknownToken = errors.New("unknown token")

// Token is one catalog entry. Amount bounds are inclusive, expressed in
// whole-token units.
type Token struct {
	Code      string          `json:"code"`
	Mint      string          `json:"mint"`
	Decimals  int32           `json:"decimals"`
	MinAmount decimal.Decimal `json:"minAmount"`
	MaxAmount decimal.Decimal `json:"maxAmount"`
}

// Catalog is the token metadata collaborator. Lookups for tokens outside
// the catalog return ErrUnknownToken.
type Catalog interface {
	Lookup(ctx context.Context, code string) (Token, error)
}

// Price is the price collaborator's answer for a mint.
type Price struct {
	USDPrice  float64 `json:"usdPrice"`
	Change24h float64 `json:"change24h"`
}

type Prices interface {
	Price(ctx context.Context, mint string) (Price, error)
}

// Static is a fixed in-memory catalog, keyed case-insensitively.
type Static map[string]Token

func NewStatic(tokens ...Token) Static {
	s := make(Static, len(tokens))
	for _, t := range tokens {
		s[strings.ToUpper(t.Code)] = t
	}
	return s
}

func (s Static) Lookup(_ context.Context, code string) (Token, error) {
	t, ok := s[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return Token{}, ErrUnknownToken
	}
	return t, nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// Defaults is the catalog used by the CLI when no remote catalog is wired.
func Defaults() Static {
	return NewStatic(
		Token{Code: "SOL", Mint: "So11111111111111111111111111111111111111112", Decimals: 9, MinAmount: dec("0.000001"), MaxAmount: dec("100000")},
		Token{Code: "USDC", Mint: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", Decimals: 6, MinAmount: dec("0.01"), MaxAmount: dec("1000000")},
	)
}
