package currency

import (
	"context"
	"fmt"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
	"github.com/shopspring/decimal"
)

// Static converts with a fixed rate table. Rates are keyed "FROM/TO";
// a missing pair falls back to the inverse of "TO/FROM".
type Static struct {
	Rates map[string]decimal.Decimal
}

// NewStatic builds a static converter from string rates such as {"USD/EUR": "0.9"}.
func NewStatic(rates map[string]string) (*Static, error) {
	s := &Static{Rates: make(map[string]decimal.Decimal, len(rates))}
	for pair, raw := range rates {
		r, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: rate %s: %v", common.ErrInvalidConfig, pair, err)
		}
		if !r.IsPositive() {
			return nil, fmt.Errorf("%w: rate %s must be positive", common.ErrInvalidConfig, pair)
		}
		s.Rates[model.NormalizeCurrency(pair)] = r
	}
	return s, nil
}

// Convert multiplies amount by the configured rate.
func (s *Static) Convert(_ context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	from, to = model.NormalizeCurrency(from), model.NormalizeCurrency(to)
	if from == to {
		return amount, nil
	}

	if r, ok := s.Rates[from+"/"+to]; ok {
		return amount.Mul(r).Round(Places), nil
	}
	if r, ok := s.Rates[to+"/"+from]; ok {
		return amount.DivRound(r, Places), nil
	}
	return decimal.Zero, fmt.Errorf("%w: no rate for %s to %s", common.ErrConversion, from, to)
}
