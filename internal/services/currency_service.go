package services

import (
	"bbpayment/internal/config"
	"bbpayment/pkg/utils"
	"fmt"
	"github.com/shopspring/decimal"
	"strings"
)

// minorUnits is the number of decimal places each supported currency settles in.
var minorUnits = map[string]int32{
	"USD": 2,
	"EUR": 2,
	"VND": 0,
	"JPY": 0,
}

type CurrencyService interface {
	// Normalize upper-cases code and checks it is supported and has an exchange rate.
	Normalize(code string) (string, error)
	MinorUnits(code string) int32
	// Rate is the multiplier converting an amount in from into to.
	Rate(from, to string) (decimal.Decimal, error)
	// Round rounds half-up to the currency's minor unit.
	Round(amount decimal.Decimal, code string) decimal.Decimal
	ToMinor(amount decimal.Decimal, code string) int64
	FromMinor(minor int64, code string) decimal.Decimal
}

type currencyService struct {
	// units of each currency per one USD
	rates map[string]decimal.Decimal
}

func NewCurrencyService(cfg *config.Config) CurrencyService {
	return &currencyService{rates: cfg.Pricing.ExchangeRates}
}

func (s *currencyService) Normalize(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if _, ok := minorUnits[code]; !ok {
		return "", fmt.Errorf("%w: %q", utils.ErrUnsupportedCurrency, code)
	}
	if _, ok := s.rates[code]; !ok {
		return "", fmt.Errorf("%w: no exchange rate for %s", utils.ErrUnsupportedCurrency, code)
	}
	return code, nil
}

func (s *currencyService) MinorUnits(code string) int32 {
	return minorUnits[code]
}

func (s *currencyService) Rate(from, to string) (decimal.Decimal, error) {
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	src, ok := s.rates[from]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: no exchange rate for %s", utils.ErrUnsupportedCurrency, from)
	}
	dst, ok := s.rates[to]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: no exchange rate for %s", utils.ErrUnsupportedCurrency, to)
	}
	return dst.Div(src), nil
}

// Amounts here are never negative, so decimal's half-away-from-zero rounding is half-up.
func (s *currencyService) Round(amount decimal.Decimal, code string) decimal.Decimal {
	return amount.Round(minorUnits[code])
}

func (s *currencyService) ToMinor(amount decimal.Decimal, code string) int64 {
	return amount.Shift(minorUnits[code]).Round(0).IntPart()
}

func (s *currencyService) FromMinor(minor int64, code string) decimal.Decimal {
	return decimal.New(minor, -minorUnits[code])
}
