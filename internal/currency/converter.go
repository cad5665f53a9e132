// Package currency converts base currency prices using exchange rates kept in
// Postgres and formats them for display.
package currency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var ErrUnknownCurrency = errors.New("unknown currency")

// RateSource loads rates as units of a currency per one unit of base currency.
type RateSource interface {
	Rates(ctx context.Context) (map[string]decimal.Decimal, error)
}

// Converter caches rates in memory; Run keeps them fresh.
type Converter struct {
	log    *slog.Logger
	source RateSource
	base   string

	mu    sync.RWMutex
	rates map[string]decimal.Decimal
}

func NewConverter(log *slog.Logger, source RateSource, base string) *Converter {
	return &Converter{
		log:    log,
		source: source,
		base:   strings.ToUpper(base),
		rates:  map[string]decimal.Decimal{},
	}
}

func (c *Converter) Base() string { return c.base }

func (c *Converter) Refresh(ctx context.Context) error {
	rates, err := c.source.Rates(ctx)
	if err != nil {
		return fmt.Errorf("load currency rates: %w", err)
	}
	normalized := make(map[string]decimal.Decimal, len(rates))
	for code, rate := range rates {
		if !rate.IsPositive() {
			c.log.Warn("ignoring non-positive currency rate", "code", code, "rate", rate.String())
			continue
		}
		normalized[strings.ToUpper(code)] = rate
	}
	c.mu.Lock()
	c.rates = normalized
	c.mu.Unlock()
	return nil
}

// Run refreshes rates every interval until ctx is done.
func (c *Converter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil && ctx.Err() == nil {
				c.log.Error("currency refresh failed", "err", err)
			}
		}
	}
}

// Convert turns a base currency amount into code, rounded to the currency's
// standard minor unit.
func (c *Converter) Convert(amount decimal.Decimal, code string) (decimal.Decimal, error) {
	code = strings.ToUpper(code)
	if code == "" || code == c.base {
		return amount, nil
	}
	c.mu.RLock()
	rate, ok := c.rates[code]
	c.mu.RUnlock()
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnknownCurrency, code)
	}
	return amount.Mul(rate).Round(scale(code)), nil
}

// Supported lists the base currency and every currency with a rate.
func (c *Converter) Supported() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := []string{c.base}
	for code := range c.rates {
		if code != c.base {
			out = append(out, code)
		}
	}
	return out
}

// Format renders amount with locale digit grouping followed by the currency
// symbol, e.g. "1,234.50 PLN" for en or "1 234,50 zł" for pl.
func Format(amount decimal.Decimal, code, locale string) string {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return amount.StringFixed(2) + " " + strings.ToUpper(code)
	}
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	s := scale(code)
	p := message.NewPrinter(tag)
	return p.Sprintf("%v %v",
		number.Decimal(amount.Round(s).InexactFloat64(), number.Scale(int(s))),
		currency.Symbol(unit))
}

// MinorUnits converts amount to the smallest unit of code, e.g. grosze for PLN.
func MinorUnits(amount decimal.Decimal, code string) int64 {
	s := scale(code)
	return amount.Shift(s).Round(0).IntPart()
}

func scale(code string) int32 {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return 2
	}
	s, _ := currency.Standard.Rounding(unit)
	return int32(s)
}
