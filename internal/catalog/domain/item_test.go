package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func dec(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

func at(s string) *time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return &t
}

func TestPromotionActive(t *testing.T) {
	now := time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)
	base := Offer{Price: decimal.NewFromInt(100)}

	cases := []struct {
		name  string
		promo *decimal.Decimal
		start *time.Time
		end   *time.Time
		want  bool
	}{
		{"no promotion", nil, nil, nil, false},
		{"open window", dec(80), nil, nil, true},
		{"not cheaper", dec(100), nil, nil, false},
		{"inside window", dec(80), at("2024-06-01"), at("2024-06-30"), true},
		{"not started", dec(80), at("2024-06-20"), nil, false},
		{"expired", dec(80), nil, at("2024-06-14"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o := base
			o.PromotionPrice, o.PromoStart, o.PromoEnd = tc.promo, tc.start, tc.end
			assert.Equal(t, tc.want, o.PromotionActive(now))
		})
	}
}

func TestSelectOfferPrefersCountryWithStock(t *testing.T) {
	offers := []Offer{
		{WarehouseID: "DE1", CountryCode: "DE", Quantity: 3},
		{WarehouseID: "PL1", CountryCode: "PL", Quantity: 0},
		{WarehouseID: "PL2", CountryCode: "PL", Quantity: 2},
	}

	got, ok := SelectOffer(offers, "PL")
	require.True(t, ok)
	assert.Equal(t, "PL2", got.WarehouseID)

	got, _ = SelectOffer(offers, "UA")
	assert.Equal(t, "DE1", got.WarehouseID)

	offers[0].Quantity, offers[2].Quantity = 0, 0
	got, _ = SelectOffer(offers, "PL")
	assert.Equal(t, "PL1", got.WarehouseID)

	_, ok = SelectOffer(nil, "PL")
	assert.False(t, ok)
}

func TestResolvePrice(t *testing.T) {
	now := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	rp, ok := ResolvePrice([]Offer{{
		WarehouseID:    "W1",
		CountryCode:    "PL",
		Price:          decimal.NewFromInt(100),
		PromotionPrice: dec(80),
		PromoEnd:       at("2024-06-01"),
		Quantity:       5,
	}}, "PL", now)

	require.True(t, ok)
	assert.True(t, rp.InStock)
	assert.Nil(t, rp.PromotionPrice)
	assert.True(t, rp.Effective().Equal(decimal.NewFromInt(100)))
}

func TestParseTab(t *testing.T) {
	tab, err := ParseTab("")
	require.NoError(t, err)
	assert.Equal(t, TabBestsellers, tab)

	_, err = ParseTab("sale")
	assert.ErrorIs(t, err, ErrUnknownTab)
}

func TestResolvePriceProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 6).Draw(t, "offers")
		offers := make([]Offer, n)
		for i := range offers {
			price := decimal.NewFromInt(rapid.Int64Range(1, 10_000).Draw(t, "price"))
			o := Offer{
				WarehouseID: rapid.StringMatching(`W[0-9]{2}`).Draw(t, "warehouse"),
				CountryCode: rapid.SampledFrom([]string{"PL", "DE", "UA"}).Draw(t, "country"),
				Price:       price,
				Quantity:    rapid.IntRange(0, 3).Draw(t, "qty"),
			}
			if rapid.Bool().Draw(t, "promo") {
				o.PromotionPrice = dec(rapid.Int64Range(1, 10_000).Draw(t, "promoPrice"))
			}
			offers[i] = o
		}
		country := rapid.SampledFrom([]string{"PL", "DE", "UA", ""}).Draw(t, "preferred")

		rp, ok := ResolvePrice(offers, country, time.Now())
		if !ok {
			t.Fatal("offers present but nothing resolved")
		}

		anyStock := false
		for _, o := range offers {
			anyStock = anyStock || o.Quantity > 0
		}
		if rp.InStock != anyStock {
			t.Fatalf("in stock %v, any offer in stock %v", rp.InStock, anyStock)
		}
		if rp.PromotionPrice != nil && !rp.PromotionPrice.LessThan(rp.Price) {
			t.Fatalf("promotion %s not below price %s", rp.PromotionPrice, rp.Price)
		}
		if rp.Effective().GreaterThan(rp.Price) {
			t.Fatalf("effective %s above price %s", rp.Effective(), rp.Price)
		}
	})
}
