package domain

import (
	"encoding/json"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringListRoundTrip(t *testing.T) {
	v, err := StringList{"https://cdn.example/a.jpg"}.Value()
	require.NoError(t, err)
	assert.Equal(t, `["https://cdn.example/a.jpg"]`, v)

	var l StringList
	require.NoError(t, l.Scan([]byte(`["x","y"]`)))
	assert.Equal(t, StringList{"x", "y"}, l)

	require.NoError(t, l.Scan(nil))
	assert.Empty(t, l)

	v, err = StringList(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", v)

	assert.Error(t, l.Scan(42))
}

func TestRawJSON(t *testing.T) {
	var p Page
	require.NoError(t, json.Unmarshal([]byte(`{"slug":"about","content":{"blocks":[1,2]}}`), &p))
	assert.JSONEq(t, `{"blocks":[1,2]}`, string(p.Content))

	v, err := p.Content.Value()
	require.NoError(t, err)
	assert.JSONEq(t, `{"blocks":[1,2]}`, v.(string))

	_, err = RawJSON(`{broken`).Value()
	assert.Error(t, err)

	out, err := json.Marshal(Page{})
	require.NoError(t, err)
	assert.Contains(t, string(out), `"content":{}`)
}

func TestModelValidation(t *testing.T) {
	validate := validator.New(validator.WithRequiredStructEnabled())

	tests := []struct {
		name  string
		model any
		ok    bool
	}{
		{"warehouse", Warehouse{ID: "W1", Name: "Warsaw", CountryCode: "PL"}, true},
		{"warehouse bad country", Warehouse{ID: "W1", Name: "Warsaw", CountryCode: "XX"}, false},
		{"user role", User{ID: "u1", Email: "a@b.pl", Role: "root"}, false},
		{"user", User{ID: "u1", Email: "a@b.pl", Role: "employer"}, true},
		{"currency", CurrencyRate{Code: "EUR", Rate: decimal.RequireFromString("0.23")}, true},
		{"currency unknown", CurrencyRate{Code: "ABC"}, false},
		{"item", Item{
			ArticleID: "ABC1",
			Prices:    []ItemPrice{{WarehouseID: "W1", Price: decimal.NewFromInt(100), Badge: "HOT_DEALS"}},
			Details:   []ItemDetail{{Locale: "pl", Name: "Wiertarka"}, {Locale: "en", Name: "Drill"}},
		}, true},
		{"item duplicate locale", Item{
			ArticleID: "ABC1",
			Details:   []ItemDetail{{Locale: "pl", Name: "a"}, {Locale: "pl", Name: "b"}},
		}, false},
		{"item bad badge", Item{
			ArticleID: "ABC1",
			Prices:    []ItemPrice{{WarehouseID: "W1", Badge: "FREE"}},
		}, false},
		{"banner", Banner{Locale: "en", Title: "Sale", ImageURL: "https://cdn.example/b.png"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validate.Struct(tt.model)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
