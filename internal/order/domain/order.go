package domain

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	StatusNew               OrderStatus = "NEW"
	StatusWaitingForPayment OrderStatus = "WAITING_FOR_PAYMENT"
	StatusProcessing        OrderStatus = "PROCESSING"
	StatusDelivery          OrderStatus = "DELIVERY"
	StatusCompleted         OrderStatus = "COMPLETED"
	StatusCancelled         OrderStatus = "CANCELLED"
	StatusRefund            OrderStatus = "REFUND"
	StatusAskForPrice       OrderStatus = "ASK_FOR_PRICE"
)

var knownStatuses = map[OrderStatus]struct{}{
	StatusNew:               {},
	StatusWaitingForPayment: {},
	StatusProcessing:        {},
	StatusDelivery:          {},
	StatusCompleted:         {},
	StatusCancelled:         {},
	StatusRefund:            {},
	StatusAskForPrice:       {},
}

func ParseStatus(s string) (OrderStatus, error) {
	st := OrderStatus(s)
	if _, ok := knownStatuses[st]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
	}
	return st, nil
}

// PriceTolerance is how far a client computed total may drift before it is logged.
var PriceTolerance = decimal.NewFromInt(1)

type WarehouseRef struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	CountryCode string `json:"countryCode"`
}

// LineItem is the priced snapshot stored with the order. It is never rewritten
// when the catalog changes.
type LineItem struct {
	ItemID         int64            `json:"itemId"`
	ArticleID      string           `json:"articleId"`
	Name           string           `json:"name"`
	Quantity       int              `json:"quantity"`
	Warehouse      WarehouseRef     `json:"warehouse"`
	UnitPrice      decimal.Decimal  `json:"unitPrice"`
	BasePrice      decimal.Decimal  `json:"basePrice"`
	PromotionPrice *decimal.Decimal `json:"promotionPrice,omitempty"`
	LineTotal      decimal.Decimal  `json:"lineTotal"`
}

type Customer struct {
	Name       string `json:"name,omitempty"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Address    string `json:"address,omitempty"`
	City       string `json:"city,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	Country    string `json:"country,omitempty"`
}

// Order is a placed order or price request. StockHeld is true while the order's
// quantities are deducted from warehouse stock.
type Order struct {
	ID                 string
	UserID             string
	Status             OrderStatus
	OriginalTotalPrice decimal.Decimal
	TotalPrice         string
	LineItems          []LineItem
	DeliveryID         string
	Comment            string
	Customer           *Customer
	PriceRequest       bool
	StockHeld          bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// CartLine is one entry of the client side cart.
type CartLine struct {
	ArticleID   string
	WarehouseID string
	Quantity    int
	Name        string
}

type OfferKey struct {
	ArticleID   string
	WarehouseID string
}

// StockKey addresses a single item_prices row.
type StockKey struct {
	ItemID      int64
	WarehouseID string
}

// Offer is the current price and stock of an item at one warehouse.
type Offer struct {
	ItemID         int64
	ArticleID      string
	Name           string
	Warehouse      WarehouseRef
	Price          decimal.Decimal
	PromotionPrice *decimal.Decimal
	Quantity       int
}

func (o Offer) Key() OfferKey {
	return OfferKey{ArticleID: o.ArticleID, WarehouseID: o.Warehouse.ID}
}

func (o Offer) StockKey() StockKey {
	return StockKey{ItemID: o.ItemID, WarehouseID: o.Warehouse.ID}
}

// UnitPrice is the promotion price whenever one is set, else the base price.
// Promotion windows are a catalog display concern and are not checked here.
func (o Offer) UnitPrice() decimal.Decimal {
	if o.PromotionPrice != nil {
		return *o.PromotionPrice
	}
	return o.Price
}

// Placement describes the outcome of pricing a cart against locked offers.
type Placement struct {
	Order     Order
	Decrement map[StockKey]int
}

type PlaceParams struct {
	ID         string
	UserID     string
	Lines      []CartLine
	TotalPrice string
	DeliveryID string
	Comment    string
	Customer   *Customer
	Now        time.Time
}

// CartKeys returns the distinct offer keys of lines in a stable order, which is
// also the order rows are locked in.
func CartKeys(lines []CartLine) []OfferKey {
	seen := make(map[OfferKey]struct{}, len(lines))
	keys := make([]OfferKey, 0, len(lines))
	for _, l := range lines {
		k := OfferKey{ArticleID: l.ArticleID, WarehouseID: l.WarehouseID}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].ArticleID != keys[j].ArticleID {
			return keys[i].ArticleID < keys[j].ArticleID
		}
		return keys[i].WarehouseID < keys[j].WarehouseID
	})
	return keys
}

// MaxQuantity caps the units of one offer in a single order.
const MaxQuantity = 10000

// Place prices the cart against offers and checks stock. Quantities of repeated
// lines for the same offer are summed before the stock check. Either every line
// passes or an error naming the first offending article is returned.
func Place(p PlaceParams, offers map[OfferKey]Offer) (Placement, error) {
	if len(p.Lines) == 0 {
		return Placement{}, ErrEmptyCart
	}

	requested := make(map[OfferKey]int, len(p.Lines))
	for _, l := range p.Lines {
		if l.Quantity <= 0 || l.Quantity > MaxQuantity {
			return Placement{}, fmt.Errorf("%w: article %s", ErrInvalidQuantity, l.ArticleID)
		}
		k := OfferKey{ArticleID: l.ArticleID, WarehouseID: l.WarehouseID}
		if requested[k] > MaxQuantity-l.Quantity {
			return Placement{}, fmt.Errorf("%w: article %s exceeds %d units", ErrInvalidQuantity, l.ArticleID, MaxQuantity)
		}
		requested[k] += l.Quantity
	}

	for _, k := range CartKeys(p.Lines) {
		offer, ok := offers[k]
		if !ok {
			return Placement{}, &NotAvailableError{ArticleID: k.ArticleID, WarehouseID: k.WarehouseID}
		}
		if offer.Quantity < requested[k] {
			return Placement{}, &StockError{
				ArticleID:   k.ArticleID,
				WarehouseID: k.WarehouseID,
				Requested:   requested[k],
				Available:   offer.Quantity,
			}
		}
	}

	items := make([]LineItem, 0, len(p.Lines))
	decrement := make(map[StockKey]int, len(requested))
	total := decimal.Zero
	for _, l := range p.Lines {
		offer := offers[OfferKey{ArticleID: l.ArticleID, WarehouseID: l.WarehouseID}]
		unit := offer.UnitPrice()
		lineTotal := unit.Mul(decimal.NewFromInt(int64(l.Quantity)))
		total = total.Add(lineTotal)

		name := offer.Name
		if name == "" {
			name = l.Name
		}
		items = append(items, LineItem{
			ItemID:         offer.ItemID,
			ArticleID:      offer.ArticleID,
			Name:           name,
			Quantity:       l.Quantity,
			Warehouse:      offer.Warehouse,
			UnitPrice:      unit,
			BasePrice:      offer.Price,
			PromotionPrice: offer.PromotionPrice,
			LineTotal:      lineTotal,
		})
		decrement[offer.StockKey()] += l.Quantity
	}

	return Placement{
		Order: Order{
			ID:                 p.ID,
			UserID:             p.UserID,
			Status:             StatusNew,
			OriginalTotalPrice: total,
			TotalPrice:         p.TotalPrice,
			LineItems:          items,
			DeliveryID:         p.DeliveryID,
			Comment:            p.Comment,
			Customer:           p.Customer,
			StockHeld:          true,
			CreatedAt:          p.Now,
			UpdatedAt:          p.Now,
		},
		Decrement: decrement,
	}, nil
}

// NewPriceRequest builds an ASK_FOR_PRICE order with a single zero priced line.
func NewPriceRequest(id, userID string, offer Offer, quantity int, comment string, customer *Customer, now time.Time) (Order, error) {
	if quantity <= 0 || quantity > MaxQuantity {
		return Order{}, fmt.Errorf("%w: article %s", ErrInvalidQuantity, offer.ArticleID)
	}
	return Order{
		ID:                 id,
		UserID:             userID,
		Status:             StatusAskForPrice,
		OriginalTotalPrice: decimal.Zero,
		TotalPrice:         "0",
		LineItems: []LineItem{{
			ItemID:    offer.ItemID,
			ArticleID: offer.ArticleID,
			Name:      offer.Name,
			Quantity:  quantity,
			Warehouse: offer.Warehouse,
			UnitPrice: decimal.Zero,
			BasePrice: decimal.Zero,
			LineTotal: decimal.Zero,
		}},
		Comment:      comment,
		Customer:     customer,
		PriceRequest: true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// Cancel is the customer cancellation: only a NEW order may be cancelled. The
// returned map holds the stock to hand back.
func (o *Order) Cancel(now time.Time) (map[StockKey]int, error) {
	if o.Status != StatusNew {
		return nil, fmt.Errorf("%w: cannot cancel order in status %s", ErrInvalidTransition, o.Status)
	}
	o.Status = StatusCancelled
	o.UpdatedAt = now
	return o.release(), nil
}

// SetStatus applies a back-office status change. Any known status is accepted;
// DELIVERY additionally needs a delivery ticket. Moving to CANCELLED releases
// held stock the same way a customer cancellation does.
func (o *Order) SetStatus(status OrderStatus, deliveryID string, now time.Time) (map[StockKey]int, error) {
	if _, ok := knownStatuses[status]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStatus, status)
	}
	if status == StatusDelivery && deliveryID == "" {
		return nil, ErrDeliveryIDRequired
	}
	if deliveryID != "" {
		o.DeliveryID = deliveryID
	}
	o.Status = status
	o.UpdatedAt = now
	if status == StatusCancelled {
		return o.release(), nil
	}
	return nil, nil
}

func (o *Order) release() map[StockKey]int {
	if !o.StockHeld {
		return nil
	}
	o.StockHeld = false
	out := map[StockKey]int{}
	for _, li := range o.LineItems {
		out[StockKey{ItemID: li.ItemID, WarehouseID: li.Warehouse.ID}] += li.Quantity
	}
	return out
}

// TotalMismatch reports whether a client total differs from the computed one by
// more than PriceTolerance.
func TotalMismatch(client, computed decimal.Decimal) bool {
	return client.Sub(computed).Abs().GreaterThan(PriceTolerance)
}
