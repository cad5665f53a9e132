package domain

import "time"

const (
	EventOrderPlaced        = "OrderPlaced"
	EventOrderStatusChanged = "OrderStatusChanged"
)

type EventLine struct {
	ItemID      int64  `json:"itemId"`
	ArticleID   string `json:"articleId"`
	WarehouseID string `json:"warehouseId"`
	Quantity    int    `json:"quantity"`
}

type OrderPlaced struct {
	OrderID            string      `json:"orderId"`
	UserID             string      `json:"userId"`
	PriceRequest       bool        `json:"priceRequest"`
	OriginalTotalPrice string      `json:"originalTotalPrice"`
	Lines              []EventLine `json:"lines"`
	OccurredAt         time.Time   `json:"occurredAt"`
}

type OrderStatusChanged struct {
	OrderID      string      `json:"orderId"`
	From         OrderStatus `json:"from"`
	To           OrderStatus `json:"to"`
	DeliveryID   string      `json:"deliveryId,omitempty"`
	PriceRequest bool        `json:"priceRequest"`
	Lines        []EventLine `json:"lines"`
	OccurredAt   time.Time   `json:"occurredAt"`
}

func eventLines(items []LineItem) []EventLine {
	lines := make([]EventLine, 0, len(items))
	for _, li := range items {
		lines = append(lines, EventLine{
			ItemID:      li.ItemID,
			ArticleID:   li.ArticleID,
			WarehouseID: li.Warehouse.ID,
			Quantity:    li.Quantity,
		})
	}
	return lines
}

func NewOrderPlaced(o Order) OrderPlaced {
	return OrderPlaced{
		OrderID:            o.ID,
		UserID:             o.UserID,
		PriceRequest:       o.PriceRequest,
		OriginalTotalPrice: o.OriginalTotalPrice.String(),
		Lines:              eventLines(o.LineItems),
		OccurredAt:         o.CreatedAt,
	}
}

func NewOrderStatusChanged(o Order, from OrderStatus) OrderStatusChanged {
	return OrderStatusChanged{
		OrderID:      o.ID,
		From:         from,
		To:           o.Status,
		DeliveryID:   o.DeliveryID,
		PriceRequest: o.PriceRequest,
		Lines:        eventLines(o.LineItems),
		OccurredAt:   o.UpdatedAt,
	}
}
