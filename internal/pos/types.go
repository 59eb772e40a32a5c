// Package pos holds the wire types shared by the REST client, the real-time
// feed and the order board. Types mirror the POS backend's JSON without
// importing any backend package.
package pos

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ID identifies an order, item, table or payment. The backend serialises
// numeric ids while some topics carry them as strings, so ID accepts both.
type ID string

// UnmarshalJSON accepts a JSON string or a JSON number.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("cannot parse id: %s", string(data))
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// OrderStatus is the lifecycle state reported by the backend.
type OrderStatus string

const (
	OrderPending    OrderStatus = "PENDING"
	OrderInProgress OrderStatus = "IN_PROGRESS"
	OrderServed     OrderStatus = "SERVED"
	OrderCompleted  OrderStatus = "COMPLETED"
	OrderPaid       OrderStatus = "PAID"
	OrderCancelled  OrderStatus = "CANCELLED"
)

// IsTerminal reports whether the order will not change again.
func (s OrderStatus) IsTerminal() bool {
	switch OrderStatus(strings.ToUpper(string(s))) {
	case OrderCompleted, OrderPaid, OrderCancelled:
		return true
	}
	return false
}

// Order is a full order snapshot, as returned by /api/orders and published
// on the orders topic.
type Order struct {
	ID          ID          `json:"id"`
	TableID     ID          `json:"tableId,omitempty"`
	TableName   string      `json:"tableName,omitempty"`
	Status      OrderStatus `json:"status"`
	Items       []OrderItem `json:"items"`
	TotalAmount float64     `json:"totalAmount"`
	Note        string      `json:"note,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// OrderItem is one line of an order.
type OrderItem struct {
	ID         ID      `json:"id"`
	FoodItemID ID      `json:"foodItemId,omitempty"`
	Name       string  `json:"name"`
	Quantity   int     `json:"quantity"`
	Price      float64 `json:"price"`
	Note       string  `json:"note,omitempty"`
	Status     string  `json:"status,omitempty"`
}

// Payment is a payment snapshot published on the payments topic.
type Payment struct {
	ID        ID      `json:"id"`
	OrderID   ID      `json:"orderId"`
	Amount    float64 `json:"amount"`
	Method    string  `json:"method,omitempty"`
	Status    string  `json:"status"`
	Confirmed bool    `json:"confirmed,omitempty"`
}

// IsConfirmed reports whether the payment settles its order.
func (p Payment) IsConfirmed() bool {
	if p.Confirmed {
		return true
	}
	switch strings.ToUpper(p.Status) {
	case "PAID", "SUCCESS", "CONFIRMED":
		return true
	}
	return false
}

// ItemMark toggles the kitchen mark on one order item. It travels both
// ways: published on the item-mark topic and sent to the item-mark
// destination.
type ItemMark struct {
	OrderID ID   `json:"orderId"`
	ItemID  ID   `json:"itemId"`
	Marked  bool `json:"marked"`
}

// Ping is the keepalive body sent to the ping destination.
type Ping struct {
	TS int64 `json:"ts"`
}

// Pong is the liveness echo published on the pong topic.
type Pong struct {
	TS int64 `json:"ts"`
}

// Table is a dining table.
type Table struct {
	ID       ID     `json:"id"`
	Name     string `json:"name"`
	Status   string `json:"status"`
	Capacity int    `json:"capacity,omitempty"`
}

// FoodItem is a menu entry.
type FoodItem struct {
	ID        ID      `json:"id"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Category  string  `json:"category,omitempty"`
	Available bool    `json:"available"`
}

// --- REST request bodies ---

// OrderLine is a requested item in a create or update call.
type OrderLine struct {
	FoodItemID ID     `json:"foodItemId"`
	Quantity   int    `json:"quantity"`
	Note       string `json:"note,omitempty"`
}

// CreateOrderRequest is the body of POST /api/orders.
type CreateOrderRequest struct {
	TableID ID          `json:"tableId"`
	Items   []OrderLine `json:"items"`
	Note    string      `json:"note,omitempty"`
}

// UpdateOrderRequest is the body of PUT /api/orders/{id}.
type UpdateOrderRequest struct {
	Items []OrderLine `json:"items"`
	Note  string      `json:"note,omitempty"`
}

// CreatePaymentRequest is the body of POST /api/payments.
type CreatePaymentRequest struct {
	OrderID ID      `json:"orderId"`
	Amount  float64 `json:"amount"`
	Method  string  `json:"method"`
}
