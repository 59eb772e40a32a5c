package realtime

import "time"

// Event names emitted on the bus.
const (
	EventConnect      = "connect"
	EventDisconnect   = "disconnect"
	EventConnectError = "connect_error"

	EventOrderUpdate   = "order_update"      // pos.Order
	EventOrderDeleted  = "order_deleted"     // pos.ID
	EventPaymentUpdate = "payment_update"    // pos.Payment
	EventItemMarked    = "order_item_marked" // pos.ItemMark
)

// ConnectInfo is the payload of EventConnect.
type ConnectInfo struct {
	// Attempts is the number of failed attempts that preceded this one.
	Attempts int
	At       time.Time
}

// DisconnectInfo is the payload of EventDisconnect.
type DisconnectInfo struct {
	Reason      error
	Intentional bool
}

// State is the connection lifecycle phase.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateSubscribing
	StateReady
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateSubscribing:
		return "subscribing"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Topics are the server topics subscribed on every connection.
type Topics struct {
	Orders       string
	OrderDeleted string
	Payments     string
	ItemMarked   string
	Pong         string
}

// Destinations are the application destinations the client sends to.
type Destinations struct {
	Ping       string
	ItemMarked string
}

func DefaultTopics() Topics {
	return Topics{
		Orders:       "/topic/orders",
		OrderDeleted: "/topic/order-deleted",
		Payments:     "/topic/payments",
		ItemMarked:   "/topic/order-item-marked",
		Pong:         "/topic/pong",
	}
}

func DefaultDestinations() Destinations {
	return Destinations{
		Ping:       "/app/ping",
		ItemMarked: "/app/order-item-marked",
	}
}
