package kitchen

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-go/vai-kiosk/pkg/core"
	"github.com/vango-go/vai-kiosk/pkg/order"
)

const (
	defaultNotifyTimeout = 2 * time.Second
	clientTypeCustomer   = "customer"
	messageIdentify      = "identify"
	messageNewOrder      = "newOrder"
)

type identifyMessage struct {
	Type       string `json:"type"`
	ClientType string `json:"clientType"`
	OrderID    string `json:"orderId,omitempty"`
}

type announcedOrder struct {
	ID       string      `json:"id"`
	Items    []orderItem `json:"items"`
	Total    float64     `json:"total"`
	Language string      `json:"language"`
	Status   string      `json:"status"`
	Summary  string      `json:"summary"`
}

type newOrderMessage struct {
	Type      string         `json:"type"`
	Order     announcedOrder `json:"order"`
	Timestamp string         `json:"timestamp"`
}

// Notifier announces new orders on the kitchen display hub.
type Notifier struct {
	// URL is the hub base, e.g. ws://localhost:8080; /ws is appended.
	URL     string
	Dialer  *websocket.Dialer
	Timeout time.Duration
	Logger  *slog.Logger
	Now     func() time.Time
}

func (n *Notifier) endpoint() string {
	u := strings.TrimRight(n.URL, "/")
	if !strings.HasSuffix(u, "/ws") {
		u += "/ws"
	}
	return u
}

// Notify identifies as a customer client for r and broadcasts the order.
func (n *Notifier) Notify(ctx context.Context, r Receipt, c order.Completion) error {
	timeout := n.Timeout
	if timeout <= 0 {
		timeout = defaultNotifyTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dialer := n.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	endpoint := n.endpoint()
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return &core.TransportError{Op: "dial", URL: endpoint, Err: err}
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	}

	now := time.Now
	if n.Now != nil {
		now = n.Now
	}
	req := newOrderRequest(c)
	messages := []any{
		identifyMessage{Type: messageIdentify, ClientType: clientTypeCustomer, OrderID: r.OrderID},
		newOrderMessage{
			Type: messageNewOrder,
			Order: announcedOrder{
				ID:       r.OrderID,
				Items:    req.Items,
				Total:    c.Total,
				Language: c.Language,
				Status:   r.Status,
				Summary:  req.CustomerNote,
			},
			Timestamp: now().UTC().Format(time.RFC3339),
		},
	}
	for _, m := range messages {
		if err := conn.WriteJSON(m); err != nil {
			return &core.TransportError{Op: "write", URL: endpoint, Err: err}
		}
	}
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))

	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("kitchen notified", "order_id", r.OrderID)
	return nil
}
