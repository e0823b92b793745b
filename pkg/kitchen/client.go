package kitchen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/buger/jsonparser"

	"github.com/vango-go/vai-kiosk/pkg/core"
	"github.com/vango-go/vai-kiosk/pkg/order"
)

const (
	defaultSubmitTimeout = 10 * time.Second
	maxResponseBytes     = 1 << 20

	orderStatusPending   = "pending"
	defaultPriority      = 1
	defaultEstimatedMins = 15
)

// Receipt is the kitchen's acknowledgement of an order.
type Receipt struct {
	OrderID string
	Status  string
}

type orderItem struct {
	Name           string   `json:"name"`
	LocalizedName  string   `json:"localizedName,omitempty"`
	Quantity       int      `json:"quantity"`
	Price          float64  `json:"price"`
	Customizations []string `json:"customizations,omitempty"`
}

type orderRequest struct {
	Items         []orderItem `json:"items"`
	Total         float64     `json:"total"`
	Language      string      `json:"language"`
	CustomerNote  string      `json:"customerNote,omitempty"`
	Status        string      `json:"status"`
	Priority      int         `json:"priority"`
	EstimatedTime int         `json:"estimatedTime"`
}

func newOrderRequest(c order.Completion) orderRequest {
	items := make([]orderItem, 0, len(c.Items))
	for _, l := range c.Items {
		items = append(items, orderItem{
			Name:           l.Item.Name,
			LocalizedName:  l.Item.LocalizedName,
			Quantity:       l.Quantity,
			Price:          l.Item.UnitPrice,
			Customizations: l.Customizations,
		})
	}
	return orderRequest{
		Items:         items,
		Total:         c.Total,
		Language:      c.Language,
		CustomerNote:  Summary(c),
		Status:        orderStatusPending,
		Priority:      defaultPriority,
		EstimatedTime: defaultEstimatedMins,
	}
}

// Client submits orders to the orders API.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Submit posts c to <BaseURL>/api/orders. A non-empty key is sent as the
// Idempotency-Key header so a resubmitted journal entry is not duplicated by
// servers that honor it.
func (c *Client) Submit(ctx context.Context, key string, completion order.Completion) (Receipt, error) {
	if len(completion.Items) == 0 {
		return Receipt{}, core.NewInvalidRequestError("order has no items")
	}
	body, err := json.Marshal(newOrderRequest(completion))
	if err != nil {
		return Receipt{}, core.NewPersistenceError("encode order", err)
	}

	endpoint := strings.TrimRight(c.BaseURL, "/") + "/api/orders"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Receipt{}, core.NewPersistenceError("build order request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return Receipt{}, core.NewPersistenceError("submit order", &core.TransportError{Op: http.MethodPost, URL: endpoint, Err: err})
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Receipt{}, core.NewPersistenceError("read order response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := fmt.Sprintf("orders api returned status %d", resp.StatusCode)
		if apiMsg, err := jsonparser.GetString(data, "error"); err == nil && strings.TrimSpace(apiMsg) != "" {
			msg = strings.TrimSpace(apiMsg)
		}
		code := fmt.Sprint(resp.StatusCode)
		if apiCode, err := jsonparser.GetString(data, "code"); err == nil && apiCode != "" {
			code = apiCode
		}
		return Receipt{}, &core.Error{Type: core.ErrPersistence, Message: msg, Code: code}
	}

	id, typ, _, err := jsonparser.Get(data, "id")
	if err != nil || (typ != jsonparser.Number && typ != jsonparser.String) || len(id) == 0 {
		return Receipt{}, core.NewPersistenceError("order response has no id", err)
	}
	receipt := Receipt{OrderID: string(id), Status: orderStatusPending}
	if status, err := jsonparser.GetString(data, "status"); err == nil && status != "" {
		receipt.Status = status
	}

	c.logger().Info("order submitted", "order_id", receipt.OrderID, "lines", len(completion.Items), "total", completion.Total)
	return receipt, nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: defaultSubmitTimeout}
}

func (c *Client) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
