package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Pmanos1/TestBot/internal/model"
)

const sandboxBaseURL = "https://openapi-sandbox.kucoin.com"

// KucoinClient implements Gateway against the KuCoin spot REST API. All calls
// pass through a shared rate limiter and a circuit breaker so a misbehaving
// exchange fails fast instead of piling up blocked requests.
type KucoinClient struct {
	baseURL    string
	httpClient *http.Client
	signer     *Signer
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	logger     *zap.Logger
}

func NewKucoinClient(baseURL, apiKey, apiSecret, passphrase string, sandbox bool, logger *zap.Logger) *KucoinClient {
	if sandbox {
		baseURL = sandboxBaseURL
	}
	return &KucoinClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		signer:     NewSigner(apiKey, apiSecret, passphrase),
		limiter:    rate.NewLimiter(rate.Limit(10), 20),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "kucoin-rest",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 8
			},
		}),
		logger: logger,
	}
}

type apiEnvelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func (c *KucoinClient) doRequest(ctx context.Context, method, endpoint string, reqBody any) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var bodyBytes []byte
	if reqBody != nil {
		var err error
		bodyBytes, err = json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	out, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, bytes.NewReader(bodyBytes))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range c.signer.Headers(method, endpoint, string(bodyBytes)) {
			req.Header.Set(k, v)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}

		var env apiEnvelope
		if err := json.Unmarshal(respBody, &env); err != nil {
			return nil, fmt.Errorf("failed to decode response (status %d): %w", resp.StatusCode, err)
		}
		if env.Code != "200000" {
			// The API spells not-found both as "order does not exist" and as
			// "order_not_exist_or_not_allow_to_cancel" depending on endpoint.
			msg := strings.ReplaceAll(strings.ToLower(env.Msg), "_", " ")
			if strings.Contains(msg, "not exist") {
				return nil, ErrOrderNotFound
			}
			return nil, fmt.Errorf("exchange error [%s] %s (status %d)", env.Code, env.Msg, resp.StatusCode)
		}
		return env.Data, nil
	})
	if err != nil {
		return nil, err
	}
	return out.(json.RawMessage), nil
}

func (c *KucoinClient) Symbols(ctx context.Context) ([]model.SymbolMeta, error) {
	data, err := c.doRequest(ctx, http.MethodGet, "/api/v2/symbols", nil)
	if err != nil {
		return nil, err
	}
	var metas []model.SymbolMeta
	if err := json.Unmarshal(data, &metas); err != nil {
		return nil, fmt.Errorf("failed to decode symbols: %w", err)
	}
	return metas, nil
}

func (c *KucoinClient) Ticker(ctx context.Context, symbol string) (model.Ticker, error) {
	data, err := c.doRequest(ctx, http.MethodGet, "/api/v1/market/orderbook/level1?symbol="+symbol, nil)
	if err != nil {
		return model.Ticker{}, err
	}
	var tk model.Ticker
	if err := json.Unmarshal(data, &tk); err != nil {
		return model.Ticker{}, fmt.Errorf("failed to decode ticker: %w", err)
	}
	return tk, nil
}

func (c *KucoinClient) Accounts(ctx context.Context) ([]model.Account, error) {
	data, err := c.doRequest(ctx, http.MethodGet, "/api/v1/accounts", nil)
	if err != nil {
		return nil, err
	}
	var accounts []model.Account
	if err := json.Unmarshal(data, &accounts); err != nil {
		return nil, fmt.Errorf("failed to decode accounts: %w", err)
	}
	return accounts, nil
}

type createOrderRequest struct {
	ClientOid   string `json:"clientOid"`
	Side        string `json:"side"`
	Symbol      string `json:"symbol"`
	Type        string `json:"type"`
	Size        string `json:"size"`
	Price       string `json:"price,omitempty"`
	TimeInForce string `json:"timeInForce,omitempty"`
}

type createOrderResponse struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
}

func (c *KucoinClient) CreateMarketOrder(ctx context.Context, clientOid string, side model.OrderSide, symbol string, size decimal.Decimal) (model.ExchangeOrder, error) {
	return c.createOrder(ctx, createOrderRequest{
		ClientOid: clientOid,
		Side:      string(side),
		Symbol:    symbol,
		Type:      "market",
		Size:      size.String(),
	})
}

func (c *KucoinClient) CreateLimitOrder(ctx context.Context, clientOid string, side model.OrderSide, symbol string, price, size decimal.Decimal, timeInForce string) (model.ExchangeOrder, error) {
	return c.createOrder(ctx, createOrderRequest{
		ClientOid:   clientOid,
		Side:        string(side),
		Symbol:      symbol,
		Type:        "limit",
		Size:        size.String(),
		Price:       price.String(),
		TimeInForce: timeInForce,
	})
}

func (c *KucoinClient) createOrder(ctx context.Context, req createOrderRequest) (model.ExchangeOrder, error) {
	data, err := c.doRequest(ctx, http.MethodPost, "/api/v1/orders", req)
	if err != nil {
		return model.ExchangeOrder{}, err
	}
	var resp createOrderResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return model.ExchangeOrder{}, fmt.Errorf("failed to decode order response: %w", err)
	}
	c.logger.Debug("order created",
		zap.String("order_id", resp.OrderID),
		zap.String("client_oid", req.ClientOid),
		zap.String("side", req.Side),
	)
	return model.ExchangeOrder{ID: resp.OrderID, Status: resp.Status, IsActive: true}, nil
}

type orderDetail struct {
	ID        string          `json:"id"`
	Status    string          `json:"status"`
	IsActive  bool            `json:"isActive"`
	OpType    string          `json:"opType"`
	DealFunds decimal.Decimal `json:"dealFunds"`
	DealSize  decimal.Decimal `json:"dealSize"`
}

func (c *KucoinClient) Order(ctx context.Context, orderID string) (model.ExchangeOrder, error) {
	data, err := c.doRequest(ctx, http.MethodGet, "/api/v1/orders/"+orderID, nil)
	if err != nil {
		return model.ExchangeOrder{}, err
	}
	var d orderDetail
	if err := json.Unmarshal(data, &d); err != nil {
		return model.ExchangeOrder{}, fmt.Errorf("failed to decode order: %w", err)
	}

	// The API reports executed funds and size; the average fill price is the
	// quotient.
	dealPrice := decimal.Zero
	if d.DealSize.IsPositive() {
		dealPrice = d.DealFunds.Div(d.DealSize)
	}
	return model.ExchangeOrder{
		ID:        d.ID,
		Status:    d.Status,
		IsActive:  d.IsActive,
		OpType:    d.OpType,
		DealPrice: dealPrice,
		DealSize:  d.DealSize,
	}, nil
}

func (c *KucoinClient) CancelOrder(ctx context.Context, orderID string) error {
	_, err := c.doRequest(ctx, http.MethodDelete, "/api/v1/orders/"+orderID, nil)
	return err
}
