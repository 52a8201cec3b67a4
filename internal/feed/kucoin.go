// Package feed streams public market data from KuCoin and normalizes it into
// model.Tick events. Messages for other topics are dropped at the boundary.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Pmanos1/TestBot/internal/infrastructure"
	"github.com/Pmanos1/TestBot/internal/model"
)

// KucoinFeed subscribes to the trade-match and ticker topics for one symbol
// and pushes normalized ticks into a channel. The connection is re-dialed
// with doubling backoff capped at one minute.
type KucoinFeed struct {
	logger  *zap.Logger
	restURL string
	symbol  string
	client  *http.Client
}

func NewKucoinFeed(logger *zap.Logger, restURL, symbol string) *KucoinFeed {
	return &KucoinFeed{
		logger:  logger,
		restURL: restURL,
		symbol:  symbol,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type bulletResponse struct {
	Code string `json:"code"`
	Data struct {
		Token           string `json:"token"`
		InstanceServers []struct {
			Endpoint     string `json:"endpoint"`
			PingInterval int64  `json:"pingInterval"`
		} `json:"instanceServers"`
	} `json:"data"`
}

type wsCommand struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Topic    string `json:"topic,omitempty"`
	Response bool   `json:"response,omitempty"`
}

type wsMessage struct {
	Type  string          `json:"type"`
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data"`
}

// matchData is a trade match payload; time is a nanosecond epoch.
type matchData struct {
	Price string      `json:"price"`
	Size  string      `json:"size"`
	Time  json.Number `json:"time"`
}

// tickerData is a best bid/ask quote payload.
type tickerData struct {
	BestAsk string      `json:"bestAsk"`
	BestBid string      `json:"bestBid"`
	Price   string      `json:"price"`
	Size    string      `json:"size"`
	Time    json.Number `json:"time"`
}

func (f *KucoinFeed) Run(ctx context.Context, ticks chan<- model.Tick) {
	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn, pingInterval, err := f.connect(ctx)
		if err != nil {
			f.logger.Error("failed to connect to kucoin feed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = f.increaseBackoff(backoff)
			continue
		}

		backoff = time.Second
		f.logger.Info("connected to kucoin feed", zap.String("symbol", f.symbol))
		infrastructure.WSConnections.Inc()

		if err := f.handleConnection(ctx, conn, pingInterval, ticks); err != nil {
			f.logger.Error("feed connection closed with error", zap.Error(err))
		}
		infrastructure.WSConnections.Dec()
		conn.Close()
	}
}

// connect performs the bullet-token handshake and dials the websocket.
func (f *KucoinFeed) connect(ctx context.Context) (*websocket.Conn, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.restURL+"/api/v1/bullet-public", nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("bullet token request failed: %w", err)
	}
	defer resp.Body.Close()

	var bullet bulletResponse
	if err := json.NewDecoder(resp.Body).Decode(&bullet); err != nil {
		return nil, 0, fmt.Errorf("failed to decode bullet response: %w", err)
	}
	if len(bullet.Data.InstanceServers) == 0 {
		return nil, 0, fmt.Errorf("bullet response has no instance servers")
	}

	server := bullet.Data.InstanceServers[0]
	wsURL := fmt.Sprintf("%s?token=%s&connectId=%s", server.Endpoint, bullet.Data.Token, uuid.NewString())

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, 0, err
	}

	for _, topic := range []string{
		"/market/match:" + f.symbol,
		"/market/ticker:" + f.symbol,
	} {
		cmd := wsCommand{ID: uuid.NewString(), Type: "subscribe", Topic: topic, Response: true}
		if err := conn.WriteJSON(cmd); err != nil {
			conn.Close()
			return nil, 0, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
		}
	}

	pingInterval := time.Duration(server.PingInterval) * time.Millisecond
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return conn, pingInterval, nil
}

func (f *KucoinFeed) handleConnection(ctx context.Context, conn *websocket.Conn, pingInterval time.Duration, ticks chan<- model.Tick) error {
	done := make(chan struct{})
	defer close(done)

	// Server-side keepalive: the endpoint drops connections that stop pinging.
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				cmd := wsCommand{ID: strconv.FormatInt(time.Now().UnixMilli(), 10), Type: "ping"}
				if err := conn.WriteJSON(cmd); err != nil {
					return
				}
			}
		}
	}()

	conn.SetReadDeadline(time.Now().Add(3 * pingInterval))

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			_, message, err := conn.ReadMessage()
			if err != nil {
				return err
			}
			conn.SetReadDeadline(time.Now().Add(3 * pingInterval))

			var msg wsMessage
			if err := json.Unmarshal(message, &msg); err != nil {
				f.logger.Error("failed to unmarshal feed message", zap.Error(err))
				continue
			}
			if msg.Type != "message" || len(msg.Data) == 0 {
				continue
			}

			tick, ok := f.decode(msg)
			if !ok {
				continue
			}

			select {
			case ticks <- tick:
			default:
				f.logger.Warn("tick channel full, dropping tick", zap.String("symbol", tick.Symbol))
			}
		}
	}
}

// decode converts a raw feed message into a normalized tick. Unknown topics
// return ok=false and never reach the engine.
func (f *KucoinFeed) decode(msg wsMessage) (model.Tick, bool) {
	switch msg.Topic {
	case "/market/match:" + f.symbol:
		var d matchData
		if err := json.Unmarshal(msg.Data, &d); err != nil {
			return model.Tick{}, false
		}
		price, err := decimal.NewFromString(d.Price)
		if err != nil {
			return model.Tick{}, false
		}
		size, _ := decimal.NewFromString(d.Size)
		return model.Tick{
			Kind:   model.TickTradeMatch,
			Symbol: f.symbol,
			Price:  price,
			Size:   size,
			Time:   nanosToTime(d.Time),
		}, true

	case "/market/ticker:" + f.symbol:
		var d tickerData
		if err := json.Unmarshal(msg.Data, &d); err != nil {
			return model.Tick{}, false
		}
		// Quote ticks carry the best ask as the observable price, falling
		// back to the last trade price.
		raw := d.BestAsk
		if raw == "" {
			raw = d.Price
		}
		price, err := decimal.NewFromString(raw)
		if err != nil {
			return model.Tick{}, false
		}
		size, _ := decimal.NewFromString(d.Size)
		return model.Tick{
			Kind:   model.TickTickerQuote,
			Symbol: f.symbol,
			Price:  price,
			Size:   size,
			Time:   nanosToTime(d.Time),
		}, true
	}
	return model.Tick{}, false
}

func nanosToTime(n json.Number) time.Time {
	ns, err := n.Int64()
	if err != nil {
		return time.Now().UTC()
	}
	return time.Unix(0, ns).UTC()
}

func (f *KucoinFeed) increaseBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > time.Minute {
		return time.Minute
	}
	return next
}
