// Package push relays engine events from JetStream to websocket dashboard
// clients. Clients subscribe per topic; a JetStream subscription exists only
// while at least one client wants the topic.
package push

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/Pmanos1/TestBot/internal/infrastructure"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// allowedPrefixes are the engine event subjects a client may subscribe to.
var allowedPrefixes = []string{
	"algo.ticks.",
	"algo.bars.",
	"algo.signals.",
	"algo.trades.",
}

func topicAllowed(topic string) bool {
	for _, p := range allowedPrefixes {
		if strings.HasPrefix(topic, p) {
			return true
		}
	}
	return false
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Gateway fans engine event subjects out to subscribed websocket clients.
type Gateway struct {
	logger *zap.Logger
	js     nats.JetStreamContext

	mu       sync.RWMutex
	clients  map[*client]bool
	topics   map[string]map[*client]bool
	natsSubs map[string]*nats.Subscription
}

func NewGateway(js nats.JetStreamContext, logger *zap.Logger) *Gateway {
	return &Gateway{
		logger:   logger,
		js:       js,
		clients:  make(map[*client]bool),
		topics:   make(map[string]map[*client]bool),
		natsSubs: make(map[string]*nats.Subscription),
	}
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Error("failed to upgrade websocket", zap.Error(err))
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, 256),
	}

	g.mu.Lock()
	g.clients[c] = true
	g.mu.Unlock()
	infrastructure.WSConnections.Inc()

	go g.writePump(c)
	g.readPump(c)
}

func (g *Gateway) readPump(c *client) {
	defer func() {
		g.mu.Lock()
		delete(g.clients, c)
		for topic, clients := range g.topics {
			delete(clients, c)
			if len(clients) == 0 {
				g.dropTopicLocked(topic)
			}
		}
		g.mu.Unlock()
		infrastructure.WSConnections.Dec()
		c.conn.Close()
	}()

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			break
		}

		var req struct {
			Action string `json:"action"` // "subscribe", "unsubscribe"
			Topic  string `json:"topic"`
		}
		if err := json.Unmarshal(message, &req); err != nil {
			continue
		}
		if !topicAllowed(req.Topic) {
			g.logger.Warn("rejected subscription to unknown topic", zap.String("topic", req.Topic))
			continue
		}

		g.mu.Lock()
		switch req.Action {
		case "subscribe":
			if g.topics[req.Topic] == nil {
				g.topics[req.Topic] = make(map[*client]bool)
				if err := g.subscribeJetStream(req.Topic); err != nil {
					g.logger.Error("failed to subscribe", zap.String("topic", req.Topic), zap.Error(err))
				}
			}
			g.topics[req.Topic][c] = true
			g.logger.Info("client subscribed", zap.String("topic", req.Topic))
		case "unsubscribe":
			if clients, ok := g.topics[req.Topic]; ok {
				delete(clients, c)
				if len(clients) == 0 {
					g.dropTopicLocked(req.Topic)
				}
			}
		}
		g.mu.Unlock()
	}
}

// dropTopicLocked tears down the JetStream subscription for a topic with no
// remaining clients. Caller holds g.mu.
func (g *Gateway) dropTopicLocked(topic string) {
	if sub, ok := g.natsSubs[topic]; ok {
		sub.Unsubscribe()
		delete(g.natsSubs, topic)
		g.logger.Info("dropped topic, no clients left", zap.String("topic", topic))
	}
	delete(g.topics, topic)
}

func (g *Gateway) writePump(c *client) {
	defer c.conn.Close()
	for {
		message, ok := <-c.send
		if !ok {
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
}

func (g *Gateway) subscribeJetStream(topic string) error {
	sub, err := g.js.Subscribe(topic, func(msg *nats.Msg) {
		g.mu.RLock()
		clients := g.topics[topic]
		for c := range clients {
			select {
			case c.send <- msg.Data:
			default:
				// Slow client: drop the message rather than block the relay.
			}
		}
		g.mu.RUnlock()
		msg.Ack()
	}, nats.ManualAck())
	if err != nil {
		return err
	}

	g.natsSubs[topic] = sub
	g.logger.Info("subscribed to topic", zap.String("topic", topic))
	return nil
}
