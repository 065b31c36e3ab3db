package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// PriceMessage is the wire format of the upstream mark-price stream.
type PriceMessage struct {
	Asset     string `json:"asset"`
	Price     int64  `json:"price"` // fixed-point, 7 decimals
	Timestamp int64  `json:"timestamp"` // unix microseconds
}

// WSClient subscribes to a websocket mark-price stream and pushes each
// observation into a Feed. Disconnects are retried with a fixed delay
// until the context is cancelled.
type WSClient struct {
	url            string
	feed           *Feed
	reconnectDelay time.Duration
	log            zerolog.Logger
}

func NewWSClient(url string, feed *Feed, log zerolog.Logger) *WSClient {
	return &WSClient{
		url:            url,
		feed:           feed,
		reconnectDelay: 2 * time.Second,
		log:            log,
	}
}

// Run connects and consumes price messages until ctx is done.
func (c *WSClient) Run(ctx context.Context) error {
	for {
		if err := c.consume(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Warn().Err(err).Str("url", c.url).Msg("price stream disconnected, reconnecting")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.reconnectDelay):
		}
	}
}

func (c *WSClient) consume(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial price stream: %w", err)
	}
	defer conn.Close()

	c.log.Info().Str("url", c.url).Msg("price stream connected")

	// Close the connection when the context ends so ReadMessage unblocks.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read price message: %w", err)
		}

		var msg PriceMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.Warn().Err(err).Msg("malformed price message dropped")
			continue
		}

		asOf := time.UnixMicro(msg.Timestamp)
		if err := c.feed.SetPrice(msg.Asset, msg.Price, asOf); err != nil {
			c.log.Warn().Err(err).Str("asset", msg.Asset).Msg("price update rejected")
		}
	}
}
