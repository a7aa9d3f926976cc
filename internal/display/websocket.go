package display

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/grubvoice/station-go/pkg/backend"
)

// Frame is one message pushed to the order display.
type Frame struct {
	Type  string             `json:"type"`
	Token uint64             `json:"token,omitempty"`
	Order *backend.OrderView `json:"order,omitempty"`
}

// Frame types pushed to the display.
const (
	FrameTypeOrder = "order"
	FrameTypeClear = "clear"
)

// wsClient is the display-side websocket connection.
type wsClient struct {
	url     string
	station string
	conn    *websocket.Conn
	logger  *slog.Logger
}

func newWSClient(displayURL, stationID string, logger *slog.Logger) *wsClient {
	return &wsClient{
		url:     displayURL,
		station: stationID,
		logger:  logger,
	}
}

func (c *wsClient) Connect(ctx context.Context) error {
	u, err := url.Parse(c.url)
	if err != nil {
		return fmt.Errorf("invalid display URL: %w", err)
	}

	q := u.Query()
	q.Set("station", c.station)
	u.RawQuery = q.Encode()

	c.logger.Debug("Connecting to display", slog.String("url", u.String()))

	dialer := websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.conn = conn
	c.logger.Info("Display connected", slog.String("url", c.url))
	return nil
}

func (c *wsClient) WriteFrame(frame *Frame) error {
	if c.conn == nil {
		return fmt.Errorf("not connected")
	}

	c.logger.Debug("Pushing frame",
		slog.String("type", frame.Type),
		slog.Uint64("token", frame.Token))

	if err := c.conn.WriteJSON(frame); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

func (c *wsClient) Close() error {
	if c.conn == nil {
		return nil
	}

	c.logger.Info("Closing display connection")
	err := c.conn.Close()
	c.conn = nil
	return err
}
