// Package stream publishes session events to a renderer over a websocket.
// Session start and end wait for a server ack; frame updates are
// fire-and-forget.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/GamesCrafters/gamesplane/internal/config"
	"github.com/GamesCrafters/gamesplane/pkg/streaming"
)

// Publisher streams envelopes to one websocket endpoint.
type Publisher struct {
	conn *connection
	cfg  config.StreamConfig
}

// New creates a publisher; Init dials.
func New(cfg config.StreamConfig, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		conn: newConnection(logger.With("component", "stream")),
		cfg:  cfg,
	}
}

// Init connects to the websocket server.
func (p *Publisher) Init(ctx context.Context) error {
	return p.conn.dial(ctx, p.cfg.URL, p.cfg.Secret)
}

// Close disconnects from the websocket server.
func (p *Publisher) Close() error {
	return p.conn.close()
}

// marshalEnvelope builds a JSON-encoded Envelope from a message type and payload.
func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	data, err := json.Marshal(streaming.Envelope{Type: msgType, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

func (p *Publisher) send(msgType string, payload any) error {
	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	p.conn.send(data)
	return nil
}

// StartSession announces the session and waits for the ack. The message is
// replayed after a reconnect.
func (p *Publisher) StartSession(s streaming.StartSessionPayload) error {
	data, err := marshalEnvelope(streaming.TypeStartSession, s)
	if err != nil {
		return err
	}

	p.conn.mu.Lock()
	p.conn.replay = data
	p.conn.mu.Unlock()

	return p.conn.sendAndWait(data, streaming.TypeStartSession, ackTimeout)
}

// EndSession closes the session and waits for the ack.
func (p *Publisher) EndSession(s streaming.EndSessionPayload) error {
	data, err := marshalEnvelope(streaming.TypeEndSession, s)
	if err != nil {
		return err
	}
	err = p.conn.sendAndWait(data, streaming.TypeEndSession, ackTimeout)

	p.conn.mu.Lock()
	p.conn.replay = nil
	p.conn.mu.Unlock()

	return err
}

func (p *Publisher) FrameState(s streaming.FrameStatePayload) error {
	return p.send(streaming.TypeFrameState, s)
}

func (p *Publisher) Estimate(s streaming.EstimatePayload) error {
	return p.send(streaming.TypeEstimate, s)
}

func (p *Publisher) Overlay(s streaming.OverlayPayload) error {
	return p.send(streaming.TypeOverlay, s)
}
