package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"agenttrader/internal/models"
	"agenttrader/internal/repository"
)

// Stream consumes the market-data feed over a websocket and persists bars
// and options-flow prints. Messages it cannot parse are counted and
// skipped; the feed keeps flowing.
type Stream struct {
	Logger *zap.Logger
	Repo   repository.Repository

	URL string

	mu        sync.Mutex
	cancel    context.CancelFunc
	conn      *websocket.Conn
	lastMsgAt *time.Time
	lastError *string
	dropped   int64
}

// Run dials the feed and reads until ctx is done, reconnecting with
// capped backoff on connection loss.
func (s *Stream) Run(ctx context.Context) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	if s.Logger == nil {
		s.Logger = zap.NewNop()
	}
	url := strings.TrimSpace(s.URL)
	if url == "" {
		return fmt.Errorf("ingest: missing feed url")
	}
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	backoff := time.Second
	for {
		err := s.consume(ctx, url)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.Logger.Warn("feed disconnected, reconnecting",
			zap.String("url", url),
			zap.Duration("backoff", backoff),
			zap.Error(err))
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
	}
}

func (s *Stream) consume(ctx context.Context, url string) error {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		s.setError(err)
		return err
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	defer func() {
		_ = conn.Close(websocket.StatusNormalClosure, "shutdown")
	}()

	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.setError(err)
			return err
		}
		now := time.Now().UTC()
		s.mu.Lock()
		s.lastMsgAt = &now
		s.lastError = nil
		s.mu.Unlock()

		bars, flows, err := ParseMessage(msg)
		if err != nil {
			s.mu.Lock()
			s.dropped++
			dropped := s.dropped
			s.mu.Unlock()
			if dropped%100 == 1 {
				s.Logger.Warn("unparseable feed message",
					zap.Int64("dropped_total", dropped), zap.Error(err))
			}
			continue
		}
		if len(bars) > 0 {
			if err := s.Repo.UpsertBars(ctx, bars); err != nil {
				s.Logger.Error("persist bars failed", zap.Error(err))
			}
		}
		if len(flows) > 0 {
			if err := s.Repo.InsertFlowEvents(ctx, flows); err != nil {
				s.Logger.Error("persist flow failed", zap.Error(err))
			}
		}
	}
}

func (s *Stream) Stop() {
	if s == nil {
		return
	}
	s.mu.Lock()
	cancel := s.cancel
	conn := s.conn
	s.cancel = nil
	s.conn = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "stop")
	}
}

type feedEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type barMessage struct {
	Symbol string `json:"symbol"`
	TS     string `json:"ts"`
	Open   string `json:"open"`
	High   string `json:"high"`
	Low    string `json:"low"`
	Close  string `json:"close"`
	Volume int64  `json:"volume"`
}

type flowMessage struct {
	Symbol       string `json:"symbol"`
	OptionSymbol string `json:"option_symbol"`
	Side         string `json:"side"`
	Size         int64  `json:"size"`
	Notional     string `json:"notional"`
	TS           string `json:"ts"`
}

// ParseMessage maps one feed envelope to model rows. The data field may be
// a single object or an array. Unknown envelope types yield nothing and no
// error.
func ParseMessage(msg []byte) ([]models.Bar, []models.FlowEvent, error) {
	if len(msg) == 0 {
		return nil, nil, fmt.Errorf("empty message")
	}
	var env feedEnvelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return nil, nil, err
	}
	switch env.Type {
	case "bar":
		raw, err := asArray(env.Data)
		if err != nil {
			return nil, nil, err
		}
		bars := make([]models.Bar, 0, len(raw))
		for _, item := range raw {
			var m barMessage
			if err := json.Unmarshal(item, &m); err != nil {
				return nil, nil, err
			}
			bar, err := mapBar(m)
			if err != nil {
				return nil, nil, err
			}
			bars = append(bars, bar)
		}
		return bars, nil, nil
	case "flow":
		raw, err := asArray(env.Data)
		if err != nil {
			return nil, nil, err
		}
		flows := make([]models.FlowEvent, 0, len(raw))
		for _, item := range raw {
			var m flowMessage
			if err := json.Unmarshal(item, &m); err != nil {
				return nil, nil, err
			}
			flow, err := mapFlow(m)
			if err != nil {
				return nil, nil, err
			}
			flows = append(flows, flow)
		}
		return nil, flows, nil
	default:
		return nil, nil, nil
	}
}

func asArray(data json.RawMessage) ([]json.RawMessage, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, fmt.Errorf("missing data")
	}
	if strings.HasPrefix(trimmed, "[") {
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, err
		}
		return items, nil
	}
	return []json.RawMessage{data}, nil
}

func mapBar(m barMessage) (models.Bar, error) {
	if strings.TrimSpace(m.Symbol) == "" {
		return models.Bar{}, fmt.Errorf("bar: missing symbol")
	}
	ts, err := time.Parse(time.RFC3339, m.TS)
	if err != nil {
		return models.Bar{}, fmt.Errorf("bar: bad ts %q: %w", m.TS, err)
	}
	open, err := decimal.NewFromString(m.Open)
	if err != nil {
		return models.Bar{}, fmt.Errorf("bar: bad open: %w", err)
	}
	high, err := decimal.NewFromString(m.High)
	if err != nil {
		return models.Bar{}, fmt.Errorf("bar: bad high: %w", err)
	}
	low, err := decimal.NewFromString(m.Low)
	if err != nil {
		return models.Bar{}, fmt.Errorf("bar: bad low: %w", err)
	}
	closePx, err := decimal.NewFromString(m.Close)
	if err != nil {
		return models.Bar{}, fmt.Errorf("bar: bad close: %w", err)
	}
	return models.Bar{
		Symbol: strings.ToUpper(strings.TrimSpace(m.Symbol)),
		TS:     ts.UTC(),
		Open:   open,
		High:   high,
		Low:    low,
		Close:  closePx,
		Volume: m.Volume,
	}, nil
}

func mapFlow(m flowMessage) (models.FlowEvent, error) {
	if strings.TrimSpace(m.Symbol) == "" {
		return models.FlowEvent{}, fmt.Errorf("flow: missing symbol")
	}
	side := strings.ToLower(strings.TrimSpace(m.Side))
	if side != "buy" && side != "sell" {
		return models.FlowEvent{}, fmt.Errorf("flow: bad side %q", m.Side)
	}
	ts, err := time.Parse(time.RFC3339, m.TS)
	if err != nil {
		return models.FlowEvent{}, fmt.Errorf("flow: bad ts %q: %w", m.TS, err)
	}
	notional, err := decimal.NewFromString(m.Notional)
	if err != nil {
		return models.FlowEvent{}, fmt.Errorf("flow: bad notional: %w", err)
	}
	return models.FlowEvent{
		Symbol:       strings.ToUpper(strings.TrimSpace(m.Symbol)),
		OptionSymbol: strings.TrimSpace(m.OptionSymbol),
		Side:         side,
		Size:         m.Size,
		Notional:     notional,
		EventTS:      ts.UTC(),
	}, nil
}

// Health reports feed liveness for the health endpoint.
type Health struct {
	Connected bool       `json:"connected"`
	LastMsgAt *time.Time `json:"last_msg_at,omitempty"`
	LastError *string    `json:"last_error,omitempty"`
	Dropped   int64      `json:"dropped"`
}

func (s *Stream) Health() Health {
	if s == nil {
		return Health{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return Health{
		Connected: s.conn != nil,
		LastMsgAt: s.lastMsgAt,
		LastError: s.lastError,
		Dropped:   s.dropped,
	}
}

func (s *Stream) setError(err error) {
	msg := err.Error()
	s.mu.Lock()
	s.lastError = &msg
	s.conn = nil
	s.mu.Unlock()
}
