package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"market_stream/internal/domain"

	"github.com/shopspring/decimal"
)

// Outbound actions
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
)

// Inbound frame types
const (
	FrameConnection   = "connection"
	FrameSubscription = "subscription"
	FramePriceUpdate  = "price_update"
	FrameError        = "error"
)

// OutboundMessage is a subscribe/unsubscribe request sent to the feed server
type OutboundMessage struct {
	Action  string   `json:"action"`
	Symbols []string `json:"symbols"`
}

// InboundMessage is any frame received from the feed server, discriminated by Type
type InboundMessage struct {
	Type    string     `json:"type"`
	Symbol  string     `json:"symbol,omitempty"`
	Message string     `json:"message,omitempty"`
	Data    *PriceData `json:"data,omitempty"`
}

// PriceData is the payload of a price_update frame
type PriceData struct {
	Price     decimal.Decimal `json:"price"`
	Volume    decimal.Decimal `json:"volume"`
	Timestamp float64         `json:"timestamp"` // Unix seconds (milliseconds tolerated)
}

// EncodeOutbound builds a wire frame. Symbols are normalized; an empty list is an error.
func EncodeOutbound(action string, symbols []string) ([]byte, error) {
	if action != ActionSubscribe && action != ActionUnsubscribe {
		return nil, fmt.Errorf("unknown action %q", action)
	}
	normalized := domain.NormalizeSymbols(symbols)
	if len(normalized) == 0 {
		return nil, errors.New("no symbols")
	}
	return json.Marshal(OutboundMessage{Action: action, Symbols: normalized})
}

// DecodeInbound parses one inbound text frame. Failures are *domain.ProtocolError.
func DecodeInbound(data []byte) (InboundMessage, error) {
	var msg InboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return InboundMessage{}, &domain.ProtocolError{Err: err}
	}

	switch msg.Type {
	case FrameConnection, FrameSubscription, FrameError:
	case FramePriceUpdate:
		msg.Symbol = domain.NormalizeSymbol(msg.Symbol)
		if msg.Symbol == "" {
			return InboundMessage{}, &domain.ProtocolError{Kind: msg.Type, Err: errors.New("missing symbol")}
		}
		if msg.Data == nil {
			return InboundMessage{}, &domain.ProtocolError{Kind: msg.Type, Err: errors.New("missing data")}
		}
	case "":
		return InboundMessage{}, &domain.ProtocolError{Err: errors.New("missing type")}
	default:
		return InboundMessage{}, &domain.ProtocolError{Kind: msg.Type, Err: domain.ErrUnknownFrame}
	}

	return msg, nil
}

// Record converts a price_update frame into a PriceRecord.
// A zero feed timestamp falls back to receivedAt.
func (m InboundMessage) Record(receivedAt time.Time) domain.PriceRecord {
	rec := domain.PriceRecord{
		Symbol:     m.Symbol,
		ReceivedAt: receivedAt,
	}
	if m.Data == nil {
		return rec
	}
	rec.Price = m.Data.Price
	rec.Volume = m.Data.Volume
	rec.Timestamp = feedTime(m.Data.Timestamp, receivedAt)
	return rec
}

// feedTime interprets values above 1e12 as milliseconds
func feedTime(ts float64, fallback time.Time) time.Time {
	switch {
	case ts <= 0:
		return fallback
	case ts > 1e12:
		return time.UnixMilli(int64(ts))
	default:
		sec := int64(ts)
		nsec := int64((ts - float64(sec)) * 1e9)
		return time.Unix(sec, nsec)
	}
}
