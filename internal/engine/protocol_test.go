package engine

import (
	"errors"
	"testing"
	"time"

	"market_stream/internal/domain"
)

func TestEncodeOutbound(t *testing.T) {
	tests := []struct {
		name    string
		action  string
		symbols []string
		want    string
		wantErr bool
	}{
		{"subscribe normalizes", ActionSubscribe, []string{"nvda", " aapl", "AAPL"}, `{"action":"subscribe","symbols":["AAPL","NVDA"]}`, false},
		{"unsubscribe", ActionUnsubscribe, []string{"TSLA"}, `{"action":"unsubscribe","symbols":["TSLA"]}`, false},
		{"empty list", ActionSubscribe, nil, "", true},
		{"blank symbols only", ActionSubscribe, []string{" ", ""}, "", true},
		{"unknown action", "ping", []string{"AAPL"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeOutbound(tt.action, tt.symbols)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %s", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestDecodeInbound(t *testing.T) {
	tests := []struct {
		name       string
		data       string
		wantType   string
		wantSymbol string
		wantKind   string
		wantErr    bool
		unknown    bool
	}{
		{"connection", `{"type":"connection","message":"welcome"}`, FrameConnection, "", "", false, false},
		{"subscription ack", `{"type":"subscription","symbols":["AAPL"]}`, FrameSubscription, "", "", false, false},
		{"error", `{"type":"error","message":"bad symbol"}`, FrameError, "", "", false, false},
		{"price update", `{"type":"price_update","symbol":"aapl","data":{"price":1.5,"volume":10,"timestamp":1700000000}}`, FramePriceUpdate, "AAPL", "", false, false},
		{"invalid json", `{"type":`, "", "", "", true, false},
		{"missing type", `{"symbol":"AAPL"}`, "", "", "", true, false},
		{"unknown type", `{"type":"heartbeat"}`, "", "", "heartbeat", true, true},
		{"price without symbol", `{"type":"price_update","data":{"price":1}}`, "", "", FramePriceUpdate, true, false},
		{"price without data", `{"type":"price_update","symbol":"AAPL"}`, "", "", FramePriceUpdate, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := DecodeInbound([]byte(tt.data))
			if tt.wantErr {
				var perr *domain.ProtocolError
				if !errors.As(err, &perr) {
					t.Fatalf("expected ProtocolError, got %v", err)
				}
				if perr.Kind != tt.wantKind {
					t.Errorf("expected kind %q, got %q", tt.wantKind, perr.Kind)
				}
				if errors.Is(err, domain.ErrUnknownFrame) != tt.unknown {
					t.Errorf("ErrUnknownFrame match = %v, want %v", !tt.unknown, tt.unknown)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if msg.Type != tt.wantType || msg.Symbol != tt.wantSymbol {
				t.Errorf("expected %s/%s, got %s/%s", tt.wantType, tt.wantSymbol, msg.Type, msg.Symbol)
			}
		})
	}
}

func TestInboundMessage_Record(t *testing.T) {
	receivedAt := time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		data string
		want time.Time
	}{
		{"seconds", `{"type":"price_update","symbol":"AAPL","data":{"price":"190.5","volume":"100","timestamp":1700000000}}`, time.Unix(1700000000, 0)},
		{"fractional seconds", `{"type":"price_update","symbol":"AAPL","data":{"price":1,"volume":1,"timestamp":1700000000.5}}`, time.Unix(1700000000, 500000000)},
		{"milliseconds", `{"type":"price_update","symbol":"AAPL","data":{"price":1,"volume":1,"timestamp":1700000000123}}`, time.UnixMilli(1700000000123)},
		{"missing timestamp", `{"type":"price_update","symbol":"AAPL","data":{"price":1,"volume":1}}`, receivedAt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := DecodeInbound([]byte(tt.data))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			rec := msg.Record(receivedAt)
			if !rec.Timestamp.Equal(tt.want) {
				t.Errorf("expected %v, got %v", tt.want, rec.Timestamp)
			}
			if !rec.ReceivedAt.Equal(receivedAt) {
				t.Errorf("ReceivedAt not preserved")
			}
		})
	}

	msg, _ := DecodeInbound([]byte(`{"type":"price_update","symbol":"AAPL","data":{"price":"190.50","volume":"1200","timestamp":1}}`))
	rec := msg.Record(receivedAt)
	if rec.Price.String() != "190.5" || rec.Volume.String() != "1200" {
		t.Errorf("unexpected price/volume %s/%s", rec.Price, rec.Volume)
	}
}
