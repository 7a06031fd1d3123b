package engine

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"market_stream/internal/domain"
	"market_stream/internal/service"
)

type fakeSession struct {
	acks int
	errs []*domain.ApplicationError
}

func (s *fakeSession) sessionAcknowledged() { s.acks++ }

func (s *fakeSession) serverError(err *domain.ApplicationError) {
	s.errs = append(s.errs, err)
}

type countingMetrics struct {
	frames, protocolErrs, appErrs atomic.Int64
}

func (m *countingMetrics) RecordFrame(time.Duration) { m.frames.Add(1) }
func (m *countingMetrics) RecordProtocolError()      { m.protocolErrs.Add(1) }
func (m *countingMetrics) RecordApplicationError()   { m.appErrs.Add(1) }
func (m *countingMetrics) RecordReconnect()          {}
func (m *countingMetrics) IncrementConnections()     {}
func (m *countingMetrics) DecrementConnections()     {}

func newTestRouter() (*Router, *service.PriceCache, *service.SubscriptionRegistry, *fakeSession, *countingMetrics) {
	cache := service.NewPriceCache()
	registry := service.NewSubscriptionRegistry()
	sess := &fakeSession{}
	metrics := &countingMetrics{}
	r := NewRouter(cache, registry, sess, Hooks{Metrics: metrics}, discardLogger())
	return r, cache, registry, sess, metrics
}

func TestRouter_Dispatch(t *testing.T) {
	r, cache, registry, sess, metrics := newTestRouter()
	registry.Add([]string{"AAPL"})
	now := time.Now()

	frames := []string{
		`{"type":"connection"}`,
		`{"type":"subscription","symbols":["AAPL"]}`,
		`{"type":"price_update","symbol":"AAPL","data":{"price":10,"volume":1,"timestamp":1700000000}}`,
		`{"type":"error","message":"symbol not found"}`,
	}
	for _, f := range frames {
		if err := r.Route([]byte(f), now); err != nil {
			t.Fatalf("route %s: %v", f, err)
		}
	}

	if sess.acks != 1 {
		t.Errorf("expected 1 ack, got %d", sess.acks)
	}
	if len(sess.errs) != 1 || sess.errs[0].Message != "symbol not found" {
		t.Errorf("unexpected server errors %v", sess.errs)
	}
	if cache.Len() != 1 {
		t.Errorf("expected 1 cached price, got %d", cache.Len())
	}
	if metrics.frames.Load() != 4 || metrics.appErrs.Load() != 1 {
		t.Errorf("unexpected metrics frames=%d appErrs=%d", metrics.frames.Load(), metrics.appErrs.Load())
	}
}

func TestRouter_BadFramesAreDropped(t *testing.T) {
	r, cache, registry, sess, metrics := newTestRouter()
	registry.Add([]string{"AAPL"})

	err := r.Route([]byte(`{"type":"mystery"}`), time.Now())
	if !errors.Is(err, domain.ErrUnknownFrame) {
		t.Errorf("expected ErrUnknownFrame, got %v", err)
	}
	if err := r.Route([]byte(`garbage`), time.Now()); err == nil {
		t.Error("expected decode error")
	}

	if metrics.protocolErrs.Load() != 2 || metrics.frames.Load() != 0 {
		t.Errorf("unexpected metrics protocol=%d frames=%d", metrics.protocolErrs.Load(), metrics.frames.Load())
	}
	if cache.Len() != 0 || sess.acks != 0 || len(sess.errs) != 0 {
		t.Error("bad frames must have no side effects")
	}
}

func TestRouter_DropsUnsubscribedPrice(t *testing.T) {
	r, cache, _, _, _ := newTestRouter()

	if err := r.Route([]byte(`{"type":"price_update","symbol":"TSLA","data":{"price":1,"volume":1}}`), time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cache.Len() != 0 {
		t.Error("price for unsubscribed symbol must not be cached")
	}
}
