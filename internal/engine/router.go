package engine

import (
	"errors"
	"log/slog"
	"time"

	"market_stream/internal/domain"
	"market_stream/internal/service"
)

// session is the connection-side half the router reports to
type session interface {
	// sessionAcknowledged is called for every "connection" frame
	sessionAcknowledged()
	// serverError is called for every "error" frame
	serverError(err *domain.ApplicationError)
}

// Router decodes inbound frames and applies them to the cache and session.
// A bad frame is logged and dropped; it never terminates the connection.
type Router struct {
	cache     *service.PriceCache
	registry  *service.SubscriptionRegistry
	session   session
	listeners []PriceListener
	metrics   MetricsRecorder
	logger    *slog.Logger
}

// NewRouter creates a router over the given cache and registry
func NewRouter(cache *service.PriceCache, registry *service.SubscriptionRegistry, sess session, hooks Hooks, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	metrics := hooks.Metrics
	if metrics == nil {
		metrics = nopMetrics{}
	}

	return &Router{
		cache:     cache,
		registry:  registry,
		session:   sess,
		listeners: hooks.Listeners,
		metrics:   metrics,
		logger:    logger,
	}
}

// Route handles one frame. The returned error is informational only.
func (r *Router) Route(data []byte, receivedAt time.Time) error {
	msg, err := DecodeInbound(data)
	if err != nil {
		r.metrics.RecordProtocolError()
		if errors.Is(err, domain.ErrUnknownFrame) {
			r.logger.Warn("ignoring unknown frame type", slog.Any("error", err))
		} else {
			r.logger.Warn("dropping malformed frame", slog.Any("error", err), slog.Int("bytes", len(data)))
		}
		return err
	}

	switch msg.Type {
	case FrameConnection:
		r.session.sessionAcknowledged()

	case FrameSubscription:
		r.logger.Debug("subscription acknowledged")

	case FramePriceUpdate:
		r.routePrice(msg, receivedAt)

	case FrameError:
		r.metrics.RecordApplicationError()
		r.session.serverError(&domain.ApplicationError{Message: msg.Message})
	}

	r.metrics.RecordFrame(time.Since(receivedAt))
	return nil
}

func (r *Router) routePrice(msg InboundMessage, receivedAt time.Time) {
	// Late frame for a symbol already unsubscribed
	if !r.registry.Contains(msg.Symbol) {
		r.logger.Debug("dropping price for unsubscribed symbol", slog.String("symbol", msg.Symbol))
		return
	}

	rec := msg.Record(receivedAt)
	r.cache.Upsert(rec)

	for _, l := range r.listeners {
		l.OnPrice(rec)
	}
}
