package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"market_stream/internal/infra"
	"market_stream/internal/infra/feedsim"
)

func main() {
	addr := flag.String("addr", "localhost:8080", "listen address")
	interval := flag.Duration("interval", time.Second, "price tick interval")
	seed := flag.Uint64("seed", uint64(time.Now().UnixNano()), "random walk seed")
	ack := flag.Bool("ack", true, "send a connection frame on connect")
	level := flag.String("log-level", "info", "log level")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: infra.ParseLevel(*level)}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	feed := feedsim.NewServer(feedsim.Options{SendAck: *ack}, logger)
	mux := http.NewServeMux()
	mux.Handle("/ws", feed)

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go feedsim.NewWalker(feed, *interval, *seed).Run(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		feed.CloseAll()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("Feed simulator listening", slog.String("url", "ws://"+*addr+"/ws"))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Feed simulator failed", slog.Any("error", err))
		os.Exit(1)
	}
}
