package main

import (
	"context"
	"net/http"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"golang.org/x/sync/semaphore"

	"github.com/relaywire/rpcpeer/rpc"
	"github.com/relaywire/rpcpeer/schema"
	"github.com/relaywire/rpcpeer/transport"
	"github.com/relaywire/rpcpeer/wire"
)

// server exposes a Peer over websocket: every accepted connection gets
// its own ConnectionID and I/O task, and every inbound request is
// serviced by a goroutine bounded by a semaphore so one slow or
// malicious peer cannot exhaust the process.
type server struct {
	peer     *rpc.Peer
	upgrader websocket.Upgrader
	sem      *semaphore.Weighted
	logger   log.Logger

	// baseCtx governs every connection's ioTask/serveInbound goroutines.
	// It must outlive any single request: an http.Request's Context()
	// is canceled as soon as its handler (serveWS) returns, which is
	// before a freshly-upgraded websocket connection has done any work,
	// so it cannot be used here.
	baseCtx context.Context
}

func newServer(cfg Config, logger log.Logger) *server {
	return &server{
		peer:     rpc.New(rpc.WithLogger(logger)),
		upgrader: websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096},
		sem:      semaphore.NewWeighted(cfg.MaxConcurrentHandlers),
		logger:   logger,
		baseCtx:  context.Background(),
	}
}

func (s *server) handler(allowedOrigins []string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/rpc", s.serveWS)

	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet},
	})
	return c.Handler(mux)
}

func (s *server) serveWS(w http.ResponseWriter, r *http.Request) {
	wsConn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		level.Warn(s.logger).Log("msg", "websocket upgrade failed", "err", err)
		return
	}

	conn := transport.NewWebSocket(wsConn)
	connID, ioTask, inbound := s.peer.AddConnection(conn)

	logger := log.With(s.logger, "connection", connID)
	level.Info(logger).Log("msg", "connection established")

	go func() {
		if err := ioTask(s.baseCtx); err != nil {
			level.Info(logger).Log("msg", "connection ended", "err", err)
		}
	}()
	go s.serveInbound(s.baseCtx, logger, inbound)
}

func (s *server) serveInbound(ctx context.Context, logger log.Logger, inbound <-chan wire.AnyTypedEnvelope) {
	for any := range inbound {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			return
		}
		go func() {
			defer s.sem.Release(1)
			s.dispatch(ctx, logger, any)
		}()
	}
}

func (s *server) dispatch(ctx context.Context, logger log.Logger, any wire.AnyTypedEnvelope) {
	if env, ok := wire.Downcast[schema.Ping](any); ok {
		receipt := wire.NewReceipt[schema.Pong](env)
		if err := s.peer.Respond(ctx, receipt, schema.Pong{ID: env.Payload.ID}); err != nil {
			level.Warn(logger).Log("msg", "failed to respond to ping", "err", err)
		}
		return
	}

	if env, ok := wire.Downcast[schema.OpenBuffer](any); ok {
		receipt := wire.NewReceipt[schema.OpenBufferResponse](env)
		resp := schema.OpenBufferResponse{
			Buffer: &schema.Buffer{
				ID:      uint64(env.Payload.WorktreeID)<<32 | 1,
				Content: "",
			},
		}
		if err := s.peer.Respond(ctx, receipt, resp); err != nil {
			level.Warn(logger).Log("msg", "failed to respond to open_buffer", "err", err)
		}
		return
	}

	level.Warn(logger).Log("msg", "no handler for inbound envelope", "kind", any.Kind())
}
