package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/websocket"

	"github.com/Temutjin2k/ride-tracking-system/internal/adapter/http/handler"
	"github.com/Temutjin2k/ride-tracking-system/internal/adapter/http/middleware"
	wshandler "github.com/Temutjin2k/ride-tracking-system/internal/adapter/http/ws"
	"github.com/Temutjin2k/ride-tracking-system/pkg/logger"
	wrap "github.com/Temutjin2k/ride-tracking-system/pkg/logger/wrapper"
)

const serviceName = "tripsync"

type API struct {
	mux    *http.ServeMux
	server *http.Server
	routes *routeHandlers
	m      *middleware.Middleware

	addr string
	log  logger.Logger
}

type routeHandlers struct {
	trip      *handler.Trip
	fulfiller *handler.Fulfiller
	health    *handler.Health
	ws        *wshandler.Handler
}

// Deps are the services behind the HTTP API.
type Deps struct {
	Trips      handler.TripService
	Fleet      handler.FleetService
	Auth       middleware.AuthService
	WebSocket  *wshandler.Handler
	HealthDeps map[string]handler.Checker
}

func New(port string, deps Deps, logger logger.Logger) (*API, error) {
	if deps.Auth == nil {
		return nil, errors.New("auth service is required")
	}
	if deps.Trips == nil || deps.Fleet == nil || deps.WebSocket == nil {
		return nil, errors.New("trip, fleet and websocket handlers are required")
	}

	api := &API{
		mux: http.NewServeMux(),
		routes: &routeHandlers{
			trip:      handler.NewTrip(deps.Trips, logger),
			fulfiller: handler.NewFulfiller(deps.Fleet, logger),
			health:    handler.NewHealth(serviceName, deps.HealthDeps, logger),
			ws:        deps.WebSocket,
		},
		m:    middleware.NewMiddleware(deps.Auth, logger),
		addr: net.JoinHostPort("0.0.0.0", port),
		log:  logger,
	}

	api.setupRoutes()

	api.server = &http.Server{
		Addr:              api.addr,
		Handler:           api.withMiddleware(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return api, nil
}

func (a *API) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	ctx = wrap.WithAction(ctx, "http_server_stop")

	a.log.Debug(ctx, "shutting down HTTP server...", "address", a.addr)
	if err := a.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("error shutting down server: %w", err)
	}
	a.log.Debug(ctx, "shutting down HTTP server completed")

	return nil
}

func (a *API) Run(ctx context.Context, errCh chan<- error) {
	go func() {
		ctx = wrap.WithAction(ctx, "http_server_start")
		a.log.Info(ctx, "started http server", "address", a.addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("failed to start HTTP server: %w", err)
			return
		}
	}()
}

// Handler exposes the full middleware chain, used by tests.
func (a *API) Handler() http.Handler {
	return a.server.Handler
}

// withMiddleware applies middlewares to the mux.
// Metrics sits right above the mux so the matched pattern is visible to it.
func (a *API) withMiddleware() http.Handler {
	inner := a.m.Auth(a.m.Metrics(serviceName)(a.mux))

	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Authorization", "Content-Type", "X-Request-ID"}),
		handlers.ExposedHeaders([]string{"X-Request-ID"}),
	)
	compressed := cors(handlers.CompressHandler(inner))

	// websocket upgrades need the raw connection
	root := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if websocket.IsWebSocketUpgrade(r) {
			inner.ServeHTTP(w, r)
			return
		}
		compressed.ServeHTTP(w, r)
	})

	return a.m.Recover(a.m.RequestID(a.m.Logging(root)))
}
