package server

import (
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/Temutjin2k/ride-tracking-system/docs"
	"github.com/Temutjin2k/ride-tracking-system/internal/domain/types"
)

// setupRoutes - setups http routes
func (a *API) setupRoutes() {
	// System Health
	a.mux.HandleFunc("GET /health", a.routes.health.HealthCheck)

	a.setupTripRoutes()
	a.setupFulfillerRoutes()

	a.mux.HandleFunc("GET /ws", a.routes.ws.HandleWS) // live tracking channel, token via header or ?token=

	a.setupSwaggerRoutes()
	a.setupMetricsRoute()
}

func (a *API) setupTripRoutes() {
	h, m := a.routes.trip, a.m

	a.mux.Handle("POST /trips", m.RequireRoles(h.CreateTrip, types.RoleRequester, types.RoleAdmin)) // Create a trip and start matching
	a.mux.Handle("GET /trips", m.RequireRoles(h.ListTrips))                                         // Trips of the caller
	a.mux.Handle("GET /trips/{trip_id}", m.RequireRoles(h.GetTrip))
	a.mux.Handle("GET /trips/{trip_id}/events", m.RequireRoles(h.TripHistory))
	a.mux.Handle("GET /trips/{trip_id}/position", m.RequireRoles(a.routes.fulfiller.TripPosition))
	a.mux.Handle("POST /trips/{trip_id}/status", m.RequireRoles(h.AdvanceStatus, types.RoleFulfiller))
	a.mux.Handle("POST /trips/{trip_id}/cancel", m.RequireRoles(h.CancelTrip))
	a.mux.Handle("POST /trips/{trip_id}/accept", m.RequireRoles(h.AcceptOffer, types.RoleFulfiller))
	a.mux.Handle("POST /trips/{trip_id}/reject", m.RequireRoles(h.RejectOffer, types.RoleFulfiller))
}

func (a *API) setupFulfillerRoutes() {
	h, m := a.routes.fulfiller, a.m

	a.mux.Handle("POST /fulfillers/online", m.RequireRoles(h.GoOnline, types.RoleFulfiller))
	a.mux.Handle("POST /fulfillers/offline", m.RequireRoles(h.GoOffline, types.RoleFulfiller))
	a.mux.Handle("POST /fulfillers/location", m.RequireRoles(h.UpdateLocation, types.RoleFulfiller))
}

// setupSwaggerRoutes configures Swagger UI endpoints
func (a *API) setupSwaggerRoutes() {
	a.mux.HandleFunc("/swagger/", httpSwagger.Handler(httpSwagger.InstanceName(docs.InstanceName)))
}

// setupMetricsRoute configures the Prometheus metrics endpoint
func (a *API) setupMetricsRoute() {
	a.mux.Handle("GET /metrics", promhttp.Handler())
}
