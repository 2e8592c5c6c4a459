package router

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/leonardomendes201704/ConsertaPraMim-sub004/internal/query"
	"github.com/leonardomendes201704/ConsertaPraMim-sub004/internal/query/handler"
	"github.com/leonardomendes201704/ConsertaPraMim-sub004/internal/realtime"
	"github.com/leonardomendes201704/ConsertaPraMim-sub004/internal/telemetry/aggregation"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func CreateRouter(
	ctx context.Context,
	qs query.Service,
	engine aggregation.Engine,
	hub *realtime.Hub,
	registry *prometheus.Registry,
	logger *zap.Logger,
) *mux.Router {
	r := mux.NewRouter()

	api := r.PathPrefix("/api/admin/monitoring").Subrouter()
	api.Handle("/overview", handler.OverviewHandler(ctx, qs, logger)).Methods("GET")
	api.Handle("/endpoints", handler.TopEndpointsHandler(ctx, qs, logger)).Methods("GET")
	api.Handle("/latency", handler.LatencyHandler(ctx, qs, logger)).Methods("GET")
	api.Handle("/errors", handler.ErrorsHandler(ctx, qs, logger)).Methods("GET")
	api.Handle("/errors/details", handler.ErrorDetailsHandler(ctx, qs, logger)).Methods("GET")
	api.Handle("/requests", handler.RequestsHandler(ctx, qs, logger)).Methods("GET")
	api.Handle("/requests/export", handler.ExportRequestsHandler(ctx, qs, logger)).Methods("GET")
	api.Handle("/requests/{correlationId}", handler.RequestDetailHandler(ctx, qs, logger)).Methods("GET")
	api.Handle("/maintenance/run", handler.MaintenanceHandler(ctx, engine, logger)).Methods("POST")

	if hub != nil {
		r.Handle("/hubs/monitoring", realtime.WebsocketHandler(hub, logger)).Methods("GET")
	}
	if registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods("GET")
	}
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods("GET")

	return r
}
