package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/leonardomendes201704/ConsertaPraMim-sub004/internal/query"
	"github.com/leonardomendes201704/ConsertaPraMim-sub004/internal/telemetry/aggregation"
	"github.com/leonardomendes201704/ConsertaPraMim-sub004/internal/telemetry/model"
	"go.uber.org/zap"
)

// OverviewHandler creates a handler for the dashboard overview.
// @Summary Get window totals, request series and top error groups.
// @Tags monitoring
// @Produce json
// @Success 200 {object} query.OverviewResult "Overview of the selected window"
// @Failure 500 {object} ErrorMessage "Internal server error"
// @Router /api/admin/monitoring/overview [get]
func OverviewHandler(
	ctx context.Context,
	qs query.Service,
	logger *zap.Logger,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filters, rangeToken := filtersFromRequest(r, time.Now())
		result, err := qs.GetOverview(ctx, rangeToken, filters)
		if err != nil {
			logger.Error("Error encountered when building overview", zap.Error(err))
			HttpError(w, "Internal server error", http.StatusInternalServerError, logger)
			return
		}
		writeJSON(w, result, logger)
	}
}

// TopEndpointsHandler creates a handler for the busiest endpoints listing.
// @Summary Get the busiest endpoints of the selected window.
// @Tags monitoring
// @Produce json
// @Success 200 {array} query.EndpointStat "Endpoints ordered by request count"
// @Failure 500 {object} ErrorMessage "Internal server error"
// @Router /api/admin/monitoring/endpoints [get]
func TopEndpointsHandler(
	ctx context.Context,
	qs query.Service,
	logger *zap.Logger,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filters, _ := filtersFromRequest(r, time.Now())
		stats, err := qs.GetTopEndpoints(ctx, filters, intParam(r, "take", query.DefaultTake))
		if err != nil {
			logger.Error("Error encountered when listing top endpoints", zap.Error(err))
			HttpError(w, "Internal server error", http.StatusInternalServerError, logger)
			return
		}
		writeJSON(w, stats, logger)
	}
}

// LatencyHandler creates a handler for the latency chart.
// @Summary Get bucketed latency percentiles for the selected window.
// @Tags monitoring
// @Produce json
// @Success 200 {object} query.LatencyResult "Latency series"
// @Failure 500 {object} ErrorMessage "Internal server error"
// @Router /api/admin/monitoring/latency [get]
func LatencyHandler(
	ctx context.Context,
	qs query.Service,
	logger *zap.Logger,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filters, rangeToken := filtersFromRequest(r, time.Now())
		result, err := qs.GetLatency(ctx, rangeToken, filters)
		if err != nil {
			logger.Error("Error encountered when building latency series", zap.Error(err))
			HttpError(w, "Internal server error", http.StatusInternalServerError, logger)
			return
		}
		writeJSON(w, result, logger)
	}
}

// ErrorsHandler creates a handler for the grouped error listing.
// @Summary Get error groups for the selected window.
// @Tags monitoring
// @Produce json
// @Success 200 {object} query.ErrorsResult "Grouped errors"
// @Failure 500 {object} ErrorMessage "Internal server error"
// @Router /api/admin/monitoring/errors [get]
func ErrorsHandler(
	ctx context.Context,
	qs query.Service,
	logger *zap.Logger,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filters, rangeToken := filtersFromRequest(r, time.Now())
		result, err := qs.GetErrors(ctx, rangeToken, filters, r.URL.Query().Get("groupBy"))
		if err != nil {
			logger.Error("Error encountered when grouping errors", zap.Error(err))
			HttpError(w, "Internal server error", http.StatusInternalServerError, logger)
			return
		}
		writeJSON(w, result, logger)
	}
}

// ErrorDetailsHandler creates a handler for one error group's drill-down.
// @Summary Get the summary, occurrence series and sample requests of one error group.
// @Tags monitoring
// @Produce json
// @Success 200 {object} query.ErrorDetails "Error group drill-down"
// @Failure 400 {object} ErrorMessage "Missing group key"
// @Failure 404 {object} ErrorMessage "No matching errors in the window"
// @Failure 500 {object} ErrorMessage "Internal server error"
// @Router /api/admin/monitoring/errors/details [get]
func ErrorDetailsHandler(
	ctx context.Context,
	qs query.Service,
	logger *zap.Logger,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Query().Get("key")
		if key == "" {
			HttpError(w, "Missing group key", http.StatusBadRequest, logger)
			return
		}
		filters, rangeToken := filtersFromRequest(r, time.Now())
		details, err := qs.GetErrorDetails(
			ctx,
			rangeToken,
			filters,
			r.URL.Query().Get("groupBy"),
			key,
			intParam(r, "take", 0),
		)
		if err != nil {
			logger.Error("Error encountered when loading error details", zap.Error(err))
			HttpError(w, "Internal server error", http.StatusInternalServerError, logger)
			return
		}
		if details == nil {
			HttpError(w, "Error group not found", http.StatusNotFound, logger)
			return
		}
		writeJSON(w, details, logger)
	}
}

// RequestsHandler creates a handler for the paged raw request listing.
// @Summary Get raw requests matching the filters, newest first.
// @Tags monitoring
// @Produce json
// @Success 200 {object} query.RequestsPage "One page of raw requests"
// @Failure 500 {object} ErrorMessage "Internal server error"
// @Router /api/admin/monitoring/requests [get]
func RequestsHandler(
	ctx context.Context,
	qs query.Service,
	logger *zap.Logger,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filters, _ := filtersFromRequest(r, time.Now())
		page, err := qs.GetRequests(ctx, filters, intParam(r, "page", 1), intParam(r, "pageSize", 50))
		if err != nil {
			logger.Error("Error encountered when listing raw requests", zap.Error(err))
			HttpError(w, "Internal server error", http.StatusInternalServerError, logger)
			return
		}
		writeJSON(w, page, logger)
	}
}

// RequestDetailHandler creates a handler for one correlation id's raw log.
// @Summary Get the most recent raw log recorded for a correlation id.
// @Tags monitoring
// @Produce json
// @Success 200 {object} query.RequestDetail "Raw log row"
// @Failure 404 {object} ErrorMessage "Correlation id not found"
// @Failure 500 {object} ErrorMessage "Internal server error"
// @Router /api/admin/monitoring/requests/{correlationId} [get]
func RequestDetailHandler(
	ctx context.Context,
	qs query.Service,
	logger *zap.Logger,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		correlationID := mux.Vars(r)["correlationId"]
		if correlationID == "" {
			HttpError(w, "Missing correlation id", http.StatusBadRequest, logger)
			return
		}
		detail, err := qs.GetRequestByCorrelationID(ctx, correlationID)
		if err != nil {
			logger.Error("Error encountered when loading request detail", zap.Error(err))
			HttpError(w, "Internal server error", http.StatusInternalServerError, logger)
			return
		}
		if detail == nil {
			HttpError(w, "Request not found", http.StatusNotFound, logger)
			return
		}
		writeJSON(w, detail, logger)
	}
}

// ExportRequestsHandler creates a handler for the CSV export.
// @Summary Export raw requests matching the filters as CSV.
// @Tags monitoring
// @Produce text/csv
// @Success 200 {string} string "CSV payload"
// @Failure 500 {object} ErrorMessage "Internal server error"
// @Router /api/admin/monitoring/requests/export [get]
func ExportRequestsHandler(
	ctx context.Context,
	qs query.Service,
	logger *zap.Logger,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filters, _ := filtersFromRequest(r, time.Now())
		payload, err := qs.ExportRequestsCSV(ctx, filters, intParam(r, "limit", 0))
		if err != nil {
			logger.Error("Error encountered when exporting raw requests", zap.Error(err))
			HttpError(w, "Internal server error", http.StatusInternalServerError, logger)
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="requests.csv"`)
		if _, err := w.Write(payload); err != nil {
			logger.Error("Error encountered when writing CSV response", zap.Error(err))
		}
	}
}

// MaintenanceHandler creates a handler that triggers one maintenance run.
// @Summary Recompute aggregates and apply retention.
// @Tags monitoring
// @Accept json
// @Produce json
// @Success 200 {object} model.MaintenanceResult "Audit of the completed run"
// @Failure 409 {object} ErrorMessage "A maintenance run is already in progress"
// @Failure 500 {object} ErrorMessage "Internal server error"
// @Router /api/admin/monitoring/maintenance/run [post]
func MaintenanceHandler(
	ctx context.Context,
	engine aggregation.Engine,
	logger *zap.Logger,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// An empty or malformed body runs with defaults.
		var options model.MaintenanceOptions
		if r.Body != nil {
			if err := json.NewDecoder(r.Body).Decode(&options); err != nil && !errors.Is(err, io.EOF) {
				options = model.MaintenanceOptions{}
			}
			if err := r.Body.Close(); err != nil {
				logger.Error("Error encountered when closing request body", zap.Error(err))
			}
		}

		result, err := engine.RunMaintenance(ctx, options)
		if err != nil {
			if errors.Is(err, aggregation.ErrMaintenanceInProgress) {
				HttpError(w, "Maintenance run already in progress", http.StatusConflict, logger)
				return
			}
			logger.Error("Error encountered when running maintenance", zap.Error(err))
			HttpError(w, "Internal server error", http.StatusInternalServerError, logger)
			return
		}
		writeJSON(w, result, logger)
	}
}
