package handler

import (
	"bytes"
	"net/http"

	"github.com/boddenberg/ccb-backoffice-go/internal/ccb"
	"github.com/boddenberg/ccb-backoffice-go/internal/domain"
	"github.com/boddenberg/ccb-backoffice-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Simulations: /v1/simulations
// ============================================================

func createSimulationHandler(svc *service.SimulationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/simulations")
		defer span.End()

		var req domain.CreateSimulationRequest
		if err := decodeBody(w, r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		detail, err := svc.Create(ctx, UserIDFromContext(ctx), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeData(w, http.StatusCreated, detail)
	}
}

func quoteHandler(svc *service.SimulationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/simulations/quote")
		defer span.End()

		var req domain.QuoteRequest
		if err := decodeBody(w, r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		quote, err := svc.Quote(ctx, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeData(w, http.StatusOK, quote)
	}
}

func listSimulationsHandler(svc *service.SimulationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/simulations")
		defer span.End()

		page, limit, err := parsePagination(r)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		q := r.URL.Query()
		result, err := svc.List(ctx, domain.SimulationFilter{
			CustomerID:  q.Get("customerId"),
			CreatedByID: q.Get("createdById"),
			Status:      domain.SimulationStatus(q.Get("status")),
			Page:        page,
			Limit:       limit,
			SortBy:      q.Get("sortBy"),
			SortOrder:   q.Get("sortOrder"),
		})
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeData(w, http.StatusOK, result)
	}
}

func getSimulationHandler(svc *service.SimulationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/simulations/{id}")
		defer span.End()

		id := chi.URLParam(r, "id")
		span.SetAttributes(attribute.String("simulation.id", id))

		detail, err := svc.Get(ctx, id)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeData(w, http.StatusOK, detail)
	}
}

func getScheduleHandler(svc *service.SimulationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/simulations/{id}/schedule")
		defer span.End()

		id := chi.URLParam(r, "id")
		span.SetAttributes(attribute.String("simulation.id", id))

		view, err := svc.Schedule(ctx, id)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeData(w, http.StatusOK, view)
	}
}

func updateSimulationStatusHandler(svc *service.SimulationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PATCH /v1/simulations/{id}")
		defer span.End()

		id := chi.URLParam(r, "id")
		span.SetAttributes(attribute.String("simulation.id", id))

		var req domain.UpdateStatusRequest
		if err := decodeBody(w, r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		sim, err := svc.UpdateStatus(ctx, UserIDFromContext(ctx), id, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeData(w, http.StatusOK, sim)
	}
}

func deleteSimulationHandler(svc *service.SimulationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/simulations/{id}")
		defer span.End()

		id := chi.URLParam(r, "id")
		span.SetAttributes(attribute.String("simulation.id", id))

		if err := svc.Delete(ctx, UserIDFromContext(ctx), id); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// ============================================================
// Credit note: POST /v1/simulations/{id}/ccb
// ============================================================

func ccbHandler(svc *service.SimulationService, renderer *ccb.Renderer, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/simulations/{id}/ccb")
		defer span.End()

		id := chi.URLParam(r, "id")
		span.SetAttributes(attribute.String("simulation.id", id))

		detail, err := svc.Get(ctx, id)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		var buf bytes.Buffer
		if err := renderer.Render(&buf, detail); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		logger.Info("ccb generated", zap.String("simulation_id", id), zap.String("user_id", UserIDFromContext(ctx)))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write(buf.Bytes())
	}
}
