package jobs_api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/BearBump/SellerFlow/internal/models"
	"github.com/BearBump/SellerFlow/internal/services/combinedjobs"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type Service interface {
	Start(ctx context.Context, tenantID string, chatID int64, lang string) (*models.JobStartResult, error)
	GetSnapshot(ctx context.Context, tenantID, jobID string) (*models.JobSnapshot, error)
}

// Маршруты по очередям: combined-pdf и waiting-pdf.
const (
	RouteCombined = "combined-pdf"
	RouteWaiting  = "waiting-pdf"
)

const maxBodyBytes = 1 << 16

type JobsAPI struct {
	services map[string]Service
	logger   *zap.Logger
}

func New(combined, waiting Service, logger *zap.Logger) *JobsAPI {
	if logger == nil {
		logger = zap.NewNop()
	}
	services := map[string]Service{}
	if combined != nil {
		services[RouteCombined] = combined
	}
	if waiting != nil {
		services[RouteWaiting] = waiting
	}
	return &JobsAPI{services: services, logger: logger}
}

func (a *JobsAPI) Register(r chi.Router) {
	for route, svc := range a.services {
		r.Route("/v1/tenants/{tenantID}/"+route+"/jobs", func(r chi.Router) {
			r.Post("/", a.start(route, svc))
			r.Get("/{jobID}", a.status(route, svc))
		})
	}
}

func (a *JobsAPI) Handler() http.Handler {
	r := chi.NewRouter()
	a.Register(r)
	return r
}

type startRequest struct {
	ChatID       *json.Number `json:"chatId"`
	LanguageCode string       `json:"languageCode"`
}

type startResponse struct {
	JobID     string    `json:"jobId"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (a *JobsAPI) start(route string, svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID := strings.TrimSpace(chi.URLParam(r, "tenantID"))
		if tenantID == "" {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "tenant id is required"})
			return
		}

		var req startRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err := dec.Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed body"})
			return
		}
		if req.ChatID == nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "chatId is required"})
			return
		}
		chatID, err := req.ChatID.Int64()
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "chatId must be an integer"})
			return
		}

		res, err := svc.Start(r.Context(), tenantID, chatID, strings.TrimSpace(req.LanguageCode))
		if err != nil {
			a.fail(w, route, err)
			return
		}
		a.logger.Info("job start requested",
			zap.String("route", route),
			zap.String("tenant_id", tenantID),
			zap.String("job_id", res.JobID),
			zap.Bool("reused", res.Reused),
		)
		writeJSON(w, http.StatusAccepted, startResponse{
			JobID:     res.JobID,
			Status:    res.Status,
			CreatedAt: res.CreatedAt.UTC(),
		})
	}
}

func (a *JobsAPI) status(route string, svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := svc.GetSnapshot(r.Context(), chi.URLParam(r, "tenantID"), chi.URLParam(r, "jobID"))
		if err != nil {
			a.fail(w, route, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

func (a *JobsAPI) fail(w http.ResponseWriter, route string, err error) {
	switch {
	case errors.Is(err, combinedjobs.ErrJobNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "job not found"})
	case errors.Is(err, combinedjobs.ErrInvalidPayload):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	default:
		a.logger.Error("jobs api", zap.String("route", route), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
