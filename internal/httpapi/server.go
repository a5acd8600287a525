package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"inferd/internal/engine"
	"inferd/internal/pipeline"
	"inferd/internal/registry"
	"inferd/pkg/types"
)

// Service defines the engine methods required by the HTTP API layer.
type Service interface {
	Submit(req types.InferenceRequest) (*engine.Ticket, error)
	Cancel(id string) error
	RegisterModel(m types.Model) error
	LoadModel(id string, weights []float32) error
	ListModels() []types.Model
	ListModelsByModality(m string) []types.Model
	ListModelsBySpecialty(s string) []types.Model
	Metrics() types.EngineMetrics
	Status() types.StatusResponse
	Ready() bool
}

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(MetricsMiddleware)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/models", handleListModels(svc))
	r.Post("/models", handleRegisterModel(svc))
	r.Post("/models/{id}/load", handleLoadModel(svc))
	r.Post("/infer", handleInfer(svc))
	r.Delete("/requests/{id}", handleCancel(svc))

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Status())
	})
	r.Get("/metrics.json", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Metrics())
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("disposed"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)
	return r
}

// handleListModels godoc
// @Summary List registered models
// @Param modality query string false "Filter by imaging modality"
// @Param specialty query string false "Filter by clinical specialty"
// @Success 200 {object} types.ModelsResponse
// @Router /models [get]
func handleListModels(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var models []types.Model
		switch {
		case r.URL.Query().Get("modality") != "":
			models = svc.ListModelsByModality(r.URL.Query().Get("modality"))
		case r.URL.Query().Get("specialty") != "":
			models = svc.ListModelsBySpecialty(r.URL.Query().Get("specialty"))
		default:
			models = svc.ListModels()
		}
		writeJSON(w, http.StatusOK, types.ModelsResponse{Models: models})
	}
}

// handleRegisterModel godoc
// @Summary Register a model descriptor in the unloaded state
// @Accept json
// @Success 201 {object} types.Model
// @Failure 409 {object} types.ErrorResponse
// @Router /models [post]
func handleRegisterModel(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var m types.Model
		if !decodeJSONBody(w, r, &m) {
			return
		}
		if strings.TrimSpace(m.ID) == "" {
			writeJSONError(w, http.StatusBadRequest, "model id is required")
			return
		}
		if err := svc.RegisterModel(m); err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, m)
	}
}

// handleLoadModel godoc
// @Summary Attach weights to a registered model
// @Accept json
// @Success 200
// @Failure 404 {object} types.ErrorResponse
// @Router /models/{id}/load [post]
func handleLoadModel(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var req types.LoadModelRequest
		if !decodeJSONBody(w, r, &req) {
			return
		}
		var weights []float32
		if req.WeightsPath != "" {
			var err error
			weights, err = registry.ReadWeightsFile(req.WeightsPath)
			if err != nil {
				writeJSONError(w, http.StatusBadRequest, err.Error())
				return
			}
		}
		if err := svc.LoadModel(id, weights); err != nil {
			writeServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// handleInfer godoc
// @Summary Run inference and wait for the terminal result
// @Accept json
// @Success 200 {object} types.InferenceResult
// @Failure 400 {object} types.ErrorResponse
// @Failure 404 {object} types.ErrorResponse
// @Failure 429 {object} types.ErrorResponse
// @Router /infer [post]
func handleInfer(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.InferAPIRequest
		if !decodeJSONBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Model) == "" {
			writeJSONError(w, http.StatusBadRequest, "model is required")
			return
		}

		start := time.Now()
		lvl := requestLogLevel(r)
		if lvl >= LevelInfo {
			logInferStart(r, req.Model)
		}

		ticket, err := svc.Submit(types.InferenceRequest{
			ModelID:    req.Model,
			Input:      req.Input,
			Parameters: req.Parameters,
			Priority:   types.Priority(req.Priority),
			Timeout:    time.Duration(req.TimeoutMS) * time.Millisecond,
			Explain:    req.Explain,
		})
		if err != nil {
			writeServiceError(w, r, err)
			ObserveInfer(req.Model, "rejected")
			if lvl >= LevelInfo {
				logInferEnd(r, req.Model, "rejected", time.Since(start), err)
			}
			return
		}

		// Join server base context with the request context so shutdown and
		// client disconnect both abandon the wait (the engine still produces
		// its terminal result).
		joinedCtx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		select {
		case res, ok := <-ticket.Done:
			if !ok {
				writeJSONError(w, http.StatusInternalServerError, "result channel closed without a result")
				return
			}
			writeJSON(w, http.StatusOK, res)
			ObserveInfer(req.Model, string(res.Status))
			if lvl >= LevelInfo {
				logInferEnd(r, req.Model, string(res.Status), time.Since(start), nil)
			}
		case <-joinedCtx.Done():
			// Client went away; nothing sensible to write.
		}
	}
}

// handleCancel godoc
// @Summary Cancel a queued or running request
// @Success 202
// @Failure 404 {object} types.ErrorResponse
// @Router /requests/{id} [delete]
func handleCancel(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Cancel(chi.URLParam(r, "id")); err != nil {
			writeServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

// decodeJSONBody enforces content type and body limits, then decodes into v.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// writeServiceError maps well-known engine errors to HTTP status codes.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case registry.IsModelNotFound(err), engine.IsRequestNotFound(err):
		writeJSONError(w, http.StatusNotFound, err.Error())
	case registry.IsModelNotLoaded(err), registry.IsDuplicateModel(err):
		writeJSONError(w, http.StatusConflict, err.Error())
	case pipeline.IsPreprocess(err):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	case engine.IsQueueFull(err):
		IncrementBackpressure("queue_full")
		writeJSONError(w, http.StatusTooManyRequests, err.Error())
	case engine.IsEngineClosed(err):
		writeJSONError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeJSONError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
