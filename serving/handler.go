package serving

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/YuminosukeSato/penguinml/pkg/errors"
	"github.com/YuminosukeSato/penguinml/pkg/log"
)

// maxBodyBytes caps the request body of /predict.
const maxBodyBytes = 1 << 16

// PredictResponse is the body of a successful prediction.
type PredictResponse struct {
	PredictedSpecies string `json:"predicted_species"`
}

// Option configures NewHandler.
type Option func(*handlerOptions)

type handlerOptions struct {
	metrics   *Metrics
	rateLimit float64
	rateBurst int
	cacheSize int
}

// WithMetrics records into m instead of a fresh Metrics.
func WithMetrics(m *Metrics) Option {
	return func(o *handlerOptions) { o.metrics = m }
}

// WithRateLimit throttles /predict per client. perSecond <= 0 disables it.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(o *handlerOptions) {
		o.rateLimit = perSecond
		o.rateBurst = burst
	}
}

// WithPredictionCache keeps the last size predictions in an LRU cache.
// size <= 0 disables it.
func WithPredictionCache(size int) Option {
	return func(o *handlerOptions) { o.cacheSize = size }
}

type handler struct {
	art      *Artifacts
	logger   log.Logger
	metrics  *Metrics
	validate *validator.Validate
	cache    *predictionCache
}

// NewHandler builds the router: POST /predict, GET /healthz and
// GET /metrics.
func NewHandler(art *Artifacts, logger log.Logger, opts ...Option) http.Handler {
	var o handlerOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.metrics == nil {
		o.metrics = NewMetrics()
	}

	h := &handler{
		art:      art,
		logger:   logger,
		metrics:  o.metrics,
		validate: newRequestValidator(),
	}
	if o.cacheSize > 0 {
		cache, err := newPredictionCache(o.cacheSize)
		if err != nil {
			logger.Warn("Prediction cache disabled", err)
		} else {
			h.cache = cache
		}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(h.metrics.Instrument)
	r.Use(middleware.Recoverer)

	r.Group(func(r chi.Router) {
		if o.rateLimit > 0 {
			rl := NewRateLimiter(o.rateLimit, o.rateBurst, logger)
			rl.onReject = func() { h.metrics.recordFailure(failureRateLimited) }
			r.Use(rl.Handler)
		}
		r.Post("/predict", h.predict)
	})
	r.Get("/healthz", h.healthz)
	r.Method(http.MethodGet, "/metrics", h.metrics.Handler())
	return r
}

func (h *handler) predict(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With(log.RequestIDKey, middleware.GetReqID(r.Context()))

	req, err := decodePredictRequest(http.MaxBytesReader(w, r.Body, maxBodyBytes), h.validate)
	if err != nil {
		h.metrics.recordFailure(failureValidation)
		var rve *RequestValidationError
		if !errors.As(err, &rve) {
			rve = &RequestValidationError{Detail: []FieldError{{
				Loc: []string{"body"}, Msg: err.Error(), Type: "value_error",
			}}}
		}
		logger.Debug("Request rejected", "detail", rve.Error())
		writeJSON(w, http.StatusUnprocessableEntity, rve)
		return
	}

	record := req.Record()
	if h.cache != nil {
		if species, ok := h.cache.get(record); ok {
			h.metrics.recordCacheHit()
			h.metrics.recordPrediction(species)
			writeJSON(w, http.StatusOK, PredictResponse{PredictedSpecies: species})
			return
		}
	}

	species, err := h.art.Predict(record)
	if err != nil {
		h.metrics.recordFailure(failurePrediction)
		var pe *errors.PredictionError
		if !errors.As(err, &pe) {
			pe = &errors.PredictionError{Reason: err.Error(), Err: err}
		}
		logger.Error("Prediction failed", err, log.ErrorTypeKey, errorType(pe.Err))
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": pe.Error()})
		return
	}

	if h.cache != nil {
		h.cache.add(record, species)
	}
	h.metrics.recordPrediction(species)
	logger.Debug("Prediction served", log.SpeciesKey, species)
	writeJSON(w, http.StatusOK, PredictResponse{PredictedSpecies: species})
}

func (h *handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"classes": h.art.Classes(),
	})
}

func errorType(err error) string {
	var (
		sm *errors.SchemaMismatchError
		pe *errors.PanicError
		de *errors.DimensionError
	)
	switch {
	case errors.As(err, &sm):
		return "SchemaMismatchError"
	case errors.As(err, &pe):
		return "PanicError"
	case errors.As(err, &de):
		return "DimensionError"
	default:
		return "PredictionError"
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// requestLogger logs one line per request.
func requestLogger(logger log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info("request",
				log.RequestIDKey, middleware.GetReqID(r.Context()),
				"method", r.Method,
				"uri", r.URL.RequestURI(),
				"addr", r.RemoteAddr,
				"status", ww.Status(),
				log.DurationMsKey, time.Since(start).Milliseconds(),
			)
		})
	}
}
