package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/flof/backend/internal/api/handlers"
	"github.com/wonny/flof/backend/internal/metrics"
	"github.com/wonny/flof/backend/pkg/logger"
)

// Handlers groups the route handlers. Nil groups are not mounted.
type Handlers struct {
	Health  *handlers.HealthHandler
	Engine  *handlers.EngineHandler
	Journal *handlers.JournalHandler
	Jobs    *handlers.JobsHandler
	Events  *handlers.EventStream
}

// NewRouter creates and configures the HTTP router
// ⭐ SSOT: 라우팅 설정은 이 함수에서만
func NewRouter(h Handlers, log *logger.Logger) http.Handler {
	r := mux.NewRouter()
	r.MethodNotAllowedHandler = methodNotAllowed("")

	// Health check
	if h.Health != nil {
		r.HandleFunc("/health", h.Health.GetHealth).Methods("GET")
	} else {
		r.HandleFunc("/health", healthCheckHandler).Methods("GET")
	}

	// Prometheus
	r.Handle("/metrics", metrics.Handler()).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()

	// Engine endpoints
	if h.Engine != nil {
		api.HandleFunc("/state", h.Engine.GetState).Methods("GET")
		api.HandleFunc("/positions", h.Engine.GetPositions).Methods("GET")
		api.HandleFunc("/ledger", h.Engine.GetLedger).Methods("GET")
		api.HandleFunc("/risk", h.Engine.GetRisk).Methods("GET")
		api.HandleFunc("/snapshots", h.Engine.GetSnapshots).Methods("GET")
		api.HandleFunc("/toggles", h.Engine.GetToggles).Methods("GET")
		api.HandleFunc("/toggles/issues", h.Engine.GetToggleIssues).Methods("GET")
		api.HandleFunc("/toggles/{id}", h.Engine.GetToggle).Methods("GET")
		api.HandleFunc("/kill", h.Engine.Kill).Methods("POST")
		// 서브라우터는 메서드 불일치를 404로 돌려주므로 명시적으로 405
		api.Handle("/kill", methodNotAllowed("POST"))
	}

	// Journal endpoints
	if h.Journal != nil {
		api.HandleFunc("/journal/trades", h.Journal.GetTrades).Methods("GET")
		api.HandleFunc("/journal/rejections", h.Journal.GetRejections).Methods("GET")
		api.HandleFunc("/journal/summary", h.Journal.GetSummary).Methods("GET")
	}

	// Scheduler endpoints
	if h.Jobs != nil {
		api.HandleFunc("/jobs", h.Jobs.GetJobs).Methods("GET")
		api.HandleFunc("/jobs/{name}/run", h.Jobs.RunJob).Methods("POST")
		api.Handle("/jobs/{name}/run", methodNotAllowed("POST"))
	}

	// Event stream
	if h.Events != nil {
		r.HandleFunc("/ws/events", h.Events.Stream).Methods("GET")
	}

	// Apply middleware
	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	return r
}

// healthCheckHandler returns server health status
func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"service": "flof-engine",
	})
}

// methodNotAllowed answers 405 with an optional Allow header
func methodNotAllowed(allow string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if allow != "" {
			w.Header().Set("Allow", allow)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusMethodNotAllowed)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": false,
			"error":   "method not allowed",
		})
	})
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Call next handler
			next.ServeHTTP(w, r)

			// Log request
			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{
						"error": "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
