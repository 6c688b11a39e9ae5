package main

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

// Statistics holds app stats for ops.
type Statistics struct {
	version   string
	container bool
	runtime   string
	platform  string
	called    uint64
	started   time.Time
	status    map[int]uint64
	mu        *sync.RWMutex
}

// Maintenance holds app maintenance mode infos. enabled is checked on every
// public request without locking; message and started are guarded by mu.
type Maintenance struct {
	enabled atomic.Bool
	mu      sync.RWMutex
	message string
	started time.Time
}

func (m *Maintenance) enable(message string, at time.Time) {
	m.mu.Lock()
	m.message = message
	m.started = at
	m.mu.Unlock()
	m.enabled.Store(true)
}

func (m *Maintenance) disable() {
	m.enabled.Store(false)
	m.mu.Lock()
	m.message = ""
	m.started = time.Time{}
	m.mu.Unlock()
}

// details returns the reason and start time of the current maintenance.
func (m *Maintenance) details() (string, time.Time) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.message, m.started
}

// APIHandler defines the API handler.
type APIHandler struct {
	logger         *zap.Logger
	config         *Config
	stats          *Statistics
	mode           *Maintenance
	clock          Clocker
	idsHandler     UIDHandler
	catalogService CatalogServiceProvider
	loanService    LoanServiceProvider
	journal        JournalReader
	metrics        *Metrics
}

// NewAPIHandler provides a new instance of APIHandler. The services of the
// roles not served by this instance are nil and their routes not registered.
func NewAPIHandler(
	logger *zap.Logger,
	config *Config,
	stats *Statistics,
	clock Clocker,
	idsHandler UIDHandler,
	cs CatalogServiceProvider,
	ls LoanServiceProvider,
	journal JournalReader,
	metrics *Metrics,
) *APIHandler {
	m := &Maintenance{}
	m.enabled.Store(false)
	stats.status = make(map[int]uint64)
	stats.mu = &sync.RWMutex{}
	return &APIHandler{
		logger:         logger,
		config:         config,
		stats:          stats,
		mode:           m,
		clock:          clock,
		idsHandler:     idsHandler,
		catalogService: cs,
		loanService:    ls,
		journal:        journal,
		metrics:        metrics,
	}
}

// Index provides same details like `Status` handler by redirecting the request.
func (api *APIHandler) Index(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	http.Redirect(w, r, "/status", http.StatusSeeOther)
}

// Status provides basics details about the application to the public users.
func (api *APIHandler) Status(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	requestID := GetValueFromContext(r.Context(), ContextRequestID)
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	if err := json.NewEncoder(w).Encode(
		StatusResponse{
			RequestID: requestID,
			Status:    "up & running since " + minutesSince(api.clock, api.stats.started),
			Message:   "Hello. Book club api is available. Enjoy :)",
		},
	); err != nil {
		api.logger.Error("failed to send status response", zap.String("request.id", requestID), zap.Error(err))
	}
}

// NotFound provides the handler of requests made on routes the router does not know.
func (api *APIHandler) NotFound() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := GetValueFromContext(r.Context(), ContextRequestID)
		if requestID == "" {
			requestID = api.idsHandler.Generate(RequestIDPrefix)
		}
		w.Header().Set("Content-Type", "application/json; charset=UTF-8")
		w.WriteHeader(http.StatusNotFound)
		if err := json.NewEncoder(w).Encode(
			map[string]string{
				"requestid": requestID,
				"message":   "route does not exist",
				"path":      r.Method + " " + r.URL.Path,
			},
		); err != nil {
			api.logger.Error("failed to send not found response", zap.String("request.id", requestID), zap.Error(err))
		}
	})
}

// sendError maps err to its http status and sends it. Client errors carry
// the failure reason as data while internal errors only expose the message.
func (api *APIHandler) sendError(w http.ResponseWriter, r *http.Request, err error, message string, fields ...zap.Field) {
	requestID := GetValueFromContext(r.Context(), ContextRequestID)
	logger := api.GetLoggerFromContext(r.Context())
	status := StatusFromError(err)
	fields = append(fields, zap.Int("response.status", status), zap.Error(err))
	var data interface{} = EmptyData
	if status < http.StatusInternalServerError {
		logger.Info(message, fields...)
		data = err.Error()
	} else {
		logger.Error(message, fields...)
	}
	errResp := APIError{RequestID: requestID, Status: status, Message: message, Data: data}
	if err = WriteJSON(r.Context(), w, status, errResp); err != nil {
		logger.Error("failed to send error response", zap.Error(err))
	}
}

// sendResponse sends a success envelope. total is only set for collections.
func (api *APIHandler) sendResponse(w http.ResponseWriter, r *http.Request, status int, message string, total *int, data interface{}) {
	requestID := GetValueFromContext(r.Context(), ContextRequestID)
	resp := APIResponse{RequestID: requestID, Status: status, Message: message, Total: total, Data: data}
	if err := WriteJSON(r.Context(), w, status, resp); err != nil {
		api.logger.Error("failed to send response", zap.String("request.id", requestID), zap.Error(err))
	}
}
