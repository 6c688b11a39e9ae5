package main

import (
	"encoding/json"
	"expvar"
	"net/http"
	"runtime"
	"runtime/debug"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

// DefaultJournalEntries is the number of change events served when not specified.
const DefaultJournalEntries = 50

// Maintenance handles request to enable or disable the maintenance mode of the service and respond
// to client requests with predefined message when the service is in maintenance mode.
// Enable the maintenance mode : /ops/maintenance?status=enable&msg=message-to-be-displayed-to-users
// Disable the maintenance mode: /ops/maintenance?status=disable
func (api *APIHandler) Maintenance(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	requestID := GetValueFromContext(r.Context(), ContextRequestID)
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	var response map[string]interface{}

	q := r.URL.Query()
	mstatus := "show"
	if ps.ByName("status") != mstatus {
		mstatus = q.Get("status")
	}

	switch mstatus {
	case "enable":
		message, started := q.Get("msg"), api.clock.Now().UTC()
		api.mode.enable(message, started)
		response = map[string]interface{}{
			"requestid":           requestID,
			"maintenance.started": started.Format(time.RFC1123),
			"maintenance.message": message,
			"message":             "Maintenance mode enabled successfully.",
		}

	case "disable":
		api.mode.disable()
		response = map[string]interface{}{
			"requestid": requestID,
			"message":   "Maintenance mode disabled successfully.",
		}

	case "show":
		message, started := api.mode.details()
		response = map[string]interface{}{
			"message": "service currently unvailable.",
			"reason":  message,
			"since":   started.Format(time.RFC1123),
		}
		w.WriteHeader(http.StatusServiceUnavailable)

	default:
		w.WriteHeader(http.StatusBadRequest)
		response = map[string]interface{}{
			"requestid": requestID,
			"message":   "status must be enable or disable.",
		}
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		api.logger.Error("failed to send maintenance response",
			zap.String("request.id", requestID),
			zap.String("request.maintenance", mstatus),
			zap.Error(err),
		)
	}
}

// export goroutines to be used by expvar handler.
var goroutines = expvar.NewInt("goroutines")

// GetMemStats returns memory statistics with number of goroutines in json.
func GetMemStats(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	goroutines.Set(int64(runtime.NumGoroutine()))
	expvar.Handler().ServeHTTP(w, r)
}

// RunGC forces the run of the garbage collector asynchronously.
func (api *APIHandler) RunGC(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	requestID := GetValueFromContext(r.Context(), ContextRequestID)
	go runtime.GC()
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	if err := json.NewEncoder(w).Encode(
		map[string]string{
			"called": "go runtime.GC()",
		},
	); err != nil {
		api.logger.Error("failed to send run gc response", zap.String("request.id", requestID), zap.Error(err))
	}
}

// FreeOSMemory forces the garbage collector to and tries to returns the memory
// back to the operating system in an asynchronous fashion.
func (api *APIHandler) FreeOSMemory(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	requestID := GetValueFromContext(r.Context(), ContextRequestID)
	go debug.FreeOSMemory()
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	if err := json.NewEncoder(w).Encode(
		map[string]string{
			"called": "go debug.FreeOSMemory()",
		},
	); err != nil {
		api.logger.Error("failed to send free os memory response", zap.String("request.id", requestID), zap.Error(err))
	}
}

// GetStatistics provides useful details about the application to the internal ops users.
// The stats returns by this handler do not contain the ops request which triggered that.
// That is why we remove 1 from the called field value in order to match the status stats.
func (api *APIHandler) GetStatistics(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	requestID := GetValueFromContext(r.Context(), ContextRequestID)
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	called := atomic.LoadUint64(&api.stats.called)
	if called > 0 {
		called--
	}
	maintenanceMessage, maintenanceStarted := api.mode.details()
	maintenanceModeStartedTime := maintenanceStarted.String()
	if maintenanceStarted.IsZero() {
		maintenanceModeStartedTime = ""
	}
	api.stats.mu.RLock()
	err := json.NewEncoder(w).Encode(
		map[string]interface{}{
			"requestid":     requestID,
			"app.version":   api.stats.version,
			"app.container": api.stats.container,
			"app.platform":  api.stats.platform,
			"app.services":  api.config.Services,
			"go.version":    api.stats.runtime,
			"called":        called,
			"started":       api.stats.started.Format(time.RFC1123),
			"uptime":        minutesSince(api.clock, api.stats.started),
			"maintenance": map[string]interface{}{
				"enabled": api.mode.enabled.Load(),
				"started": maintenanceModeStartedTime,
				"message": maintenanceMessage,
			},
			"status": api.stats.status,
		},
	)
	api.stats.mu.RUnlock()
	if err != nil {
		api.logger.Error("failed to send statistics response", zap.String("request.id", requestID), zap.Error(err))
	}
}

// GetConfigs serves current in-use configurations/settings.
func (api *APIHandler) GetConfigs(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	requestID := GetValueFromContext(r.Context(), ContextRequestID)
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	if err := json.NewEncoder(w).Encode(
		map[string]interface{}{
			"configs": api.config,
		},
	); err != nil {
		api.logger.Error("failed to send settings response", zap.String("request.id", requestID), zap.Error(err))
	}
}

// GetMetrics exposes the prometheus metrics.
func (api *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	api.metrics.Handler().ServeHTTP(w, r)
}

// GetJournal serves the most recent change events, newest first.
// The number of entries can be set with the `last` query parameter.
func (api *APIHandler) GetJournal(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if api.journal == nil {
		api.sendError(w, r, ErrJournalDisabled, "failed to read the journal")
		return
	}
	n := DefaultJournalEntries
	if v := r.URL.Query().Get("last"); v != "" {
		last, err := strconv.Atoi(v)
		if err != nil || last <= 0 {
			api.sendError(w, r, invalidField("last", "must be a positive integer"), "failed to read the journal")
			return
		}
		n = last
	}
	events, err := api.journal.Last(r.Context(), n)
	if err != nil {
		api.sendError(w, r, err, "failed to read the journal")
		return
	}
	total := len(events)
	api.sendResponse(w, r, http.StatusOK, "Journal fetched successfully.", &total, events)
}

// OpsHandlerWrapper adapts a standard handler to the router.
func (api *APIHandler) OpsHandlerWrapper(h http.Handler) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		h.ServeHTTP(w, r)
	}
}
