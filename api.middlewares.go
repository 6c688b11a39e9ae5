package main

import (
	"context"
	"net/http"
	"sync/atomic"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

// MiddlewareFunc is a custom type for ease of use.
type MiddlewareFunc func(httprouter.Handle) httprouter.Handle

// Middlewares is a custom type to represent a stack of
// middleware functions used to build a single chain.
type Middlewares []MiddlewareFunc

// MiddlewaresStacks builds the chains used by public-facing and ops endpoints.
// Ops endpoints stay reachable in maintenance mode.
func (api *APIHandler) MiddlewaresStacks() (*Middlewares, *Middlewares) {
	public := &Middlewares{
		api.RequestsCounterMiddleware,
		api.RequestIDMiddleware,
		api.CoreMiddleware,
		api.StatsMiddleware,
		api.PanicRecoveryMiddleware,
		CORSMiddleware,
		api.MaintenanceModeMiddleware,
	}
	ops := &Middlewares{
		api.RequestsCounterMiddleware,
		api.RequestIDMiddleware,
		api.CoreMiddleware,
		api.StatsMiddleware,
		api.PanicRecoveryMiddleware,
		CORSMiddleware,
	}
	return public, ops
}

// CoreMiddleware setup the duration measurement for each request and logs its result.
func (api *APIHandler) CoreMiddleware(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		start := api.clock.Now()
		requestID := GetValueFromContext(r.Context(), ContextRequestID)
		r = r.WithContext(context.WithValue(r.Context(), LoggerContextKey, api.logger.With(zap.String("request.id", requestID))))

		api.logger.Info(
			"request",
			zap.String("request.id", requestID),
			zap.Uint64("request.num", GetRequestNumberFromContext(r.Context())),
			zap.String("request.method", r.Method),
			zap.String("request.path", r.URL.Path),
			zap.String("request.ip", GetRequestSourceIP(r)),
			zap.String("request.agent", r.UserAgent()),
			zap.String("request.referer", r.Referer()),
		)

		next(w, r, ps)
		api.logger.Info(
			"request",
			zap.String("request.id", requestID),
			zap.String("request.method", r.Method),
			zap.String("request.path", r.URL.Path),
			zap.Duration("request.duration", api.clock.Now().Sub(start)),
		)
	}
}

// RequestsCounterMiddleware increments the number of received requests statistics and add this
// new value to the request context to be used during logging as `request.num` field.
func (api *APIHandler) RequestsCounterMiddleware(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		ctx := context.WithValue(r.Context(), ContextRequestNumber, atomic.AddUint64(&api.stats.called, 1))
		r = r.WithContext(ctx)
		next(w, r, ps)
	}
}

// RequestIDMiddleware generates a unique id for the request, stores it in the
// context and echoes it in the X-Request-ID response header.
func (api *APIHandler) RequestIDMiddleware(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		requestID := api.idsHandler.Generate(RequestIDPrefix)
		w.Header().Set(RequestIDHeader, requestID)
		ctx := context.WithValue(r.Context(), ContextRequestID, requestID)
		r = r.WithContext(ctx)
		next(w, r, ps)
	}
}

// StatsMiddleware records the status code sent for each request into the
// ops statistics and the prometheus requests counter.
func (api *APIHandler) StatsMiddleware(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		cw := NewCustomResponseWriter(w, GetConnFromContext(r.Context()))
		next(cw, r, ps)
		code := cw.Status()
		api.stats.mu.Lock()
		api.stats.status[code]++
		api.stats.mu.Unlock()
		api.metrics.ObserveRequest(r.Method, code)
	}
}

// MaintenanceModeMiddleware answers every request with 503 while the maintenance mode is on.
func (api *APIHandler) MaintenanceModeMiddleware(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if api.mode.enabled.Load() {
			api.Maintenance(w, r, httprouter.Params{{Key: "status", Value: "show"}})
			return
		}
		next(w, r, ps)
	}
}

// CORSMiddleware intercepts each incoming HTTP calls then apply cors headers on it.
func CORSMiddleware(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE, HEAD")
		w.Header().Set("Access-Control-Allow-Headers", "Origin, Access-Control-Request-Method, Access-Control-Request-Headers, Accept, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, User-Agent, Accept-Language, Referer, DNT, Connection, Pragma, Cache-Control, TE")
		next(w, r, ps)
	}
}

// PanicRecoveryMiddleware catches any panic during the request lifecycle and produces
// an error log for further analysis. It sends a failure response to the client with 500.
func (api *APIHandler) PanicRecoveryMiddleware(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		recovery := func() {
			if err := recover(); err != nil {
				requestID := GetValueFromContext(r.Context(), ContextRequestID)
				api.logger.Error("panic occurred", zap.String("request.id", requestID), zap.Any("error", err), zap.Stack("stack"))
				errResp := APIError{RequestID: requestID, Status: http.StatusInternalServerError, Message: "failed to process the request.", Data: EmptyData}
				if err := WriteJSON(r.Context(), w, errResp.Status, errResp); err != nil {
					api.logger.Error("failed to send error response", zap.String("request.id", requestID), zap.Error(err))
				}
			}
		}
		defer recovery()
		next(w, r, ps)
	}
}

// Chain wraps a given httprouter.Handle with a list of middlewares.
// It does by starting from the last middleware from the list.
func (m *Middlewares) Chain(h httprouter.Handle) httprouter.Handle {
	if len(*m) == 0 {
		return h
	}
	lg := len(*m)
	handle := (*m)[lg-1](h)

	for i := lg - 2; i >= 0; i-- {
		handle = (*m)[i](handle)
	}

	return handle
}
