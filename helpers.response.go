package main

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"
)

// CustomResponseWriter is a wrapper for http.ResponseWriter. It is
// used to record response details like status code and body size.
// The underlying network connection is tracked for dynamic read/write
// deadline setup.
type CustomResponseWriter struct {
	http.ResponseWriter
	conn  net.Conn
	code  int
	bytes int
	wrote bool
}

// NewCustomResponseWriter provides CustomResponseWriter with 200 as status code.
func NewCustomResponseWriter(rw http.ResponseWriter, c net.Conn) *CustomResponseWriter {
	return &CustomResponseWriter{
		ResponseWriter: rw,
		conn:           c,
		code:           200,
	}
}

// Header implements http.Header interface.
func (cw *CustomResponseWriter) Header() http.Header {
	return cw.ResponseWriter.Header()
}

// WriteHeader implements http.WriteHeader interface. Only the first call is forwarded.
func (cw *CustomResponseWriter) WriteHeader(code int) {
	if !cw.wrote {
		cw.code = code
		cw.wrote = true
		cw.ResponseWriter.WriteHeader(code)
	}
}

// Write implements http.Write interface and records the body size.
func (cw *CustomResponseWriter) Write(bytes []byte) (int, error) {
	if !cw.wrote {
		cw.WriteHeader(cw.code)
	}

	n, err := cw.ResponseWriter.Write(bytes)
	cw.bytes += n
	return n, err
}

// Status returns the written status code.
func (cw *CustomResponseWriter) Status() int {
	return cw.code
}

// Bytes returns bytes written as response body.
func (cw *CustomResponseWriter) Bytes() int {
	return cw.bytes
}

// Unwrap returns native response writer and used by
// the http.ResponseController during its operation.
func (cw *CustomResponseWriter) Unwrap() http.ResponseWriter {
	return cw.ResponseWriter
}

// SetWriteDeadline rewrites the underlying connection write deadline.
// This is called by http.ResponseController SetWriteDeadline method.
func (cw *CustomResponseWriter) SetWriteDeadline(t time.Time) error {
	if cw.conn == nil {
		return http.ErrNotSupported
	}
	return cw.conn.SetWriteDeadline(t)
}

// SetReadDeadline rewrites the underlying connection read deadline.
// This is called by http.ResponseController SetReadDeadline method.
func (cw *CustomResponseWriter) SetReadDeadline(t time.Time) error {
	if cw.conn == nil {
		return http.ErrNotSupported
	}
	return cw.conn.SetReadDeadline(t)
}

// APIError is the envelope sent when a request fails. Data carries the
// failure reason for client errors and an empty object otherwise.
type APIError struct {
	RequestID string      `json:"requestid"`
	Status    int         `json:"status"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data"`
}

// APIResponse is the envelope sent when a request succeeds.
// Total is only set on collection reads, even when it is zero.
type APIResponse struct {
	RequestID string      `json:"requestid"`
	Status    int         `json:"status"`
	Message   string      `json:"message"`
	Total     *int        `json:"total,omitempty"`
	Data      interface{} `json:"data"`
}

// StatusResponse is the body of the status endpoint.
type StatusResponse struct {
	RequestID string `json:"requestid"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

// StatusClientClosedRequest is the nginx code used to record requests
// cancelled by the client before a response was sent.
const StatusClientClosedRequest = 499

// WriteJSON sends v with the given status. Once the request context is done
// the timeout middleware has already answered the client, so only the status
// is recorded: 504 when the deadline was exceeded and 499 otherwise.
func WriteJSON(ctx context.Context, w http.ResponseWriter, status int, v interface{}) error {
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			w.WriteHeader(http.StatusGatewayTimeout)
		} else {
			w.WriteHeader(StatusClientClosedRequest)
		}
		return err
	}
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}
