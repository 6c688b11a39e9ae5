package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"strings"
)

type ContextKey string

const (
	RequestIDPrefix      string     = "r"
	RequestIDHeader      string     = "X-Request-ID"
	ContextRequestID     ContextKey = "request.id"
	ContextRequestNumber ContextKey = "request.number"
	ConnContextKey       ContextKey = "http-conn"
)

// EmptyData is sent as data field of error responses without details.
var EmptyData = struct{}{}

// GetValueFromContext returns the string stored under contextKey or "".
func GetValueFromContext(ctx context.Context, contextKey ContextKey) string {
	val, _ := ctx.Value(contextKey).(string)
	return val
}

// GetRequestNumberFromContext returns the request sequence number or 0.
func GetRequestNumberFromContext(ctx context.Context) uint64 {
	val, _ := ctx.Value(ContextRequestNumber).(uint64)
	return val
}

// GetRequestSourceIP returns the caller address. Proxy headers are trusted
// first (X-Real-IP, then the left-most valid X-Forwarded-For entry) before
// falling back to the connection remote address.
func GetRequestSourceIP(r *http.Request) string {
	candidates := []string{r.Header.Get("X-Real-IP")}
	candidates = append(candidates, strings.Split(r.Header.Get("X-Forwarded-For"), ",")...)
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		candidates = append(candidates, host)
	}
	for _, c := range candidates {
		if ip := net.ParseIP(strings.TrimSpace(c)); ip != nil {
			return ip.String()
		}
	}
	return ""
}

// IsAppRunningInDocker reports whether /.dockerenv exists.
func IsAppRunningInDocker() bool {
	_, err := os.Stat("/.dockerenv")
	return err == nil
}

// SaveConnInContext is the server ConnContext hook. It keeps the connection
// so handlers can move their deadlines through *CustomResponseWriter.
func SaveConnInContext(ctx context.Context, c net.Conn) context.Context {
	return context.WithValue(ctx, ConnContextKey, c)
}

// GetConnFromContext returns the connection saved into the context or nil.
func GetConnFromContext(ctx context.Context) net.Conn {
	c, _ := ctx.Value(ConnContextKey).(net.Conn)
	return c
}
