package main

import (
	"net/http"
	"net/http/pprof"

	"github.com/julienschmidt/httprouter"
)

// profiles are the runtime profiles served under /ops/debug/pprof/ when enabled.
var profiles = []string{"heap", "allocs", "goroutine", "threadcreate", "block", "mutex"}

// SetupOpsRoutes registers the operations endpoints. They go through the ops
// middlewares stack so they stay reachable during maintenance.
func (api *APIHandler) SetupOpsRoutes(router *httprouter.Router, m *MiddlewareMap) *httprouter.Router {
	router.RedirectTrailingSlash = true
	routes := map[string]httprouter.Handle{
		"/ops/configs":     api.GetConfigs,
		"/ops/stats":       api.GetStatistics,
		"/ops/maintenance": api.Maintenance,
		"/ops/metrics":     api.GetMetrics,
		"/ops/journal":     api.GetJournal,
		"/ops/debug/vars":  GetMemStats,
		"/ops/debug/gc":    api.RunGC,
		"/ops/debug/fos":   api.FreeOSMemory,
	}

	if api.config.ProfilerEndpointsEnable {
		routes["/ops/debug/pprof/"] = api.OpsHandlerWrapper(http.HandlerFunc(pprof.Index))
		routes["/ops/debug/pprof/profile"] = api.OpsHandlerWrapper(http.HandlerFunc(pprof.Profile))
		routes["/ops/debug/pprof/trace"] = api.OpsHandlerWrapper(http.HandlerFunc(pprof.Trace))
		routes["/ops/debug/pprof/symbol"] = api.OpsHandlerWrapper(http.HandlerFunc(pprof.Symbol))
		routes["/ops/debug/pprof/cmdline"] = api.OpsHandlerWrapper(http.HandlerFunc(pprof.Cmdline))
		for _, name := range profiles {
			routes["/ops/debug/pprof/"+name] = api.OpsHandlerWrapper(pprof.Handler(name))
		}
	}

	for path, handle := range routes {
		router.GET(path, m.ops(handle))
	}
	return router
}
