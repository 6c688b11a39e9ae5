package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swaggo/swag"
	"go.uber.org/zap"
)

var routerAnnotation = regexp.MustCompile(`@Router\s+(\S+)\s+\[(\w+)\]`)

// annotatedRoutes collects the "METHOD /path" of every @Router annotation.
func annotatedRoutes(t *testing.T) []string {
	t.Helper()
	files, err := filepath.Glob("api.handlers.*.go")
	require.NoError(t, err)
	var routes []string
	for _, file := range files {
		data, err := os.ReadFile(file)
		require.NoError(t, err)
		for _, m := range routerAnnotation.FindAllStringSubmatch(string(data), -1) {
			routes = append(routes, strings.ToUpper(m[2])+" "+m[1])
		}
	}
	return routes
}

func documentedRoutes(t *testing.T) []string {
	t.Helper()
	doc, err := swag.ReadDoc()
	require.NoError(t, err)
	var parsed struct {
		Paths map[string]map[string]json.RawMessage `json:"paths"`
	}
	require.NoError(t, json.Unmarshal([]byte(doc), &parsed))
	var routes []string
	for path, methods := range parsed.Paths {
		for method := range methods {
			routes = append(routes, strings.ToUpper(method)+" "+path)
		}
	}
	return routes
}

func TestSwaggerDoc_MatchesAnnotations(t *testing.T) {
	annotated := annotatedRoutes(t)
	require.NotEmpty(t, annotated)
	assert.ElementsMatch(t, annotated, documentedRoutes(t))
}

func TestSwaggerDoc_RoutesAreServed(t *testing.T) {
	ls := NewLoanService(zap.NewNop(), NewMockClocker(), NewMemoryLoanStorage(), nil, nil, nil)
	api := newTestAPIHandler(newTestCatalogService(), ls, nil)
	router := api.SetupRoutes(httprouter.New(), noMiddlewares)
	for _, route := range documentedRoutes(t) {
		method, path, _ := strings.Cut(route, " ")
		handle, _, _ := router.Lookup(method, strings.ReplaceAll(path, "{id}", "1"))
		assert.NotNil(t, handle, route)
	}
}
