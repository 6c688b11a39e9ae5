package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newTestRouter wires the api handler behind its real middlewares stacks.
func newTestRouter(api *APIHandler) *httprouter.Router {
	public, ops := api.MiddlewaresStacks()
	return api.SetupRoutes(httprouter.New(), &MiddlewareMap{public: public.Chain, ops: ops.Chain})
}

// serve sends the request through the router and decodes the json answer.
func serve(t *testing.T, router http.Handler, req *http.Request) (int, map[string]interface{}) {
	t.Helper()
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	res := w.Result()
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	body := make(map[string]interface{})
	if len(data) > 0 {
		require.NoError(t, json.Unmarshal(data, &body), "body: %s", data)
	}
	return res.StatusCode, body
}

func newTestCatalogService() *CatalogService {
	return NewCatalogService(zap.NewNop(), NewMockClocker(), NewMemoryCatalogStorage(), NewStaticEnricher(), nil, nil)
}

func createTestBook(t *testing.T, router http.Handler, title, isbn string) string {
	t.Helper()
	status, body := serve(t, router, newJSONRequest(http.MethodPost, "/books",
		`{"title":"`+title+`","ISBN":"`+isbn+`","genre":"Science Fiction"}`))
	require.Equal(t, http.StatusCreated, status, "body: %v", body)
	data := body["data"].(map[string]interface{})
	return data["id"].(string)
}

// TestStatusHandler ensures api handler can provides its status.
func TestStatusHandler(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()
	api := newTestAPIHandler(nil, nil, nil)
	api.Status(w, req, httprouter.Params{})
	res := w.Result()
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "application/json; charset=UTF-8", res.Header.Get("Content-Type"))
	m := make(map[string]interface{})
	err = json.Unmarshal(data, &m)
	assert.NoError(t, err)

	_, ok := m["requestid"]
	assert.True(t, ok)

	v, ok := m["status"]
	assert.True(t, ok)
	assert.Equal(t, "up & running since 0 mins", v)

	v, ok = m["message"]
	assert.True(t, ok)
	assert.Equal(t, "Hello. Book club api is available. Enjoy :)", v)
}

// TestCreateBookHandler ensures api handler can create a book.
//
//nolint:funlen
func TestCreateBookHandler(t *testing.T) {
	router := newTestRouter(newTestAPIHandler(newTestCatalogService(), nil, nil))

	t.Run("should pass: valid payload", func(t *testing.T) {
		status, body := serve(t, router, newJSONRequest(http.MethodPost, "/books",
			`{"title":"Dune","ISBN":"9780441172719","genre":"Science Fiction"}`))
		assert.Equal(t, http.StatusCreated, status)
		assert.Equal(t, "r:abc", body["requestid"])
		assert.Equal(t, float64(http.StatusCreated), body["status"])
		assert.Equal(t, "Book created successfully.", body["message"])
		assert.Equal(t, map[string]interface{}{"id": "1"}, body["data"])
		_, ok := body["total"]
		assert.False(t, ok)
	})

	t.Run("should fail: duplicate isbn", func(t *testing.T) {
		status, body := serve(t, router, newJSONRequest(http.MethodPost, "/books",
			`{"title":"Dune again","ISBN":"9780441172719","genre":"Fantasy"}`))
		assert.Equal(t, http.StatusUnprocessableEntity, status)
		assert.Equal(t, ErrDuplicateISBN.Error(), body["data"])
	})

	t.Run("should fail: unsupported media type", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/books", strings.NewReader(`{}`))
		status, _ := serve(t, router, req)
		assert.Equal(t, http.StatusUnsupportedMediaType, status)
	})

	t.Run("should fail: invalid json", func(t *testing.T) {
		status, _ := serve(t, router, newJSONRequest(http.MethodPost, "/books", `{"title":`))
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("should fail: unexpected field", func(t *testing.T) {
		status, body := serve(t, router, newJSONRequest(http.MethodPost, "/books",
			`{"title":"Dune","ISBN":"9780441172719","genre":"Fiction","price":"10$"}`))
		assert.Equal(t, http.StatusUnprocessableEntity, status)
		assert.Equal(t, "price is not a supported field", body["data"])
	})

	t.Run("should fail: storage insertion failure", func(t *testing.T) {
		storage := &MockCatalogStorage{
			ListBooksFunc: func(ctx context.Context) ([]Book, error) {
				return nil, nil
			},
			AllocateFunc: func(ctx context.Context) (int, error) {
				return 1, nil
			},
			AddBookFunc: func(ctx context.Context, book Book, rating Rating) error {
				return errors.New("storage failure")
			},
		}
		cs := NewCatalogService(zap.NewNop(), NewMockClocker(), storage, NewStaticEnricher(), nil, nil)
		status, body := serve(t, newTestRouter(newTestAPIHandler(cs, nil, nil)), newJSONRequest(http.MethodPost, "/books",
			`{"title":"Dune","ISBN":"9780441172719","genre":"Fiction"}`))
		assert.Equal(t, http.StatusInternalServerError, status)
		assert.Equal(t, "failed to create the book", body["message"])
		assert.Equal(t, map[string]interface{}{}, body["data"])
	})
}

func TestGetBooksHandlers(t *testing.T) {
	router := newTestRouter(newTestAPIHandler(newTestCatalogService(), nil, nil))
	createTestBook(t, router, "Dune", "9780441172719")
	createTestBook(t, router, "Hyperion", "9780553283686")

	t.Run("list all", func(t *testing.T) {
		status, body := serve(t, router, httptest.NewRequest(http.MethodGet, "/books", nil))
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, float64(2), body["total"])
		assert.Len(t, body["data"], 2)
	})

	t.Run("single match is an object", func(t *testing.T) {
		status, body := serve(t, router, httptest.NewRequest(http.MethodGet, "/books?ISBN=9780553283686", nil))
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, float64(1), body["total"])
		book, ok := body["data"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "Hyperion", book["title"])
	})

	t.Run("no match", func(t *testing.T) {
		status, body := serve(t, router, httptest.NewRequest(http.MethodGet, "/books?title=Nothing", nil))
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, float64(0), body["total"])
		assert.Equal(t, []interface{}{}, body["data"])
	})

	t.Run("unsupported filter", func(t *testing.T) {
		status, _ := serve(t, router, httptest.NewRequest(http.MethodGet, "/books?price=3", nil))
		assert.Equal(t, http.StatusUnprocessableEntity, status)
	})

	t.Run("get one", func(t *testing.T) {
		status, body := serve(t, router, httptest.NewRequest(http.MethodGet, "/books/1", nil))
		assert.Equal(t, http.StatusOK, status)
		book := body["data"].(map[string]interface{})
		assert.Equal(t, "Dune", book["title"])
		assert.Equal(t, "Frank Herbert", book["authors"])
		assert.Equal(t, []interface{}{"eng"}, book["language"])
	})

	t.Run("get one invalid id", func(t *testing.T) {
		status, _ := serve(t, router, httptest.NewRequest(http.MethodGet, "/books/abc", nil))
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("get one missing", func(t *testing.T) {
		status, body := serve(t, router, httptest.NewRequest(http.MethodGet, "/books/9", nil))
		assert.Equal(t, http.StatusNotFound, status)
		assert.Equal(t, ErrBookNotFound.Error(), body["data"])
	})
}

func TestUpdateBookHandler(t *testing.T) {
	router := newTestRouter(newTestAPIHandler(newTestCatalogService(), nil, nil))
	createTestBook(t, router, "Dune", "9780441172719")

	t.Run("missing book answers 404 before reading the payload", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/books/4", strings.NewReader(`not json`))
		status, _ := serve(t, router, req)
		assert.Equal(t, http.StatusNotFound, status)
	})

	t.Run("partial payload", func(t *testing.T) {
		status, _ := serve(t, router, newJSONRequest(http.MethodPut, "/books/1", `{"title":"Dune"}`))
		assert.Equal(t, http.StatusUnprocessableEntity, status)
	})

	t.Run("full replacement", func(t *testing.T) {
		body := strings.Replace(validUpdateBody, `"id":"4"`, `"id":"1"`, 1)
		status, resp := serve(t, router, newJSONRequest(http.MethodPut, "/books/1", body))
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, "Book updated successfully.", resp["message"])
		assert.Equal(t, map[string]interface{}{"id": "1"}, resp["data"])

		_, resp = serve(t, router, httptest.NewRequest(http.MethodGet, "/books/1", nil))
		book := resp["data"].(map[string]interface{})
		assert.Equal(t, "Spice.", book["summary"])
		assert.Equal(t, "Fiction", book["genre"])
	})

	t.Run("id mismatch", func(t *testing.T) {
		status, _ := serve(t, router, newJSONRequest(http.MethodPut, "/books/1", validUpdateBody))
		assert.Equal(t, http.StatusUnprocessableEntity, status)
	})
}

func TestDeleteBookHandler(t *testing.T) {
	router := newTestRouter(newTestAPIHandler(newTestCatalogService(), nil, nil))
	createTestBook(t, router, "Dune", "9780441172719")

	status, body := serve(t, router, httptest.NewRequest(http.MethodDelete, "/books/1", nil))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "1", body["data"])

	status, _ = serve(t, router, httptest.NewRequest(http.MethodGet, "/ratings/1", nil))
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = serve(t, router, httptest.NewRequest(http.MethodDelete, "/books/1", nil))
	assert.Equal(t, http.StatusNotFound, status)

	// identifiers are never handed out twice.
	assert.Equal(t, "2", createTestBook(t, router, "Dune", "9780441172719"))
}

func TestRatingsHandlers(t *testing.T) {
	router := newTestRouter(newTestAPIHandler(newTestCatalogService(), nil, nil))
	for i, isbn := range []string{"9780441172719", "9780553283686", "9780345391803", "9780765326355"} {
		createTestBook(t, router, "Book "+FormatID(i+1), isbn)
	}

	rate := func(id string, value string) (int, map[string]interface{}) {
		return serve(t, router, newJSONRequest(http.MethodPost, "/ratings/"+id+"/values", `{"value":`+value+`}`))
	}

	t.Run("add value returns the new average", func(t *testing.T) {
		status, body := rate("1", "5")
		assert.Equal(t, http.StatusCreated, status)
		assert.Equal(t, map[string]interface{}{"average": float64(5)}, body["data"])
		_, body = rate("1", "4")
		assert.Equal(t, map[string]interface{}{"average": 4.5}, body["data"])
	})

	t.Run("invalid value", func(t *testing.T) {
		status, _ := rate("1", "9")
		assert.Equal(t, http.StatusUnprocessableEntity, status)
	})

	t.Run("unknown book answers 404 before the payload", func(t *testing.T) {
		status, _ := rate("42", "9")
		assert.Equal(t, http.StatusNotFound, status)
	})

	t.Run("get one rating", func(t *testing.T) {
		status, body := serve(t, router, httptest.NewRequest(http.MethodGet, "/ratings/1", nil))
		assert.Equal(t, http.StatusOK, status)
		rating := body["data"].(map[string]interface{})
		assert.Equal(t, []interface{}{float64(5), float64(4)}, rating["values"])
		assert.Equal(t, "Book 1", rating["title"])
	})

	t.Run("list ratings by id", func(t *testing.T) {
		status, body := serve(t, router, httptest.NewRequest(http.MethodGet, "/ratings?id=2", nil))
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, float64(1), body["total"])
	})

	t.Run("top books", func(t *testing.T) {
		for id, values := range map[string][]string{
			"1": {"5"},
			"2": {"4", "4", "4"},
			"3": {"2", "2", "2"},
			"4": {"5", "5"},
		} {
			for _, v := range values {
				status, _ := rate(id, v)
				require.Equal(t, http.StatusCreated, status)
			}
		}
		status, body := serve(t, router, httptest.NewRequest(http.MethodGet, "/top", nil))
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, float64(3), body["total"])
		top := body["data"].([]interface{})
		ids := []string{}
		for _, entry := range top {
			ids = append(ids, entry.(map[string]interface{})["id"].(string))
		}
		// book 1 holds 5,4,5 (4.67), book 2 4.0, book 3 2.0. book 4 has two values only.
		assert.Equal(t, []string{"1", "2", "3"}, ids)
	})
}
