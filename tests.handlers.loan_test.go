package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newTestLibrary runs a books role instance over http and returns a router
// serving the loans role which checks books against it.
func newTestLibrary(t *testing.T) (catalog http.Handler, loans http.Handler) {
	t.Helper()
	catalog = newTestRouter(newTestAPIHandler(newTestCatalogService(), nil, nil))
	server := httptest.NewServer(catalog)
	t.Cleanup(server.Close)

	client := NewCatalogClient(zap.NewNop(), &CatalogConfig{URL: server.URL, Timeout: time.Second}, nil)
	ls := NewLoanService(zap.NewNop(), NewMockClocker(), NewMemoryLoanStorage(), client, nil, nil)
	loans = newTestRouter(newTestAPIHandler(nil, ls, nil))
	return catalog, loans
}

func loanBody(member, isbn, date string) string {
	return `{"memberName":"` + member + `","ISBN":"` + isbn + `","loanDate":"` + date + `"}`
}

//nolint:funlen
func TestLoanHandlers(t *testing.T) {
	catalog, router := newTestLibrary(t)
	createTestBook(t, catalog, "Dune", "9780441172719")
	createTestBook(t, catalog, "Hyperion", "9780553283686")
	createTestBook(t, catalog, "Foundation", "9780553293357")

	t.Run("create loan", func(t *testing.T) {
		status, body := serve(t, router, newJSONRequest(http.MethodPost, "/loans", loanBody("ada", "9780441172719", "2024-02-29")))
		require.Equal(t, http.StatusCreated, status, "body: %v", body)
		assert.Equal(t, "Loan created successfully.", body["message"])
		assert.Equal(t, map[string]interface{}{"loanID": "1"}, body["data"])

		status, body = serve(t, router, httptest.NewRequest(http.MethodGet, "/loans/1", nil))
		assert.Equal(t, http.StatusOK, status)
		loan := body["data"].(map[string]interface{})
		assert.Equal(t, "1", loan["bookID"])
		assert.Equal(t, "Dune", loan["title"])
	})

	t.Run("book already on loan", func(t *testing.T) {
		status, body := serve(t, router, newJSONRequest(http.MethodPost, "/loans", loanBody("bob", "9780441172719", "2024-03-01")))
		assert.Equal(t, http.StatusUnprocessableEntity, status)
		assert.Equal(t, ErrISBNAlreadyOnLoan.Error(), body["data"])
	})

	t.Run("book not in library", func(t *testing.T) {
		status, body := serve(t, router, newJSONRequest(http.MethodPost, "/loans", loanBody("bob", "9780000000000", "2024-03-01")))
		assert.Equal(t, http.StatusNotFound, status)
		assert.Equal(t, ErrBookNotInLibrary.Error(), body["data"])
	})

	t.Run("member limit", func(t *testing.T) {
		status, _ := serve(t, router, newJSONRequest(http.MethodPost, "/loans", loanBody("ada", "9780553283686", "2024-03-01")))
		require.Equal(t, http.StatusCreated, status)
		status, body := serve(t, router, newJSONRequest(http.MethodPost, "/loans", loanBody("ada", "9780553293357", "2024-03-01")))
		assert.Equal(t, http.StatusUnprocessableEntity, status)
		assert.Equal(t, ErrMemberLoanLimit.Error(), body["data"])
	})

	t.Run("invalid date", func(t *testing.T) {
		status, _ := serve(t, router, newJSONRequest(http.MethodPost, "/loans", loanBody("carl", "9780553293357", "2024-02-30")))
		assert.Equal(t, http.StatusUnprocessableEntity, status)
	})

	t.Run("missing field", func(t *testing.T) {
		status, body := serve(t, router, newJSONRequest(http.MethodPost, "/loans", `{"memberName":"carl","ISBN":"9780553293357"}`))
		assert.Equal(t, http.StatusUnprocessableEntity, status)
		assert.Equal(t, "loanDate is required", body["data"])
	})

	t.Run("list loans of a member", func(t *testing.T) {
		status, body := serve(t, router, httptest.NewRequest(http.MethodGet, "/loans?memberName=ada", nil))
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, float64(2), body["total"])
	})

	t.Run("return a book frees the member slot", func(t *testing.T) {
		status, body := serve(t, router, httptest.NewRequest(http.MethodDelete, "/loans/1", nil))
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, "1", body["data"])
		status, _ = serve(t, router, newJSONRequest(http.MethodPost, "/loans", loanBody("ada", "9780553293357", "2024-03-02")))
		assert.Equal(t, http.StatusCreated, status)
		status, _ = serve(t, router, httptest.NewRequest(http.MethodDelete, "/loans/1", nil))
		assert.Equal(t, http.StatusNotFound, status)
	})

	t.Run("invalid loan id", func(t *testing.T) {
		status, _ := serve(t, router, httptest.NewRequest(http.MethodGet, "/loans/zero", nil))
		assert.Equal(t, http.StatusBadRequest, status)
	})
}

func TestCreateLoanHandler_UpstreamDown(t *testing.T) {
	storage := &MockLoanStorage{
		ListLoansFunc: func(ctx context.Context) ([]Loan, error) {
			return nil, nil
		},
		AllocateFunc: func(ctx context.Context) (int, error) {
			t.Fatal("allocate must not be called")
			return 0, nil
		},
	}
	client := &MockCatalogClient{
		FindByISBNFunc: func(ctx context.Context, isbn string) (Book, error) {
			return Book{}, ErrUpstreamUnavailable
		},
	}
	ls := NewLoanService(zap.NewNop(), NewMockClocker(), storage, client, nil, nil)
	router := newTestRouter(newTestAPIHandler(nil, ls, nil))
	status, body := serve(t, router, newJSONRequest(http.MethodPost, "/loans", loanBody("ada", "9780441172719", "2024-02-29")))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "failed to create the loan", body["message"])
}
