package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// CatalogClient checks a book exists in the catalog.
type CatalogClient interface {
	FindByISBN(ctx context.Context, isbn string) (Book, error)
}

var _ CatalogClient = (*httpCatalogClient)(nil)

// httpCatalogClient queries the public books listing of the catalog service.
// It never retries: a failed call fails the loan.
type httpCatalogClient struct {
	logger  *zap.Logger
	baseURL string
	client  *http.Client
	metrics *Metrics
}

// NewCatalogClient provides a client bound to the configured books service.
func NewCatalogClient(logger *zap.Logger, config *CatalogConfig, metrics *Metrics) CatalogClient {
	return &httpCatalogClient{
		logger:  logger,
		baseURL: strings.TrimRight(config.URL, "/"),
		client:  &http.Client{Timeout: config.Timeout},
		metrics: metrics,
	}
}

// FindByISBN returns the catalog book with this ISBN. A transport failure or an
// unreadable answer is ErrUpstreamUnavailable. A non-200 answer or an empty
// result is ErrBookNotInLibrary.
func (cc *httpCatalogClient) FindByISBN(ctx context.Context, isbn string) (Book, error) {
	endpoint := cc.baseURL + "/books?" + url.Values{"ISBN": {isbn}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Book{}, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := cc.client.Do(req)
	if err != nil {
		cc.metrics.ObserveUpstreamCall(CatalogUpstream, "error", time.Since(start))
		return Book{}, fmt.Errorf("%w: books service: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		cc.metrics.ObserveUpstreamCall(CatalogUpstream, "not_found", time.Since(start))
		cc.logger.Debug("catalog: lookup answered with non-ok status",
			zap.String("book.isbn", isbn),
			zap.Int("upstream.status", resp.StatusCode),
		)
		return Book{}, ErrBookNotInLibrary
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		cc.metrics.ObserveUpstreamCall(CatalogUpstream, "error", time.Since(start))
		return Book{}, fmt.Errorf("%w: books service: %v", ErrUpstreamUnavailable, err)
	}
	books, err := decodeCatalogBooks(body)
	if err != nil {
		cc.metrics.ObserveUpstreamCall(CatalogUpstream, "error", time.Since(start))
		return Book{}, fmt.Errorf("%w: books service: invalid response: %v", ErrUpstreamUnavailable, err)
	}
	if len(books) == 0 {
		cc.metrics.ObserveUpstreamCall(CatalogUpstream, "not_found", time.Since(start))
		return Book{}, ErrBookNotInLibrary
	}
	cc.metrics.ObserveUpstreamCall(CatalogUpstream, "success", time.Since(start))
	return books[0], nil
}

// decodeCatalogBooks accepts the api envelope whose data is either a single
// book or a list of books, as well as a bare book or list of books.
func decodeCatalogBooks(body []byte) ([]Book, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, nil
	}
	if body[0] == '{' {
		var envelope struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(body, &envelope); err != nil {
			return nil, err
		}
		if envelope.Data != nil {
			body = bytes.TrimSpace(envelope.Data)
		}
	}
	switch {
	case len(body) == 0 || bytes.Equal(body, []byte("null")):
		return nil, nil
	case body[0] == '[':
		var books []Book
		err := json.Unmarshal(body, &books)
		return books, err
	case body[0] == '{':
		var book Book
		if err := json.Unmarshal(body, &book); err != nil {
			return nil, err
		}
		if book.ID == "" {
			return nil, nil
		}
		return []Book{book}, nil
	default:
		return nil, fmt.Errorf("unexpected payload %q", string(body[:1]))
	}
}
