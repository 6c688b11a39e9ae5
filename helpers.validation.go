package main

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"time"
	"unicode/utf8"
)

// BookRequest is the payload of a book creation. Every other book
// field is filled by the enrichment lookups.
type BookRequest struct {
	Title string `json:"title"`
	ISBN  string `json:"ISBN"`
	Genre Genre  `json:"genre"`
}

var (
	createBookFields = []string{"title", "ISBN", "genre"}
	updateBookFields = []string{"id", "title", "ISBN", "genre", "authors", "publisher", "publishedDate", "language", "summary"}
	ratingFields     = []string{"value"}
	loanFields       = []string{"memberName", "ISBN", "loanDate"}

	bookFilterFields = map[string]struct{}{
		"id": {}, "title": {}, "ISBN": {}, "genre": {}, "authors": {},
		"publisher": {}, "publishedDate": {}, "language": {}, "summary": {},
	}
	loanFilterFields = map[string]struct{}{
		"loanID": {}, "memberName": {}, "ISBN": {}, "loanDate": {}, "bookID": {}, "title": {},
	}
)

var loanDateFormat = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// CheckJSONContentType rejects requests whose body is not declared as json.
func CheckJSONContentType(r *http.Request) error {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		return ErrUnsupportedMediaType
	}
	return nil
}

// decodeExactFields reads a json object from the request body and ensures
// it holds exactly the expected fields.
func decodeExactFields(r *http.Request, expected []string) (map[string]json.RawMessage, error) {
	if err := CheckJSONContentType(r); err != nil {
		return nil, err
	}
	if r.Body == nil {
		return nil, ErrInvalidJSON
	}
	var payload map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	if payload == nil {
		return nil, ErrInvalidJSON
	}

	allowed := make(map[string]struct{}, len(expected))
	for _, f := range expected {
		allowed[f] = struct{}{}
	}
	fields := make([]string, 0, len(payload))
	for f := range payload {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		if _, ok := allowed[f]; !ok {
			return nil, unexpectedFieldError(f)
		}
	}
	for _, f := range expected {
		if _, ok := payload[f]; !ok {
			return nil, missingFieldError(f)
		}
	}
	return payload, nil
}

func stringField(payload map[string]json.RawMessage, field string) (string, error) {
	var s string
	if err := json.Unmarshal(payload[field], &s); err != nil {
		return "", invalidField(field, "must be a string")
	}
	return s, nil
}

func stringsField(payload map[string]json.RawMessage, field string) ([]string, error) {
	var s []string
	if err := json.Unmarshal(payload[field], &s); err != nil || s == nil {
		return nil, invalidField(field, "must be a list of strings")
	}
	return s, nil
}

func validateGenre(g Genre) error {
	if !g.IsValid() {
		return invalidField("genre", "is not a supported genre")
	}
	return nil
}

// validateISBN counts characters, not bytes.
func validateISBN(isbn string) error {
	if utf8.RuneCountInString(isbn) != ISBNLength {
		return invalidField("ISBN", "must be 13 characters long")
	}
	return nil
}

// DecodeCreateBookRequest reads and validates the payload of a book creation.
func DecodeCreateBookRequest(r *http.Request) (BookRequest, error) {
	var req BookRequest
	payload, err := decodeExactFields(r, createBookFields)
	if err != nil {
		return req, err
	}
	if req.Title, err = stringField(payload, "title"); err != nil {
		return req, err
	}
	if req.ISBN, err = stringField(payload, "ISBN"); err != nil {
		return req, err
	}
	genre, err := stringField(payload, "genre")
	if err != nil {
		return req, err
	}
	req.Genre = Genre(genre)
	if err = validateGenre(req.Genre); err != nil {
		return req, err
	}
	return req, validateISBN(req.ISBN)
}

// DecodeUpdateBookRequest reads and validates the full replacement of the book
// identified by id. The payload id must designate the same book.
func DecodeUpdateBookRequest(r *http.Request, id string) (Book, error) {
	var book Book
	payload, err := decodeExactFields(r, updateBookFields)
	if err != nil {
		return book, err
	}
	values := map[string]*string{
		"id":            &book.ID,
		"title":         &book.Title,
		"ISBN":          &book.ISBN,
		"authors":       &book.Authors,
		"publisher":     &book.Publisher,
		"publishedDate": &book.PublishedDate,
		"summary":       &book.Summary,
	}
	for _, field := range updateBookFields {
		dst, ok := values[field]
		if !ok {
			continue
		}
		if *dst, err = stringField(payload, field); err != nil {
			return book, err
		}
	}
	genre, err := stringField(payload, "genre")
	if err != nil {
		return book, err
	}
	book.Genre = Genre(genre)
	if book.Language, err = stringsField(payload, "language"); err != nil {
		return book, err
	}

	if book.ID != id {
		return book, invalidField("id", "does not match the book being updated")
	}
	if err = validateGenre(book.Genre); err != nil {
		return book, err
	}
	return book, validateISBN(book.ISBN)
}

// RatingValueRequest is the payload of a rating submission.
type RatingValueRequest struct {
	Value int `json:"value"`
}

// DecodeRatingValue reads the integer value of a rating payload.
func DecodeRatingValue(r *http.Request) (int, error) {
	payload, err := decodeExactFields(r, ratingFields)
	if err != nil {
		return 0, err
	}
	var req RatingValueRequest
	if err = json.Unmarshal(payload["value"], &req.Value); err != nil {
		return 0, invalidField("value", "must be an integer between 1 and 5")
	}
	if req.Value < MinRatingValue || req.Value > MaxRatingValue {
		return 0, invalidField("value", "must be an integer between 1 and 5")
	}
	return req.Value, nil
}

// DecodeLoanRequest reads the payload of a loan creation. Only its shape is
// checked here, the loan rules are enforced by the loan service.
func DecodeLoanRequest(r *http.Request) (LoanRequest, error) {
	var req LoanRequest
	payload, err := decodeExactFields(r, loanFields)
	if err != nil {
		return req, err
	}
	if req.MemberName, err = stringField(payload, "memberName"); err != nil {
		return req, err
	}
	if req.ISBN, err = stringField(payload, "ISBN"); err != nil {
		return req, err
	}
	if req.LoanDate, err = stringField(payload, "loanDate"); err != nil {
		return req, err
	}
	return req, nil
}

// ValidateLoanDate accepts YYYY-MM-DD dates that exist in the calendar.
func ValidateLoanDate(date string) error {
	if !loanDateFormat.MatchString(date) {
		return invalidField("loanDate", "must use the YYYY-MM-DD format")
	}
	if _, err := time.Parse(LoanDateLayout, date); err != nil {
		return invalidField("loanDate", "is not a valid date")
	}
	return nil
}

// ParseBookFilter builds the listing criteria from the query string.
func ParseBookFilter(query url.Values) (BookFilter, error) {
	filter := BookFilter{}
	for field := range query {
		if _, ok := bookFilterFields[field]; !ok {
			return nil, unexpectedFieldError(field)
		}
		value := query.Get(field)
		switch field {
		case "genre":
			if err := validateGenre(Genre(value)); err != nil {
				return nil, err
			}
		case "language":
			if _, ok := filterLanguages[value]; !ok {
				return nil, invalidField("language", "must be one of heb, eng, spa, chi")
			}
		}
		filter[field] = value
	}
	return filter, nil
}

// ParseLoanFilter builds the loans listing criteria from the query string.
func ParseLoanFilter(query url.Values) (LoanFilter, error) {
	filter := LoanFilter{}
	for field := range query {
		if _, ok := loanFilterFields[field]; !ok {
			return nil, unexpectedFieldError(field)
		}
		filter[field] = query.Get(field)
	}
	return filter, nil
}
