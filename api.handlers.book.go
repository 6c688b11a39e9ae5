package main

import (
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

// CreateBook godoc
// @Summary      Add a book to the catalog
// @Tags         books
// @Accept       json
// @Produce      json
// @Param        book  body      BookRequest  true  "title, ISBN and genre"
// @Success      201   {object}  APIResponse
// @Failure      400,415,422,500  {object}  APIError
// @Router       /books [post]
func (api *APIHandler) CreateBook(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	req, err := DecodeCreateBookRequest(r)
	if err != nil {
		api.sendError(w, r, err, "failed to create the book")
		return
	}

	book, err := api.catalogService.CreateBook(r.Context(), req)
	if err != nil {
		api.sendError(w, r, err, "failed to create the book", zap.String("book.isbn", req.ISBN))
		return
	}
	api.logger.Info("success to create book",
		zap.String("request.id", GetValueFromContext(r.Context(), ContextRequestID)),
		zap.String("book.id", book.ID),
	)
	api.sendResponse(w, r, http.StatusCreated, "Book created successfully.", nil, map[string]string{"id": book.ID})
}

// GetAllBooks godoc
// @Summary      List the books matching the query criteria
// @Tags         books
// @Produce      json
// @Param        genre     query     string  false  "exact genre"
// @Param        language  query     string  false  "one of heb, eng, spa, chi"
// @Success      200       {object}  APIResponse
// @Failure      422       {object}  APIError
// @Router       /books [get]
//
//nolint:bodyclose
func (api *APIHandler) GetAllBooks(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	requestID := GetValueFromContext(r.Context(), ContextRequestID)
	// a full scan of the catalog may take longer than the default write deadline.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Now().Add(api.config.Server.LongRequestWriteTimeout)); err != nil {
		api.logger.Debug("http: failed to update the write deadline", zap.String("request.id", requestID), zap.Error(err))
	}

	filter, err := ParseBookFilter(r.URL.Query())
	if err != nil {
		api.sendError(w, r, err, "failed to get books")
		return
	}
	books, err := api.catalogService.ListBooks(r.Context(), filter)
	if err != nil {
		api.sendError(w, r, err, "failed to get books")
		return
	}
	api.logger.Info("success to get books", zap.String("request.id", requestID), zap.Int("books.count", len(books)))
	total := len(books)
	if total == 1 {
		api.sendResponse(w, r, http.StatusOK, "Book fetched successfully.", &total, books[0])
		return
	}
	api.sendResponse(w, r, http.StatusOK, "Books fetched successfully.", &total, books)
}

// GetOneBook godoc
// @Summary      Fetch a book
// @Tags         books
// @Produce      json
// @Param        id   path      int  true  "book id"
// @Success      200  {object}  APIResponse
// @Failure      400,404  {object}  APIError
// @Router       /books/{id} [get]
func (api *APIHandler) GetOneBook(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	bid, err := ParseID(id)
	if err != nil {
		api.sendError(w, r, err, "book id provided is not valid", zap.String("book.id", id))
		return
	}
	book, err := api.catalogService.GetBook(r.Context(), bid)
	if err != nil {
		api.sendError(w, r, err, "failed to get the book", zap.String("book.id", id))
		return
	}
	api.sendResponse(w, r, http.StatusOK, "Book fetched successfully.", nil, book)
}

// UpdateBook godoc
// @Summary      Replace every field of a book
// @Tags         books
// @Accept       json
// @Produce      json
// @Param        id    path      int   true  "book id"
// @Param        book  body      Book  true  "the full book"
// @Success      200   {object}  APIResponse
// @Failure      400,404,415,422  {object}  APIError
// @Router       /books/{id} [put]
func (api *APIHandler) UpdateBook(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	bid, err := ParseID(id)
	if err != nil {
		api.sendError(w, r, err, "book id provided is not valid", zap.String("book.id", id))
		return
	}
	if _, err = api.catalogService.GetBook(r.Context(), bid); err != nil {
		api.sendError(w, r, err, "failed to update the book", zap.String("book.id", id))
		return
	}

	book, err := DecodeUpdateBookRequest(r, id)
	if err != nil {
		api.sendError(w, r, err, "failed to update the book", zap.String("book.id", id))
		return
	}
	book, err = api.catalogService.UpdateBook(r.Context(), bid, book)
	if err != nil {
		api.sendError(w, r, err, "failed to update the book", zap.String("book.id", id))
		return
	}
	api.logger.Info("success to update book",
		zap.String("request.id", GetValueFromContext(r.Context(), ContextRequestID)),
		zap.String("book.id", book.ID),
	)
	api.sendResponse(w, r, http.StatusOK, "Book updated successfully.", nil, map[string]string{"id": book.ID})
}

// DeleteOneBook godoc
// @Summary      Remove a book and its rating
// @Tags         books
// @Produce      json
// @Param        id   path      int  true  "book id"
// @Success      200  {object}  APIResponse
// @Failure      400,404  {object}  APIError
// @Router       /books/{id} [delete]
func (api *APIHandler) DeleteOneBook(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	bid, err := ParseID(id)
	if err != nil {
		api.sendError(w, r, err, "book id provided is not valid", zap.String("book.id", id))
		return
	}
	if err = api.catalogService.DeleteBook(r.Context(), bid); err != nil {
		api.sendError(w, r, err, "failed to delete the book", zap.String("book.id", id))
		return
	}
	api.logger.Info("success to delete book",
		zap.String("request.id", GetValueFromContext(r.Context(), ContextRequestID)),
		zap.String("book.id", id),
	)
	api.sendResponse(w, r, http.StatusOK, "Book deleted successfully.", nil, id)
}

// GetAllRatings godoc
// @Summary      List the ratings, optionally of a single book
// @Tags         ratings
// @Produce      json
// @Param        id   query     string  false  "book id"
// @Success      200  {object}  APIResponse
// @Router       /ratings [get]
func (api *APIHandler) GetAllRatings(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ratings, err := api.catalogService.ListRatings(r.Context(), r.URL.Query().Get("id"))
	if err != nil {
		api.sendError(w, r, err, "failed to get ratings")
		return
	}
	total := len(ratings)
	api.sendResponse(w, r, http.StatusOK, "Ratings fetched successfully.", &total, ratings)
}

// GetOneRating godoc
// @Summary      Fetch the rating of a book
// @Tags         ratings
// @Produce      json
// @Param        id   path      int  true  "book id"
// @Success      200  {object}  APIResponse
// @Failure      400,404  {object}  APIError
// @Router       /ratings/{id} [get]
func (api *APIHandler) GetOneRating(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	rid, err := ParseID(id)
	if err != nil {
		api.sendError(w, r, err, "rating id provided is not valid", zap.String("book.id", id))
		return
	}
	rating, err := api.catalogService.GetRating(r.Context(), rid)
	if err != nil {
		api.sendError(w, r, err, "failed to get the rating", zap.String("book.id", id))
		return
	}
	api.sendResponse(w, r, http.StatusOK, "Rating fetched successfully.", nil, rating)
}

// AddRatingValue godoc
// @Summary      Rate a book from 1 to 5
// @Tags         ratings
// @Accept       json
// @Produce      json
// @Param        id     path      int                 true  "book id"
// @Param        value  body      RatingValueRequest  true  "value between 1 and 5"
// @Success      201  {object}  APIResponse
// @Failure      400,404,415,422  {object}  APIError
// @Router       /ratings/{id}/values [post]
func (api *APIHandler) AddRatingValue(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	rid, err := ParseID(id)
	if err != nil {
		api.sendError(w, r, err, "rating id provided is not valid", zap.String("book.id", id))
		return
	}
	if _, err = api.catalogService.GetRating(r.Context(), rid); err != nil {
		api.sendError(w, r, err, "failed to rate the book", zap.String("book.id", id))
		return
	}

	value, err := DecodeRatingValue(r)
	if err != nil {
		api.sendError(w, r, err, "failed to rate the book", zap.String("book.id", id))
		return
	}
	rating, err := api.catalogService.AddRatingValue(r.Context(), rid, value)
	if err != nil {
		api.sendError(w, r, err, "failed to rate the book", zap.String("book.id", id))
		return
	}
	api.sendResponse(w, r, http.StatusCreated, "Rating added successfully.", nil, map[string]float64{"average": rating.Average})
}

// GetTopBooks godoc
// @Summary      List the books holding the three best averages
// @Tags         ratings
// @Produce      json
// @Success      200  {object}  APIResponse
// @Router       /top [get]
func (api *APIHandler) GetTopBooks(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	top, err := api.catalogService.TopBooks(r.Context())
	if err != nil {
		api.sendError(w, r, err, "failed to get top books")
		return
	}
	total := len(top)
	api.sendResponse(w, r, http.StatusOK, "Top books fetched successfully.", &total, top)
}
