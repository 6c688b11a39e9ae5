package main

import (
	"github.com/julienschmidt/httprouter"
)

// SetupBookRoutes injects the books, ratings and ranking endpoints.
func (api *APIHandler) SetupBookRoutes(router *httprouter.Router, m *MiddlewareMap) *httprouter.Router {
	router.RedirectTrailingSlash = true
	router.POST("/books", m.public(api.CreateBook))
	router.GET("/books", m.public(api.GetAllBooks))
	router.GET("/books/:id", m.public(api.GetOneBook))
	router.PUT("/books/:id", m.public(api.UpdateBook))
	router.DELETE("/books/:id", m.public(api.DeleteOneBook))

	router.GET("/ratings", m.public(api.GetAllRatings))
	router.GET("/ratings/:id", m.public(api.GetOneRating))
	router.POST("/ratings/:id/values", m.public(api.AddRatingValue))
	router.GET("/top", m.public(api.GetTopBooks))
	return router
}
