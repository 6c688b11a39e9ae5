package main

import (
	"github.com/julienschmidt/httprouter"
)

// SetupLoanRoutes injects the loans endpoints.
func (api *APIHandler) SetupLoanRoutes(router *httprouter.Router, m *MiddlewareMap) *httprouter.Router {
	router.RedirectTrailingSlash = true
	router.POST("/loans", m.public(api.CreateLoan))
	router.GET("/loans", m.public(api.GetAllLoans))
	router.GET("/loans/:id", m.public(api.GetOneLoan))
	router.DELETE("/loans/:id", m.public(api.DeleteOneLoan))
	return router
}
