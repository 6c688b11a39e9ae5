package main

import (
	_ "github.com/jeamon/bookclub/docs"
	"github.com/julienschmidt/httprouter"
	httpswagger "github.com/swaggo/http-swagger/v2"
)

// MiddlewareMap contains middlwares chain to
// use for public-facing and ops requests.
type MiddlewareMap struct {
	public func(httprouter.Handle) httprouter.Handle
	ops    func(httprouter.Handle) httprouter.Handle
}

// SetupRoutes injects the endpoints of the configured roles and the ops
// related endpoints if required.
func (api *APIHandler) SetupRoutes(router *httprouter.Router, m *MiddlewareMap) *httprouter.Router {
	router.RedirectTrailingSlash = true
	router.NotFound = api.NotFound()
	router.GET("/", m.public(api.Index))
	router.GET("/status", m.public(api.Status))
	if api.config.HasRole(BooksRole) && api.catalogService != nil {
		api.SetupBookRoutes(router, m)
	}
	if api.config.HasRole(LoansRole) && api.loanService != nil {
		api.SetupLoanRoutes(router, m)
	}
	if api.config.OpsEndpointsEnable {
		api.SetupOpsRoutes(router, m)
	}
	router.GET("/swagger/*any", m.public(api.OpsHandlerWrapper(httpswagger.WrapHandler)))
	return router
}
