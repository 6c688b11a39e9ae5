package main

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

// CreateLoan godoc
// @Summary      Lend a catalog book to a member
// @Tags         loans
// @Accept       json
// @Produce      json
// @Param        loan  body      LoanRequest  true  "memberName, ISBN and loanDate"
// @Success      201   {object}  APIResponse
// @Failure      400,404,415,422,500  {object}  APIError
// @Router       /loans [post]
func (api *APIHandler) CreateLoan(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	req, err := DecodeLoanRequest(r)
	if err != nil {
		api.sendError(w, r, err, "failed to create the loan")
		return
	}
	loan, err := api.loanService.CreateLoan(r.Context(), req)
	if err != nil {
		api.sendError(w, r, err, "failed to create the loan",
			zap.String("book.isbn", req.ISBN),
			zap.String("loan.member", req.MemberName),
		)
		return
	}
	api.logger.Info("success to create loan",
		zap.String("request.id", GetValueFromContext(r.Context(), ContextRequestID)),
		zap.String("loan.id", loan.LoanID),
		zap.String("book.id", loan.BookID),
	)
	api.sendResponse(w, r, http.StatusCreated, "Loan created successfully.", nil, map[string]string{"loanID": loan.LoanID})
}

// GetAllLoans godoc
// @Summary      List the active loans matching the query criteria
// @Tags         loans
// @Produce      json
// @Param        memberName  query     string  false  "member name"
// @Success      200         {object}  APIResponse
// @Failure      422         {object}  APIError
// @Router       /loans [get]
func (api *APIHandler) GetAllLoans(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	filter, err := ParseLoanFilter(r.URL.Query())
	if err != nil {
		api.sendError(w, r, err, "failed to get loans")
		return
	}
	loans, err := api.loanService.ListLoans(r.Context(), filter)
	if err != nil {
		api.sendError(w, r, err, "failed to get loans")
		return
	}
	total := len(loans)
	api.sendResponse(w, r, http.StatusOK, "Loans fetched successfully.", &total, loans)
}

// GetOneLoan godoc
// @Summary      Fetch a loan
// @Tags         loans
// @Produce      json
// @Param        id   path      int  true  "loan id"
// @Success      200  {object}  APIResponse
// @Failure      400,404  {object}  APIError
// @Router       /loans/{id} [get]
func (api *APIHandler) GetOneLoan(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	lid, err := ParseID(id)
	if err != nil {
		api.sendError(w, r, err, "loan id provided is not valid", zap.String("loan.id", id))
		return
	}
	loan, err := api.loanService.GetLoan(r.Context(), lid)
	if err != nil {
		api.sendError(w, r, err, "failed to get the loan", zap.String("loan.id", id))
		return
	}
	api.sendResponse(w, r, http.StatusOK, "Loan fetched successfully.", nil, loan)
}

// DeleteOneLoan godoc
// @Summary      Return a loaned book
// @Tags         loans
// @Produce      json
// @Param        id   path      int  true  "loan id"
// @Success      200  {object}  APIResponse
// @Failure      400,404  {object}  APIError
// @Router       /loans/{id} [delete]
func (api *APIHandler) DeleteOneLoan(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	lid, err := ParseID(id)
	if err != nil {
		api.sendError(w, r, err, "loan id provided is not valid", zap.String("loan.id", id))
		return
	}
	if err = api.loanService.DeleteLoan(r.Context(), lid); err != nil {
		api.sendError(w, r, err, "failed to delete the loan", zap.String("loan.id", id))
		return
	}
	api.logger.Info("success to delete loan",
		zap.String("request.id", GetValueFromContext(r.Context(), ContextRequestID)),
		zap.String("loan.id", id),
	)
	api.sendResponse(w, r, http.StatusOK, "Loan deleted successfully.", nil, id)
}
