package main

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// LoanServiceProvider gathers the loan operations.
type LoanServiceProvider interface {
	CreateLoan(ctx context.Context, req LoanRequest) (Loan, error)
	GetLoan(ctx context.Context, id int) (Loan, error)
	ListLoans(ctx context.Context, filter LoanFilter) ([]Loan, error)
	DeleteLoan(ctx context.Context, id int) error
}

// LoanService admits a loan only after local checks passed and the catalog
// confirmed the book exists. Nothing is written before that confirmation.
type LoanService struct {
	publisher
	storage LoanStorage
	catalog CatalogClient
	metrics *Metrics
}

func NewLoanService(logger *zap.Logger, clock Clocker, storage LoanStorage, catalog CatalogClient, queue Queuer, metrics *Metrics) *LoanService {
	return &LoanService{
		publisher: publisher{logger: logger, clock: clock, queue: queue},
		storage:   storage,
		catalog:   catalog,
		metrics:   metrics,
	}
}

// CreateLoan runs the admission gates in order and stops at the first failure.
// The request fields presence is checked while decoding the payload.
func (ls *LoanService) CreateLoan(ctx context.Context, req LoanRequest) (Loan, error) {
	loan, err := ls.createLoan(ctx, req)
	if err != nil {
		ls.metrics.ObserveLoanRejection(loanRejectionReason(err))
		return Loan{}, err
	}
	return loan, nil
}

func (ls *LoanService) createLoan(ctx context.Context, req LoanRequest) (Loan, error) {
	if err := validateISBN(req.ISBN); err != nil {
		return Loan{}, err
	}

	// The scan and the final write are not atomic: two concurrent requests
	// for the same ISBN or member may both pass these checks.
	loans, err := ls.storage.ListLoans(ctx)
	if err != nil {
		return Loan{}, err
	}
	memberLoans := 0
	for _, l := range loans {
		if l.ISBN == req.ISBN {
			return Loan{}, ErrISBNAlreadyOnLoan
		}
		if l.MemberName == req.MemberName {
			memberLoans++
		}
	}
	if memberLoans >= MaxActiveLoansPerMember {
		return Loan{}, ErrMemberLoanLimit
	}

	if err = ValidateLoanDate(req.LoanDate); err != nil {
		return Loan{}, err
	}

	book, err := ls.catalog.FindByISBN(ctx, req.ISBN)
	if err != nil {
		return Loan{}, err
	}

	id, err := ls.storage.Allocate(ctx)
	if err != nil {
		return Loan{}, err
	}
	ls.metrics.ObserveAllocation(LoansBucket)

	loan := Loan{
		LoanID:     FormatID(id),
		MemberName: req.MemberName,
		ISBN:       req.ISBN,
		LoanDate:   req.LoanDate,
		BookID:     book.ID,
		Title:      book.Title,
	}
	if err = ls.storage.AddLoan(ctx, loan); err != nil {
		return Loan{}, err
	}
	ls.publish(ctx, LoanCreated, loan.LoanID, loan)
	return loan, nil
}

func loanRejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrISBNAlreadyOnLoan):
		return "isbn_on_loan"
	case errors.Is(err, ErrMemberLoanLimit):
		return "member_limit"
	case errors.Is(err, ErrBookNotInLibrary):
		return "not_in_library"
	case errors.Is(err, ErrUpstreamUnavailable):
		return "upstream_unavailable"
	case IsValidationError(err):
		return "validation"
	default:
		return "internal"
	}
}

func (ls *LoanService) GetLoan(ctx context.Context, id int) (Loan, error) {
	return ls.storage.GetLoan(ctx, id)
}

// ListLoans returns the loans matching every criterion of the filter.
func (ls *LoanService) ListLoans(ctx context.Context, filter LoanFilter) ([]Loan, error) {
	loans, err := ls.storage.ListLoans(ctx)
	if err != nil {
		return nil, err
	}
	if len(filter) == 0 {
		return loans, nil
	}
	matched := []Loan{}
	for _, l := range loans {
		if filter.Matches(l) {
			matched = append(matched, l)
		}
	}
	return matched, nil
}

// DeleteLoan ends a loan, making the book and the member slot available again.
func (ls *LoanService) DeleteLoan(ctx context.Context, id int) error {
	if err := ls.storage.DeleteLoan(ctx, id); err != nil {
		return err
	}
	ls.publish(ctx, LoanReturned, FormatID(id), nil)
	return nil
}
