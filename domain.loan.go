package main

import "context"

// Loan limits.
const (
	MaxActiveLoansPerMember = 2
	ISBNLength              = 13
	LoanDateLayout          = "2006-01-02"
)

// Loan represents a book checked out by a member.
// BookID and Title are copied from the catalog when the loan is made.
type Loan struct {
	LoanID     string `json:"loanID"`
	MemberName string `json:"memberName"`
	ISBN       string `json:"ISBN"`
	LoanDate   string `json:"loanDate"`
	BookID     string `json:"bookID"`
	Title      string `json:"title"`
}

// LoanRequest is the payload of a loan creation.
type LoanRequest struct {
	MemberName string `json:"memberName"`
	ISBN       string `json:"ISBN"`
	LoanDate   string `json:"loanDate"`
}

// LoanFilter holds the exact-match criteria of a loans listing.
type LoanFilter map[string]string

// Matches reports whether the loan satisfies every criterion of the filter.
func (f LoanFilter) Matches(l Loan) bool {
	for field, value := range f {
		var got string
		switch field {
		case "loanID":
			got = l.LoanID
		case "memberName":
			got = l.MemberName
		case "ISBN":
			got = l.ISBN
		case "loanDate":
			got = l.LoanDate
		case "bookID":
			got = l.BookID
		case "title":
			got = l.Title
		default:
			return false
		}
		if got != value {
			return false
		}
	}
	return true
}

// LoanStorage defines possible operations on loan entity.
type LoanStorage interface {
	IDAllocator
	AddLoan(ctx context.Context, loan Loan) error
	GetLoan(ctx context.Context, id int) (Loan, error)
	ListLoans(ctx context.Context) ([]Loan, error)
	DeleteLoan(ctx context.Context, id int) error
}
