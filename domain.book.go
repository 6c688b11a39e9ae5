package main

import "context"

// MissingValue is stored in place of any enrichment field the upstream could not provide.
const MissingValue = "missing"

// Genre is the closed set of categories a book can belong to.
type Genre string

const (
	GenreFiction        Genre = "Fiction"
	GenreChildren       Genre = "Children"
	GenreBiography      Genre = "Biography"
	GenreScience        Genre = "Science"
	GenreScienceFiction Genre = "Science Fiction"
	GenreFantasy        Genre = "Fantasy"
	GenreOther          Genre = "Other"
)

var genres = map[Genre]struct{}{
	GenreFiction:        {},
	GenreChildren:       {},
	GenreBiography:      {},
	GenreScience:        {},
	GenreScienceFiction: {},
	GenreFantasy:        {},
	GenreOther:          {},
}

// IsValid reports whether g belongs to the genre enumeration.
func (g Genre) IsValid() bool {
	_, ok := genres[g]
	return ok
}

// Languages accepted by the books listing language filter.
var filterLanguages = map[string]struct{}{
	"heb": {},
	"eng": {},
	"spa": {},
	"chi": {},
}

// Book represents a book entity.
type Book struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	ISBN          string   `json:"ISBN"`
	Genre         Genre    `json:"genre"`
	Authors       string   `json:"authors"`
	Publisher     string   `json:"publisher"`
	PublishedDate string   `json:"publishedDate"`
	Language      []string `json:"language"`
	Summary       string   `json:"summary"`
}

// BookFilter holds the exact-match criteria of a books listing. Every entry
// is applied, so an empty value only matches books whose field is empty.
type BookFilter map[string]string

// Matches reports whether the book satisfies every criterion of the filter.
// The language criterion matches when the value is one of the book languages.
func (f BookFilter) Matches(b Book) bool {
	for field, value := range f {
		switch field {
		case "id":
			if b.ID != value {
				return false
			}
		case "title":
			if b.Title != value {
				return false
			}
		case "ISBN":
			if b.ISBN != value {
				return false
			}
		case "genre":
			if string(b.Genre) != value {
				return false
			}
		case "authors":
			if b.Authors != value {
				return false
			}
		case "publisher":
			if b.Publisher != value {
				return false
			}
		case "publishedDate":
			if b.PublishedDate != value {
				return false
			}
		case "summary":
			if b.Summary != value {
				return false
			}
		case "language":
			found := false
			for _, l := range b.Language {
				if l == value {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// CatalogStorage defines possible operations on books and their ratings.
// A book and its rating share the same identifier and live and die together.
type CatalogStorage interface {
	IDAllocator
	AddBook(ctx context.Context, book Book, rating Rating) error
	GetBook(ctx context.Context, id int) (Book, error)
	ListBooks(ctx context.Context) ([]Book, error)
	UpdateBook(ctx context.Context, id int, book Book) (Book, error)
	DeleteBook(ctx context.Context, id int) error
	GetRating(ctx context.Context, id int) (Rating, error)
	ListRatings(ctx context.Context) ([]Rating, error)
	AppendRatingValue(ctx context.Context, id int, value int) (Rating, error)
}
