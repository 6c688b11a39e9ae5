package main

// Rating holds every value submitted for a book and their running average.
type Rating struct {
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	Values  []int   `json:"values"`
	Average float64 `json:"average"`
}

// TopBook is one entry of the top ranking.
type TopBook struct {
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	Average float64 `json:"average"`
}

// Rating values bounds.
const (
	MinRatingValue = 1
	MaxRatingValue = 5
)

// NewRating seeds the empty rating record paired with a freshly created book.
func NewRating(book Book) Rating {
	return Rating{
		ID:      book.ID,
		Title:   book.Title,
		Values:  []int{},
		Average: 0,
	}
}

// Append adds value to the sequence and recomputes the average from
// the whole sequence. Callers must hold whatever store-level guarantee
// makes the read-modify-write atomic.
func (r *Rating) Append(value int) {
	r.Values = append(r.Values, value)
	r.Average = average(r.Values)
}

func average(values []int) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0
	for _, v := range values {
		sum += v
	}
	return float64(sum) / float64(len(values))
}
