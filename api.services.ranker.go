package main

import "sort"

// Ranking parameters of the top books listing.
const (
	TopRanks            = 3
	MinValuesForRanking = 3
)

// RankTopBooks returns the books holding the `ranks` best distinct averages
// among ratings with at least minValues values. Books sharing an average
// share a rank so the result may contain more than `ranks` books.
func RankTopBooks(ratings []Rating, ranks, minValues int) []TopBook {
	eligible := make([]TopBook, 0, len(ratings))
	for _, r := range ratings {
		if len(r.Values) < minValues {
			continue
		}
		eligible = append(eligible, TopBook{ID: r.ID, Title: r.Title, Average: r.Average})
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		if eligible[i].Average != eligible[j].Average {
			return eligible[i].Average > eligible[j].Average
		}
		return lessID(eligible[i].ID, eligible[j].ID)
	})

	top := []TopBook{}
	distinct := 0
	for i, b := range eligible {
		if i == 0 || b.Average != eligible[i-1].Average {
			distinct++
			if distinct > ranks {
				break
			}
		}
		top = append(top, b)
	}
	return top
}

// lessID orders numeric identifiers by value and falls back to text order.
func lessID(a, b string) bool {
	ia, errA := ParseID(a)
	ib, errB := ParseID(b)
	if errA == nil && errB == nil {
		return ia < ib
	}
	return a < b
}
