// internal/app/system/paging/paging.go
package paging

import (
	"net/http"
	"strconv"

	"github.com/dalemusser/waffle/pantry/query"
)

// PageSize is the default number of rows returned by paged lists.
// Keep this as an int because most call sites add/subtract and then
// cast to int64 where a store wants one.
const PageSize = 50

// LimitPlusOne returns PageSize+1 for look-ahead pagination
// (fetch one extra row to detect HasNext).
func LimitPlusOne() int { return PageSize + 1 }

// ParseStart extracts the human-friendly "start" query parameter (1-based index).
// Returns 1 if not present or invalid.
func ParseStart(r *http.Request) int {
	s := query.Get(r, "start")
	if s == "" {
		return 1
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// Offset converts a 1-based start index into a store offset.
func Offset(start int) int {
	if start < 1 {
		return 0
	}
	return start - 1
}

// Result holds the output of TrimPage.
type Result struct {
	HasPrev bool `json:"has_prev"`
	HasNext bool `json:"has_next"`
}

// TrimPage trims a slice fetched with LimitPlusOne rows starting at start.
// It modifies the slice in place and returns pagination indicators.
func TrimPage[T any](rows *[]T, start int) Result {
	return trimPageWithSize(rows, start, PageSize)
}

func trimPageWithSize[T any](rows *[]T, start, pageSize int) Result {
	res := Result{HasPrev: start > 1}
	if len(*rows) > pageSize {
		*rows = (*rows)[:pageSize]
		res.HasNext = true
	}
	return res
}

// Range holds computed display range values for a paginated list.
type Range struct {
	Start     int `json:"start"`      // 1-based start index (0 if no results)
	End       int `json:"end"`        // 1-based end index (0 if no results)
	PrevStart int `json:"prev_start"` // start value for the previous page
	NextStart int `json:"next_start"` // start value for the next page
}

// ComputeRange calculates display range values given the current start index
// and number of items shown.
func ComputeRange(start, shown int) Range {
	return computeRangeWithSize(start, shown, PageSize)
}

func computeRangeWithSize(start, shown, pageSize int) Range {
	if shown == 0 {
		return Range{Start: 0, End: 0, PrevStart: 1, NextStart: 1}
	}

	prevStart := start - pageSize
	if prevStart < 1 {
		prevStart = 1
	}

	return Range{
		Start:     start,
		End:       start + shown - 1,
		PrevStart: prevStart,
		NextStart: start + shown,
	}
}
