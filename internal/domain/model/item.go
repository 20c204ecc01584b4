// Package model contains domain models passed between layers.
package model

import "time"

// Item is one candidate submitted for selection.
// X is the cost and Y the weight that counts against the budget.
type Item struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Ratio returns the cost-to-weight ratio. A zero weight yields ±Inf or NaN.
func (i Item) Ratio() float64 {
	return i.X / i.Y
}

// Items is an ordered list of candidates.
type Items []Item

// TotalWeight sums Y over all items.
func (s Items) TotalWeight() float64 {
	var sum float64
	for _, it := range s {
		sum += it.Y
	}
	return sum
}

// Response is the body returned by POST /runtest.
type Response struct {
	TestResults Items   `json:"testResults"`
	ServerStart float64 `json:"serverStart"`
	ServerEnd   float64 `json:"serverEnd"`
}

// UnixSeconds converts t to fractional seconds since the epoch.
func UnixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// NewResponse builds a Response from the selected items and the instants
// taken around the selection. A nil selection is reported as an empty list.
func NewResponse(selected Items, start, end time.Time) Response {
	if selected == nil {
		selected = Items{}
	}
	return Response{
		TestResults: selected,
		ServerStart: UnixSeconds(start),
		ServerEnd:   UnixSeconds(end),
	}
}
