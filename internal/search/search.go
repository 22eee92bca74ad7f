package search

import "context"

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultNomination ResultType = "nomination"
	ResultContact    ResultType = "contact"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type    ResultType `json:"type"`
	ID      string     `json:"id"`
	Kind    string     `json:"kind,omitempty"`
	Title   string     `json:"title"`
	Snippet string     `json:"snippet"`
}

// Query describes a search request.
type Query struct {
	Text       string
	FilterType ResultType // empty = all types
	FilterKind string
	Limit      int
	Offset     int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
}

// NominationRecord is the data we index for a nomination.
type NominationRecord struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"`
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Details  string `json:"details"`
	Approved bool   `json:"approved"`
}

// ContactRecord is the data we index for a contact message.
type ContactRecord struct {
	ID       string `json:"id"`
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Message  string `json:"message"`
	Resolved bool   `json:"resolved"`
}
