// Package dashboard describes the admin list projection shared by every
// moderation dashboard: search, flag filter, creation-time sort and keyset
// pagination.
package dashboard

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

type Filter string

const (
	FilterAll        Filter = "all"
	FilterApproved   Filter = "approved"
	FilterPending    Filter = "pending"
	FilterResolved   Filter = "resolved"
	FilterUnresolved Filter = "unresolved"
	FilterCheckedIn  Filter = "checkedin"
	FilterNotArrived Filter = "notcheckedin"
)

type Sort string

const (
	SortNewest Sort = "desc"
	SortOldest Sort = "asc"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

var ErrInvalidCursor = errors.New("invalid cursor")

// View is one admin request for a page of records.
type View struct {
	Search string
	Filter Filter
	Sort   Sort
	Limit  int
	Cursor string
}

// Page is a slice of results plus the cursor that resumes after its last row.
// NextCursor is empty when nothing follows.
type Page[T any] struct {
	Items      []T
	NextCursor string
}

// Key orders records by creation time, ties broken by id.
type Key struct {
	CreatedAt time.Time
	ID        string
}

// Item is implemented by every record a dashboard can list.
type Item interface {
	DashboardKey() Key
	// DashboardFlag is the approved, resolved or checked-in flag the filter
	// matches against.
	DashboardFlag() bool
	// SearchFields are the values matched by the search box.
	SearchFields() []string
}

func (v View) Normalize() View {
	out := v
	out.Search = strings.TrimSpace(out.Search)
	if out.Filter == "" {
		out.Filter = FilterAll
	}
	if out.Sort == "" {
		out.Sort = SortNewest
	}
	if out.Limit <= 0 {
		out.Limit = DefaultLimit
	}
	if out.Limit > MaxLimit {
		out.Limit = MaxLimit
	}
	return out
}

// WantFlag reports whether the filter constrains the flag, and to what.
func (v View) WantFlag() (want bool, constrained bool) {
	switch v.Filter {
	case FilterApproved, FilterResolved, FilterCheckedIn:
		return true, true
	case FilterPending, FilterUnresolved, FilterNotArrived:
		return false, true
	default:
		return false, false
	}
}

// ParseView reads search, filter, sort, limit and cursor from query
// parameters. Only FilterAll and the listed filters are accepted.
func ParseView(values url.Values, allowed ...Filter) (View, error) {
	view := View{
		Search: values.Get("search"),
		Filter: Filter(strings.ToLower(strings.TrimSpace(values.Get("filter")))),
		Sort:   Sort(strings.ToLower(strings.TrimSpace(values.Get("sort")))),
		Cursor: strings.TrimSpace(values.Get("cursor")),
	}
	if view.Filter != "" && view.Filter != FilterAll {
		ok := false
		for _, f := range allowed {
			if f == view.Filter {
				ok = true
				break
			}
		}
		if !ok {
			return View{}, fmt.Errorf("unsupported filter %q", view.Filter)
		}
	}
	switch view.Sort {
	case "", SortNewest, SortOldest:
	case "newest":
		view.Sort = SortNewest
	case "oldest":
		view.Sort = SortOldest
	default:
		return View{}, fmt.Errorf("unsupported sort %q", view.Sort)
	}
	if raw := strings.TrimSpace(values.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return View{}, fmt.Errorf("limit must be an integer")
		}
		view.Limit = limit
	}
	if view.Cursor != "" {
		if _, err := DecodeCursor(view.Cursor); err != nil {
			return View{}, err
		}
	}
	return view.Normalize(), nil
}

func EncodeCursor(k Key) string {
	raw := k.CreatedAt.UTC().Format(time.RFC3339Nano) + "|" + k.ID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func DecodeCursor(cursor string) (Key, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return Key{}, ErrInvalidCursor
	}
	stamp, id, ok := strings.Cut(string(raw), "|")
	if !ok || id == "" {
		return Key{}, ErrInvalidCursor
	}
	createdAt, err := time.Parse(time.RFC3339Nano, stamp)
	if err != nil {
		return Key{}, ErrInvalidCursor
	}
	return Key{CreatedAt: createdAt, ID: id}, nil
}

// Before reports whether a sorts ahead of b in the given direction.
func Before(a, b Key, order Sort) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		if order == SortOldest {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.CreatedAt.After(b.CreatedAt)
	}
	if order == SortOldest {
		return a.ID < b.ID
	}
	return a.ID > b.ID
}

// Matches applies the view's filter and search to one item.
func Matches(item Item, v View) bool {
	if want, constrained := v.WantFlag(); constrained && item.DashboardFlag() != want {
		return false
	}
	needle := strings.ToLower(strings.TrimSpace(v.Search))
	if needle == "" {
		return true
	}
	for _, field := range item.SearchFields() {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

// Refine filters, searches and sorts an already loaded set of records. It does
// not paginate and never mutates its input.
func Refine[T Item](items []T, v View) []T {
	v = v.Normalize()
	out := make([]T, 0, len(items))
	for _, item := range items {
		if Matches(item, v) {
			out = append(out, item)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return Before(out[i].DashboardKey(), out[j].DashboardKey(), v.Sort)
	})
	return out
}

// Paginate refines items and cuts the page that follows v.Cursor.
func Paginate[T Item](items []T, v View) (Page[T], error) {
	v = v.Normalize()
	refined := Refine(items, v)
	start := 0
	if v.Cursor != "" {
		after, err := DecodeCursor(v.Cursor)
		if err != nil {
			return Page[T]{}, err
		}
		start = len(refined)
		for i, item := range refined {
			if Before(after, item.DashboardKey(), v.Sort) {
				start = i
				break
			}
		}
	}
	end := start + v.Limit
	if end > len(refined) {
		end = len(refined)
	}
	page := Page[T]{Items: refined[start:end]}
	if end < len(refined) && end > start {
		page.NextCursor = EncodeCursor(refined[end-1].DashboardKey())
	}
	return page, nil
}
