package app

import (
	"encoding/csv"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"flames/api/internal/dashboard"
	"flames/api/internal/moderation"
	"flames/api/internal/store"
)

type ticketBody struct {
	TicketReferenceID string  `json:"ticketReferenceId"`
	TicketType        string  `json:"ticketType"`
	CustomerName      string  `json:"customerName"`
	CustomerEmail     string  `json:"customerEmail"`
	CustomerPhone     string  `json:"customerPhone"`
	Quantity          int     `json:"quantity"`
	AmountPaid        float64 `json:"amountPaid"`
	CouponCodeUsed    string  `json:"couponCodeUsed"`
	PurchaseDate      string  `json:"purchaseDate"`
}

func (b ticketBody) input() (moderation.TicketInput, error) {
	in := moderation.TicketInput{
		ReferenceID: b.TicketReferenceID,
		TicketType:  b.TicketType,
		FullName:    b.CustomerName,
		Email:       b.CustomerEmail,
		Phone:       b.CustomerPhone,
		Quantity:    b.Quantity,
		AmountPaid:  int64(math.Round(b.AmountPaid * 100)),
		Coupon:      b.CouponCodeUsed,
	}
	if raw := strings.TrimSpace(b.PurchaseDate); raw != "" {
		at, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return moderation.TicketInput{}, &moderation.ValidationError{Fields: map[string]string{"purchaseDate": "must be an RFC 3339 timestamp"}}
		}
		in.PurchasedAt = at.UTC()
	}
	return in, nil
}

func (s *HTTPServer) handleAdminTickets(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	mod := s.service.Moderation()
	actor := session.Actor()

	switch {
	case len(parts) == 0 && r.Method == http.MethodGet:
		view, err := dashboard.ParseView(r.URL.Query(), dashboard.FilterCheckedIn, dashboard.FilterNotArrived)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_QUERY", err.Error(), nil)
			return
		}
		page, err := mod.ListTickets(r.Context(), actor, view)
		if err != nil {
			s.writeServiceError(w, r, err, "load tickets")
			return
		}
		writeJSON(w, http.StatusOK, pagePayload(page, ticketPayload))

	case len(parts) == 0 && r.Method == http.MethodPost:
		var body ticketBody
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		in, err := body.input()
		if err != nil {
			s.writeServiceError(w, r, err, "issue ticket")
			return
		}
		t, err := mod.IssueTicket(r.Context(), actor, in)
		if err != nil {
			s.writeServiceError(w, r, err, "issue ticket")
			return
		}
		writeJSON(w, http.StatusCreated, ticketPayload(t))

	case len(parts) == 1 && parts[0] == "summary" && r.Method == http.MethodGet:
		sum, err := mod.TicketSummary(r.Context(), actor)
		if err != nil {
			s.writeServiceError(w, r, err, "summarize tickets")
			return
		}
		writeJSON(w, http.StatusOK, ticketSummaryPayload(sum))

	case len(parts) == 1 && parts[0] == "lookup" && r.Method == http.MethodPost:
		var body struct {
			TicketReferenceID string `json:"ticketReferenceId"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		t, err := mod.LookupTicket(r.Context(), actor, body.TicketReferenceID)
		if err != nil {
			s.writeServiceError(w, r, err, "look up ticket")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ticket": ticketPayload(t)})

	case len(parts) == 1 && parts[0] == "export.csv" && r.Method == http.MethodGet:
		s.exportTickets(w, r, mod, actor)

	case len(parts) == 1 && r.Method == http.MethodPut:
		var body struct {
			CheckedIn *bool `json:"checkedIn"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if body.CheckedIn == nil {
			s.writeServiceError(w, r, &moderation.ValidationError{Fields: map[string]string{"checkedIn": "is required"}}, "update ticket")
			return
		}
		s.setTicketCheckIn(w, r, mod, actor, parts[0], *body.CheckedIn)

	case len(parts) == 2 && r.Method == http.MethodPost && (parts[1] == "checkin" || parts[1] == "undo-checkin"):
		s.setTicketCheckIn(w, r, mod, actor, parts[0], parts[1] == "checkin")

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	}
}

func (s *HTTPServer) setTicketCheckIn(w http.ResponseWriter, r *http.Request, mod *moderation.Service, actor moderation.Actor, id string, checkedIn bool) {
	action := "check in ticket"
	if !checkedIn {
		action = "undo ticket check-in"
	}
	version, err := expectedVersion(r)
	if err != nil {
		s.writeServiceError(w, r, err, action)
		return
	}
	var t store.Ticket
	if checkedIn {
		t, err = mod.CheckIn(r.Context(), actor, id, version)
	} else {
		t, err = mod.UndoCheckIn(r.Context(), actor, id, version)
	}
	if err != nil {
		s.writeServiceError(w, r, err, action)
		return
	}
	writeJSON(w, http.StatusOK, ticketPayload(t))
}

var ticketCSVHeader = []string{
	"Ticket Ref ID", "Name", "Email", "Phone", "Ticket Type", "Quantity", "Amount Paid", "Coupon Used", "Purchase Date", "Checked In",
}

// exportTickets writes every ticket matching the view as CSV, walking the
// pages oldest first.
func (s *HTTPServer) exportTickets(w http.ResponseWriter, r *http.Request, mod *moderation.Service, actor moderation.Actor) {
	view, err := dashboard.ParseView(r.URL.Query(), dashboard.FilterCheckedIn, dashboard.FilterNotArrived)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_QUERY", err.Error(), nil)
		return
	}
	view.Sort = dashboard.SortOldest
	view.Limit = dashboard.MaxLimit

	var rows []store.Ticket
	for {
		page, err := mod.ListTickets(r.Context(), actor, view)
		if err != nil {
			s.writeServiceError(w, r, err, "export tickets")
			return
		}
		rows = append(rows, page.Items...)
		if page.NextCursor == "" {
			break
		}
		view.Cursor = page.NextCursor
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="flames_tickets_`+time.Now().UTC().Format("2006-01-02")+`.csv"`)
	w.WriteHeader(http.StatusOK)
	out := csv.NewWriter(w)
	_ = out.Write(ticketCSVHeader)
	for _, t := range rows {
		coupon := t.Coupon
		if coupon == "" {
			coupon = "N/A"
		}
		checked := "No"
		if t.CheckedIn {
			checked = "Yes"
		}
		_ = out.Write([]string{
			t.ReferenceID, t.FullName, t.Email, t.Phone, t.TicketType,
			strconv.Itoa(t.Quantity), strconv.FormatFloat(rupees(t.AmountPaid), 'f', 2, 64),
			coupon, timestamp(t.PurchasedAt), checked,
		})
	}
	out.Flush()
}
