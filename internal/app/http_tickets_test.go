package app

import (
	"encoding/csv"
	"net/http"
	"strings"
	"testing"
)

func issueTicket(t *testing.T, server *HTTPServer, token, body string) map[string]any {
	t.Helper()
	rr := serve(t, server, request{method: http.MethodPost, path: "/api/admin/tickets", body: body, token: token})
	expectStatus(t, rr, http.StatusCreated)
	return decode(t, rr)
}

func TestTicketCheckInFlow(t *testing.T) {
	server := newTestServer(newFakeStore())
	admin := tokenFor(t, true)

	created := issueTicket(t, server, admin, `{"ticketReferenceId":"fs-001","customerName":"Meera Das","customerEmail":"meera@x.com","quantity":2,"amountPaid":999.5,"couponCodeUsed":"early"}`)
	if created["ticketReferenceId"] != "FS-001" || created["amountPaid"] != 999.5 || created["couponCodeUsed"] != "EARLY" {
		t.Fatalf("unexpected ticket %v", created)
	}
	id, _ := created["id"].(string)

	rr := serve(t, server, request{method: http.MethodPost, path: "/api/admin/tickets/lookup", token: admin, body: `{"ticketReferenceId":"Flames Summit Ticket\nID: FS-001\nName: Meera Das"}`})
	expectStatus(t, rr, http.StatusOK)
	ticket, _ := decode(t, rr)["ticket"].(map[string]any)
	if ticket["id"] != id || ticket["checkedIn"] != false {
		t.Fatalf("unexpected lookup %v", ticket)
	}

	rr = serve(t, server, request{method: http.MethodPost, path: "/api/admin/tickets/" + id + "/checkin", token: admin})
	expectCode(t, rr, http.StatusPreconditionRequired, "VERSION_REQUIRED")

	rr = serve(t, server, request{method: http.MethodPost, path: "/api/admin/tickets/" + id + "/checkin", token: admin, ifMatch: "1"})
	expectStatus(t, rr, http.StatusOK)
	checked := decode(t, rr)
	if checked["checkedIn"] != true || checked["checkedInAt"] == "" {
		t.Fatalf("expected checked in, got %v", checked)
	}

	rr = serve(t, server, request{method: http.MethodPost, path: "/api/admin/tickets/" + id + "/checkin", token: admin, ifMatch: "2"})
	expectCode(t, rr, http.StatusConflict, "ALREADY_CHECKED_IN")

	rr = serve(t, server, request{method: http.MethodPut, path: "/api/admin/tickets/" + id, token: admin, ifMatch: "1", body: `{"checkedIn":false}`})
	expectCode(t, rr, http.StatusConflict, "VERSION_CONFLICT")

	rr = serve(t, server, request{method: http.MethodPut, path: "/api/admin/tickets/" + id, token: admin, ifMatch: "2", body: `{"checkedIn":false}`})
	expectStatus(t, rr, http.StatusOK)
	if got := decode(t, rr); got["checkedIn"] != false || got["version"] != 3.0 {
		t.Fatalf("expected undone check-in at version 3, got %v", got)
	}

	rr = serve(t, server, request{method: http.MethodPut, path: "/api/admin/tickets/" + id, token: admin, ifMatch: "3", body: `{}`})
	expectCode(t, rr, http.StatusUnprocessableEntity, "VALIDATION_ERROR")
}

func TestTicketListingAndSummary(t *testing.T) {
	server := newTestServer(newFakeStore())
	admin := tokenFor(t, true)

	first := issueTicket(t, server, admin, `{"ticketReferenceId":"FS-001","customerName":"Meera Das","customerEmail":"meera@x.com","quantity":2,"amountPaid":1000,"purchaseDate":"2026-04-01T10:00:00Z"}`)
	issueTicket(t, server, admin, `{"ticketReferenceId":"FS-002","customerName":"Ravi Nair","customerEmail":"ravi@x.com","quantity":1,"amountPaid":499,"purchaseDate":"2026-04-02T10:00:00Z"}`)

	id, _ := first["id"].(string)
	rr := serve(t, server, request{method: http.MethodPost, path: "/api/admin/tickets/" + id + "/checkin", token: admin, ifMatch: versionOf(t, first)})
	expectStatus(t, rr, http.StatusOK)

	rr = serve(t, server, request{method: http.MethodGet, path: "/api/admin/tickets?filter=checkedin", token: admin})
	expectStatus(t, rr, http.StatusOK)
	items, _ := decode(t, rr)["items"].([]any)
	if len(items) != 1 || items[0].(map[string]any)["ticketReferenceId"] != "FS-001" {
		t.Fatalf("expected FS-001 only, got %v", items)
	}

	rr = serve(t, server, request{method: http.MethodGet, path: "/api/admin/tickets?filter=notcheckedin", token: admin})
	expectStatus(t, rr, http.StatusOK)
	items, _ = decode(t, rr)["items"].([]any)
	if len(items) != 1 || items[0].(map[string]any)["ticketReferenceId"] != "FS-002" {
		t.Fatalf("expected FS-002 only, got %v", items)
	}

	rr = serve(t, server, request{method: http.MethodGet, path: "/api/admin/tickets?filter=approved", token: admin})
	expectCode(t, rr, http.StatusBadRequest, "INVALID_QUERY")

	rr = serve(t, server, request{method: http.MethodGet, path: "/api/admin/tickets/summary", token: admin})
	expectStatus(t, rr, http.StatusOK)
	sum := decode(t, rr)
	if sum["totalTicketsSold"] != 3.0 || sum["totalAttendees"] != 2.0 || sum["totalRevenue"] != 1499.0 || sum["checkedInCount"] != 1.0 {
		t.Fatalf("unexpected summary %v", sum)
	}
}

func TestTicketExportCSV(t *testing.T) {
	server := newTestServer(newFakeStore())
	admin := tokenFor(t, true)
	issueTicket(t, server, admin, `{"ticketReferenceId":"FS-001","customerName":"Das, Meera","customerEmail":"meera@x.com","quantity":1,"amountPaid":499,"purchaseDate":"2026-04-01T10:00:00Z"}`)
	issueTicket(t, server, admin, `{"ticketReferenceId":"FS-002","customerName":"Ravi Nair","customerEmail":"ravi@x.com","quantity":1,"amountPaid":0,"couponCodeUsed":"FREE","purchaseDate":"2026-04-02T10:00:00Z"}`)

	rr := serve(t, server, request{method: http.MethodGet, path: "/api/admin/tickets/export.csv", token: admin})
	expectStatus(t, rr, http.StatusOK)
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("Content-Type = %q", ct)
	}
	records, err := csv.NewReader(rr.Body).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected header and two rows, got %v", records)
	}
	if records[1][0] != "FS-001" || records[1][1] != "Das, Meera" || records[1][6] != "499.00" || records[1][7] != "N/A" {
		t.Fatalf("unexpected first row %v", records[1])
	}
	if records[2][7] != "FREE" || records[2][9] != "No" {
		t.Fatalf("unexpected second row %v", records[2])
	}
}

func TestTicketRoutesRequireAdmin(t *testing.T) {
	server := newTestServer(newFakeStore())

	rr := serve(t, server, request{method: http.MethodGet, path: "/api/admin/tickets"})
	expectCode(t, rr, http.StatusUnauthorized, "UNAUTHORIZED")

	rr = serve(t, server, request{method: http.MethodGet, path: "/api/admin/tickets/summary", token: tokenFor(t, false)})
	expectCode(t, rr, http.StatusForbidden, "FORBIDDEN")

	rr = serve(t, server, request{method: http.MethodPost, path: "/api/admin/tickets/lookup", token: tokenFor(t, true), body: `{"ticketReferenceId":"NOPE"}`})
	expectCode(t, rr, http.StatusNotFound, "NOT_FOUND")
}
