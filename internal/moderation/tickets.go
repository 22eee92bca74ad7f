package moderation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"flames/api/internal/dashboard"
	"flames/api/internal/rbac"
	"flames/api/internal/store"
	"flames/api/internal/util"
)

const ticketKind = "ticket"

// TicketInput records a sale made outside the checkout, such as at the door or
// from an imported sheet. ReferenceID is generated when empty.
type TicketInput struct {
	ReferenceID string
	TicketType  string
	FullName    string
	Email       string
	Phone       string
	Quantity    int
	AmountPaid  int64
	Coupon      string
	PurchasedAt time.Time
}

func (s *Service) IssueTicket(ctx context.Context, actor Actor, in TicketInput) (t store.Ticket, err error) {
	start := time.Now()
	defer func() { s.observe(ticketKind, "issue", start, err) }()

	if err = authorize(actor, rbac.ActionModerate); err != nil {
		return store.Ticket{}, err
	}
	t = store.Ticket{
		ID:          util.NewID("tkt"),
		ReferenceID: normalizeReference(in.ReferenceID),
		TicketType:  strings.ToLower(strings.TrimSpace(in.TicketType)),
		FullName:    strings.TrimSpace(in.FullName),
		Email:       normalizeEmail(in.Email),
		Phone:       strings.TrimSpace(in.Phone),
		Quantity:    in.Quantity,
		AmountPaid:  in.AmountPaid,
		Coupon:      strings.ToUpper(strings.TrimSpace(in.Coupon)),
		PurchasedAt: in.PurchasedAt,
	}
	if t.ReferenceID == "" {
		t.ReferenceID = newReference()
	}
	if t.TicketType == "" {
		t.TicketType = "general"
	}
	if t.PurchasedAt.IsZero() {
		t.PurchasedAt = s.now()
	}

	verr := &ValidationError{}
	if t.FullName == "" {
		verr.add("customerName", "is required")
	}
	checkLen(verr, "customerName", t.FullName, maxShortLen)
	if !validEmail(t.Email) {
		verr.add("customerEmail", "is not a valid address")
	}
	if t.Phone != "" && !validPhone(t.Phone) {
		verr.add("customerPhone", "is not a valid number")
	}
	if t.Quantity < 1 {
		verr.add("quantity", "must be at least 1")
	}
	if t.AmountPaid < 0 {
		verr.add("amountPaid", "must not be negative")
	}
	checkLen(verr, "ticketReferenceId", t.ReferenceID, maxShortLen)
	checkLen(verr, "couponCodeUsed", t.Coupon, maxShortLen)
	if err = verr.orNil(); err != nil {
		return store.Ticket{}, err
	}

	t, err = s.store.CreateTicket(ctx, t)
	if errors.Is(err, store.ErrAlreadyExists) {
		return store.Ticket{}, &DuplicateError{Field: "ticketReferenceId", Message: "A ticket with this reference already exists."}
	}
	if err != nil {
		return store.Ticket{}, fmt.Errorf("create ticket: %w", err)
	}
	return t, nil
}

func (s *Service) ListTickets(ctx context.Context, actor Actor, view dashboard.View) (dashboard.Page[store.Ticket], error) {
	if err := authorize(actor, rbac.ActionRead); err != nil {
		return dashboard.Page[store.Ticket]{}, err
	}
	page, err := s.store.ListTickets(ctx, view)
	if err != nil {
		return dashboard.Page[store.Ticket]{}, fmt.Errorf("list tickets: %w", err)
	}
	return page, nil
}

func (s *Service) TicketSummary(ctx context.Context, actor Actor) (store.TicketSummary, error) {
	if err := authorize(actor, rbac.ActionRead); err != nil {
		return store.TicketSummary{}, err
	}
	sum, err := s.store.SummarizeTickets(ctx)
	if err != nil {
		return store.TicketSummary{}, fmt.Errorf("summarize tickets: %w", err)
	}
	return sum, nil
}

// LookupTicket finds a ticket by its reference. scanned may be the bare
// reference or the full text of the e-ticket QR code.
func (s *Service) LookupTicket(ctx context.Context, actor Actor, scanned string) (t store.Ticket, err error) {
	start := time.Now()
	defer func() { s.observe(ticketKind, "lookup", start, err) }()

	if err = authorize(actor, rbac.ActionRead); err != nil {
		return store.Ticket{}, err
	}
	ref := ReferenceFromScan(scanned)
	if ref == "" {
		return store.Ticket{}, &ValidationError{Fields: map[string]string{"ticketReferenceId": "is required"}}
	}
	t, err = s.store.GetTicketByReference(ctx, ref)
	if err != nil {
		return store.Ticket{}, translate(err)
	}
	return t, nil
}

// CheckIn marks an attendee as arrived. A ticket can only be checked in once.
func (s *Service) CheckIn(ctx context.Context, actor Actor, id string, version int64) (store.Ticket, error) {
	return s.setCheckedIn(ctx, actor, id, version, true)
}

func (s *Service) UndoCheckIn(ctx context.Context, actor Actor, id string, version int64) (store.Ticket, error) {
	return s.setCheckedIn(ctx, actor, id, version, false)
}

func (s *Service) setCheckedIn(ctx context.Context, actor Actor, id string, version int64, checkedIn bool) (t store.Ticket, err error) {
	op := "checkin"
	if !checkedIn {
		op = "undo_checkin"
	}
	start := time.Now()
	defer func() { s.observe(ticketKind, op, start, err) }()

	if err = authorize(actor, rbac.ActionModerate); err != nil {
		return store.Ticket{}, err
	}
	err = s.store.WithinTx(ctx, func(tx store.Tx) error {
		current, err := tx.GetTicketForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := checkVersion(version, current.Version); err != nil {
			return err
		}
		if checkedIn && current.CheckedIn {
			return ErrAlreadyArrived
		}
		current.CheckedIn = checkedIn
		current.CheckedInAt = time.Time{}
		if checkedIn {
			current.CheckedInAt = s.now()
		}
		t, err = tx.SaveTicket(ctx, current)
		return err
	})
	if err != nil {
		return store.Ticket{}, translate(err)
	}
	return t, nil
}

// ReferenceFromScan extracts the ticket reference from QR text of the form
// "Flames Summit Ticket\nID: ABC123\n...". Anything without an "ID:" line is
// taken as the reference itself.
func ReferenceFromScan(scanned string) string {
	if _, after, ok := strings.Cut(scanned, "ID:"); ok {
		line, _, _ := strings.Cut(after, "\n")
		return normalizeReference(line)
	}
	return normalizeReference(scanned)
}

func normalizeReference(ref string) string {
	return strings.ToUpper(strings.TrimSpace(ref))
}

func newReference() string {
	return strings.ToUpper(util.NewID("")[:12])
}
