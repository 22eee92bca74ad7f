package app

import (
	"time"

	"flames/api/internal/dashboard"
	"flames/api/internal/store"
)

const (
	statusApproved = "Approved"
	statusPending  = "Pending"
)

func approvalStatus(approved bool) string {
	if approved {
		return statusApproved
	}
	return statusPending
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func nominationPayload(n store.Nomination) map[string]any {
	return map[string]any{
		"id":        n.ID,
		"kind":      n.Kind,
		"fullName":  n.FullName,
		"email":     n.Email,
		"phone":     n.Phone,
		"linkedin":  n.LinkedIn,
		"instagram": n.Instagram,
		"twitter":   n.Twitter,
		"details":   n.Details,
		"approved":  n.Approved,
		"status":    approvalStatus(n.Approved),
		"mediaUrl":  n.MediaURL,
		"createdAt": timestamp(n.CreatedAt),
		"updatedAt": timestamp(n.UpdatedAt),
		"version":   n.Version,
	}
}

// publishedPayload is the public view, so the phone number is left out.
func publishedPayload(p store.Published) map[string]any {
	return map[string]any{
		"id":          p.ID,
		"kind":        p.Kind,
		"fullName":    p.FullName,
		"linkedin":    p.LinkedIn,
		"instagram":   p.Instagram,
		"twitter":     p.Twitter,
		"details":     p.Details,
		"mediaUrl":    p.MediaURL,
		"publishedAt": timestamp(p.PublishedAt),
	}
}

func contactPayload(c store.ContactMessage) map[string]any {
	return map[string]any{
		"id":        c.ID,
		"fullName":  c.FullName,
		"email":     c.Email,
		"message":   c.Message,
		"resolved":  c.Resolved,
		"createdAt": timestamp(c.CreatedAt),
		"updatedAt": timestamp(c.UpdatedAt),
		"version":   c.Version,
	}
}

// rupees renders an amount held in paise.
func rupees(paise int64) float64 {
	return float64(paise) / 100
}

func ticketPayload(t store.Ticket) map[string]any {
	var coupon any
	if t.Coupon != "" {
		coupon = t.Coupon
	}
	return map[string]any{
		"id":                t.ID,
		"ticketReferenceId": t.ReferenceID,
		"ticketType":        t.TicketType,
		"customerName":      t.FullName,
		"customerEmail":     t.Email,
		"customerPhone":     t.Phone,
		"quantity":          t.Quantity,
		"amountPaid":        rupees(t.AmountPaid),
		"couponCodeUsed":    coupon,
		"purchaseDate":      timestamp(t.PurchasedAt),
		"checkedIn":         t.CheckedIn,
		"checkedInAt":       timestamp(t.CheckedInAt),
		"updatedAt":         timestamp(t.UpdatedAt),
		"version":           t.Version,
	}
}

func ticketSummaryPayload(sum store.TicketSummary) map[string]any {
	return map[string]any{
		"totalTicketsSold": sum.TicketsSold,
		"totalAttendees":   sum.Orders,
		"totalRevenue":     rupees(sum.Revenue),
		"checkedInCount":   sum.CheckedIn,
	}
}

func subscriberPayload(sub store.Subscriber) map[string]any {
	return map[string]any{
		"email":        sub.Email,
		"source":       sub.Source,
		"subscribedAt": timestamp(sub.SubscribedAt),
	}
}

func pagePayload[T dashboard.Item](page dashboard.Page[T], render func(T) map[string]any) map[string]any {
	items := make([]map[string]any, 0, len(page.Items))
	for _, item := range page.Items {
		items = append(items, render(item))
	}
	out := map[string]any{"items": items}
	if page.NextCursor != "" {
		out["nextCursor"] = page.NextCursor
	} else {
		out["nextCursor"] = nil
	}
	return out
}
