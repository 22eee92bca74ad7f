package moderation

import (
	"net/mail"
	"strings"
	"unicode"
	"unicode/utf8"

	"flames/api/internal/store"
)

const (
	maxShortLen = 200
	maxLongLen  = 5000
)

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

// validPhone accepts 7 to 15 digits with the usual separators.
func validPhone(phone string) bool {
	digits := 0
	for i, r := range phone {
		switch {
		case unicode.IsDigit(r):
			digits++
		case r == '+' && i == 0:
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
		default:
			return false
		}
	}
	return digits >= 7 && digits <= 15
}

func checkLen(verr *ValidationError, field, value string, max int) {
	if utf8.RuneCountInString(value) > max {
		verr.add(field, "is too long")
	}
}

// validateContact checks the fields shared by every nomination kind. Fields
// are expected to be trimmed already.
func validateContact(verr *ValidationError, spec KindSpec, n contactFields) {
	if n.fullName == "" {
		verr.add("fullName", "is required")
	}
	checkLen(verr, "fullName", n.fullName, maxShortLen)
	if n.email == "" {
		verr.add("email", "is required")
	} else if !validEmail(n.email) {
		verr.add("email", "is not a valid address")
	}
	switch {
	case n.phone == "" && spec.RequirePhone:
		verr.add("phone", "is required")
	case n.phone != "" && !validPhone(n.phone):
		verr.add("phone", "is not a valid number")
	}
	for field, value := range map[string]string{"linkedin": n.linkedin, "instagram": n.instagram, "twitter": n.twitter} {
		checkLen(verr, field, value, maxShortLen)
	}
}

func validateDetails(verr *ValidationError, spec KindSpec, details map[string]string) {
	for key, value := range details {
		if !spec.allows(key) {
			verr.add("details."+key, "is not accepted for "+string(spec.Kind))
			continue
		}
		checkLen(verr, "details."+key, value, maxLongLen)
	}
	for _, key := range spec.Required {
		if strings.TrimSpace(details[key]) == "" {
			verr.add("details."+key, "is required")
		}
	}
	if spec.Kind == store.KindVolunteer && strings.EqualFold(details["role"], "other") && strings.TrimSpace(details["customRole"]) == "" {
		verr.add("details.customRole", "is required when role is other")
	}
}

type contactFields struct {
	fullName, email, phone, linkedin, instagram, twitter string
}

func trimDetails(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out
}
