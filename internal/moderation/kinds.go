package moderation

import (
	"strings"

	"flames/api/internal/store"
)

// KindSpec describes how one nomination kind is validated, labelled in
// emails, and where its media lands in the bucket.
type KindSpec struct {
	Kind         store.Kind
	Label        string
	MediaPrefix  string
	RequirePhone bool
	// RoleKey names the detail used as the "role" line of emails.
	RoleKey string
	// Required and Optional list the accepted detail keys.
	Required []string
	Optional []string
}

var kinds = map[store.Kind]KindSpec{
	store.KindVolunteer: {
		Kind:         store.KindVolunteer,
		Label:        "volunteer application",
		MediaPrefix:  "volunteer_photos",
		RequirePhone: true,
		RoleKey:      "role",
		Required:     []string{"role", "whyVolunteer"},
		Optional:     []string{"customRole"},
	},
	store.KindSpeaker: {
		Kind:        store.KindSpeaker,
		Label:       "speaker nomination",
		MediaPrefix: "speaker_photos",
		RoleKey:     "topic",
		Required:    []string{"topic", "bio"},
	},
	store.KindPartner: {
		Kind:         store.KindPartner,
		Label:        "partner request",
		MediaPrefix:  "partner_logos",
		RequirePhone: true,
		RoleKey:      "brand",
		Required:     []string{"brand", "website", "reason"},
	},
}

// LookupKind resolves a path segment such as "speaker" or "speakers".
func LookupKind(raw string) (KindSpec, bool) {
	name := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(raw)), "s")
	spec, ok := kinds[store.Kind(name)]
	return spec, ok
}

func (k KindSpec) allows(key string) bool {
	for _, candidate := range k.Required {
		if candidate == key {
			return true
		}
	}
	for _, candidate := range k.Optional {
		if candidate == key {
			return true
		}
	}
	return false
}

// Role is the line shown under the applicant's name in emails. A volunteer
// who picked "other" is described by their custom role.
func (k KindSpec) Role(details map[string]string) string {
	role := details[k.RoleKey]
	if k.Kind == store.KindVolunteer && strings.EqualFold(role, "other") {
		if custom := strings.TrimSpace(details["customRole"]); custom != "" {
			return custom
		}
	}
	return role
}
