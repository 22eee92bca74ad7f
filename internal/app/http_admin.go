package app

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"flames/api/internal/dashboard"
	"flames/api/internal/moderation"
	"flames/api/internal/search"
	"flames/api/internal/store"
)

type patchBody struct {
	FullName  *string           `json:"fullName"`
	Email     *string           `json:"email"`
	Phone     *string           `json:"phone"`
	LinkedIn  *string           `json:"linkedin"`
	Instagram *string           `json:"instagram"`
	Twitter   *string           `json:"twitter"`
	Details   map[string]string `json:"details"`
}

func (b patchBody) patch() moderation.Patch {
	return moderation.Patch{
		FullName:  b.FullName,
		Email:     b.Email,
		Phone:     b.Phone,
		LinkedIn:  b.LinkedIn,
		Instagram: b.Instagram,
		Twitter:   b.Twitter,
		Details:   b.Details,
	}
}

func (s *HTTPServer) handleAdmin(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) == 0 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
		return
	}
	switch parts[0] {
	case "nominations":
		s.handleAdminNominations(w, r, session, parts[1:])
	case "contacts":
		s.handleAdminContacts(w, r, session, parts[1:])
	case "subscribers":
		s.handleAdminSubscribers(w, r, session, parts[1:])
	case "tickets":
		s.handleAdminTickets(w, r, session, parts[1:])
	case "search":
		if r.Method == http.MethodGet && len(parts) == 1 {
			s.handleAdminSearch(w, r, session)
			return
		}
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	}
}

func (s *HTTPServer) handleAdminNominations(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) == 0 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
		return
	}
	spec, ok := moderation.LookupKind(parts[0])
	if !ok {
		s.writeServiceError(w, r, errUnknownKind, "load nominations")
		return
	}
	mod := s.service.Moderation()
	actor := session.Actor()
	kind := spec.Kind
	label := string(kind)

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			view, err := dashboard.ParseView(r.URL.Query(), dashboard.FilterApproved, dashboard.FilterPending)
			if err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_QUERY", err.Error(), nil)
				return
			}
			page, err := mod.ListNominations(r.Context(), actor, kind, view)
			if err != nil {
				s.writeServiceError(w, r, err, "load "+label+"s")
				return
			}
			writeJSON(w, http.StatusOK, pagePayload(page, nominationPayload))
		case http.MethodPost:
			var body submissionBody
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			n, err := mod.Create(r.Context(), actor, kind, body.submission())
			if err != nil {
				s.writeServiceError(w, r, err, "create "+label)
				return
			}
			writeJSON(w, http.StatusCreated, nominationPayload(n))
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	id := parts[1]
	if len(parts) == 2 {
		switch r.Method {
		case http.MethodGet:
			n, err := mod.GetNomination(r.Context(), actor, kind, id)
			if err != nil {
				s.writeServiceError(w, r, err, "load "+label)
				return
			}
			writeJSON(w, http.StatusOK, nominationPayload(n))
		case http.MethodPut:
			s.handleNominationEdit(w, r, actor, kind, id)
		case http.MethodDelete:
			version, err := expectedVersion(r)
			if err != nil {
				s.writeServiceError(w, r, err, "delete "+label)
				return
			}
			if err := mod.Delete(r.Context(), actor, kind, id, version); err != nil {
				s.writeServiceError(w, r, err, "delete "+label)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": id})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(parts) != 3 || r.Method != http.MethodPost {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
		return
	}
	version, err := expectedVersion(r)
	if err != nil {
		s.writeServiceError(w, r, err, parts[2]+" "+label)
		return
	}
	switch parts[2] {
	case "approve":
		res, err := mod.Approve(r.Context(), actor, kind, id, version)
		if err != nil {
			s.writeServiceError(w, r, err, "approve "+label)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"nomination": nominationPayload(res.Nomination),
			"published":  publishedPayload(res.Published),
			"notified":   res.Notified,
		})
	case "unapprove":
		n, err := mod.Unapprove(r.Context(), actor, kind, id, version)
		if err != nil {
			s.writeServiceError(w, r, err, "unapprove "+label)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"nomination": nominationPayload(n)})
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	}
}

// handleNominationEdit takes a JSON patch, or a multipart form carrying the
// patch in a "data" field next to an optional "media" image.
func (s *HTTPServer) handleNominationEdit(w http.ResponseWriter, r *http.Request, actor moderation.Actor, kind store.Kind, id string) {
	action := "update " + string(kind)
	version, err := expectedVersion(r)
	if err != nil {
		s.writeServiceError(w, r, err, action)
		return
	}

	var (
		body  patchBody
		media *moderation.Media
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		media, err = s.readMedia(w, r, "media")
		if r.MultipartForm != nil {
			defer r.MultipartForm.RemoveAll()
		}
		if err != nil {
			s.writeServiceError(w, r, err, action)
			return
		}
		if raw := r.FormValue("data"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid JSON in data field", nil)
				return
			}
		}
	} else if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	n, err := s.service.Moderation().Edit(r.Context(), actor, kind, id, body.patch(), media, version)
	if err != nil {
		s.writeServiceError(w, r, err, action)
		return
	}
	writeJSON(w, http.StatusOK, nominationPayload(n))
}

func (s *HTTPServer) handleAdminContacts(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	mod := s.service.Moderation()
	actor := session.Actor()

	switch {
	case len(parts) == 0 && r.Method == http.MethodGet:
		view, err := dashboard.ParseView(r.URL.Query(), dashboard.FilterResolved, dashboard.FilterUnresolved)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_QUERY", err.Error(), nil)
			return
		}
		page, err := mod.ListContacts(r.Context(), actor, view)
		if err != nil {
			s.writeServiceError(w, r, err, "load contacts")
			return
		}
		writeJSON(w, http.StatusOK, pagePayload(page, contactPayload))

	case len(parts) == 1 && r.Method == http.MethodDelete:
		version, err := expectedVersion(r)
		if err != nil {
			s.writeServiceError(w, r, err, "delete contact")
			return
		}
		if err := mod.DeleteContact(r.Context(), actor, parts[0], version); err != nil {
			s.writeServiceError(w, r, err, "delete contact")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": parts[0]})

	case len(parts) == 2 && r.Method == http.MethodPost && (parts[1] == "resolve" || parts[1] == "unresolve"):
		version, err := expectedVersion(r)
		if err != nil {
			s.writeServiceError(w, r, err, parts[1]+" contact")
			return
		}
		var c store.ContactMessage
		if parts[1] == "resolve" {
			c, err = mod.Resolve(r.Context(), actor, parts[0], version)
		} else {
			c, err = mod.Unresolve(r.Context(), actor, parts[0], version)
		}
		if err != nil {
			s.writeServiceError(w, r, err, parts[1]+" contact")
			return
		}
		writeJSON(w, http.StatusOK, contactPayload(c))

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	}
}

func (s *HTTPServer) handleAdminSubscribers(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	mod := s.service.Moderation()
	actor := session.Actor()

	switch {
	case len(parts) == 0 && r.Method == http.MethodGet:
		view, err := dashboard.ParseView(r.URL.Query())
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_QUERY", err.Error(), nil)
			return
		}
		page, err := mod.ListSubscribers(r.Context(), actor, view)
		if err != nil {
			s.writeServiceError(w, r, err, "load subscribers")
			return
		}
		writeJSON(w, http.StatusOK, pagePayload(page, subscriberPayload))

	case len(parts) == 1 && r.Method == http.MethodDelete:
		// r.URL.Path is already decoded.
		if err := mod.DeleteSubscriber(r.Context(), actor, parts[0]); err != nil {
			s.writeServiceError(w, r, err, "remove subscriber")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	}
}

func (s *HTTPServer) handleAdminSearch(w http.ResponseWriter, r *http.Request, session Session) {
	values := r.URL.Query()
	q := search.Query{
		Text:       strings.TrimSpace(values.Get("q")),
		FilterType: search.ResultType(values.Get("type")),
		FilterKind: values.Get("kind"),
	}
	if raw := values.Get("limit"); raw != "" {
		q.Limit, _ = strconv.Atoi(raw)
	}
	if raw := values.Get("offset"); raw != "" {
		q.Offset, _ = strconv.Atoi(raw)
	}
	resp, err := s.service.Search(r.Context(), session, q)
	if err != nil {
		s.writeServiceError(w, r, err, "search")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
