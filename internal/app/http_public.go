package app

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"flames/api/internal/moderation"
)

type submissionBody struct {
	FullName  string            `json:"fullName"`
	Email     string            `json:"email"`
	Phone     string            `json:"phone"`
	LinkedIn  string            `json:"linkedin"`
	Instagram string            `json:"instagram"`
	Twitter   string            `json:"twitter"`
	Details   map[string]string `json:"details"`
	MediaURL  string            `json:"mediaUrl"`
}

func (b submissionBody) submission() moderation.Submission {
	return moderation.Submission{
		FullName:  b.FullName,
		Email:     b.Email,
		Phone:     b.Phone,
		LinkedIn:  b.LinkedIn,
		Instagram: b.Instagram,
		Twitter:   b.Twitter,
		Details:   b.Details,
		MediaURL:  b.MediaURL,
	}
}

// handleApplications serves POST /api/applications/{kind} and
// POST /api/applications/{kind}/check.
func (s *HTTPServer) handleApplications(w http.ResponseWriter, r *http.Request, parts []string) {
	if r.Method != http.MethodPost || len(parts) == 0 || len(parts) > 2 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
		return
	}
	spec, ok := moderation.LookupKind(parts[0])
	if !ok {
		s.writeServiceError(w, r, errUnknownKind, "submit")
		return
	}
	if !s.allow(w, r) {
		return
	}
	mod := s.service.Moderation()

	if len(parts) == 2 {
		if parts[1] != "check" {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
			return
		}
		var body struct {
			Email string `json:"email"`
			Phone string `json:"phone"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := mod.CheckUniqueness(r.Context(), spec.Kind, body.Email, body.Phone); err != nil {
			s.writeServiceError(w, r, err, "check "+spec.Label)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	var body submissionBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	n, err := mod.Submit(r.Context(), spec.Kind, body.submission())
	if err != nil {
		s.writeServiceError(w, r, err, "submit "+spec.Label)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":     n.ID,
		"kind":   n.Kind,
		"status": approvalStatus(n.Approved),
	})
}

func (s *HTTPServer) handleContactSubmit(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r) {
		return
	}
	var body struct {
		FullName string `json:"fullName"`
		Email    string `json:"email"`
		Message  string `json:"message"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	c, err := s.service.Moderation().SubmitContact(r.Context(), moderation.ContactInput{
		FullName: body.FullName,
		Email:    body.Email,
		Message:  body.Message,
	})
	if err != nil {
		s.writeServiceError(w, r, err, "send message")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": c.ID})
}

func (s *HTTPServer) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r) {
		return
	}
	var body struct {
		Email  string `json:"email"`
		Source string `json:"source"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	sub, err := s.service.Moderation().Subscribe(r.Context(), body.Email, body.Source)
	if err != nil {
		s.writeServiceError(w, r, err, "subscribe")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true, "email": sub.Email})
}

// handleMediaUpload accepts one image as the "file" field of a multipart
// form and returns its public URL. The kind query parameter picks the folder.
func (s *HTTPServer) handleMediaUpload(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r) {
		return
	}
	spec, ok := moderation.LookupKind(r.URL.Query().Get("kind"))
	if !ok {
		s.writeServiceError(w, r, errUnknownKind, "upload media")
		return
	}
	media, err := s.readMedia(w, r, "file")
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}
	if err != nil {
		s.writeServiceError(w, r, err, "upload media")
		return
	}
	if media == nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "file is required", nil)
		return
	}
	url, err := s.service.Moderation().UploadMedia(r.Context(), spec.Kind, *media)
	if err != nil {
		s.writeServiceError(w, r, err, "upload media")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"url": url})
}

// readMedia pulls an image out of a multipart request. It returns nil when
// the field is absent.
func (s *HTTPServer) readMedia(w http.ResponseWriter, r *http.Request, field string) (*moderation.Media, error) {
	if r.MultipartForm == nil {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxMediaBytes+(1<<20))
		if err := r.ParseMultipartForm(s.maxMediaBytes); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return nil, domainError(http.StatusRequestEntityTooLarge, "MEDIA_TOO_LARGE", "File is too large", nil)
			}
			return nil, domainError(http.StatusBadRequest, "INVALID_BODY", "Expected a multipart form", nil)
		}
	}
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, domainError(http.StatusBadRequest, "INVALID_BODY", "Unreadable file", nil)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, s.maxMediaBytes+1))
	if err != nil {
		return nil, domainError(http.StatusBadRequest, "INVALID_BODY", "Unreadable file", nil)
	}
	if int64(len(data)) > s.maxMediaBytes {
		return nil, domainError(http.StatusRequestEntityTooLarge, "MEDIA_TOO_LARGE", "File is too large", nil)
	}
	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		return nil, domainError(http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA", "Only images can be uploaded", nil)
	}
	return &moderation.Media{Filename: header.Filename, ContentType: contentType, Data: data}, nil
}

func (s *HTTPServer) handlePublished(w http.ResponseWriter, r *http.Request, rawKind string) {
	spec, ok := moderation.LookupKind(rawKind)
	if !ok {
		s.writeServiceError(w, r, errUnknownKind, "list published")
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_QUERY", "limit must be an integer", nil)
			return
		}
		limit = parsed
	}
	records, err := s.service.Moderation().ListPublished(r.Context(), spec.Kind, limit)
	if err != nil {
		s.writeServiceError(w, r, err, "list "+string(spec.Kind)+"s")
		return
	}
	items := make([]map[string]any, 0, len(records))
	for _, p := range records {
		items = append(items, publishedPayload(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}
