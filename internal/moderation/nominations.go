package moderation

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"flames/api/internal/dashboard"
	"flames/api/internal/media"
	"flames/api/internal/rbac"
	"flames/api/internal/store"
	"flames/api/internal/util"
)

// Submission is the applicant-supplied part of a nomination.
type Submission struct {
	FullName  string
	Email     string
	Phone     string
	LinkedIn  string
	Instagram string
	Twitter   string
	Details   map[string]string
	MediaURL  string
}

// Patch lists the fields an edit changes. Nil pointers are left alone and
// Details keys are merged into the existing map.
type Patch struct {
	FullName  *string
	Email     *string
	Phone     *string
	LinkedIn  *string
	Instagram *string
	Twitter   *string
	Details   map[string]string
}

// Media is an uploaded photo or logo.
type Media struct {
	Filename    string
	ContentType string
	Data        []byte
}

type ApproveResult struct {
	Nomination store.Nomination
	Published  store.Published
	// Notified is false when the approval email could not be sent.
	Notified bool
}

func (s *Service) ListNominations(ctx context.Context, actor Actor, kind store.Kind, view dashboard.View) (dashboard.Page[store.Nomination], error) {
	if err := authorize(actor, rbac.ActionRead); err != nil {
		return dashboard.Page[store.Nomination]{}, err
	}
	page, err := s.store.ListNominations(ctx, kind, view)
	if err != nil {
		return dashboard.Page[store.Nomination]{}, fmt.Errorf("list %s nominations: %w", kind, err)
	}
	return page, nil
}

func (s *Service) GetNomination(ctx context.Context, actor Actor, kind store.Kind, id string) (store.Nomination, error) {
	if err := authorize(actor, rbac.ActionRead); err != nil {
		return store.Nomination{}, err
	}
	n, err := s.store.GetNomination(ctx, kind, id)
	return n, translate(err)
}

// ListPublished is the public read of live records.
func (s *Service) ListPublished(ctx context.Context, kind store.Kind, limit int) ([]store.Published, error) {
	records, err := s.store.ListPublished(ctx, kind, limit)
	if err != nil {
		return nil, fmt.Errorf("list published %s: %w", kind, err)
	}
	return records, nil
}

// CheckUniqueness looks for an existing nomination of the same kind by email,
// then by phone. It is advisory: a concurrent submission can still slip in
// between this check and the insert.
func (s *Service) CheckUniqueness(ctx context.Context, kind store.Kind, email, phone string) error {
	email = normalizeEmail(email)
	phone = strings.TrimSpace(phone)
	if email != "" {
		found, err := s.store.NominationExists(ctx, kind, "email", email)
		if err != nil {
			return fmt.Errorf("check email uniqueness: %w", err)
		}
		if found {
			return &DuplicateError{Field: "email", Message: "This email is already registered."}
		}
	}
	if phone != "" {
		found, err := s.store.NominationExists(ctx, kind, "phone", phone)
		if err != nil {
			return fmt.Errorf("check phone uniqueness: %w", err)
		}
		if found {
			return &DuplicateError{Field: "phone", Message: "This phone number is already registered."}
		}
	}
	return nil
}

// Submit is the public application path. The confirmation email is best
// effort.
func (s *Service) Submit(ctx context.Context, kind store.Kind, sub Submission) (n store.Nomination, err error) {
	start := time.Now()
	defer func() { s.observe(string(kind), "submit", start, err) }()

	n, err = s.insert(ctx, kind, sub)
	if err != nil {
		return store.Nomination{}, err
	}
	spec := kinds[kind]
	if s.mailer != nil {
		sendErr := s.mailer.SendApplicationReceived(n.Email, n.FullName, spec.Label, spec.Role(n.Details))
		s.metrics.Notified("received", sendErr == nil)
		if sendErr != nil {
			s.logger.Warn("application received email failed",
				zap.String("kind", string(kind)), zap.String("id", n.ID), zap.Error(sendErr))
		}
	}
	return n, nil
}

// Create adds a pending nomination on behalf of an administrator. No email
// is sent.
func (s *Service) Create(ctx context.Context, actor Actor, kind store.Kind, sub Submission) (n store.Nomination, err error) {
	start := time.Now()
	defer func() { s.observe(string(kind), "create", start, err) }()

	if err = authorize(actor, rbac.ActionModerate); err != nil {
		return store.Nomination{}, err
	}
	return s.insert(ctx, kind, sub)
}

func (s *Service) insert(ctx context.Context, kind store.Kind, sub Submission) (store.Nomination, error) {
	spec, ok := kinds[kind]
	if !ok {
		return store.Nomination{}, ErrUnknownKind
	}
	n := store.Nomination{
		ID:        util.NewID("nom"),
		Kind:      kind,
		FullName:  strings.TrimSpace(sub.FullName),
		Email:     normalizeEmail(sub.Email),
		Phone:     strings.TrimSpace(sub.Phone),
		LinkedIn:  strings.TrimSpace(sub.LinkedIn),
		Instagram: strings.TrimSpace(sub.Instagram),
		Twitter:   strings.TrimSpace(sub.Twitter),
		Details:   trimDetails(sub.Details),
		MediaURL:  strings.TrimSpace(sub.MediaURL),
		CreatedAt: s.now(),
	}
	if err := validateNomination(spec, n); err != nil {
		return store.Nomination{}, err
	}
	if n.MediaURL != "" && !s.hostedMedia(n.MediaURL) {
		verr := &ValidationError{}
		verr.add("mediaUrl", "must point at an uploaded file")
		return store.Nomination{}, verr
	}
	if err := s.CheckUniqueness(ctx, kind, n.Email, n.Phone); err != nil {
		return store.Nomination{}, err
	}
	created, err := s.store.CreateNomination(ctx, n)
	if err != nil {
		return store.Nomination{}, fmt.Errorf("create %s: %w", kind, err)
	}
	s.index(created)
	return created, nil
}

// hostedMedia reports whether raw is an http(s) URL under one of the
// configured media origins.
func (s *Service) hostedMedia(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" || u.User != nil {
		return false
	}
	if strings.Contains(u.Path, "..") {
		return false
	}
	for _, origin := range s.mediaOrigins {
		if strings.HasPrefix(raw, origin) {
			return true
		}
	}
	return false
}

func validateNomination(spec KindSpec, n store.Nomination) error {
	verr := &ValidationError{}
	validateContact(verr, spec, contactFields{
		fullName:  n.FullName,
		email:     n.Email,
		phone:     n.Phone,
		linkedin:  n.LinkedIn,
		instagram: n.Instagram,
		twitter:   n.Twitter,
	})
	validateDetails(verr, spec, n.Details)
	return verr.orNil()
}

// Approve marks a nomination approved and publishes it in one transaction.
// The nomination's own published record is refreshed when it exists. A
// leftover record holding the same email is taken over unless it still
// belongs to another approved nomination.
func (s *Service) Approve(ctx context.Context, actor Actor, kind store.Kind, id string, version int64) (res ApproveResult, err error) {
	start := time.Now()
	defer func() { s.observe(string(kind), "approve", start, err) }()

	if err = authorize(actor, rbac.ActionModerate); err != nil {
		return ApproveResult{}, err
	}
	err = s.store.WithinTx(ctx, func(tx store.Tx) error {
		n, err := tx.GetNominationForUpdate(ctx, kind, id)
		if err != nil {
			return err
		}
		if err := checkVersion(version, n.Version); err != nil {
			return err
		}
		own, ownFound, err := tx.FindPublishedByNomination(ctx, kind, n.ID)
		if err != nil {
			return err
		}
		if !ownFound {
			if err := claimEmail(ctx, tx, n); err != nil {
				return err
			}
		}

		n.Approved = true
		saved, err := tx.SaveNomination(ctx, n)
		if err != nil {
			return err
		}
		if ownFound {
			pub := store.PublishFrom(saved, own.ID, s.now())
			if err := tx.SavePublished(ctx, pub); err != nil {
				return err
			}
			res.Nomination, res.Published = saved, pub
			return nil
		}
		pub := store.PublishFrom(saved, util.NewID("pub"), s.now())
		if err := tx.InsertPublished(ctx, pub); err != nil {
			return err
		}
		// The insert may have folded into a leftover record with this email.
		if refreshed, ok, err := tx.FindPublishedByNomination(ctx, kind, saved.ID); err != nil {
			return err
		} else if ok {
			pub = refreshed
		}
		res.Nomination, res.Published = saved, pub
		return nil
	})
	if err != nil {
		return ApproveResult{}, translate(err)
	}

	s.index(res.Nomination)
	res.Notified = s.notifyApproved(kind, res.Nomination)
	s.logger.Info("nomination approved",
		zap.String("kind", string(kind)), zap.String("id", id),
		zap.String("actor", actor.UserID), zap.Bool("notified", res.Notified))
	return res, nil
}

// claimEmail refuses to publish n when its email is live for another
// approved nomination of the same kind.
func claimEmail(ctx context.Context, tx store.Tx, n store.Nomination) error {
	other, found, err := tx.FindPublishedByEmail(ctx, n.Kind, n.Email)
	if err != nil || !found || other.NominationID == n.ID {
		return err
	}
	owner, err := tx.GetNominationForUpdate(ctx, n.Kind, other.NominationID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if owner.Approved {
		return &DuplicateError{Field: "email", Message: "Another approved nomination already uses this email."}
	}
	return nil
}

func (s *Service) notifyApproved(kind store.Kind, n store.Nomination) bool {
	if s.mailer == nil {
		return false
	}
	spec := kinds[kind]
	if err := s.mailer.SendApprovalNotice(n.Email, n.FullName, spec.Label, spec.Role(n.Details)); err != nil {
		s.metrics.Notified("approval", false)
		s.logger.Warn("approval email failed",
			zap.String("kind", string(kind)), zap.String("id", n.ID), zap.Error(err))
		return false
	}
	s.metrics.Notified("approval", true)
	return true
}

// Unapprove withdraws the nomination's published record, if any, and clears
// the flag. Calling it on a pending nomination is not an error.
func (s *Service) Unapprove(ctx context.Context, actor Actor, kind store.Kind, id string, version int64) (n store.Nomination, err error) {
	start := time.Now()
	defer func() { s.observe(string(kind), "unapprove", start, err) }()

	if err = authorize(actor, rbac.ActionModerate); err != nil {
		return store.Nomination{}, err
	}
	replayed := false
	err = s.store.WithinTx(ctx, func(tx store.Tx) error {
		current, err := tx.GetNominationForUpdate(ctx, kind, id)
		if err != nil {
			return err
		}
		// A retried unapprove carries the version it was first sent with,
		// which the first attempt bumped by one.
		if !current.Approved && version > 0 && version == current.Version-1 {
			n, replayed = current, true
			return nil
		}
		if err := checkVersion(version, current.Version); err != nil {
			return err
		}
		if err := withdraw(ctx, tx, kind, current.ID); err != nil {
			return err
		}
		current.Approved = false
		n, err = tx.SaveNomination(ctx, current)
		return err
	})
	if err != nil {
		return store.Nomination{}, translate(err)
	}
	if !replayed {
		s.index(n)
	}
	return n, nil
}

// Delete removes a nomination and, when it is approved, its published
// record. Approval is read inside the transaction.
func (s *Service) Delete(ctx context.Context, actor Actor, kind store.Kind, id string, version int64) (err error) {
	start := time.Now()
	defer func() { s.observe(string(kind), "delete", start, err) }()

	if err = authorize(actor, rbac.ActionDelete); err != nil {
		return err
	}
	err = s.store.WithinTx(ctx, func(tx store.Tx) error {
		n, err := tx.GetNominationForUpdate(ctx, kind, id)
		if err != nil {
			return err
		}
		if err := checkVersion(version, n.Version); err != nil {
			return err
		}
		if n.Approved {
			if err := withdraw(ctx, tx, kind, n.ID); err != nil {
				return err
			}
		}
		return tx.DeleteNomination(ctx, kind, id)
	})
	if err != nil {
		return translate(err)
	}
	s.unindex(id)
	return nil
}

// withdraw deletes the published record owned by nominationID. Records owned
// by other nominations are never touched, whatever their email.
func withdraw(ctx context.Context, tx store.Tx, kind store.Kind, nominationID string) error {
	pub, found, err := tx.FindPublishedByNomination(ctx, kind, nominationID)
	if err != nil || !found {
		return err
	}
	return tx.DeletePublished(ctx, kind, pub.ID)
}

// Edit applies patch to a nomination and mirrors it onto the published
// record when approved. New media is uploaded before the transaction starts.
func (s *Service) Edit(ctx context.Context, actor Actor, kind store.Kind, id string, patch Patch, upload *Media, version int64) (n store.Nomination, err error) {
	start := time.Now()
	defer func() { s.observe(string(kind), "edit", start, err) }()

	if err = authorize(actor, rbac.ActionModerate); err != nil {
		return store.Nomination{}, err
	}
	spec, ok := kinds[kind]
	if !ok {
		return store.Nomination{}, ErrUnknownKind
	}

	var mediaURL string
	if upload != nil {
		if mediaURL, err = s.UploadMedia(ctx, kind, *upload); err != nil {
			return store.Nomination{}, err
		}
	}

	err = s.store.WithinTx(ctx, func(tx store.Tx) error {
		current, err := tx.GetNominationForUpdate(ctx, kind, id)
		if err != nil {
			return err
		}
		if err := checkVersion(version, current.Version); err != nil {
			return err
		}
		next := applyPatch(current, patch)
		if mediaURL != "" {
			next.MediaURL = mediaURL
		}
		if err := validateNomination(spec, next); err != nil {
			return err
		}
		if next.Email != current.Email {
			taken, err := tx.EmailTaken(ctx, kind, next.Email, current.ID)
			if err != nil {
				return err
			}
			if taken {
				return &DuplicateError{Field: "email", Message: "This email is already registered."}
			}
		}
		n, err = tx.SaveNomination(ctx, next)
		if err != nil {
			return err
		}
		if !n.Approved {
			return nil
		}
		pub, found, err := tx.FindPublishedByNomination(ctx, kind, n.ID)
		if err != nil {
			return err
		}
		if !found {
			// Heal a missing counterpart so approved keeps implying published.
			return tx.InsertPublished(ctx, store.PublishFrom(n, util.NewID("pub"), s.now()))
		}
		mirrored := store.PublishFrom(n, pub.ID, pub.PublishedAt)
		return tx.SavePublished(ctx, mirrored)
	})
	if err != nil {
		return store.Nomination{}, translate(err)
	}
	s.index(n)
	return n, nil
}

func applyPatch(n store.Nomination, p Patch) store.Nomination {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	set(&n.FullName, p.FullName)
	set(&n.Phone, p.Phone)
	set(&n.LinkedIn, p.LinkedIn)
	set(&n.Instagram, p.Instagram)
	set(&n.Twitter, p.Twitter)
	if p.Email != nil {
		n.Email = normalizeEmail(*p.Email)
	}
	if n.Details == nil {
		n.Details = map[string]string{}
	}
	for k, v := range trimDetails(p.Details) {
		if v == "" {
			delete(n.Details, k)
			continue
		}
		n.Details[k] = v
	}
	return n
}

// UploadMedia stores a photo or logo under the kind's prefix and returns its
// public URL.
func (s *Service) UploadMedia(ctx context.Context, kind store.Kind, m Media) (string, error) {
	spec, ok := kinds[kind]
	if !ok {
		return "", ErrUnknownKind
	}
	if s.media == nil {
		return "", ErrNoMediaStorage
	}
	if len(m.Data) == 0 {
		return "", &ValidationError{Fields: map[string]string{"media": "is empty"}}
	}
	url, err := s.media.Upload(ctx, media.ObjectKey(spec.MediaPrefix, m.Filename, s.now()), m.Data, m.ContentType)
	if err != nil {
		return "", fmt.Errorf("upload %s media: %w", kind, err)
	}
	return url, nil
}
