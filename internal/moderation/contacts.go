package moderation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"flames/api/internal/dashboard"
	"flames/api/internal/rbac"
	"flames/api/internal/store"
	"flames/api/internal/util"
)

const contactKind = "contact"

type ContactInput struct {
	FullName string
	Email    string
	Message  string
}

func (s *Service) SubmitContact(ctx context.Context, in ContactInput) (c store.ContactMessage, err error) {
	start := time.Now()
	defer func() { s.observe(contactKind, "submit", start, err) }()

	c = store.ContactMessage{
		ID:        util.NewID("msg"),
		FullName:  strings.TrimSpace(in.FullName),
		Email:     normalizeEmail(in.Email),
		Message:   strings.TrimSpace(in.Message),
		CreatedAt: s.now(),
	}
	verr := &ValidationError{}
	if c.FullName == "" {
		verr.add("fullName", "is required")
	}
	checkLen(verr, "fullName", c.FullName, maxShortLen)
	if !validEmail(c.Email) {
		verr.add("email", "is not a valid address")
	}
	if c.Message == "" {
		verr.add("message", "is required")
	}
	checkLen(verr, "message", c.Message, maxLongLen)
	if err = verr.orNil(); err != nil {
		return store.ContactMessage{}, err
	}

	c, err = s.store.CreateContact(ctx, c)
	if err != nil {
		return store.ContactMessage{}, fmt.Errorf("create contact: %w", err)
	}
	if s.indexer != nil {
		s.indexer.IndexContact(c)
	}
	return c, nil
}

func (s *Service) ListContacts(ctx context.Context, actor Actor, view dashboard.View) (dashboard.Page[store.ContactMessage], error) {
	if err := authorize(actor, rbac.ActionRead); err != nil {
		return dashboard.Page[store.ContactMessage]{}, err
	}
	page, err := s.store.ListContacts(ctx, view)
	if err != nil {
		return dashboard.Page[store.ContactMessage]{}, fmt.Errorf("list contacts: %w", err)
	}
	return page, nil
}

func (s *Service) Resolve(ctx context.Context, actor Actor, id string, version int64) (store.ContactMessage, error) {
	return s.setResolved(ctx, actor, id, version, true)
}

func (s *Service) Unresolve(ctx context.Context, actor Actor, id string, version int64) (store.ContactMessage, error) {
	return s.setResolved(ctx, actor, id, version, false)
}

func (s *Service) setResolved(ctx context.Context, actor Actor, id string, version int64, resolved bool) (c store.ContactMessage, err error) {
	op := "resolve"
	if !resolved {
		op = "unresolve"
	}
	start := time.Now()
	defer func() { s.observe(contactKind, op, start, err) }()

	if err = authorize(actor, rbac.ActionModerate); err != nil {
		return store.ContactMessage{}, err
	}
	err = s.store.WithinTx(ctx, func(tx store.Tx) error {
		current, err := tx.GetContactForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := checkVersion(version, current.Version); err != nil {
			return err
		}
		current.Resolved = resolved
		c, err = tx.SaveContact(ctx, current)
		return err
	})
	if err != nil {
		return store.ContactMessage{}, translate(err)
	}
	if s.indexer != nil {
		s.indexer.IndexContact(c)
	}
	return c, nil
}

func (s *Service) DeleteContact(ctx context.Context, actor Actor, id string, version int64) (err error) {
	start := time.Now()
	defer func() { s.observe(contactKind, "delete", start, err) }()

	if err = authorize(actor, rbac.ActionDelete); err != nil {
		return err
	}
	err = s.store.WithinTx(ctx, func(tx store.Tx) error {
		current, err := tx.GetContactForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := checkVersion(version, current.Version); err != nil {
			return err
		}
		return tx.DeleteContact(ctx, id)
	})
	if err != nil {
		return translate(err)
	}
	if s.indexer != nil {
		s.indexer.RemoveContact(id)
	}
	return nil
}

// Subscribe adds an email to the newsletter list and sends the welcome email.
func (s *Service) Subscribe(ctx context.Context, email, source string) (store.Subscriber, error) {
	sub := store.Subscriber{
		Email:        normalizeEmail(email),
		Source:       strings.TrimSpace(source),
		SubscribedAt: s.now(),
	}
	if !validEmail(sub.Email) {
		return store.Subscriber{}, &ValidationError{Fields: map[string]string{"email": "is not a valid address"}}
	}
	if sub.Source == "" {
		sub.Source = "website"
	}
	if err := s.store.CreateSubscriber(ctx, sub); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return store.Subscriber{}, &DuplicateError{Field: "email", Message: "You're already on the list."}
		}
		return store.Subscriber{}, fmt.Errorf("create subscriber: %w", err)
	}
	if s.mailer != nil {
		sendErr := s.mailer.SendSubscriberWelcome(sub.Email)
		s.metrics.Notified("welcome", sendErr == nil)
		if sendErr != nil {
			s.logger.Warn("welcome email failed", zap.Error(sendErr))
		}
	}
	return sub, nil
}

func (s *Service) ListSubscribers(ctx context.Context, actor Actor, view dashboard.View) (dashboard.Page[store.Subscriber], error) {
	if err := authorize(actor, rbac.ActionRead); err != nil {
		return dashboard.Page[store.Subscriber]{}, err
	}
	page, err := s.store.ListSubscribers(ctx, view)
	if err != nil {
		return dashboard.Page[store.Subscriber]{}, fmt.Errorf("list subscribers: %w", err)
	}
	return page, nil
}

func (s *Service) DeleteSubscriber(ctx context.Context, actor Actor, email string) error {
	if err := authorize(actor, rbac.ActionDelete); err != nil {
		return err
	}
	return translate(s.store.DeleteSubscriber(ctx, normalizeEmail(email)))
}
