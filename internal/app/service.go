package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"flames/api/internal/auth"
	"flames/api/internal/authpw"
	"flames/api/internal/config"
	"flames/api/internal/moderation"
	"flames/api/internal/rbac"
	"flames/api/internal/search"
	"flames/api/internal/session"
	"flames/api/internal/store"
	"flames/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	Email        string
	UserName     string
	Admin        bool
	JTI          string
	ExpiresAt    time.Time
}

// Actor is who the moderation layer sees acting.
func (s Session) Actor() moderation.Actor {
	return moderation.Actor{UserID: s.UserID, Email: s.Email, Admin: s.Admin}
}

// DataStore is everything the API needs from persistence.
type DataStore interface {
	moderation.Store
	authpw.AdminStore
	GetAdminByID(ctx context.Context, id string) (store.AdminUser, error)
	Ping(ctx context.Context) error
}

// sessionStore keeps refresh tokens and the access-token revocation list.
type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID, email string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (session.TokenData, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
	RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)
	Ping(ctx context.Context) error
}

type searcher interface {
	Search(ctx context.Context, q search.Query) search.Response
}

type Service struct {
	cfg        config.Config
	store      DataStore
	moderation *moderation.Service
	passwords  *authpw.Service
	sessions   sessionStore
	search     searcher
	logger     *zap.Logger
	now        func() time.Time
}

type Option func(*Service)

// WithSessions enables refresh tokens and logout revocation.
func WithSessions(sessions sessionStore) Option {
	return func(s *Service) { s.sessions = sessions }
}

func WithSearch(searcher searcher) Option {
	return func(s *Service) { s.search = searcher }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func New(cfg config.Config, st DataStore, mod *moderation.Service, opts ...Option) *Service {
	s := &Service{
		cfg:        cfg,
		store:      st,
		moderation: mod,
		passwords:  authpw.NewService(st),
		logger:     zap.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Moderation() *moderation.Service {
	return s.moderation
}

func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	user, err := s.passwords.SignIn(ctx, authpw.SignInRequest{Email: email, Password: password})
	if err != nil {
		return Session{}, err
	}
	if !user.Admin {
		return Session{}, errNotAdmin
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	if s.sessions == nil {
		return Session{}, errRefreshUnavailable
	}
	tokenHash := auth.HashToken(refreshToken)
	data, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return Session{}, errRefreshInvalid
		}
		return Session{}, err
	}
	user, err := s.store.GetAdminByID(ctx, data.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Session{}, errRefreshInvalid
		}
		return Session{}, err
	}
	if !user.Admin {
		return Session{}, errNotAdmin
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.AdminUser) (Session, error) {
	now := s.now()
	jti := util.NewID("jti")
	claims := auth.NewClaims(user.ID, jti, user.Email, user.DisplayName, user.Admin, now, s.cfg.AccessTTL)

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), claims)
	if err != nil {
		return Session{}, err
	}

	out := Session{
		Token:     token,
		UserID:    user.ID,
		Email:     user.Email,
		UserName:  user.DisplayName,
		Admin:     user.Admin,
		JTI:       jti,
		ExpiresAt: claims.Expiry(),
	}
	if s.sessions != nil {
		refresh := util.NewID("rft") + util.NewID("")
		if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, user.Email, now.Add(s.cfg.RefreshTTL)); err != nil {
			return Session{}, err
		}
		out.RefreshToken = refresh
	}
	return out, nil
}

// SessionFromToken trusts the claims of a valid, unrevoked access token.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	if s.sessions != nil {
		revoked, err := s.sessions.IsAccessTokenRevoked(ctx, claims.ID)
		if err != nil {
			return Session{}, err
		}
		if revoked {
			return Session{}, auth.ErrInvalidToken
		}
	}
	return Session{
		Token:     token,
		UserID:    claims.Subject,
		Email:     claims.Email,
		UserName:  claims.Name,
		Admin:     claims.Admin,
		JTI:       claims.ID,
		ExpiresAt: claims.Expiry(),
	}, nil
}

func (s *Service) Logout(ctx context.Context, sess Session, refreshToken string) error {
	if s.sessions == nil {
		return nil
	}
	if sess.JTI != "" {
		if err := s.sessions.RevokeAccessToken(ctx, sess.JTI, sess.ExpiresAt); err != nil {
			s.logger.Warn("revoke access token failed", zap.Error(err))
		}
	}
	if refreshToken != "" {
		if err := s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken)); err != nil {
			s.logger.Warn("revoke refresh token failed", zap.Error(err))
		}
	}
	return nil
}

func (s *Service) Can(sess Session, action rbac.Action) bool {
	return rbac.Can(rbac.FromClaim(sess.Admin), action)
}

// Search runs the admin global search. Without a search backend it returns
// an empty response.
func (s *Service) Search(ctx context.Context, sess Session, q search.Query) (search.Response, error) {
	if !s.Can(sess, rbac.ActionRead) {
		return search.Response{}, moderation.ErrForbidden
	}
	if s.search == nil {
		return search.Response{Results: []search.Result{}}, nil
	}
	return s.search.Search(ctx, q), nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Readiness reports each dependency the process was configured with.
func (s *Service) Readiness(ctx context.Context) map[string]error {
	checks := map[string]error{"database": s.store.Ping(ctx)}
	if s.sessions != nil {
		checks["redis"] = s.sessions.Ping(ctx)
	}
	return checks
}

func (s *Service) GrantAdmin(ctx context.Context, email, password, name string) (store.AdminUser, error) {
	user, err := s.passwords.Grant(ctx, authpw.GrantRequest{Email: email, Password: password, DisplayName: name})
	if err != nil {
		return store.AdminUser{}, fmt.Errorf("grant admin: %w", err)
	}
	return user, nil
}
