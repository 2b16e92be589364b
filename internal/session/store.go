package session

import (
	"context"
	"errors"
	"strings"
	"time"

	pkgerrors "github.com/MwailaCoding/storefront/pkg/errors"
	"github.com/MwailaCoding/storefront/pkg/kv"
	"github.com/MwailaCoding/storefront/pkg/logger"
	"github.com/golang-jwt/jwt/v5"
)

// TokenKey is the storage slot holding the bearer token.
const TokenKey = "storefront:auth_token"

// Store keeps the bearer token used on backend calls. Tokens are never
// verified here; Load only drops JWTs whose exp claim has passed.
type Store struct {
	kv   kv.Store
	logg *logger.Logger
	now  func() time.Time
}

func NewStore(store kv.Store, logg *logger.Logger) *Store {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Store{kv: store, logg: logg, now: time.Now}
}

func (s *Store) Save(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "token is required")
	}
	if expired(token, s.now()) {
		return pkgerrors.New(pkgerrors.CodeValidation, "token is expired")
	}
	if err := s.kv.Set(ctx, TokenKey, []byte(token)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "saving auth token")
	}
	return nil
}

// Load returns the stored token, or "" when none is stored or it has expired.
func (s *Store) Load(ctx context.Context) (string, error) {
	raw, err := s.kv.Get(ctx, TokenKey)
	if errors.Is(err, kv.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodePersistence, err, "loading auth token")
	}
	token := strings.TrimSpace(string(raw))
	if token == "" {
		return "", nil
	}
	if expired(token, s.now()) {
		s.logg.Info(ctx, "dropping expired auth token")
		if err := s.kv.Delete(ctx, TokenKey); err != nil {
			s.logg.WarnErr(ctx, "failed to delete expired auth token", err)
		}
		return "", nil
	}
	return token, nil
}

func (s *Store) Clear(ctx context.Context) error {
	if err := s.kv.Delete(ctx, TokenKey); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "clearing auth token")
	}
	return nil
}

// Token satisfies backend.TokenSource. Storage errors are logged and the
// request goes out unauthenticated.
func (s *Store) Token(ctx context.Context) string {
	token, err := s.Load(ctx)
	if err != nil {
		s.logg.WarnErr(ctx, "auth token unavailable", err)
		return ""
	}
	return token
}

// expired reports whether token is a JWT with an exp claim before now.
// Opaque tokens are never considered expired.
func expired(token string, now time.Time) bool {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return !now.Before(claims.ExpiresAt.Time)
}
