package service

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/pmboard/internal/devapi/domain"
	"github.com/aussiebroadwan/pmboard/internal/devapi/store"
	"github.com/aussiebroadwan/pmboard/pkg/cryptox"
	"github.com/aussiebroadwan/pmboard/pkg/idx"
	"github.com/aussiebroadwan/pmboard/pkg/jwtx"
	"github.com/aussiebroadwan/pmboard/pkg/slogx"
)

// AuthService issues and refreshes dashboard sessions. Access tokens are
// short-lived JWTs; refresh tokens are opaque and stored by fingerprint.
type AuthService struct {
	Store      store.Store
	Signer     jwtx.Signer
	Hasher     cryptox.PasswordHasher
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// RotateRefresh makes every refresh revoke the presented refresh token and
	// return a new one alongside the access token.
	RotateRefresh bool

	// Now defaults to time.Now.
	Now func() time.Time
}

func (s *AuthService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Login checks username and password and starts a new session.
func (s *AuthService) Login(ctx context.Context, username, password string) (*domain.Session, error) {
	l := slogx.FromContext(ctx)

	user, err := s.Store.Users().GetUserByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		l.Info("login for unknown user", "username", username)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if err := s.Hasher.Verify(password, user.PasswordHash); err != nil {
		l.Info("login password mismatch", "username", username)
		return nil, ErrInvalidCredentials
	}

	now := s.now()
	access, err := s.signAccess(user, now)
	if err != nil {
		return nil, err
	}

	refresh, err := s.issueRefresh(ctx, s.Store, user.ID, now)
	if err != nil {
		return nil, err
	}

	l.Info("user logged in", "user_id", user.ID)
	return &domain.Session{
		AccessToken:  access,
		RefreshToken: refresh,
		User:         user.Public(),
	}, nil
}

// Refresh exchanges a live refresh token for a new access token.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*domain.RefreshedToken, error) {
	if refreshToken == "" {
		return nil, ErrInvalidRefresh
	}

	now := s.now()
	hash := cryptox.FingerprintToken(refreshToken)

	var out domain.RefreshedToken
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		rt, err := tx.RefreshTokens().GetRefreshTokenByHash(ctx, hash)
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidRefresh
		}
		if err != nil {
			return err
		}
		if rt.Revoked || now.After(rt.ExpiresAt) {
			return ErrInvalidRefresh
		}

		user, err := tx.Users().GetUserByID(ctx, rt.UserID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidRefresh
		}
		if err != nil {
			return err
		}

		out.AccessToken, err = s.signAccess(user, now)
		if err != nil {
			return err
		}

		if !s.RotateRefresh {
			return nil
		}

		if err := tx.RefreshTokens().RevokeRefreshToken(ctx, hash); err != nil {
			return err
		}
		out.RefreshToken, err = s.issueRefresh(ctx, tx, user.ID, now)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrInvalidRefresh) {
			slogx.FromContext(ctx).Info("refresh rejected")
		}
		return nil, err
	}

	return &out, nil
}

// Logout revokes refreshToken. Unknown tokens are ignored.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	err := s.Store.RefreshTokens().RevokeRefreshToken(ctx, cryptox.FingerprintToken(refreshToken))
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

func (s *AuthService) signAccess(u domain.User, now time.Time) (string, error) {
	ttl := s.AccessTTL
	if ttl <= 0 {
		ttl = jwtx.DefaultAccessTokenTTL
	}
	return s.Signer.Sign(jwtx.NewAccessClaims(u.ID, u.Username, u.Role, s.Issuer, ttl, now))
}

// issueRefresh stores and returns a new refresh token. st may be a Tx.
func (s *AuthService) issueRefresh(ctx context.Context, st store.Store, userID string, now time.Time) (string, error) {
	token, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", err
	}

	ttl := s.RefreshTTL
	if ttl <= 0 {
		ttl = jwtx.DefaultRefreshTokenTTL
	}

	err = st.RefreshTokens().CreateRefreshToken(ctx, domain.RefreshToken{
		ID:        idx.NewAt(now).String(),
		UserID:    userID,
		TokenHash: cryptox.FingerprintToken(token),
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	})
	if err != nil {
		return "", err
	}
	return token, nil
}
