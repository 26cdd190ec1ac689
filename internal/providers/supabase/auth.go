package supabase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"inkpost/internal/domain"
)

// Auth implements ports.Auth with the GoTrue REST API. The session lives in
// memory for the lifetime of the process.
type Auth struct {
	client *Client
	log    zerolog.Logger

	mu      sync.Mutex
	session *domain.AuthSession
}

func NewAuth(client *Client, log zerolog.Logger) *Auth {
	return &Auth{client: client, log: log.With().Str("component", "auth").Logger()}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

func (r tokenResponse) session(now time.Time) *domain.AuthSession {
	expires := time.Time{}
	switch {
	case r.ExpiresAt > 0:
		expires = time.Unix(r.ExpiresAt, 0)
	case r.ExpiresIn > 0:
		expires = now.Add(time.Duration(r.ExpiresIn) * time.Second)
	}
	return &domain.AuthSession{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		UserID:       r.User.ID,
		Email:        r.User.Email,
		ExpiresAt:    expires,
	}
}

// Session returns the current session, refreshing it once if it expired.
// It returns nil without error when nobody is signed in.
func (a *Auth) Session(ctx context.Context) (*domain.AuthSession, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.session == nil {
		return nil, nil
	}
	if !a.session.Expired(a.client.now()) {
		copied := *a.session
		return &copied, nil
	}
	if a.session.RefreshToken == "" {
		a.session = nil
		return nil, nil
	}

	var resp tokenResponse
	err := a.client.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/token?grant_type=refresh_token",
		json:   map[string]string{"refresh_token": a.session.RefreshToken},
	}, &resp)
	if err != nil {
		a.session = nil
		a.log.Warn().Err(err).Msg("session refresh failed")
		return nil, nil
	}
	a.session = resp.session(a.client.now())
	copied := *a.session
	return &copied, nil
}

func (a *Auth) SignIn(ctx context.Context, email, password string) (*domain.AuthSession, error) {
	var resp tokenResponse
	err := a.client.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/token?grant_type=password",
		json:   map[string]string{"email": email, "password": password},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrAuth, err)
	}
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("%w: no access token returned", domain.ErrAuth)
	}

	session := resp.session(a.client.now())
	a.mu.Lock()
	a.session = session
	a.mu.Unlock()

	a.log.Info().Str("user_id", session.UserID).Msg("signed in")
	copied := *session
	return &copied, nil
}

func (a *Auth) SignUp(ctx context.Context, email, password string) error {
	err := a.client.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/signup",
		json:   map[string]string{"email": email, "password": password},
	}, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrAuth, err)
	}
	return nil
}

// SignOut revokes the session server side and forgets it locally. The local
// session is dropped even if revocation fails.
func (a *Auth) SignOut(ctx context.Context) error {
	a.mu.Lock()
	session := a.session
	a.session = nil
	a.mu.Unlock()

	if session == nil {
		return nil
	}
	err := a.client.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/logout",
		token:  session.AccessToken,
	}, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
		return nil
	}
	return err
}

// AccessToken returns the bearer token for storage calls, or "" when no
// session is active.
func (a *Auth) AccessToken(ctx context.Context) string {
	session, err := a.Session(ctx)
	if err != nil || session == nil {
		return ""
	}
	return session.AccessToken
}
