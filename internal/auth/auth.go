// Package auth handles identity-provider login and browser sessions.
//
// Login uses the standard authorization-code flow: the dashboard
// redirects to the provider, the callback exchanges the code for a
// token, and the provider's userinfo endpoint supplies the profile that
// keys the subscriber account. Sessions are opaque tokens stored
// server-side with an expiry.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/user/centsalert/internal/config"
	"github.com/user/centsalert/internal/storage"
)

// UserInfo is the profile returned by the identity provider.
type UserInfo struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// Service performs the OAuth handshake and manages sessions.
type Service struct {
	oauth       *oauth2.Config
	userInfoURL string
	subscribers *storage.SubscriberStore
	sessions    *storage.SessionStore
	sessionTTL  time.Duration
}

// NewService creates an auth service from the provider configuration.
func NewService(cfg config.AuthConfig, ttl time.Duration, subscribers *storage.SubscriberStore, sessions *storage.SessionStore) *Service {
	return &Service{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
		},
		userInfoURL: cfg.UserInfoURL,
		subscribers: subscribers,
		sessions:    sessions,
		sessionTTL:  ttl,
	}
}

// AuthURL returns the provider URL to redirect the user to.
func (s *Service) AuthURL(state string) string {
	return s.oauth.AuthCodeURL(state)
}

// HandleCallback exchanges the authorization code, fetches the user's
// profile, upserts the subscriber, and opens a session. Returns the
// subscriber and the new session token.
func (s *Service) HandleCallback(ctx context.Context, code string) (*storage.Subscriber, string, error) {
	token, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, "", fmt.Errorf("failed to exchange code: %w", err)
	}

	info, err := s.fetchUserInfo(ctx, token)
	if err != nil {
		return nil, "", err
	}
	if info.Email == "" {
		return nil, "", fmt.Errorf("identity provider returned no email")
	}

	sub, err := s.subscribers.Upsert(info.Email, info.Name, info.Picture)
	if err != nil {
		return nil, "", err
	}

	sessionToken, err := NewToken()
	if err != nil {
		return nil, "", err
	}
	expiresAt := time.Now().Add(s.sessionTTL)
	if err := s.sessions.Create(sessionToken, sub.UserID, expiresAt); err != nil {
		return nil, "", err
	}

	return sub, sessionToken, nil
}

// CurrentUser resolves a session token to its subscriber, or nil when
// the token is missing, unknown, or expired.
func (s *Service) CurrentUser(token string) (*storage.Subscriber, error) {
	if token == "" {
		return nil, nil
	}
	sess, err := s.sessions.Get(token)
	if err != nil || sess == nil {
		return nil, err
	}
	return s.subscribers.GetByID(sess.UserID)
}

// Logout removes a session token.
func (s *Service) Logout(token string) error {
	if token == "" {
		return nil
	}
	return s.sessions.Delete(token)
}

// SessionTTL returns the configured session lifetime.
func (s *Service) SessionTTL() time.Duration {
	return s.sessionTTL
}

func (s *Service) fetchUserInfo(ctx context.Context, token *oauth2.Token) (*UserInfo, error) {
	client := s.oauth.Client(ctx, token)
	resp, err := client.Get(s.userInfoURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("user info returned status %d", resp.StatusCode)
	}

	var info UserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode user info: %w", err)
	}
	return &info, nil
}

// NewToken generates an opaque random token for sessions and OAuth
// state parameters.
func NewToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
