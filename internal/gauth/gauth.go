// Package gauth holds Google credentials: per-user OAuth tokens for Gmail and
// service-account options for Drive, Sheets and Document AI.
package gauth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"

	"github.com/joseph-ayodele/invoices-tracker/internal/common"
)

// GmailReadonlyScope is all the scan needs.
const GmailReadonlyScope = "https://www.googleapis.com/auth/gmail.readonly"

// TokenStore keeps one token file per user under dir.
type TokenStore struct {
	dir string
	mu  sync.Mutex
}

func NewTokenStore(dir string) *TokenStore {
	return &TokenStore{dir: dir}
}

func (s *TokenStore) path(userID string) string {
	return filepath.Join(s.dir, base64.RawURLEncoding.EncodeToString([]byte(userID))+".json")
}

func (s *TokenStore) Load(userID string) (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := os.ReadFile(s.path(userID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, common.NewAppError("TOKEN_NOT_FOUND", "no oauth token for user "+userID, common.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal(b, &tok); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	return &tok, nil
}

// Save writes through a temp file so a crash never leaves half a token.
func (s *TokenStore) Save(userID string, tok *oauth2.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return err
	}
	b, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	p := s.path(userID)
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, p)
}

// OAuth issues HTTP clients that act as a given user.
type OAuth struct {
	cfg    *oauth2.Config
	store  *TokenStore
	logger *slog.Logger
}

func NewOAuth(clientID, clientSecret, redirectURL string, scopes []string, store *TokenStore, logger *slog.Logger) *OAuth {
	if logger == nil {
		logger = slog.Default()
	}
	if len(scopes) == 0 {
		scopes = []string{GmailReadonlyScope}
	}
	return &OAuth{
		cfg: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       scopes,
			Endpoint:     google.Endpoint,
		},
		store:  store,
		logger: logger,
	}
}

// AuthCodeURL is where a user grants offline access.
func (o *OAuth) AuthCodeURL(state string) string {
	return o.cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for a token and stores it.
func (o *OAuth) Exchange(ctx context.Context, userID, code string) error {
	tok, err := o.cfg.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("exchange code: %w", err)
	}
	return o.store.Save(userID, tok)
}

// Client returns an HTTP client for userID that persists refreshed tokens.
func (o *OAuth) Client(ctx context.Context, userID string) (*http.Client, error) {
	tok, err := o.store.Load(userID)
	if err != nil {
		return nil, err
	}
	src := &persistingTokenSource{
		src:     o.cfg.TokenSource(ctx, tok),
		current: tok,
		onRefresh: func(t *oauth2.Token) error {
			return o.store.Save(userID, t)
		},
		logger: o.logger.With("user_id", userID),
	}
	return oauth2.NewClient(ctx, oauth2.ReuseTokenSource(tok, src)), nil
}

type persistingTokenSource struct {
	mu        sync.Mutex
	src       oauth2.TokenSource
	current   *oauth2.Token
	onRefresh func(*oauth2.Token) error
	logger    *slog.Logger
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	t, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil || s.current.AccessToken != t.AccessToken {
		s.current = t
		if err := s.onRefresh(t); err != nil {
			s.logger.Warn("gauth.token.persist_failed", "err", err)
		}
	}
	return t, nil
}

// ServiceAccount returns client options for a service-account key file. An
// empty path falls back to application default credentials.
func ServiceAccount(credentialsFile string) []option.ClientOption {
	if credentialsFile == "" {
		return nil
	}
	return []option.ClientOption{option.WithCredentialsFile(credentialsFile)}
}
