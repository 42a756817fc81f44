package gauth

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/joseph-ayodele/invoices-tracker/internal/common"
)

func TestTokenStoreRoundTrip(t *testing.T) {
	s := NewTokenStore(t.TempDir())
	if _, err := s.Load("a@example.com"); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	tok := &oauth2.Token{AccessToken: "at", RefreshToken: "rt", Expiry: time.Now().Add(time.Hour).Round(time.Second)}
	if err := s.Save("a@example.com", tok); err != nil {
		t.Fatal(err)
	}
	got, err := s.Load("a@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if got.AccessToken != "at" || got.RefreshToken != "rt" || !got.Expiry.Equal(tok.Expiry) {
		t.Fatalf("unexpected token %+v", got)
	}
	if _, err := s.Load("b@example.com"); err == nil {
		t.Fatal("tokens must be per user")
	}
}

type staticSource struct{ tok *oauth2.Token }

func (s staticSource) Token() (*oauth2.Token, error) { return s.tok, nil }

func TestPersistingSourceSavesOnlyOnChange(t *testing.T) {
	var saved []string
	src := &persistingTokenSource{
		src:     staticSource{tok: &oauth2.Token{AccessToken: "new"}},
		current: &oauth2.Token{AccessToken: "old"},
		onRefresh: func(t *oauth2.Token) error {
			saved = append(saved, t.AccessToken)
			return nil
		},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for i := 0; i < 3; i++ {
		if _, err := src.Token(); err != nil {
			t.Fatal(err)
		}
	}
	if len(saved) != 1 || saved[0] != "new" {
		t.Fatalf("expected one save of the refreshed token, got %v", saved)
	}
}
