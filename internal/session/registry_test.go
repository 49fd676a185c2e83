package session

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"roulette-pilot/internal/auth"
)

func TestRegistryUnknownUser(t *testing.T) {
	r := NewRegistry(testConfig(), nil, zerolog.Nop())
	if _, err := r.Status("ghost"); err != ErrSessionNotFound {
		t.Fatalf("status: %v", err)
	}
	if _, err := r.Logs("ghost"); err != ErrSessionNotFound {
		t.Fatalf("logs: %v", err)
	}
	if _, err := r.Report("ghost"); err != ErrSessionNotFound {
		t.Fatalf("report: %v", err)
	}
	if err := r.StartOperation(context.Background(), "ghost"); err != ErrSessionNotFound {
		t.Fatalf("start: %v", err)
	}
	if err := r.Disconnect("ghost"); err != ErrSessionNotFound {
		t.Fatalf("disconnect: %v", err)
	}
}

func TestRegistryConnectAuthFailure(t *testing.T) {
	authErr := errors.New("issuer down")
	r := NewRegistry(testConfig(), func(ctx context.Context, subject string) (auth.Credentials, error) {
		return auth.Credentials{}, authErr
	}, zerolog.Nop())

	if err := r.Connect(context.Background(), "user-1"); !errors.Is(err, authErr) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if _, err := r.Status("user-1"); err != ErrSessionNotFound {
		t.Fatalf("failed connect must not leave a session behind")
	}
}

func TestGameURL(t *testing.T) {
	creds := auth.Credentials{JSessionID: "abc 123"}
	got := gameURL("wss://host/socket", "rt01", creds)
	want := "wss://host/socket?JSESSIONID=abc+123&tableId=rt01"
	if got != want {
		t.Fatalf("gameURL = %q, want %q", got, want)
	}
	got = gameURL("wss://host/socket?x=1", "rt01", creds)
	if got != "wss://host/socket?x=1&JSESSIONID=abc+123&tableId=rt01" {
		t.Fatalf("gameURL with existing query = %q", got)
	}
}
