package auth

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"
)

type memoryBlobStore struct {
	data map[string][]byte
}

func (m *memoryBlobStore) Load(_ context.Context, provider string) ([]byte, error) {
	if m.data != nil {
		if data, ok := m.data[provider]; ok {
			return data, nil
		}
	}
	return nil, ErrBlobNotFound
}

func (m *memoryBlobStore) Save(_ context.Context, provider string, data []byte) error {
	if m.data == nil {
		m.data = make(map[string][]byte)
	}
	m.data[provider] = data
	return nil
}

func newTestManager(t *testing.T, tokenURL string, bootstrap Bootstrap) *Manager {
	t.Helper()
	decl := Declaration{
		Provider:  "vaillant",
		TokenURL:  tokenURL,
		Scope:     "account",
		StatePath: filepath.Join(t.TempDir(), "state.json"),
	}
	manager, err := NewManagerFromBootstrap(decl, bootstrap, &memoryBlobStore{})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return manager
}

func TestRefreshGrant(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		form, _ := url.ParseQuery(string(body))
		if form.Get("grant_type") != "refresh_token" {
			t.Fatalf("unexpected grant_type: %s", form.Get("grant_type"))
		}
		if form.Get("refresh_token") != "seed-refresh" {
			t.Fatalf("unexpected refresh_token: %s", form.Get("refresh_token"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"fresh-token","refresh_token":"next-refresh","expires_in":3600,"token_type":"Bearer"}`)
	}))
	defer server.Close()

	manager := newTestManager(t, server.URL, Bootstrap{
		ClientID:     "app-id",
		RefreshToken: "seed-refresh",
		Scope:        "account",
	})

	if err := manager.refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	token, err := manager.AccessToken(context.Background())
	if err != nil {
		t.Fatalf("access token: %v", err)
	}
	if token != "fresh-token" {
		t.Fatalf("unexpected token: %s", token)
	}

	state, err := LoadState(manager.decl.StatePath)
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	if state.RefreshToken != "next-refresh" {
		t.Fatalf("expected rotated refresh token, got %s", state.RefreshToken)
	}
}

func TestReloginAfterRejectedRefresh(t *testing.T) {
	var grants []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		form, _ := url.ParseQuery(string(body))
		grant := form.Get("grant_type")
		grants = append(grants, grant)
		switch grant {
		case "refresh_token":
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"error":"invalid_grant"}`)
		case "password":
			if form.Get("username") != "user@example.com" || form.Get("password") != "hunter2" {
				t.Fatalf("unexpected credentials: %s", string(body))
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"access_token":"login-token","refresh_token":"login-refresh","expires_in":3600,"token_type":"Bearer"}`)
		default:
			t.Fatalf("unexpected grant_type: %s", grant)
		}
	}))
	defer server.Close()

	manager := newTestManager(t, server.URL, Bootstrap{
		ClientID:     "app-id",
		Username:     "user@example.com",
		Password:     "hunter2",
		RefreshToken: "expired-refresh",
		Scope:        "account",
	})

	if err := manager.refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	if len(grants) != 2 || grants[0] != "refresh_token" || grants[1] != "password" {
		t.Fatalf("unexpected grant sequence: %v", grants)
	}

	token, err := manager.AccessToken(context.Background())
	if err != nil {
		t.Fatalf("access token: %v", err)
	}
	if token != "login-token" {
		t.Fatalf("unexpected token: %s", token)
	}
}

func TestAccessTokenExpired(t *testing.T) {
	manager := newTestManager(t, "http://127.0.0.1:0/token", Bootstrap{
		ClientID:     "app-id",
		RefreshToken: "seed-refresh",
		Scope:        "account",
	})

	manager.mu.Lock()
	manager.accessToken = "stale"
	manager.expiresAt = time.Now().Add(-time.Minute)
	manager.mu.Unlock()

	if _, err := manager.AccessToken(context.Background()); err == nil {
		t.Fatalf("expected error for expired token")
	}
}
