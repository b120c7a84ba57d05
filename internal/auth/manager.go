package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/oauth2"
)

var ErrScopeMismatch = errors.New("auth scope mismatch")

// Manager manages refresh tokens and access token caching for the
// Vaillant identity endpoint. The endpoint only supports the password
// and refresh_token grants; when a refresh grant is rejected the
// manager falls back to a fresh password login so an expired token
// never wedges the daemon.
type Manager struct {
	decl       Declaration
	blobStore  BlobStore
	httpClient *http.Client
	config     *oauth2.Config
	username   string
	password   string

	mu           sync.Mutex
	accessToken  string
	expiresAt    time.Time
	refreshToken string
	scope        string
	refreshing   bool
}

func NewManager(decl Declaration, bootstrapPath string, blobStore BlobStore) (*Manager, error) {
	if bootstrapPath == "" {
		return nil, fmt.Errorf("bootstrap path is required")
	}
	bootstrap, err := LoadBootstrap(bootstrapPath)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	return NewManagerFromBootstrap(decl, bootstrap, blobStore)
}

// NewManagerFromBootstrap creates a token manager from an inline Bootstrap (no file needed).
func NewManagerFromBootstrap(decl Declaration, bootstrap Bootstrap, blobStore BlobStore) (*Manager, error) {
	switch {
	case decl.Provider == "":
		return nil, fmt.Errorf("provider is required")
	case decl.TokenURL == "":
		return nil, fmt.Errorf("tokenURL is required")
	case decl.StatePath == "":
		return nil, fmt.Errorf("statePath is required")
	case !filepath.IsAbs(decl.StatePath):
		return nil, fmt.Errorf("statePath must be absolute")
	case blobStore == nil:
		return nil, fmt.Errorf("blob store is required")
	}
	if err := bootstrap.Validate(); err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	m := &Manager{
		decl:       decl,
		blobStore:  blobStore,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		username:   bootstrap.Username,
		password:   bootstrap.Password,
		config: &oauth2.Config{
			ClientID:     bootstrap.ClientID,
			ClientSecret: bootstrap.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL: decl.TokenURL,
			},
			Scopes: strings.Fields(decl.Scope),
		},
	}

	state, err := m.restoreState(bootstrap)
	if err != nil {
		return nil, err
	}
	m.refreshToken = state.RefreshToken
	m.scope = state.Scope

	return m, nil
}

// restoreState picks up persisted auth state, preferring the local file
// over the blob mirror, seeding from the bootstrap when neither exists.
func (m *Manager) restoreState(bootstrap Bootstrap) (State, error) {
	ctx := context.Background()

	state, localErr := LoadState(m.decl.StatePath)
	haveLocal := localErr == nil
	if haveLocal {
		if err := checkStateFile(m.decl.StatePath); err != nil {
			return State{}, err
		}
	} else {
		var blobErr error
		state, blobErr = m.loadFromBlob(ctx)
		switch {
		case blobErr == nil:
		case errors.Is(blobErr, ErrBlobNotFound):
			// Nothing persisted anywhere. A bootstrap refresh token seeds
			// the state directly; otherwise the first refresh performs a
			// password login and persists the resulting token.
			if !errors.Is(localErr, ErrStateNotFound) {
				return State{}, localErr
			}
			state = State{
				SchemaVersion: SchemaVersion,
				RefreshToken:  bootstrap.RefreshToken,
				Scope:         bootstrap.Scope,
			}
		case !errors.Is(localErr, ErrStateNotFound):
			return State{}, localErr
		default:
			return State{}, blobErr
		}
	}

	if state.Scope == "" {
		state.Scope = m.decl.Scope
	}
	if state.Scope != m.decl.Scope {
		scopeMismatch.WithLabelValues(m.decl.Provider).Inc()
		return State{}, ErrScopeMismatch
	}
	state.ClientID = bootstrap.ClientID
	state.ClientSecret = bootstrap.ClientSecret

	if state.RefreshToken == "" {
		if bootstrap.Username == "" || bootstrap.Password == "" {
			return State{}, fmt.Errorf("bootstrap missing refresh_token and credentials; run the auth subcommand")
		}
		return state, nil
	}

	if !haveLocal {
		if err := WriteState(m.decl.StatePath, state); err != nil {
			return State{}, err
		}
	}
	m.mirrorToBlob(ctx, state)
	return state, nil
}

func (m *Manager) Start(ctx context.Context) {
	m.StartWithInterval(ctx, DefaultRefreshInterval)
}

func (m *Manager) StartWithInterval(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	threshold := interval
	if threshold < 30*time.Second {
		threshold = 30 * time.Second
	}
	m.refreshIfNeeded(ctx, threshold)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.refreshIfNeeded(ctx, threshold)
			}
		}
	}()
}

func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.accessToken != "" && time.Until(m.expiresAt) > 30*time.Second {
		return m.accessToken, nil
	}

	tokenValid.WithLabelValues(m.decl.Provider).Set(0)
	return "", fmt.Errorf("auth token unavailable")
}

// TriggerRefresh asynchronously renews the token after a 401. Only one
// refresh runs at a time.
func (m *Manager) TriggerRefresh(ctx context.Context) {
	if !m.beginRefresh() {
		return
	}
	go func() {
		defer m.endRefresh()
		_ = m.refresh(ctx)
	}()
}

func (m *Manager) refreshIfNeeded(ctx context.Context, threshold time.Duration) {
	m.mu.Lock()
	need := m.accessToken == "" || time.Until(m.expiresAt) <= threshold
	m.mu.Unlock()
	if !need || !m.beginRefresh() {
		return
	}
	defer m.endRefresh()
	_ = m.refresh(ctx)
}

func (m *Manager) beginRefresh() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.refreshing {
		return false
	}
	m.refreshing = true
	return true
}

func (m *Manager) endRefresh() {
	m.mu.Lock()
	m.refreshing = false
	m.mu.Unlock()
}

func (m *Manager) refresh(ctx context.Context) error {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)

	token, err := m.renewToken(ctx)
	if err != nil {
		refreshFailure.WithLabelValues(m.decl.Provider).Inc()
		tokenValid.WithLabelValues(m.decl.Provider).Set(0)
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			body := strings.TrimSpace(string(retrieveErr.Body))
			return fmt.Errorf("token refresh failed %d: %s", retrieveErr.Response.StatusCode, body)
		}
		return err
	}

	m.mu.Lock()
	m.accessToken = token.AccessToken
	m.expiresAt = token.Expiry
	if token.RefreshToken != "" {
		m.refreshToken = token.RefreshToken
	}
	state := State{
		SchemaVersion: SchemaVersion,
		ClientID:      m.config.ClientID,
		ClientSecret:  m.config.ClientSecret,
		RefreshToken:  m.refreshToken,
		Scope:         m.scope,
	}
	m.mu.Unlock()

	if err := WriteState(m.decl.StatePath, state); err != nil {
		refreshFailure.WithLabelValues(m.decl.Provider).Inc()
		return fmt.Errorf("persist state: %w", err)
	}
	m.mirrorToBlob(ctx, state)

	refreshSuccess.WithLabelValues(m.decl.Provider).Inc()
	tokenValid.WithLabelValues(m.decl.Provider).Set(1)
	return nil
}

// renewToken tries the refresh grant first and falls back to a password
// login when the server rejects the stored token.
func (m *Manager) renewToken(ctx context.Context) (*oauth2.Token, error) {
	m.mu.Lock()
	refreshToken := m.refreshToken
	m.mu.Unlock()

	if refreshToken != "" {
		token, err := m.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
		if err == nil {
			return token, nil
		}
		var retrieveErr *oauth2.RetrieveError
		if !errors.As(err, &retrieveErr) || m.username == "" || m.password == "" {
			return nil, err
		}
	}

	if m.username == "" || m.password == "" {
		return nil, fmt.Errorf("no refresh token and no account credentials")
	}

	relogin.WithLabelValues(m.decl.Provider).Inc()
	return m.config.PasswordCredentialsToken(ctx, m.username, m.password)
}

func (m *Manager) loadFromBlob(ctx context.Context) (State, error) {
	data, err := m.blobStore.Load(ctx, m.decl.Provider)
	if err != nil {
		return State{}, err
	}
	return DecodeState(data)
}

// mirrorToBlob is best effort; the local state file remains the source
// of truth when object storage is unreachable.
func (m *Manager) mirrorToBlob(ctx context.Context, state State) {
	data, err := json.MarshalIndent(state, "", "  ")
	if err == nil {
		err = m.blobStore.Save(ctx, m.decl.Provider, data)
	}
	if err != nil {
		remotePersistOK.WithLabelValues(m.decl.Provider).Set(0)
		return
	}
	remotePersistOK.WithLabelValues(m.decl.Provider).Set(1)
}

func checkStateFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Mode().Perm() != 0o600 {
		return fmt.Errorf("state file %s must have 0600 permissions", path)
	}
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		if int(stat.Uid) != os.Geteuid() {
			return fmt.Errorf("state file %s must be owned by uid %d", path, os.Geteuid())
		}
	}
	return nil
}
