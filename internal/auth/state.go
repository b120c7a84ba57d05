package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const SchemaVersion = 1

var ErrStateNotFound = errors.New("auth state not found")

// State is the persisted token state. It rotates as the provider hands
// out new refresh tokens; the bootstrap credentials never change.
type State struct {
	SchemaVersion int    `json:"schema_version"`
	ClientID      string `json:"client_id"`
	ClientSecret  string `json:"client_secret,omitempty"`
	RefreshToken  string `json:"refresh_token"`
	Scope         string `json:"scope"`
}

// Bootstrap holds immutable account credentials seeded from Nix.
type Bootstrap struct {
	SchemaVersion int    `json:"schema_version,omitempty"`
	ClientID      string `json:"client_id"`
	ClientSecret  string `json:"client_secret,omitempty"`
	Username      string `json:"username,omitempty"`
	Password      string `json:"password,omitempty"`
	RefreshToken  string `json:"refresh_token,omitempty"`
	Scope         string `json:"scope,omitempty"`
}

func (s State) Validate() error {
	switch {
	case s.SchemaVersion != SchemaVersion:
		return fmt.Errorf("unsupported schema_version: %d", s.SchemaVersion)
	case s.ClientID == "":
		return fmt.Errorf("state missing client_id")
	case s.RefreshToken == "":
		return fmt.Errorf("state missing refresh_token")
	}
	return nil
}

func (b Bootstrap) Validate() error {
	if b.SchemaVersion != 0 && b.SchemaVersion != SchemaVersion {
		return fmt.Errorf("unsupported bootstrap schema_version: %d", b.SchemaVersion)
	}
	if b.ClientID == "" {
		return fmt.Errorf("bootstrap missing client_id")
	}
	if b.RefreshToken == "" && (b.Username == "" || b.Password == "") {
		return fmt.Errorf("bootstrap needs a refresh_token or username/password")
	}
	return nil
}

func DecodeState(data []byte) (State, error) {
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return State{}, fmt.Errorf("decode state: %w", err)
	}
	return state, state.Validate()
}

func LoadState(path string) (State, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return State{}, ErrStateNotFound
	}
	if err != nil {
		return State{}, fmt.Errorf("read state: %w", err)
	}
	return DecodeState(data)
}

func LoadBootstrap(path string) (Bootstrap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Bootstrap{}, fmt.Errorf("read bootstrap: %w", err)
	}
	var bootstrap Bootstrap
	if err := json.Unmarshal(data, &bootstrap); err != nil {
		return Bootstrap{}, fmt.Errorf("decode bootstrap: %w", err)
	}
	return bootstrap, bootstrap.Validate()
}

// WriteState persists state with 0600 permissions, creating the parent
// directory as needed.
func WriteState(path string, state State) error {
	if state.SchemaVersion == 0 {
		state.SchemaVersion = SchemaVersion
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir state dir: %w", err)
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}
