package authflow

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joshp123/vaillant2mqtt/internal/auth"
)

// PersistResult reports where the token state landed.
type PersistResult struct {
	StatePath string
	BlobSaved bool
}

// PersistOptions controls persistence behavior.
type PersistOptions struct {
	StatePathOverride string
	SkipBlob          bool
}

// WriteTempState writes token state to a scratch file so a login can
// be retried or re-persisted without touching the cloud again. An
// empty path picks a timestamped file under the OS temp dir.
func WriteTempState(path string, state auth.State) (string, error) {
	if path == "" {
		timestamp := time.Now().UTC().Format("20060102-150405")
		name := fmt.Sprintf("vaillant2mqtt-auth-%s-%s.json", state.ClientID, timestamp)
		path = filepath.Join(os.TempDir(), name)
	}
	if err := auth.WriteState(path, state); err != nil {
		return "", err
	}
	return path, nil
}

// LoadState reads a previously written state file.
func LoadState(path string) (auth.State, error) {
	return auth.LoadState(path)
}

// PersistState writes token state to the declaration's state path and
// mirrors it to blob storage so other hosts can pick it up.
func PersistState(ctx context.Context, decl auth.Declaration, state auth.State, blob auth.BlobStore, opts PersistOptions) (PersistResult, error) {
	statePath := decl.StatePath
	if opts.StatePathOverride != "" {
		statePath = opts.StatePathOverride
	}
	if statePath == "" {
		return PersistResult{}, fmt.Errorf("state path missing")
	}
	if err := auth.WriteState(statePath, state); err != nil {
		return PersistResult{}, err
	}

	result := PersistResult{StatePath: statePath}
	if opts.SkipBlob || blob == nil {
		return result, nil
	}

	payload, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return result, err
	}
	if err := blob.Save(ctx, decl.Provider, payload); err != nil {
		return result, err
	}
	result.BlobSaved = true
	return result, nil
}
