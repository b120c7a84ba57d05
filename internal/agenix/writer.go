package agenix

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
)

// Writer encrypts bootstrap secrets into a nix-secrets repo with the
// agenix CLI so a NixOS rebuild can deploy them to the daemon host.
type Writer struct {
	RepoPath   string
	RulesPath  string
	SecretName string
	Recipients []string
	Exec       string
	SkipUpdate bool
}

func (w Writer) rulesFile() string {
	if w.RulesPath != "" {
		return w.RulesPath
	}
	return filepath.Join(w.RepoPath, "secrets.nix")
}

// Write encrypts plaintext into the configured secret file and returns
// its path. The secrets.nix rules file gains an entry for the secret
// when it has none, reusing the recipients of existing vaillant2mqtt
// secrets unless an explicit list is given.
func (w Writer) Write(ctx context.Context, plaintext []byte) (string, error) {
	if w.RepoPath == "" {
		return "", fmt.Errorf("agenix repo path is required")
	}
	secretName := w.SecretName
	if secretName == "" {
		return "", fmt.Errorf("agenix secret name is required")
	}
	if !strings.HasSuffix(secretName, ".age") {
		secretName += ".age"
	}

	rules := w.rulesFile()
	secretPath := filepath.Join(w.RepoPath, secretName)

	if !w.SkipUpdate {
		recipients := w.Recipients
		if len(recipients) == 0 {
			var err error
			recipients, err = recipientsFromRules(rules)
			if err != nil {
				return "", err
			}
		}
		if err := ensureRulesEntry(rules, secretName, recipients); err != nil {
			return "", err
		}
	}

	execName := w.Exec
	if execName == "" {
		execName = "agenix"
	}

	cmd := exec.CommandContext(ctx, execName, "-e", secretPath)
	cmd.Env = append(os.Environ(),
		"RULES="+rules,
		"EDITOR=cp /dev/stdin",
	)
	cmd.Stdin = bytes.NewReader(plaintext)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("agenix: %w: %s", err, strings.TrimSpace(string(output)))
	}

	return secretPath, nil
}

// ensureRulesEntry appends a publicKeys entry for the secret before
// the closing brace of secrets.nix, keeping existing entries intact.
func ensureRulesEntry(rulesPath, secretName string, recipients []string) error {
	info, err := os.Stat(rulesPath)
	if err != nil {
		return fmt.Errorf("stat secrets.nix: %w", err)
	}
	content, err := os.ReadFile(rulesPath)
	if err != nil {
		return fmt.Errorf("read secrets.nix: %w", err)
	}

	present := regexp.MustCompile(regexp.QuoteMeta("\""+secretName+"\"") + `\s*\.publicKeys`)
	if present.Match(content) {
		return nil
	}
	if len(recipients) == 0 {
		return fmt.Errorf("no recipients available for %s", secretName)
	}

	closing := strings.LastIndex(string(content), "\n}")
	if closing == -1 {
		return fmt.Errorf("secrets.nix missing closing brace")
	}

	entry := fmt.Sprintf("  %q.publicKeys = [ %s ];\n", secretName, strings.Join(recipients, " "))
	updated := string(content[:closing]) + "\n" + entry + string(content[closing:])

	mode := info.Mode().Perm()
	if mode == 0 {
		mode = 0o600
	}
	return os.WriteFile(rulesPath, []byte(updated), mode)
}

var recipientsPattern = regexp.MustCompile(`"vaillant2mqtt-[^"]+\.age"\s*\.publicKeys\s*=\s*\[([^\]]+)\]`)

// recipientsFromRules borrows the recipient list of whichever
// vaillant2mqtt secret already exists in secrets.nix.
func recipientsFromRules(rulesPath string) ([]string, error) {
	content, err := os.ReadFile(rulesPath)
	if err != nil {
		return nil, fmt.Errorf("read secrets.nix: %w", err)
	}
	match := recipientsPattern.FindStringSubmatch(string(content))
	if len(match) < 2 {
		return nil, fmt.Errorf("no vaillant2mqtt recipients found in secrets.nix")
	}
	fields := strings.Fields(match[1])
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty recipient list in secrets.nix")
	}
	return fields, nil
}
