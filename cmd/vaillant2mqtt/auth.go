package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/joshp123/vaillant2mqtt/internal/agenix"
	"github.com/joshp123/vaillant2mqtt/internal/auth"
	"github.com/joshp123/vaillant2mqtt/internal/authflow"
	"github.com/joshp123/vaillant2mqtt/internal/config"
	"github.com/joshp123/vaillant2mqtt/internal/vaillant"
)

func authMain(args []string) {
	if len(args) == 0 {
		authUsage()
		os.Exit(2)
	}

	switch args[0] {
	case "login":
		loginCmd(args[1:])
	case "persist":
		persistCmd(args[1:])
	default:
		authUsage()
		os.Exit(2)
	}
}

func authUsage() {
	fmt.Println("vaillant2mqtt auth <command> [args]")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  login [--config <path>] [--username <email>] [--state-path <path>]")
	fmt.Println("  persist --state <path> [--config <path>]")
}

type authRunOptions struct {
	jsonOut          bool
	printToken       bool
	stateOut         string
	statePath        string
	cleanup          bool
	persistAgenix    bool
	skipBlob         bool
	agenixRepo       string
	agenixSecret     string
	agenixRecipients []string
}

type authOutput struct {
	Provider        string `json:"provider"`
	StatePath       string `json:"state_path,omitempty"`
	StateOut        string `json:"state_out,omitempty"`
	BlobPersisted   bool   `json:"blob_persisted,omitempty"`
	AgenixPersisted bool   `json:"agenix_persisted,omitempty"`
	AgenixPath      string `json:"agenix_path,omitempty"`
	RefreshToken    string `json:"refresh_token,omitempty"`
}

// loginCmd performs a password-grant login against the Vaillant
// identity endpoint and persists the returned refresh token.
func loginCmd(args []string) {
	flags := flag.NewFlagSet("login", flag.ExitOnError)
	configPath := flags.String("config", config.DefaultPath, "Config file location")
	username := flags.String("username", "", "Account email (prompted when empty)")
	password := flags.String("password", "", "Account password (prompted when empty)")
	bootstrapFile := flags.String("bootstrap-file", "", "Bootstrap file overriding the configured one")
	stateOut := flags.String("state-out", "", "Write auth state to a temp file")
	statePath := flags.String("state-path", authStatePath, "Persisted state path")
	cleanup := flags.Bool("cleanup", false, "Delete the temp state file once persisted")
	jsonOut := flags.Bool("json", false, "Emit machine-readable JSON")
	printToken := flags.Bool("print-token", false, "Show the refresh token in the output")
	persistAgenix := flags.Bool("persist-agenix", false, "Persist bootstrap secret via agenix")
	skipBlob := flags.Bool("skip-blob", false, "Do not mirror state to object storage")
	agenixRepo := flags.String("agenix-repo", defaultAgenixRepo(), "nix-secrets checkout for agenix")
	agenixSecret := flags.String("agenix-secret", "", "agenix secret name override")
	agenixRecipients := flags.String("agenix-recipients", "", "Space-separated agenix recipients")
	timeout := flags.Duration("timeout", time.Minute, "Timeout for the login")
	_ = flags.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal("auth", err)
	}

	bootstrap := resolveBootstrap(cfg, *bootstrapFile, *username, *password)
	decl := vaillantDeclaration(cfg, *statePath)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	conf := &oauth2.Config{
		ClientID:     bootstrap.ClientID,
		ClientSecret: bootstrap.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: decl.TokenURL},
	}
	token, err := conf.PasswordCredentialsToken(ctx, bootstrap.Username, bootstrap.Password)
	if err != nil {
		fatal("auth", err)
	}
	if token.RefreshToken == "" {
		fatal("auth", fmt.Errorf("identity endpoint returned no refresh token"))
	}

	opts := authRunOptions{
		jsonOut:          *jsonOut,
		printToken:       *printToken,
		stateOut:         *stateOut,
		statePath:        *statePath,
		cleanup:          *cleanup,
		persistAgenix:    *persistAgenix,
		skipBlob:         *skipBlob,
		agenixRepo:       *agenixRepo,
		agenixSecret:     *agenixSecret,
		agenixRecipients: strings.Fields(*agenixRecipients),
	}

	state := auth.State{
		SchemaVersion: auth.SchemaVersion,
		ClientID:      bootstrap.ClientID,
		ClientSecret:  bootstrap.ClientSecret,
		RefreshToken:  token.RefreshToken,
		Scope:         decl.Scope,
	}
	output, err := persistAuthState(ctx, cfg, decl, bootstrap, state, opts, true)
	if err != nil {
		fatal("auth", err)
	}
	emitAuthOutput(output, opts.jsonOut, opts.printToken)
}

// persistCmd re-persists a previously captured temp state file.
func persistCmd(args []string) {
	flags := flag.NewFlagSet("persist", flag.ExitOnError)
	configPath := flags.String("config", config.DefaultPath, "Config file location")
	statePathIn := flags.String("state", "", "Path to a temp state file")
	statePath := flags.String("state-path", authStatePath, "Persisted state path")
	jsonOut := flags.Bool("json", false, "Emit machine-readable JSON")
	skipBlob := flags.Bool("skip-blob", false, "Do not mirror state to object storage")
	_ = flags.Parse(args)

	if *statePathIn == "" {
		authUsage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal("auth", err)
	}

	state, err := authflow.LoadState(*statePathIn)
	if err != nil {
		fatal("auth", err)
	}

	decl := vaillantDeclaration(cfg, *statePath)
	opts := authRunOptions{
		jsonOut:   *jsonOut,
		statePath: *statePath,
		skipBlob:  *skipBlob,
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	output, err := persistAuthState(ctx, cfg, decl, auth.Bootstrap{}, state, opts, false)
	if err != nil {
		fatal("auth", err)
	}
	output.StateOut = *statePathIn
	emitAuthOutput(output, opts.jsonOut, false)
}

func persistAuthState(ctx context.Context, cfg *config.Config, decl auth.Declaration, bootstrap auth.Bootstrap, state auth.State, opts authRunOptions, writeTemp bool) (authOutput, error) {
	output := authOutput{Provider: decl.Provider}

	if writeTemp {
		path, err := authflow.WriteTempState(opts.stateOut, state)
		if err != nil {
			return output, err
		}
		output.StateOut = path
	}

	var blobStore auth.BlobStore
	if !opts.skipBlob {
		store, err := auth.NewS3Store(cfg.Auth)
		if err != nil {
			return output, err
		}
		blobStore = store
	}

	persistResult, err := authflow.PersistState(ctx, decl, state, blobStore, authflow.PersistOptions{
		SkipBlob:          opts.skipBlob,
		StatePathOverride: opts.statePath,
	})
	if err != nil {
		return output, err
	}
	output.StatePath = persistResult.StatePath
	output.BlobPersisted = persistResult.BlobSaved

	if opts.persistAgenix {
		agenixPath, err := persistAgenixBootstrap(ctx, decl.Provider, bootstrap, opts)
		if err != nil {
			return output, err
		}
		output.AgenixPersisted = true
		output.AgenixPath = agenixPath
	}

	if opts.printToken {
		output.RefreshToken = state.RefreshToken
	}

	if opts.cleanup && output.StateOut != "" {
		if err := os.Remove(output.StateOut); err != nil {
			fmt.Fprintf(os.Stderr, "auth: cleanup failed: %v\n", err)
		}
	}

	return output, nil
}

// resolveBootstrap loads account credentials from the bootstrap file,
// letting flags and interactive prompts fill any gaps.
func resolveBootstrap(cfg *config.Config, override, username, password string) auth.Bootstrap {
	path := override
	if path == "" {
		path = cfg.Auth.BootstrapFile
	}

	bootstrap := auth.Bootstrap{}
	if path != "" {
		if loaded, err := auth.LoadBootstrap(path); err == nil {
			bootstrap = loaded
		}
	}
	if bootstrap.ClientID == "" {
		bootstrap.ClientID = vaillant.Provider
	}
	if username != "" {
		bootstrap.Username = username
	}
	if password != "" {
		bootstrap.Password = password
	}
	if bootstrap.Username == "" {
		bootstrap.Username = prompt("Account email: ")
	}
	if bootstrap.Password == "" {
		bootstrap.Password = prompt("Account password: ")
	}
	return bootstrap
}

func prompt(label string) string {
	fmt.Fprint(os.Stderr, label)
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}

func emitAuthOutput(output authOutput, jsonOut, printToken bool) {
	if !printToken {
		output.RefreshToken = ""
	}
	if jsonOut {
		payload, err := json.MarshalIndent(output, "", "  ")
		if err != nil {
			fatal("auth", err)
		}
		fmt.Fprintln(os.Stdout, string(payload))
		return
	}

	if output.StatePath != "" {
		fmt.Printf("state file: %s\n", output.StatePath)
	}
	if output.StateOut != "" {
		fmt.Printf("temp state: %s\n", output.StateOut)
	}
	fmt.Printf("blob mirrored: %t\n", output.BlobPersisted)
	if output.AgenixPersisted {
		fmt.Printf("agenix secret: %s\n", output.AgenixPath)
	}
	if printToken && output.RefreshToken != "" {
		fmt.Printf("refresh token: %s\n", output.RefreshToken)
	}
}

func defaultAgenixRepo() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	repo := filepath.Join(home, "code", "nix", "nix-secrets")
	info, err := os.Stat(repo)
	if err != nil || !info.IsDir() {
		return ""
	}
	return repo
}

func defaultAgenixSecret(provider string) string {
	return fmt.Sprintf("vaillant2mqtt-%s-bootstrap.age", provider)
}

func persistAgenixBootstrap(ctx context.Context, provider string, bootstrap auth.Bootstrap, opts authRunOptions) (string, error) {
	repo := strings.TrimSpace(opts.agenixRepo)
	if repo == "" {
		return "", fmt.Errorf("agenix repo not configured")
	}
	secret := strings.TrimSpace(opts.agenixSecret)
	if secret == "" {
		secret = defaultAgenixSecret(provider)
	}
	payload, err := json.MarshalIndent(bootstrap, "", "  ")
	if err != nil {
		return "", err
	}
	writer := agenix.Writer{
		RepoPath:   repo,
		SecretName: secret,
		Recipients: opts.agenixRecipients,
	}
	return writer.Write(ctx, payload)
}
