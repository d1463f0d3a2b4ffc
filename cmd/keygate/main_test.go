package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"

	"keygate/internal/config"
	"keygate/internal/daemon"
	"keygate/internal/drm"
	"keygate/internal/ipc"
	"keygate/internal/ledger"
	"keygate/internal/testsupport"
)

// clearKeyServer answers key requests with a JWK set echoing the requested
// key IDs.
type clearKeyServer struct {
	keyErr error
}

func (s *clearKeyServer) ExecuteProvisionRequest(ctx context.Context, schemeID uuid.UUID, request drm.Request) ([]byte, error) {
	return []byte(`{}`), nil
}

func (s *clearKeyServer) ExecuteKeyRequest(ctx context.Context, schemeID uuid.UUID, request drm.Request) ([]byte, error) {
	if s.keyErr != nil {
		return nil, s.keyErr
	}
	var body struct {
		KIDs []string `json:"kids"`
	}
	if err := json.Unmarshal(request.Data, &body); err != nil {
		return nil, err
	}
	type jwk struct {
		KTY string `json:"kty"`
		KID string `json:"kid"`
		K   string `json:"k"`
	}
	keys := make([]jwk, 0, len(body.KIDs))
	for _, kid := range body.KIDs {
		keys = append(keys, jwk{
			KTY: "oct",
			KID: kid,
			K:   base64.RawURLEncoding.EncodeToString([]byte("0123456789abcdef")),
		})
	}
	return json.Marshal(map[string]any{"keys": keys})
}

type cliTestEnv struct {
	cfg        *config.Config
	store      *ledger.Store
	daemon     *daemon.Daemon
	server     *ipc.Server
	socketPath string
	configPath string
	cancel     context.CancelFunc
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithDefaultScheme("clearkey"))
	store := testsupport.MustOpenLedger(t, cfg)

	d, err := daemon.New(cfg, store, &clearKeyServer{}, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	srv, err := ipc.NewServer(ctx, cfg.Paths.SocketPath, d, nil)
	if err != nil {
		cancel()
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("unix sockets unavailable: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	env := &cliTestEnv{
		cfg:        cfg,
		store:      store,
		daemon:     d,
		server:     srv,
		socketPath: cfg.Paths.SocketPath,
		configPath: configPath,
		cancel:     cancel,
	}

	t.Cleanup(func() {
		cancel()
		srv.Close()
		d.Stop()
	})

	return env
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	encoded, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, want string) {
	t.Helper()
	if !strings.Contains(output, want) {
		t.Fatalf("expected output to contain %q, got %q", want, output)
	}
}

func clearKeyInitDataB64() string {
	return base64.StdEncoding.EncodeToString([]byte("0123456789abcdef"))
}

func waitForSessionReady(t *testing.T, env *cliTestEnv, contentID string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		out, _, err := runCLI(t, []string{"session", "show", contentID}, env.socketPath, env.configPath)
		if err == nil && strings.Contains(out, "Ready") {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("session %s never reached ready", contentID)
}

func TestCLISessionLifecycle(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"start"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	requireContains(t, out, "Daemon started")

	out, _, err = runCLI(
		t,
		[]string{"session", "open", "movie-1", "--init-data", clearKeyInitDataB64()},
		env.socketPath,
		env.configPath,
	)
	if err != nil {
		t.Fatalf("session open: %v", err)
	}
	requireContains(t, out, "Opened session for movie-1 (clearkey)")

	waitForSessionReady(t, env, "movie-1")

	out, _, err = runCLI(t, []string{"session", "list"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("session list: %v", err)
	}
	requireContains(t, out, "movie-1")
	requireContains(t, out, "clearkey")

	out, _, err = runCLI(t, []string{"session", "close", "movie-1"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("session close: %v", err)
	}
	requireContains(t, out, "released")

	out, _, err = runCLI(t, []string{"session", "list"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("session list after close: %v", err)
	}
	requireContains(t, out, "No hosted sessions")
}

func TestCLISessionOpenFlagValidation(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := runCLI(t, []string{"session", "open", "movie-2"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected error when init data is missing")
	}

	_, _, err := runCLI(
		t,
		[]string{"session", "open", "movie-2", "--init-data", "not-base64!!"},
		env.socketPath,
		env.configPath,
	)
	if err == nil {
		t.Fatal("expected error for malformed init data")
	}

	_, _, err = runCLI(
		t,
		[]string{"session", "open", "movie-2", "--init-data", clearKeyInitDataB64(), "--init-data-file", "/tmp/nothing"},
		env.socketPath,
		env.configPath,
	)
	if err == nil {
		t.Fatal("expected error when both init data sources are set")
	}
}

func TestCLISessionOpenFromFile(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := runCLI(t, []string{"start"}, env.socketPath, env.configPath); err != nil {
		t.Fatalf("start: %v", err)
	}

	initPath := filepath.Join(t.TempDir(), "init.bin")
	if err := os.WriteFile(initPath, []byte("0123456789abcdef"), 0o644); err != nil {
		t.Fatalf("write init data: %v", err)
	}

	out, _, err := runCLI(
		t,
		[]string{"session", "open", "movie-3", "--init-data-file", initPath, "--json"},
		env.socketPath,
		env.configPath,
	)
	if err != nil {
		t.Fatalf("session open from file: %v", err)
	}
	requireContains(t, out, `"contentId": "movie-3"`)
}

func TestCLILedgerCommands(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := runCLI(t, []string{"start"}, env.socketPath, env.configPath); err != nil {
		t.Fatalf("start: %v", err)
	}
	out, _, err := runCLI(
		t,
		[]string{"session", "open", "movie-4", "--init-data", clearKeyInitDataB64()},
		env.socketPath,
		env.configPath,
	)
	if err != nil {
		t.Fatalf("session open: %v", err)
	}
	requireContains(t, out, "movie-4")
	waitForSessionReady(t, env, "movie-4")

	out, _, err = runCLI(t, []string{"ledger", "list"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("ledger list: %v", err)
	}
	requireContains(t, out, "Session Opened")
	requireContains(t, out, "Key Exchange")

	out, _, err = runCLI(t, []string{"ledger", "list", "--kind", "session_opened"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("ledger list --kind: %v", err)
	}
	requireContains(t, out, "Session Opened")
	if strings.Contains(out, "Key Exchange") {
		t.Fatalf("kind filter leaked other kinds: %q", out)
	}

	out, _, err = runCLI(t, []string{"ledger", "health"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("ledger health: %v", err)
	}
	requireContains(t, out, "Recorded")

	if _, _, err := runCLI(t, []string{"ledger", "clear"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected ledger clear to require --yes")
	}

	out, _, err = runCLI(t, []string{"ledger", "clear", "--yes"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("ledger clear --yes: %v", err)
	}
	requireContains(t, out, "Removed")

	out, _, err = runCLI(t, []string{"ledger", "list"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("ledger list after clear: %v", err)
	}
	requireContains(t, out, "Ledger is empty")
}

func TestCLIStatusCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := runCLI(t, []string{"start"}, env.socketPath, env.configPath); err != nil {
		t.Fatalf("start: %v", err)
	}

	out, _, err := runCLI(t, []string{"status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Running")
	requireContains(t, out, "No hosted sessions")

	out, _, err = runCLI(t, []string{"status", "--json"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status --json: %v", err)
	}
	requireContains(t, out, `"running": true`)
}
