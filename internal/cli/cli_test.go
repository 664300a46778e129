package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"capserve/internal/config"
	"capserve/internal/model"
	"capserve/internal/server"
	"capserve/internal/state"
)

// syncBuffer is a bytes.Buffer safe for the concurrent writes of a running server.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// resetFlags restores every flag to its default between command lines.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.PersistentFlags().VisitAll(reset)
	cmd.Flags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

type env struct {
	root     string
	stateDir string
	config   string
}

func newEnv(t *testing.T) env {
	t.Helper()
	for _, key := range []string{
		"CAPSERVE_ROOT", "CAPSERVE_STATE_DIR", "CAPSERVE_LISTEN", "CAPSERVE_READ_HEADER_TIMEOUT",
		"CAPSERVE_MAX_ENTRIES", "CAPSERVE_ON_ENTRY_ERROR", "CAPSERVE_EXCLUDE", "CAPSERVE_TOKENIZER",
		"CAPSERVE_LOG_LEVEL", "CAPSERVE_LOG_FILE", "CAPSERVE_LOG_MAX_SIZE_MB",
		"CAPSERVE_LOG_MAX_BACKUPS", "CAPSERVE_LOG_MAX_AGE_DAYS",
	} {
		t.Setenv(key, "")
		_ = os.Unsetenv(key)
	}
	base := t.TempDir()
	e := env{
		root:     filepath.Join(base, "root"),
		stateDir: filepath.Join(base, "state"),
		config:   filepath.Join(base, "config.toml"),
	}
	if err := os.MkdirAll(e.root, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	return e
}

func (e env) args(args ...string) []string {
	return append([]string{"--dir", e.root, "--state-dir", e.stateDir, "--config", e.config}, args...)
}

func runCLI(t *testing.T, ctx context.Context, stdin string, args ...string) (string, string, int) {
	t.Helper()
	resetFlags(rootCmd)
	var stdout, stderr syncBuffer
	rootCmd.SetArgs(args)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	code := execute(ctx)
	return stdout.String(), stderr.String(), code
}

func decodeEvents(t *testing.T, out string) []map[string]interface{} {
	t.Helper()
	var events []map[string]interface{}
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		var ev map[string]interface{}
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			t.Fatalf("invalid NDJSON line %q: %v", scanner.Text(), err)
		}
		events = append(events, ev)
	}
	return events
}

func TestVersion(t *testing.T) {
	out, _, code := runCLI(t, context.Background(), "", "version")
	if code != ExitSuccess || !strings.HasPrefix(out, "capserve ") {
		t.Fatalf("version: code=%d out=%q", code, out)
	}
}

func TestWriteListReadPairs(t *testing.T) {
	e := newEnv(t)
	bg := context.Background()
	if err := os.WriteFile(filepath.Join(e.root, "cat.png"), []byte("png"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, errOut, code := runCLI(t, bg, "", e.args("write", "cat.txt", "a sleepy cat")...); code != ExitSuccess {
		t.Fatalf("write: code=%d stderr=%q", code, errOut)
	}
	if _, _, code := runCLI(t, bg, "from stdin", e.args("write", "sub/dog.txt")...); code != ExitSuccess {
		t.Fatalf("write from stdin: code=%d", code)
	}

	out, _, code := runCLI(t, bg, "", e.args("list")...)
	if code != ExitSuccess {
		t.Fatalf("list: code=%d", code)
	}
	if got := strings.Fields(out); strings.Join(got, ",") != "cat.png,cat.txt,sub/dog.txt" {
		t.Fatalf("list output %q", out)
	}

	out, _, code = runCLI(t, bg, "", e.args("read", "sub/dog.txt")...)
	if code != ExitSuccess || out != "from stdin" {
		t.Fatalf("read: code=%d out=%q", code, out)
	}

	if _, _, code := runCLI(t, bg, "", e.args("read", "missing.txt")...); code != ExitNotFound {
		t.Fatalf("read missing: code=%d want %d", code, ExitNotFound)
	}

	out, _, code = runCLI(t, bg, "", e.args("--json", "pairs")...)
	if code != ExitSuccess {
		t.Fatalf("pairs: code=%d", code)
	}
	events := decodeEvents(t, out)
	if len(events) != 1 || events[0]["event"] != "pairs" {
		t.Fatalf("pairs events %v", events)
	}
	data := events[0]["data"].(map[string]interface{})
	pairs := data["pairs"].([]interface{})
	first := pairs[0].(map[string]interface{})
	if len(pairs) != 1 || first["image"] != "cat.png" || first["caption_file"] != "cat.txt" {
		t.Fatalf("pairs %v", pairs)
	}
}

func TestWriteExitCodes(t *testing.T) {
	e := newEnv(t)
	bg := context.Background()

	_, errOut, code := runCLI(t, bg, "", e.args("write", "../escape.txt", "x")...)
	if code != ExitInvalidPath {
		t.Fatalf("escape: code=%d stderr=%q", code, errOut)
	}
	if !strings.Contains(errOut, "ERROR:") {
		t.Fatalf("stderr %q missing error prefix", errOut)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(e.root), "escape.txt")); !os.IsNotExist(err) {
		t.Fatalf("escaping write reached the filesystem: %v", err)
	}

	if err := os.Mkdir(filepath.Join(e.root, "adir"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	batch := `[{"path":"one.txt","content":"1"},{"path":"adir","content":"2"},{"path":"three.txt","content":"3"}]`
	out, _, code := runCLI(t, bg, batch, e.args("--json", "write", "--batch", "-")...)
	if code != ExitIOFailure {
		t.Fatalf("batch: code=%d out=%q", code, out)
	}
	events := decodeEvents(t, out)
	if len(events) != 2 || events[0]["event"] != "captions_written" || events[1]["event"] != "error" {
		t.Fatalf("batch events %v", events)
	}
	written := events[0]["data"].(map[string]interface{})
	if written["written"] != float64(1) || written["failed_path"] != "adir" {
		t.Fatalf("batch result %v", written)
	}
	if _, err := os.Stat(filepath.Join(e.root, "one.txt")); err != nil {
		t.Fatalf("earlier entry missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(e.root, "three.txt")); !os.IsNotExist(err) {
		t.Fatalf("entry after failure was written: %v", err)
	}
}

func TestRootAndConfigExitCodes(t *testing.T) {
	e := newEnv(t)
	bg := context.Background()

	args := []string{"--dir", filepath.Join(e.root, "missing"), "--state-dir", e.stateDir, "--config", e.config, "list"}
	if _, _, code := runCLI(t, bg, "", args...); code != ExitRootInaccessible {
		t.Fatalf("missing root: code=%d", code)
	}
	if _, _, code := runCLI(t, bg, "", e.args("--log-level", "trace", "list")...); code != ExitConfigInvalid {
		t.Fatalf("bad log level: code=%d", code)
	}
	if _, _, code := runCLI(t, bg, "", e.args("serve", "--listen", "0.0.0.0:0")...); code != ExitConfigInvalid {
		t.Fatalf("public listen: code=%d", code)
	}
}

func TestCount(t *testing.T) {
	e := newEnv(t)
	bg := context.Background()

	out, _, code := runCLI(t, bg, "", e.args("count", "--tokenizer", "words", "one two", "")...)
	if code != ExitSuccess {
		t.Fatalf("count: code=%d", code)
	}
	if out != "2\tone two\n0\t\n" {
		t.Fatalf("count output %q", out)
	}

	out, _, code = runCLI(t, bg, "a b c\nd\n", e.args("--json", "count", "--tokenizer", "words")...)
	if code != ExitSuccess {
		t.Fatalf("count stdin: code=%d", code)
	}
	events := decodeEvents(t, out)
	data := events[0]["data"].(map[string]interface{})
	counts := data["counts"].([]interface{})
	if len(counts) != 2 || counts[0] != float64(3) || counts[1] != float64(1) || data["total"] != float64(4) {
		t.Fatalf("count data %v", data)
	}
}

func TestStatus(t *testing.T) {
	e := newEnv(t)
	bg := context.Background()

	out, _, code := runCLI(t, bg, "", e.args("status")...)
	if code != ExitSuccess || !strings.Contains(out, "No running server") {
		t.Fatalf("status without server: code=%d out=%q", code, out)
	}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/checkAlive" {
			_, _ = w.Write([]byte("OK"))
			return
		}
		http.NotFound(w, r)
	}))
	defer ts.Close()
	if err := state.WriteConnection(e.stateDir, state.Connection{Root: e.root, URL: ts.URL, Port: 1, PID: 7}); err != nil {
		t.Fatalf("WriteConnection: %v", err)
	}

	out, _, code = runCLI(t, bg, "", e.args("--json", "status")...)
	if code != ExitSuccess {
		t.Fatalf("status: code=%d", code)
	}
	data := decodeEvents(t, out)[0]["data"].(map[string]interface{})
	if data["running"] != true || data["root"] != e.root {
		t.Fatalf("status data %v", data)
	}
}

func TestServeAdvertisesAndStops(t *testing.T) {
	e := newEnv(t)
	if err := os.WriteFile(filepath.Join(e.root, "a.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	type result struct {
		out  string
		code int
	}
	done := make(chan result, 1)
	go func() {
		out, _, code := runCLI(t, ctx, "", e.args("--json", "serve")...)
		done <- result{out, code}
	}()

	var conn state.Connection
	deadline := time.Now().Add(5 * time.Second)
	for {
		var err error
		conn, err = state.ReadConnection(e.stateDir)
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("connection.json never appeared: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}
	if conn.Port == 0 || conn.PID != os.Getpid() {
		t.Fatalf("unexpected connection %+v", conn)
	}

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/a.txt", conn.Port))
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	var body bytes.Buffer
	_, _ = body.ReadFrom(resp.Body)
	_ = resp.Body.Close()
	if body.String() != "hello" {
		t.Fatalf("body=%q want hello", body.String())
	}

	cancel()
	var res result
	select {
	case res = <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop")
	}
	if res.code != ExitSuccess {
		t.Fatalf("serve exit code %d, out=%q", res.code, res.out)
	}
	events := decodeEvents(t, res.out)
	if len(events) == 0 || events[0]["event"] != "server_started" {
		t.Fatalf("events %v", events)
	}
	last := events[len(events)-1]
	if last["event"] != "server_stopped" {
		t.Fatalf("last event %v", last)
	}
	stats, ok := last["data"].(map[string]interface{})["stats"].(map[string]interface{})
	if !ok {
		t.Fatalf("server_stopped without stats: %v", last)
	}
	if stats["served"] != float64(1) || stats["bytes_out"] != float64(len("hello")) {
		t.Fatalf("stats %v want one file of 5 bytes served", stats)
	}
	if _, err := os.Stat(state.ConnectionPath(e.stateDir)); !os.IsNotExist(err) {
		t.Fatalf("connection.json left behind: %v", err)
	}
}

func TestConfigCommands(t *testing.T) {
	e := newEnv(t)
	bg := context.Background()

	out, _, code := runCLI(t, bg, "", e.args("config", "path")...)
	if code != ExitSuccess || strings.TrimSpace(out) != e.config {
		t.Fatalf("config path: code=%d out=%q", code, out)
	}

	if _, _, code := runCLI(t, bg, "", e.args("config", "init")...); code != ExitSuccess {
		t.Fatalf("config init: code=%d", code)
	}
	if _, err := os.Stat(e.config); err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if _, _, code := runCLI(t, bg, "", e.args("config", "init")...); code != ExitConfigInvalid {
		t.Fatalf("second config init: code=%d", code)
	}
	if _, _, code := runCLI(t, bg, "", e.args("config", "init", "--force")...); code != ExitSuccess {
		t.Fatalf("config init --force: code=%d", code)
	}

	out, _, code = runCLI(t, bg, "", e.args("--json", "config", "print")...)
	if code != ExitSuccess {
		t.Fatalf("config print: code=%d", code)
	}
	data := decodeEvents(t, out)[0]["data"].(map[string]interface{})
	found := false
	for _, raw := range data["fields"].([]interface{}) {
		f := raw.(map[string]interface{})
		if f["key"] == "root" {
			found = true
			if f["value"] != e.root || f["source"] != "flag" {
				t.Fatalf("root field %v", f)
			}
		}
	}
	if !found {
		t.Fatal("root field missing from config print")
	}
}

func TestExitCodeMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"explicit", withExit(ExitBindFailure, fmt.Errorf("boom")), ExitBindFailure},
		{"plain", fmt.Errorf("boom"), ExitGenericError},
		{"config", fmt.Errorf("%w: bad listen", config.ErrInvalid), ExitConfigInvalid},
		{"bind", &server.BindError{Addr: "127.0.0.1:1", Err: fmt.Errorf("in use")}, ExitBindFailure},
		{"root check", withExit(ExitRootInaccessible, model.NewError(model.KindNotFound, "open root", "/x", nil)), ExitRootInaccessible},
		{"not found", model.NewError(model.KindNotFound, "read caption", "a.txt", nil), ExitNotFound},
		{"invalid path", fmt.Errorf("wrapped: %w", model.NewError(model.KindInvalidPath, "write caption", "../a", nil)), ExitInvalidPath},
		{"io", model.NewError(model.KindIOFailure, "write caption", "a", nil), ExitIOFailure},
		{"cancelled", model.NewError(model.KindDialogCancelled, "choose root", "", nil), ExitCancelled},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := exitCode(tc.err); got != tc.want {
				t.Fatalf("exitCode()=%d want=%d", got, tc.want)
			}
		})
	}
}

func TestListReportsTruncation(t *testing.T) {
	e := newEnv(t)
	t.Setenv("CAPSERVE_MAX_ENTRIES", "2")
	bg := context.Background()

	truncated := func() bool {
		t.Helper()
		out, _, code := runCLI(t, bg, "", e.args("--json", "list")...)
		if code != ExitSuccess {
			t.Fatalf("list: code=%d", code)
		}
		data := decodeEvents(t, out)[0]["data"].(map[string]interface{})
		return data["truncated"].(bool)
	}

	for _, name := range []string{"a.txt", "b.txt"} {
		if err := os.WriteFile(filepath.Join(e.root, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if truncated() {
		t.Fatal("listing exactly at the cap reported as truncated")
	}
	if err := os.WriteFile(filepath.Join(e.root, "c.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !truncated() {
		t.Fatal("listing past the cap not reported as truncated")
	}
}
