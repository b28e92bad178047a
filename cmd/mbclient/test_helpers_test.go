package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/56kcloud/mb-client/internal/engine"
	"github.com/56kcloud/mb-client/internal/events"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// syncBuffer is a bytes.Buffer safe for the session goroutine and the
// command goroutine to write concurrently.
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

// fakeEngine serves the book REST API and the progress websocket from one
// httptest server.
type fakeEngine struct {
	server   *httptest.Server
	payloads []string

	mu      sync.Mutex
	updates []engine.Book
	images  []engine.Image
	dials   []string
}

func newFakeEngine(t *testing.T, payloads ...string) *fakeEngine {
	t.Helper()
	f := &fakeEngine{payloads: payloads}
	f.server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeEngine) serve(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		f.serveStream(w, r)
		return
	}
	if r.Header.Get("Authorization") != "API-Key test-key" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	path := r.URL.Path
	switch {
	case path == "/":
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPost && path == "/v1/books":
		var book engine.Book
		_ = json.NewDecoder(r.Body).Decode(&book)
		book.ID = "book-42"
		_ = json.NewEncoder(w).Encode(book)
	case r.Method == http.MethodPut && strings.HasPrefix(path, "/v1/books/"):
		var book engine.Book
		_ = json.NewDecoder(r.Body).Decode(&book)
		f.mu.Lock()
		f.updates = append(f.updates, book)
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(book)
	case strings.HasPrefix(path, "/v1/images/book/"):
		var image engine.Image
		_ = json.NewDecoder(r.Body).Decode(&image)
		f.mu.Lock()
		f.images = append(f.images, image)
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(image)
	case strings.HasSuffix(path, "/format/galleon"):
		fmt.Fprint(w, `{"pages":[{"number":1}]}`)
	case strings.HasPrefix(path, "/v1/designoptions/"):
		fmt.Fprint(w, `{"densities":{"high":{"min_page_count":20,"max_page_count":60,"min_image_count":40,"max_image_count":200,"avg_image_count":3.5},"low":{"min_page_count":10,"max_page_count":40,"min_image_count":10,"max_image_count":80,"avg_image_count":1.5}}}`)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeEngine) serveStream(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.dials = append(f.dials, r.URL.Query().Get("book_id"))
	f.mu.Unlock()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	for _, payload := range f.payloads {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
			return
		}
	}
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (f *fakeEngine) wsURL() string {
	return "ws" + strings.TrimPrefix(f.server.URL, "http")
}

func (f *fakeEngine) lastUpdate(t *testing.T) engine.Book {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.updates) == 0 {
		t.Fatal("expected a book update")
	}
	return f.updates[len(f.updates)-1]
}

type cliEnv struct {
	engine     *fakeEngine
	configPath string
	stateDir   string
}

func setupCLI(t *testing.T, timeoutSeconds int, payloads ...string) *cliEnv {
	t.Helper()
	for _, key := range []string{"MB_API_KEY", "MB_API_HOST", "MB_WEBSOCKET_HOST", "XDG_STATE_HOME"} {
		t.Setenv(key, "")
	}
	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))
	t.Chdir(base)

	f := newFakeEngine(t, payloads...)
	env := &cliEnv{
		engine:     f,
		configPath: filepath.Join(base, "config.toml"),
		stateDir:   filepath.Join(base, "state"),
	}
	content := fmt.Sprintf(`[api]
host = %q
websocket_host = %q
api_key = "test-key"
request_timeout = 5

[design]
timeout_seconds = %d

[paths]
state_dir = %q

[logging]
level = "error"
`, f.server.URL, f.wsURL(), timeoutSeconds, env.stateDir)
	if err := os.WriteFile(env.configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return env
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	t.Cleanup(events.Shutdown)
	cmd := newRootCommand()
	var stdout, stderr syncBuffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(io.NopCloser(strings.NewReader("")))
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
