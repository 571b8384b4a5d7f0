package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/oukeidos/imagine/internal/prefs"
	"github.com/oukeidos/imagine/internal/prompt"
	"github.com/oukeidos/imagine/internal/transport"
)

type memPrefs map[string]string

func (m memPrefs) String(key string) string     { return m[key] }
func (m memPrefs) SetString(key, value string) { m[key] = value }

func withMemPrefs(t *testing.T) memPrefs {
	t.Helper()
	store := memPrefs{}
	prev := openPrefs
	openPrefs = func() (prefs.Store, error) { return store, nil }
	t.Cleanup(func() { openPrefs = prev })
	return store
}

type fakeServer struct {
	*httptest.Server
	mu       sync.Mutex
	starts   []map[string]any
	stops    int
	images   []string
	sseHits  int
	startErr int
}

func newFakeServer(t *testing.T, images ...string) *fakeServer {
	t.Helper()
	fs := &fakeServer{images: images}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/public/imagine/config", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"final_min_bytes":0,"medium_min_bytes":0,"nsfw":false}`)
	})
	mux.HandleFunc("/v1/public/imagine/start", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		fs.mu.Lock()
		fs.starts = append(fs.starts, body)
		status := fs.startErr
		fs.mu.Unlock()
		if status != 0 {
			w.WriteHeader(status)
			fmt.Fprint(w, `{"detail":"Invalid public key"}`)
			return
		}
		fmt.Fprintf(w, `{"task_id":"task-1","aspect_ratio":%q,"quantity":%v,"concurrent":1}`, body["aspect_ratio"], body["quantity"])
	})
	mux.HandleFunc("/v1/public/imagine/stop", func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		fs.stops++
		fs.mu.Unlock()
		fmt.Fprint(w, `{"status":"success","removed":1}`)
	})
	mux.HandleFunc("/v1/public/imagine/sse", func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		fs.sseHits++
		fs.mu.Unlock()
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for i, id := range fs.images {
			fmt.Fprintf(w, "data: {\"type\":\"image_generation.partial_image\",\"image_id\":%q,\"b64_json\":\"iVBORw0KGgo=\",\"index\":%d}\n\n", id, i)
			fmt.Fprintf(w, "data: {\"type\":\"image_generation.completed\",\"image_id\":%q,\"b64_json\":\"iVBORw0KGgo=\",\"elapsed_ms\":1200}\n\n", id)
			flusher.Flush()
		}
		<-r.Context().Done()
	})
	fs.Server = httptest.NewServer(mux)
	t.Cleanup(fs.Close)
	return fs
}

func (fs *fakeServer) hits() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.sseHits
}

func listFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func TestRun_StreamsAndSavesOverSSE(t *testing.T) {
	_, restore := withKeyStubs(t, false, "", "", "")
	defer restore()
	withMemPrefs(t)
	srv := newFakeServer(t, "img-aaaa1111", "img-bbbb2222", "img-cccc3333")
	dir := t.TempDir()

	out, err := executeCommand(t, "run", "--server", srv.URL, "--mode", "sse", "-n", "2", "--out", dir, "a", "red", "fox")
	if err != nil {
		t.Fatalf("run failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "2 image(s) completed") || !strings.Contains(out, "quantity_reached") {
		t.Fatalf("unexpected summary: %s", out)
	}
	files := listFiles(t, dir)
	want := []string{"imagine_1_img-aaaa.png", "imagine_2_img-bbbb.png"}
	if strings.Join(files, ",") != strings.Join(want, ",") {
		t.Fatalf("files = %v, want %v", files, want)
	}

	srv.mu.Lock()
	defer srv.mu.Unlock()
	if len(srv.starts) != 1 || srv.starts[0]["prompt"] != "a red fox" || srv.starts[0]["aspect_ratio"] != "2:3" {
		t.Fatalf("start bodies = %+v", srv.starts)
	}
	if srv.stops != 1 {
		t.Fatalf("stop requests = %d, want 1", srv.stops)
	}
}

func TestRun_ZipArchive(t *testing.T) {
	_, restore := withKeyStubs(t, false, "", "", "")
	defer restore()
	store := withMemPrefs(t)
	prefs.SetMode(store, transport.ModeSSE)
	srv := newFakeServer(t, "img-aaaa1111")
	dir := t.TempDir()

	out, err := executeCommand(t, "--server", srv.URL, "-n", "1", "--zip", "-o", dir, "a cat")
	if err != nil {
		t.Fatalf("run failed: %v\n%s", err, out)
	}
	files := listFiles(t, dir)
	if len(files) != 1 || !strings.HasPrefix(files[0], "imagine_") || filepath.Ext(files[0]) != ".zip" {
		t.Fatalf("files = %v", files)
	}
	if srv.hits() != 1 {
		t.Fatalf("stored sse preference not used, sse hits = %d", srv.sseHits)
	}
}

func TestRun_AutoSave(t *testing.T) {
	_, restore := withKeyStubs(t, false, "", "", "")
	defer restore()
	withMemPrefs(t)
	srv := newFakeServer(t, "img-aaaa1111", "img-bbbb2222")
	dir := t.TempDir()

	out, err := executeCommand(t, "run", "--server", srv.URL, "--mode", "sse", "-n", "2", "--auto-save", "-o", dir, "a cat")
	if err != nil {
		t.Fatalf("run failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Auto-saved 2 image(s)") {
		t.Fatalf("output = %s", out)
	}
	if files := listFiles(t, dir); len(files) != 2 {
		t.Fatalf("files = %v", files)
	}
}

func TestRun_StartRejected(t *testing.T) {
	_, restore := withKeyStubs(t, false, "", "", "")
	defer restore()
	withMemPrefs(t)
	srv := newFakeServer(t)
	srv.mu.Lock()
	srv.startErr = http.StatusUnauthorized
	srv.mu.Unlock()

	_, err := executeCommand(t, "run", "--server", srv.URL, "--mode", "sse", "--no-save", "a cat")
	if err == nil || !strings.Contains(err.Error(), "authentication failed") {
		t.Fatalf("err = %v", err)
	}
	if srv.hits() != 0 {
		t.Fatalf("stream opened after failed start")
	}
}

func TestRun_RejectsInvalidOptions(t *testing.T) {
	withMemPrefs(t)
	cases := []struct {
		name string
		args []string
		want string
	}{
		{"ratio", []string{"run", "--ratio", "4:3", "x"}, "aspect ratio"},
		{"quantity", []string{"run", "-n", "201", "x"}, "quantity"},
		{"concurrent", []string{"run", "--concurrent", "7", "x"}, "concurrent"},
		{"mode", []string{"run", "--mode", "grpc", "x"}, "invalid transport mode"},
		{"zip_nosave", []string{"run", "--zip", "--no-save", "x"}, "cannot be combined"},
		{"blank_prompt", []string{"run", "  "}, "prompt is required"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := executeCommand(t, tc.args...)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want %q", err, tc.want)
			}
		})
	}
}

func TestRun_MissingOutDirNeedsConfirmation(t *testing.T) {
	withMemPrefs(t)
	missing := filepath.Join(t.TempDir(), "new")
	prev := confirmer
	confirmer = func() prompt.Confirmer {
		return prompt.Confirmer{IsInteractive: func() bool { return false }}
	}
	defer func() { confirmer = prev }()
	_, err := executeCommand(t, "run", "--server", "http://127.0.0.1:1", "-o", missing, "x")
	if err == nil || !strings.Contains(err.Error(), "not a terminal") {
		t.Fatalf("err = %v", err)
	}
	if _, statErr := os.Stat(missing); statErr == nil {
		t.Fatalf("directory created without confirmation")
	}
}

func TestModeCommand(t *testing.T) {
	store := withMemPrefs(t)
	out, err := executeCommand(t, "mode")
	if err != nil || !strings.Contains(out, "Transport mode: auto") {
		t.Fatalf("show: %v %s", err, out)
	}
	if _, err := executeCommand(t, "mode", "ws"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if store[prefs.TransportModeKey] != "ws" {
		t.Fatalf("stored = %q", store[prefs.TransportModeKey])
	}
	if _, err := executeCommand(t, "mode", "smoke"); err == nil {
		t.Fatalf("expected invalid mode error")
	}
}

func TestConfigAndStopCommands(t *testing.T) {
	_, restore := withKeyStubs(t, false, "", "", "")
	defer restore()
	srv := newFakeServer(t)

	out, err := executeCommand(t, "config", "--server", srv.URL)
	if err != nil || !strings.Contains(out, "NSFW default:     false") {
		t.Fatalf("config: %v %s", err, out)
	}
	out, err = executeCommand(t, "stop", "--server", srv.URL, "task-1", "task-2")
	if err != nil || !strings.Contains(out, "Stopped 1 task(s)") {
		t.Fatalf("stop: %v %s", err, out)
	}
	if _, err := executeCommand(t, "stop"); err == nil {
		t.Fatalf("expected stop without ids to fail")
	}
}
