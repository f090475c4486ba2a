package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/blockref/internal/corpus"
	"github.com/starford/blockref/internal/refindex"
	"github.com/starford/blockref/internal/refservice"
	"github.com/starford/blockref/internal/testutil"
	"github.com/starford/blockref/internal/view"
)

// testEnv builds a synced service over a temp vault holding files and
// returns its router. A non-empty authToken enables token mode.
func testEnv(t *testing.T, authToken string, files map[string]string) (*refservice.Service, http.Handler, string) {
	t.Helper()
	return testEnvWithSSE(t, authToken, files, nil)
}

func testEnvWithSSE(t *testing.T, authToken string, files map[string]string, sseHandler http.Handler) (*refservice.Service, http.Handler, string) {
	t.Helper()
	vaultDir, store := testutil.TestVault(t)
	for p, content := range files {
		testutil.WriteFile(t, vaultDir, p, content)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	c, err := corpus.New(store, 16)
	if err != nil {
		t.Fatal(err)
	}
	svc := refservice.New(store, c, refindex.New(c, logger), nil, refservice.Options{
		Debounce: time.Millisecond,
		Triggers: refservice.Triggers{OnFileOpen: true, OnFileChange: true, OnLayoutChange: true},
	}, logger)
	t.Cleanup(svc.Close)
	if err := svc.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	h := NewHandler(svc, view.DefaultSettings(), true)
	return svc, NewRouter(h, authToken != "", authToken, sseHandler), vaultDir
}

var vault = map[string]string{
	"A.md":      "# My Heading\n\nPara ^abc123\n",
	"B.md":      "See [[A#^abc123]]\n",
	"sub/C.md":  "Heading link [[A#My Heading]] and ![[A#^abc123]]\n",
	"empty.md":  "",
	"notes.txt": "ignored",
}

func do(t *testing.T, router http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, rd)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestListDocuments(t *testing.T) {
	_, router, _ := testEnv(t, "", vault)

	w := do(t, router, http.MethodGet, "/documents", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp DocumentListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Documents) != 4 || resp.Stats.Documents != 4 {
		t.Errorf("documents = %+v", resp)
	}
	if resp.Stats.Resolved != 3 {
		t.Errorf("resolved = %d, want 3", resp.Stats.Resolved)
	}
}

func TestGetAnchor(t *testing.T) {
	_, router, _ := testEnv(t, "", vault)

	tests := []struct {
		name   string
		target string
		status int
		count  int
	}{
		{"block", "/anchors/A/%5Eabc123", http.StatusOK, 2},
		{"block without caret", "/anchors/A/abc123", http.StatusOK, 2},
		{"heading", "/anchors/A/My%20Heading", http.StatusOK, 1},
		{"heading normalized", "/anchors/A/myheading", http.StatusOK, 1},
		{"missing anchor", "/anchors/A/%5Enope", http.StatusNotFound, 0},
		{"missing document", "/anchors/Z/%5Eabc123", http.StatusNotFound, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, http.MethodGet, tt.target, nil)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.status, w.Body.String())
			}
			if tt.status != http.StatusOK {
				return
			}
			var e refindex.Entry
			if err := json.Unmarshal(w.Body.Bytes(), &e); err != nil {
				t.Fatal(err)
			}
			if e.Count() != tt.count {
				t.Errorf("count = %d, want %d", e.Count(), tt.count)
			}
		})
	}
}

func TestRenderDocument(t *testing.T) {
	_, router, _ := testEnv(t, "", vault)

	w := do(t, router, http.MethodGet, "/documents/sub/C.md", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var doc view.Document
	if err := json.Unmarshal(w.Body.Bytes(), &doc); err != nil {
		t.Fatal(err)
	}
	if len(doc.Counters) != 2 {
		t.Fatalf("counters = %+v", doc.Counters)
	}
	for _, c := range doc.Counters {
		if c.Role != view.RoleReference {
			t.Errorf("unexpected role %q", c.Role)
		}
	}

	if w := do(t, router, http.MethodGet, "/documents/ghost.md", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing document = %d, want 404", w.Code)
	}
}

func TestGetDocumentByKey(t *testing.T) {
	_, router, _ := testEnv(t, "", vault)

	w := do(t, router, http.MethodGet, "/keys/A", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var dv refindex.DocumentView
	if err := json.Unmarshal(w.Body.Bytes(), &dv); err != nil {
		t.Fatal(err)
	}
	if dv.Document.Path != "A.md" || len(dv.Anchors) != 2 {
		t.Errorf("view = %+v", dv)
	}
	if w := do(t, router, http.MethodGet, "/keys/nope", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing key = %d, want 404", w.Code)
	}
}

func TestHostEvents(t *testing.T) {
	svc, router, vaultDir := testEnv(t, "", vault)

	testutil.WriteFile(t, vaultDir, "D.md", "Another [[A#^abc123]]\n")
	if w := do(t, router, http.MethodPost, "/events/change", PathRequest{Path: "D.md"}); w.Code != http.StatusAccepted {
		t.Fatalf("change status = %d", w.Code)
	}
	testutil.Eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		e, err := svc.Anchor("A", "^abc123")
		return err == nil && e.Count() == 3
	}, "changed document not indexed")

	if err := os.Remove(filepath.Join(vaultDir, "D.md")); err != nil {
		t.Fatal(err)
	}
	if w := do(t, router, http.MethodPost, "/events/delete", PathRequest{Path: "D.md"}); w.Code != http.StatusAccepted {
		t.Fatalf("delete status = %d", w.Code)
	}
	if w := do(t, router, http.MethodPost, "/events/layout", LayoutRequest{Paths: []string{"B.md"}}); w.Code != http.StatusAccepted {
		t.Fatalf("layout status = %d", w.Code)
	}
	if w := do(t, router, http.MethodPost, "/events/open", PathRequest{Path: "A.md"}); w.Code != http.StatusAccepted {
		t.Fatalf("open status = %d", w.Code)
	}
	if w := do(t, router, http.MethodPost, "/events/typing", nil); w.Code != http.StatusNoContent {
		t.Fatalf("typing status = %d", w.Code)
	}
	svc.Flush()
	if e, _ := svc.Anchor("A", "^abc123"); e.Count() != 2 {
		t.Errorf("count after delete = %d, want 2", e.Count())
	}
}

func TestHostEvents_Validation(t *testing.T) {
	_, router, _ := testEnv(t, "", vault)

	tests := []struct {
		name   string
		target string
		body   any
	}{
		{"missing path", "/events/open", PathRequest{}},
		{"not markdown", "/events/change", PathRequest{Path: "image.png"}},
		{"bad layout entry", "/events/layout", LayoutRequest{Paths: []string{"A.md", ""}}},
		{"not json", "/events/delete", "plain"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, http.MethodPost, tt.target, tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestReindex(t *testing.T) {
	_, router, vaultDir := testEnv(t, "", vault)

	testutil.WriteFile(t, vaultDir, "E.md", "[[A#^abc123]]\n")
	w := do(t, router, http.MethodPost, "/reindex", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Stats refindex.Stats `json:"stats"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Stats.Documents != 5 || resp.Stats.Resolved != 4 {
		t.Errorf("stats = %+v", resp.Stats)
	}
}

func TestReindexSingleDocument(t *testing.T) {
	svc, router, vaultDir := testEnv(t, "", vault)

	testutil.WriteFile(t, vaultDir, "B.md", "No links\n")
	w := do(t, router, http.MethodPost, "/reindex?path=B.md", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if e, _ := svc.Anchor("A", "^abc123"); e.Count() != 1 {
		t.Errorf("count after refresh = %d, want 1", e.Count())
	}

	if w := do(t, router, http.MethodPost, "/reindex?path=gone.md", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing document status = %d, want 404", w.Code)
	}
	if w := do(t, router, http.MethodPost, "/reindex?path=notes.txt", nil); w.Code != http.StatusBadRequest {
		t.Errorf("non-markdown status = %d, want 400", w.Code)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	_, router, _ := testEnv(t, "secret123", vault)

	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("authed list = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	_, router, _ := testEnv(t, "secret123", vault)

	w := do(t, router, http.MethodGet, "/documents", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	_, router, _ := testEnv(t, "secret123", vault)

	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
	if !strings.Contains(w.Body.String(), "unauthorized") {
		t.Errorf("body = %q", w.Body.String())
	}
}

// SSE endpoint auth tests.

// blockingSSE writes headers and blocks until the request context is done.
var blockingSSE = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	<-r.Context().Done()
})

func TestSSEEvents_AuthProtected(t *testing.T) {
	_, router, _ := testEnvWithSSE(t, "secret", vault, blockingSSE)

	w := do(t, router, http.MethodGet, "/events", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	_, router, _ := testEnvWithSSE(t, "tok", vault, blockingSSE)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("SSE with valid token = %d, want 200", w.Code)
	}
}
