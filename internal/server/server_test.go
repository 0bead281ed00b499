package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
)

func newSPAServer(t *testing.T) *httptest.Server {
	t.Helper()
	staticFS := fstest.MapFS{
		"index.html": &fstest.MapFile{Data: []byte("<html>app</html>")},
		"app.js":     &fstest.MapFile{Data: []byte("console.log('hi')")},
		"sw.js":      &fstest.MapFile{Data: []byte("// worker")},
	}
	handler, err := Handler(staticFS, NewHub(), newStoreMock(), SpeakerControls{})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestSPARoutesFallBackToIndex(t *testing.T) {
	srv := newSPAServer(t)

	for _, path := range []string{"/", "/history", "/sessions/view"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("get %s: %v", path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, resp.StatusCode)
		}
		if !strings.Contains(string(body), "app") {
			t.Fatalf("%s: expected index content, got %q", path, body)
		}
	}
}

func TestSPAServesAssetsDirectly(t *testing.T) {
	srv := newSPAServer(t)

	resp, err := http.Get(srv.URL + "/app.js")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if !strings.Contains(string(body), "console.log") {
		t.Fatalf("expected the asset body, got %q", body)
	}
}

func TestSPAServiceWorkerHeaders(t *testing.T) {
	srv := newSPAServer(t)

	resp, err := http.Get(srv.URL + "/sw.js")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	_ = resp.Body.Close()
	if resp.Header.Get("Service-Worker-Allowed") != "/" {
		t.Fatal("expected Service-Worker-Allowed header")
	}
	if resp.Header.Get("Cache-Control") != "no-cache" {
		t.Fatal("expected no-cache on the service worker")
	}
}

func TestSPADoesNotSwallowAPIRoutes(t *testing.T) {
	srv := newSPAServer(t)

	resp, err := http.Get(srv.URL + "/api/unknown")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown api route, got %d", resp.StatusCode)
	}
}
