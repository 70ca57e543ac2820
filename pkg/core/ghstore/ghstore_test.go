package ghstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/elerk1505/companies-house-data/pkg/core/fetch"
)

// fakeGitHub implements just enough of the releases API for the store.
type fakeGitHub struct {
	mu       sync.Mutex
	releases map[string]*release // by tag
	assets   map[int64][]byte
	nextID   int64
	deletes  int
}

func newFakeGitHub() *fakeGitHub {
	return &fakeGitHub{
		releases: make(map[string]*release),
		assets:   make(map[int64][]byte),
		nextID:   1,
	}
}

func (f *fakeGitHub) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		path := r.URL.Path

		switch {
		case strings.HasPrefix(path, "/repos/o/r/releases/tags/"):
			tag := strings.TrimPrefix(path, "/repos/o/r/releases/tags/")
			rel, ok := f.releases[tag]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			json.NewEncoder(w).Encode(rel)

		case path == "/repos/o/r/releases" && r.Method == http.MethodPost:
			var body struct {
				TagName string `json:"tag_name"`
				Name    string `json:"name"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			rel := &release{
				ID:        f.nextID,
				TagName:   body.TagName,
				Name:      body.Name,
				UploadURL: fmt.Sprintf("http://%s/upload/%s{?name,label}", r.Host, body.TagName),
			}
			f.nextID++
			f.releases[body.TagName] = rel
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(rel)

		case strings.HasPrefix(path, "/upload/") && r.Method == http.MethodPost:
			tag := strings.TrimPrefix(path, "/upload/")
			rel := f.releases[tag]
			if rel == nil {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			data, _ := io.ReadAll(r.Body)
			name := r.URL.Query().Get("name")
			for _, a := range rel.Assets {
				if a.Name == name {
					w.WriteHeader(http.StatusUnprocessableEntity)
					return
				}
			}
			a := asset{ID: f.nextID, Name: name}
			f.nextID++
			f.assets[a.ID] = data
			rel.Assets = append(rel.Assets, a)
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(a)

		case strings.HasPrefix(path, "/repos/o/r/releases/assets/"):
			var id int64
			fmt.Sscanf(strings.TrimPrefix(path, "/repos/o/r/releases/assets/"), "%d", &id)
			switch r.Method {
			case http.MethodDelete:
				if _, ok := f.assets[id]; !ok {
					w.WriteHeader(http.StatusNotFound)
					return
				}
				delete(f.assets, id)
				f.deletes++
				for _, rel := range f.releases {
					kept := rel.Assets[:0]
					for _, a := range rel.Assets {
						if a.ID != id {
							kept = append(kept, a)
						}
					}
					rel.Assets = kept
				}
				w.WriteHeader(http.StatusNoContent)
			case http.MethodGet:
				data, ok := f.assets[id]
				if !ok {
					w.WriteHeader(http.StatusNotFound)
					return
				}
				w.Write(data)
			}

		default:
			t.Errorf("unexpected request %s %s", r.Method, path)
			w.WriteHeader(http.StatusTeapot)
		}
	})
}

func newTestStore(t *testing.T) (*Store, *fakeGitHub) {
	t.Helper()
	gh := newFakeGitHub()
	srv := httptest.NewServer(gh.handler(t))
	t.Cleanup(srv.Close)
	s := New("test-token", "o/r")
	s.apiBase = srv.URL
	return s, gh
}

func TestGetMissingRelease(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.Get(context.Background(), "data-2025-H1-financials", "financials.parquet")
	if !errors.Is(err, fetch.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPutCreatesReleaseAndGetRoundTrips(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	blob := []byte("snapshot-bytes")

	if err := s.Put(ctx, "data-2025-H1-financials", "financials.parquet", blob); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := s.Get(ctx, "data-2025-H1-financials", "financials.parquet")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, blob) {
		t.Errorf("round trip mismatch: %q", got)
	}
}

func TestPutReplacesExistingAsset(t *testing.T) {
	s, gh := newTestStore(t)
	ctx := context.Background()
	tag := "data-2024-H2-metadata"

	if err := s.Put(ctx, tag, "metadata.parquet", []byte("v1")); err != nil {
		t.Fatalf("first Put: %v", err)
	}
	if err := s.Put(ctx, tag, "metadata.parquet", []byte("v2")); err != nil {
		t.Fatalf("second Put: %v", err)
	}
	if gh.deletes != 1 {
		t.Errorf("replace should delete the stale asset once, got %d deletes", gh.deletes)
	}
	got, err := s.Get(ctx, tag, "metadata.parquet")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "v2" {
		t.Errorf("last put should win, got %q", got)
	}
}

func TestPutRetryWaitStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/repos/o/r/releases/tags/"):
			w.WriteHeader(http.StatusNotFound)
		case r.URL.Path == "/repos/o/r/releases" && r.Method == http.MethodPost:
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(&release{
				ID:        1,
				TagName:   "data-2025-H1-financials",
				UploadURL: "http://" + r.Host + "/upload{?name,label}",
			})
		case strings.HasPrefix(r.URL.Path, "/upload"):
			// Reject the upload and tear the run down mid-flight; the
			// wait before the second upload must not run its course.
			cancel()
			w.WriteHeader(http.StatusBadRequest)
		default:
			w.WriteHeader(http.StatusTeapot)
		}
	}))
	defer srv.Close()

	s := New("test-token", "o/r")
	s.apiBase = srv.URL

	start := time.Now()
	err := s.Put(ctx, "data-2025-H1-financials", "financials.parquet", []byte("x"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("cancelled Put should return without sitting out the retry wait")
	}
}

func TestDisplayName(t *testing.T) {
	if got := DisplayName("data-2025-H1-financials"); got != "Financials 2025 H1" {
		t.Errorf("DisplayName = %q", got)
	}
	if got := DisplayName("data-2024-H2-metadata"); got != "Metadata 2024 H2" {
		t.Errorf("DisplayName = %q", got)
	}
	if got := DisplayName("something-else"); got != "something-else" {
		t.Errorf("fallback DisplayName = %q", got)
	}
}
