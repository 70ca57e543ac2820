// Package ghstore implements the remote asset store on GitHub release
// assets: one release per partition tag, one asset per dataset blob.
// Replacement is delete-then-upload; the API offers no atomic overwrite, so
// "last successful put wins" is the contract callers get.
package ghstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/elerk1505/companies-house-data/pkg/core/fetch"
)

const defaultAPIBase = "https://api.github.com"

// Store reads and writes release assets in one repository.
type Store struct {
	client *fetch.Client
	token  string
	repo   string // "owner/repo"

	// apiBase is overridable for tests.
	apiBase string
}

// NewFromEnv builds a Store from GITHUB_TOKEN and GH_REPO. Both are required;
// a missing one is a configuration error, fatal at startup.
func NewFromEnv() (*Store, error) {
	token := os.Getenv("GITHUB_TOKEN")
	repo := os.Getenv("GH_REPO")
	if token == "" || repo == "" {
		return nil, errors.New("ghstore: GITHUB_TOKEN and GH_REPO must be set (owner/repo)")
	}
	return New(token, repo), nil
}

// New builds a Store for repo using token.
func New(token, repo string) *Store {
	return &Store{client: fetch.NewClient(), token: token, repo: repo, apiBase: defaultAPIBase}
}

type release struct {
	ID        int64   `json:"id"`
	TagName   string  `json:"tag_name"`
	Name      string  `json:"name"`
	UploadURL string  `json:"upload_url"`
	Assets    []asset `json:"assets"`
}

type asset struct {
	ID                 int64  `json:"id"`
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

// Get downloads the named asset from the release tagged tag. A missing
// release or asset yields fetch.ErrNotFound.
func (s *Store) Get(ctx context.Context, tag, name string) ([]byte, error) {
	rel, err := s.releaseByTag(ctx, tag)
	if err != nil {
		return nil, err
	}
	a := findAsset(rel, name)
	if a == nil {
		return nil, fmt.Errorf("%w: asset %s in %s", fetch.ErrNotFound, name, tag)
	}
	req, err := s.newRequest(ctx, http.MethodGet, fmt.Sprintf("%s/repos/%s/releases/assets/%d", s.apiBase, s.repo, a.ID), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/octet-stream")
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ghstore: download %s/%s: %w", tag, name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("ghstore: download %s/%s: status %d", tag, name, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// Put uploads data as the named asset on the release tagged tag, creating
// the release on first write and replacing any existing asset of that name.
// The delete is best-effort (404 means another runner already removed it) and
// the upload tolerates a 422 race with a concurrent runner the same way.
func (s *Store) Put(ctx context.Context, tag, name string, data []byte) error {
	rel, err := s.ensureRelease(ctx, tag)
	if err != nil {
		return err
	}

	if existing := findAsset(rel, name); existing != nil {
		if err := s.deleteAsset(ctx, existing.ID); err != nil && !errors.Is(err, fetch.ErrNotFound) {
			return fmt.Errorf("ghstore: delete stale asset %s/%s: %w", tag, name, err)
		}
		// Refresh after delete so the upload sees a current asset list.
		rel, err = s.releaseByTag(ctx, tag)
		if err != nil {
			return err
		}
	}

	status, err := s.upload(ctx, rel, name, data)
	if err == nil && (status == http.StatusOK || status == http.StatusCreated || status == http.StatusUnprocessableEntity) {
		// 422 means another runner won the upload race; their blob is as
		// current as ours would have been.
		return nil
	}

	if !fetch.Sleep(ctx, 2*time.Second) {
		return fmt.Errorf("ghstore: upload %s/%s: %w", tag, name, ctx.Err())
	}
	status, err = s.upload(ctx, rel, name, data)
	if err != nil {
		return fmt.Errorf("ghstore: upload %s/%s: %w", tag, name, err)
	}
	if status != http.StatusOK && status != http.StatusCreated && status != http.StatusUnprocessableEntity {
		return fmt.Errorf("ghstore: upload %s/%s: status %d", tag, name, status)
	}
	return nil
}

func (s *Store) upload(ctx context.Context, rel *release, name string, data []byte) (int, error) {
	base, _, _ := strings.Cut(rel.UploadURL, "{")
	uploadURL := base + "?name=" + url.QueryEscape(name)
	req, err := s.newRequest(ctx, http.MethodPost, uploadURL, bytes.NewReader(data))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.ContentLength = int64(len(data))
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func (s *Store) releaseByTag(ctx context.Context, tag string) (*release, error) {
	var rel release
	err := s.getJSON(ctx, fmt.Sprintf("%s/repos/%s/releases/tags/%s", s.apiBase, s.repo, tag), &rel)
	if err != nil {
		return nil, err
	}
	return &rel, nil
}

// ensureRelease returns the release for tag, creating it if absent. The
// display name is derived from the tag, e.g. data-2025-H1-financials ->
// "Financials 2025 H1".
func (s *Store) ensureRelease(ctx context.Context, tag string) (*release, error) {
	rel, err := s.releaseByTag(ctx, tag)
	if err == nil {
		return rel, nil
	}
	if !errors.Is(err, fetch.ErrNotFound) {
		return nil, err
	}

	payload, _ := json.Marshal(map[string]any{
		"tag_name":   tag,
		"name":       DisplayName(tag),
		"draft":      false,
		"prerelease": false,
	})
	req, err := s.newRequest(ctx, http.MethodPost, fmt.Sprintf("%s/repos/%s/releases", s.apiBase, s.repo), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ghstore: create release %s: %w", tag, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnprocessableEntity {
		// Lost a creation race; the release exists now.
		io.Copy(io.Discard, resp.Body)
		return s.releaseByTag(ctx, tag)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("ghstore: create release %s: status %d", tag, resp.StatusCode)
	}
	var created release
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, fmt.Errorf("ghstore: decode created release %s: %w", tag, err)
	}
	return &created, nil
}

func (s *Store) deleteAsset(ctx context.Context, id int64) error {
	req, err := s.newRequest(ctx, http.MethodDelete, fmt.Sprintf("%s/repos/%s/releases/assets/%d", s.apiBase, s.repo, id), nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("delete asset %d: status %d", id, resp.StatusCode)
	}
	return nil
}

func (s *Store) getJSON(ctx context.Context, u string, out any) error {
	req, err := s.newRequest(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("ghstore: GET %s: status %d", u, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (s *Store) newRequest(ctx context.Context, method, u string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	return req, nil
}

func findAsset(rel *release, name string) *asset {
	for i := range rel.Assets {
		if rel.Assets[i].Name == name {
			return &rel.Assets[i]
		}
	}
	return nil
}

// DisplayName turns a partition tag into a human-readable release title.
// Unrecognized tags fall back to the tag itself.
func DisplayName(tag string) string {
	parts := strings.Split(tag, "-")
	if len(parts) == 4 && parts[0] == "data" {
		kind := parts[3]
		switch kind {
		case "financials":
			kind = "Financials"
		case "metadata":
			kind = "Metadata"
		}
		return fmt.Sprintf("%s %s %s", kind, parts[1], parts[2])
	}
	return tag
}
