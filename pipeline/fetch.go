package pipeline

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned by a Fetcher when nothing exists at a location.
// The cache then tries the next candidate name.
var ErrNotFound = stderrors.New("module not found")

// Fetcher obtains the bytes of a module.
type Fetcher interface {
	Fetch(ctx context.Context, location string) ([]byte, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, location string) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context, location string) ([]byte, error) {
	return f(ctx, location)
}

// maxModuleSize bounds a fetched module.
const maxModuleSize = 1 << 30

// HTTPFetcher reads http and https URLs with Client and everything else
// from the local filesystem.
type HTTPFetcher struct {
	Client *http.Client
}

func (f *HTTPFetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	u, err := url.Parse(location)
	if err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		return f.fetchHTTP(ctx, location)
	}

	p := location
	if err == nil && u.Scheme == "file" {
		p = filepath.FromSlash(u.Path)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", location, ErrNotFound)
		}
		return nil, err
	}
	return data, nil
}

func (f *HTTPFetcher) fetchHTTP(ctx context.Context, location string) ([]byte, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%s: %w", location, ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%s: unexpected status %s", location, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxModuleSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxModuleSize {
		return nil, fmt.Errorf("%s: module larger than %d bytes", location, maxModuleSize)
	}
	return data, nil
}

func isURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	switch u.Scheme {
	case "http", "https", "file":
		return true
	}
	return false
}

// ResolveLocation turns a module location into the cache key. Absolute URLs
// and absolute paths are used as is; anything else is joined to baseURL,
// which may be a URL or a directory.
func ResolveLocation(location, baseURL string) (string, error) {
	if location == "" {
		return "", fmt.Errorf("empty module location")
	}
	if isURL(location) {
		return location, nil
	}
	if filepath.IsAbs(location) || baseURL == "" {
		return filepath.Abs(location)
	}
	if isURL(baseURL) {
		base, err := url.Parse(baseURL)
		if err != nil {
			return "", err
		}
		base.Path = path.Join(base.Path, filepath.ToSlash(location))
		return base.String(), nil
	}
	return filepath.Abs(filepath.Join(baseURL, location))
}

// Candidates lists the names tried for a resolved location, WASI builds
// first.
func Candidates(resolved string) []string {
	if strings.HasSuffix(resolved, ".wasm") {
		return []string{resolved}
	}
	return []string{resolved + ".wasi.wasm", resolved + ".wasm"}
}

// moduleName is the program name passed as argv[0].
func moduleName(resolved string) string {
	name := path.Base(filepath.ToSlash(resolved))
	if u, err := url.Parse(resolved); err == nil && isURL(resolved) {
		name = path.Base(u.Path)
	}
	name = strings.TrimSuffix(name, ".wasm")
	name = strings.TrimSuffix(name, ".wasi")
	return name
}
