// Command download mirrors pipeline modules from a base URL into a local
// directory, so they can later be run with --base-url pointing at it.
//
//	download https://example.com/pipelines ./pipelines median-filter apply-pstate-to-image
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/caffeineduck/itkpipe/pipeline"
)

func main() {
	if len(os.Args) < 4 {
		fmt.Fprintln(os.Stderr, "usage: download <base-url> <dir> <module>...")
		os.Exit(1)
	}

	baseURL, dir := os.Args[1], os.Args[2]
	f := &pipeline.HTTPFetcher{}
	for _, name := range os.Args[3:] {
		out, err := mirror(context.Background(), f, baseURL, dir, name)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(out)
	}
}

// mirror fetches the first existing candidate for name and writes it under
// dir. A file already present is left alone.
func mirror(ctx context.Context, f pipeline.Fetcher, baseURL, dir, name string) (string, error) {
	resolved, err := pipeline.ResolveLocation(name, baseURL)
	if err != nil {
		return "", err
	}

	for _, cand := range pipeline.Candidates(resolved) {
		output := filepath.Join(dir, path.Base(filepath.ToSlash(cand)))
		if _, err := os.Stat(output); err == nil {
			return output, nil
		}

		data, err := f.Fetch(ctx, cand)
		if errors.Is(err, pipeline.ErrNotFound) {
			continue
		}
		if err != nil {
			return "", err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", err
		}
		if err := os.WriteFile(output, data, 0o644); err != nil {
			return "", err
		}
		return output, nil
	}
	return "", fmt.Errorf("download %s: %w", resolved, pipeline.ErrNotFound)
}
