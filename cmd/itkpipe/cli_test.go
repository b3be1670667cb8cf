package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/cobra"

	"github.com/caffeineduck/itkpipe/iface"
	"github.com/caffeineduck/itkpipe/pipeline"
	"github.com/caffeineduck/itkpipe/pipeline/pipelinetest"
)

func executeCommand(root *cobra.Command, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestCLIHelp(t *testing.T) {
	output, err := executeCommand(rootCmd, "--help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expectedPhrases := []string{
		"itkpipe",
		"WebAssembly",
		"run",
		"serve",
		"--base-url",
		"--memory",
		"--config",
	}

	for _, phrase := range expectedPhrases {
		if !strings.Contains(output, phrase) {
			t.Errorf("help output should contain %q", phrase)
		}
	}
}

func TestCLIRunHelp(t *testing.T) {
	output, err := executeCommand(rootCmd, "run", "--help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expectedPhrases := []string{
		"--input",
		"--output",
		"--mount",
		"--out-dir",
		"--memory-io",
	}

	for _, phrase := range expectedPhrases {
		if !strings.Contains(output, phrase) {
			t.Errorf("run help output should contain %q", phrase)
		}
	}
}

func TestCLIServeHelp(t *testing.T) {
	output, err := executeCommand(rootCmd, "serve", "--help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, phrase := range []string{"--port", "--max-workers", "/workers", "/run"} {
		if !strings.Contains(output, phrase) {
			t.Errorf("serve help output should contain %q", phrase)
		}
	}
}

func TestParseInterfaceType(t *testing.T) {
	tests := []struct {
		in      string
		want    iface.InterfaceType
		wantErr bool
	}{
		{"text-stream", iface.TypeTextStream, false},
		{"Binary-Stream", iface.TypeBinaryStream, false},
		{"json", iface.TypeJSONCompatible, false},
		{"TextFile", iface.TypeTextFile, false},
		{"InterfaceImage", iface.TypeImage, false},
		{"JSONCompatible", iface.TypeJSONCompatible, false},
		{"InterfaceJsonCompatible", iface.TypeJSONCompatible, false},
		{"volume", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := parseInterfaceType(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseInterfaceType(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseInterfaceType(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSplitTypedKeepsColons(t *testing.T) {
	typ, rest, err := splitTyped("binary-file:C:/data/in.dcm")
	if err != nil {
		t.Fatal(err)
	}
	if typ != iface.TypeBinaryFile || rest != "C:/data/in.dcm" {
		t.Errorf("splitTyped = %q, %q", typ, rest)
	}
}

func TestParseMemoryLimit(t *testing.T) {
	tests := []struct {
		in   string
		want uint32
		ok   bool
	}{
		{"", 0, true},
		{"64mb", pipeline.MemoryLimit64MB, true},
		{"256MB", pipeline.MemoryLimit256MB, true},
		{"1gb", pipeline.MemoryLimit1GB, true},
		{"2gb", pipeline.MemoryLimit2GB, true},
		{"3gb", 0, false},
	}

	for _, tt := range tests {
		got, ok := parseMemoryLimit(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("parseMemoryLimit(%q) = %d, %v; want %d, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "itkpipe.yaml")
	data := `
base_url: https://example.com/pipelines
cache_dir: /var/cache/itkpipe
memory_limit: 256mb
max_workers: 4
mounts:
  - /data
log_level: debug
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	want := Config{
		BaseURL:     "https://example.com/pipelines",
		CacheDir:    "/var/cache/itkpipe",
		MemoryLimit: "256mb",
		MaxWorkers:  4,
		Mounts:      []string{"/data"},
		LogLevel:    "debug",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	got, err := loadConfig("")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(defaultConfig(), got); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfigRejectsBadMemory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "itkpipe.yaml")
	if err := os.WriteFile(path, []byte("memory_limit: 5gb\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadConfig(path); err == nil {
		t.Fatal("expected error for memory_limit 5gb")
	}
}

func TestCacheOptions(t *testing.T) {
	c := Config{NoCache: true, MemoryLimit: "64mb"}
	if n := len(c.cacheOptions()); n != 1 {
		t.Errorf("cacheOptions with no_cache = %d options, want 1", n)
	}
	c = Config{CacheDir: t.TempDir()}
	if n := len(c.cacheOptions()); n != 1 {
		t.Errorf("cacheOptions with cache dir = %d options, want 1", n)
	}
}

func testCache(t *testing.T) *pipeline.Cache {
	t.Helper()

	eng := pipelinetest.NewEngine()
	eng.Register("echo", pipelinetest.Echo)
	eng.Register("fail", pipelinetest.Fail(4, "no good\n"))
	eng.RegisterCommand("cat", func(ctx context.Context, m *pipelinetest.Module) int {
		ids, _ := m.Positional()
		for _, id := range ids {
			data, err := m.FS.ReadFile(id)
			if err != nil {
				m.Errorf("cat: %v\n", err)
				return 1
			}
			m.Printf("%s", data)
		}
		return 0
	})

	cache, err := pipeline.NewCache(eng.CacheOptions()...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { cache.Close(context.Background()) })

	prev := cfg
	cfg = defaultConfig()
	cfg.BaseURL = "/pipelines"
	t.Cleanup(func() { cfg = prev })
	return cache
}

func TestExecuteStreams(t *testing.T) {
	cache := testCache(t)
	dir := t.TempDir()
	in := filepath.Join(dir, "in.txt")
	if err := os.WriteFile(in, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	var stdout bytes.Buffer
	job := runJob{
		module:  "echo",
		args:    []string{"0", "0", "1", "1", "--memory-io"},
		inputs:  []string{"text-stream:" + in, "json:-"},
		outputs: []string{"text-stream", "json:out.json"},
		outDir:  dir,
	}
	res, err := execute(context.Background(), cache, job, strings.NewReader(`{"k":1}`), &stdout)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.ReturnValue != 0 {
		t.Fatalf("return value = %d", res.ReturnValue)
	}

	if got, want := stdout.String(), "echoed 2 inputs\nhello"; got != want {
		t.Errorf("stdout = %q, want %q", got, want)
	}
	data, err := os.ReadFile(filepath.Join(dir, "out.json"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"k":1}` {
		t.Errorf("out.json = %q", data)
	}
}

func TestExecuteFileInputIsMounted(t *testing.T) {
	cache := testCache(t)
	in := filepath.Join(t.TempDir(), "scan.txt")
	if err := os.WriteFile(in, []byte("mounted contents"), 0o644); err != nil {
		t.Fatal(err)
	}

	var stdout bytes.Buffer
	job := runJob{
		module: "cat",
		args:   []string{filepath.ToSlash(in)},
		inputs: []string{"text-file:" + in},
	}
	if _, err := execute(context.Background(), cache, job, nil, &stdout); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if stdout.String() != "mounted contents" {
		t.Errorf("stdout = %q", stdout.String())
	}
}

func TestExecuteFailure(t *testing.T) {
	cache := testCache(t)

	var stdout bytes.Buffer
	res, err := execute(context.Background(), cache, runJob{module: "fail", args: []string{"--memory-io"}}, nil, &stdout)
	if err == nil {
		t.Fatal("expected error")
	}
	if res == nil || res.ReturnValue != 4 {
		t.Fatalf("result = %+v", res)
	}
	if res.Stderr != "no good\n" {
		t.Errorf("stderr = %q", res.Stderr)
	}
}

func TestExecuteRejectsImageInput(t *testing.T) {
	cache := testCache(t)
	job := runJob{module: "echo", inputs: []string{"image:in.iwi"}}
	if _, err := execute(context.Background(), cache, job, nil, new(bytes.Buffer)); err == nil {
		t.Fatal("expected error for image input")
	}
}

func TestBuildOutputsNeedsVirtualPath(t *testing.T) {
	if _, err := buildOutputs([]string{"binary-file"}); err == nil {
		t.Fatal("expected error for binary-file without a path")
	}
	outs, err := buildOutputs([]string{"binary-file:/work/out.bin", "text-stream"})
	if err != nil {
		t.Fatal(err)
	}
	if got := outs[0].Path(); got != "/work/out.bin" {
		t.Errorf("Path() = %q", got)
	}
}
