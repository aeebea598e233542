package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	vars      map[string]string
	mirror    string
	published string
	skipList  string
}

func (e *testEnv) lookup(key string) (string, bool) {
	v, ok := e.vars[key]
	return v, ok
}

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake tools are shell scripts")
	}
	root := t.TempDir()
	bin := filepath.Join(root, "bin")
	require.NoError(t, os.MkdirAll(bin, 0o755))
	// convert <bundle> --outfile <out>
	converter := writeScript(t, bin, "convert", `
case "$1" in
  *broken-model*) echo "NotImplementedError: Architecture not supported" >&2; exit 1 ;;
esac
echo converting "$1"
printf 'GGUF f16' > "$3"
`)
	// quantize <in> <out> <scheme>
	quantizer := writeScript(t, bin, "quantize", `
printf 'GGUF %s' "$3" > "$2"
`)
	e := &testEnv{
		mirror:    filepath.Join(root, "mirror"),
		published: filepath.Join(root, "published"),
		skipList:  filepath.Join(root, "skiplist.txt"),
	}
	work := filepath.Join(root, "work")
	require.NoError(t, os.MkdirAll(work, 0o755))
	e.vars = map[string]string{
		"DEST_NAMESPACE":  "converted",
		"DEST_KIND":       "dir",
		"DEST_ROOT":       e.published,
		"SOURCE_KIND":     "dir",
		"SOURCE_ENDPOINT": e.mirror,
		"CONVERTER_CMD":   converter,
		"QUANTIZER_CMD":   quantizer,
		"SKIPLIST_PATH":   e.skipList,
		"WORK_DIR":        work,
		"METRICS_FILE":    filepath.Join(root, "metrics", "converter.prom"),
	}
	return e
}

func (e *testEnv) addModel(t *testing.T, id string) {
	t.Helper()
	dir := filepath.Join(e.mirror, filepath.FromSlash(id))
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "model.safetensors"), []byte("weights"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte("{}"), 0o644))
}

func TestRun_EndToEnd(t *testing.T) {
	e := newTestEnv(t)
	e.addModel(t, "org/tiny-model")
	e.vars["REPO_ID"] = "org/tiny-model"

	var stderr bytes.Buffer
	code := run(context.Background(), e.lookup, &stderr)
	require.Equal(t, 0, code, stderr.String())

	entry := filepath.Join(e.published, "converted", "tiny-model-Q8_0-GGUF")
	data, err := os.ReadFile(filepath.Join(entry, "tiny-model-q8_0.gguf"))
	require.NoError(t, err)
	assert.Equal(t, "GGUF Q8_0", string(data))
	assert.FileExists(t, filepath.Join(entry, "README.md"))
	assert.FileExists(t, filepath.Join(entry, "entry.json"))
	assert.NoFileExists(t, e.skipList)

	metrics, err := os.ReadFile(e.vars["METRICS_FILE"])
	require.NoError(t, err)
	assert.Contains(t, string(metrics), `status="Succeeded"`)
}

func TestRun_BrokenModelIsSkippedNextTime(t *testing.T) {
	e := newTestEnv(t)
	e.addModel(t, "org/broken-model")
	e.vars["REPO_ID"] = "org/broken-model"

	var stderr bytes.Buffer
	require.Equal(t, 3, run(context.Background(), e.lookup, &stderr))
	assert.Contains(t, stderr.String(), "Architecture not supported")

	data, err := os.ReadFile(e.skipList)
	require.NoError(t, err)
	assert.Equal(t, "org/broken-model\n", string(data))

	stderr.Reset()
	require.Equal(t, 0, run(context.Background(), e.lookup, &stderr))
	assert.Contains(t, stderr.String(), "skip-list")
}

func TestRun_ValidationFailure(t *testing.T) {
	e := newTestEnv(t)
	dir := filepath.Join(e.mirror, "org", "no-config")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "model.safetensors"), []byte("w"), 0o644))
	e.vars["REPO_ID"] = "org/no-config"

	var stderr bytes.Buffer
	assert.Equal(t, 2, run(context.Background(), e.lookup, &stderr))
	assert.NoFileExists(t, e.skipList)
}

func TestRun_QuantizerMissing(t *testing.T) {
	e := newTestEnv(t)
	e.addModel(t, "org/tiny-model")
	e.vars["REPO_ID"] = "org/tiny-model"
	e.vars["QUANTIZER_CMD"] = filepath.Join(t.TempDir(), "does-not-exist")

	var stderr bytes.Buffer
	assert.Equal(t, 4, run(context.Background(), e.lookup, &stderr))
	assert.NoFileExists(t, e.skipList)
}

func TestRun_ConfigurationErrors(t *testing.T) {
	for name, mutate := range map[string]func(map[string]string){
		"missing repo id":   func(v map[string]string) { delete(v, "REPO_ID") },
		"missing namespace": func(v map[string]string) { delete(v, "DEST_NAMESPACE") },
		"bad scheme":        func(v map[string]string) { v["QUANT_SCHEME"] = "Q3_X" },
		"bad visibility":    func(v map[string]string) { v["VISIBILITY"] = "internal" },
		"bad log level":     func(v map[string]string) { v["LOG_LEVEL"] = "chatty" },
		"bad config file":   func(v map[string]string) { v["CONFIG_FILE"] = "/nonexistent/config.yaml" },
	} {
		t.Run(name, func(t *testing.T) {
			e := newTestEnv(t)
			e.vars["REPO_ID"] = "org/tiny-model"
			mutate(e.vars)

			var stderr bytes.Buffer
			assert.Equal(t, 1, run(context.Background(), e.lookup, &stderr))
			assert.True(t, strings.Contains(stderr.String(), "nvalid") || strings.Contains(stderr.String(), "not found"), stderr.String())
		})
	}
}

func TestRun_UnreadableSkipList(t *testing.T) {
	e := newTestEnv(t)
	e.addModel(t, "org/tiny-model")
	e.vars["REPO_ID"] = "org/tiny-model"
	e.vars["SKIPLIST_PATH"] = t.TempDir()

	var stderr bytes.Buffer
	assert.Equal(t, 1, run(context.Background(), e.lookup, &stderr))
}

func TestRun_LogFile(t *testing.T) {
	e := newTestEnv(t)
	e.addModel(t, "org/tiny-model")
	e.vars["REPO_ID"] = "org/tiny-model"
	logFile := filepath.Join(t.TempDir(), "converter.log")
	e.vars["LOG_FILE"] = logFile
	e.vars["LOG_FORMAT"] = "json"

	var stderr bytes.Buffer
	require.Equal(t, 0, run(context.Background(), e.lookup, &stderr))

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"run_id"`)
	assert.Equal(t, stderr.String(), string(data))
}
