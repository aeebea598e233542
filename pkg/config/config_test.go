package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docker/model-converter/pkg/model"
	"github.com/docker/model-converter/pkg/publish"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func validConfig() *Config {
	cfg := Default()
	cfg.RepoID = "org/tiny-model"
	cfg.Destination.Namespace = "converted"
	return cfg
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "Q8_0", cfg.Scheme)
	assert.Equal(t, SourceHuggingFace, cfg.Source.Kind)
	assert.Equal(t, DestinationDir, cfg.Destination.Kind)
	assert.Equal(t, "public", cfg.Destination.Visibility)
	assert.NotEmpty(t, cfg.Tools.Converter)
	assert.NotEmpty(t, cfg.Tools.Quantizer)
}

func TestValidate(t *testing.T) {
	cfg := validConfig()
	cfg.Scheme = "q4_k_m"
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "Q4_K_M", cfg.Scheme)
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Scheme = "Q9_X"
	cfg.Destination.Visibility = "secret"
	cfg.Destination.Kind = "ftp"
	cfg.Tools.Quantizer = `"unterminated`

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{"REPO_ID", "Q9_X", "DEST_NAMESPACE", "secret", "ftp", "quantizer"} {
		assert.Contains(t, msg, want)
	}
}

func TestValidate_InvalidRepoID(t *testing.T) {
	cfg := validConfig()
	cfg.RepoID = "no-namespace"
	err := cfg.Validate()
	require.ErrorIs(t, err, model.ErrInvalidID)
}

func TestValidate_DirSourceNeedsEndpoint(t *testing.T) {
	cfg := validConfig()
	cfg.Source.Kind = SourceDir
	cfg.Source.Endpoint = ""
	require.Error(t, cfg.Validate())

	cfg.Source.Endpoint = t.TempDir()
	require.NoError(t, cfg.Validate())
}

func TestFromEnv(t *testing.T) {
	cfg, err := FromEnv(envMap(map[string]string{
		"REPO_ID":         "org/tiny-model",
		"DEST_NAMESPACE":  "converted",
		"HF_API_KEY":      "fallback",
		"QUANT_SCHEME":    "q5_k_m",
		"DEST_KIND":       "s3",
		"DEST_ROOT":       "bucket/models",
		"DEST_PATH_STYLE": "true",
		"KEEP_WORK_DIR":   "1",
		"VISIBILITY":      "private",
		"SOURCE_IGNORE":   "*.onnx, original/*,",
		"LOG_LEVEL":       "debug",
		"CONVERTER_ARGS":  "--outtype f16",
	}), nil)
	require.NoError(t, err)

	assert.Equal(t, "org/tiny-model", cfg.RepoID)
	assert.Equal(t, "fallback", cfg.Source.Token)
	assert.Equal(t, "q5_k_m", cfg.Scheme)
	assert.Equal(t, DestinationS3, cfg.Destination.Kind)
	assert.Equal(t, "bucket/models", cfg.Destination.Root)
	assert.True(t, cfg.Destination.PathStyle)
	assert.True(t, cfg.KeepWorkDir)
	assert.Equal(t, "private", cfg.Destination.Visibility)
	assert.Equal(t, []string{"*.onnx", "original/*"}, cfg.Source.Ignore)
	assert.Equal(t, "debug", cfg.Log.Level)

	args, err := cfg.ConverterArgs()
	require.NoError(t, err)
	assert.Equal(t, []string{"--outtype", "f16"}, args)

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "Q5_K_M", cfg.Scheme)
}

func TestFromEnv_TokenPrecedence(t *testing.T) {
	cfg, err := FromEnv(envMap(map[string]string{"HF_TOKEN": "primary", "HF_API_KEY": "fallback"}), nil)
	require.NoError(t, err)
	assert.Equal(t, "primary", cfg.Source.Token)
}

func TestFromEnv_EmptyValuesKeepBase(t *testing.T) {
	base := validConfig()
	cfg, err := FromEnv(envMap(map[string]string{"QUANT_SCHEME": "", "DEST_NAMESPACE": ""}), base)
	require.NoError(t, err)
	assert.Equal(t, "Q8_0", cfg.Scheme)
	assert.Equal(t, "converted", cfg.Destination.Namespace)
}

func TestFromEnv_InvalidBoolean(t *testing.T) {
	_, err := FromEnv(envMap(map[string]string{"KEEP_WORK_DIR": "maybe"}), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KEEP_WORK_DIR")
}

func TestPublishOptions(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
	id := model.MustParse("org/tiny-model")

	opts, err := cfg.PublishOptions(id)
	require.NoError(t, err)
	assert.Equal(t, publish.Public, opts.Visibility)
	assert.Equal(t, "tiny-model-Q8_0-GGUF", opts.DisplayName)
	assert.Equal(t, DefaultLicense, opts.License)
	assert.Contains(t, opts.CommitMessage, "org/tiny-model")

	cfg.Destination.DisplayName = "Tiny"
	cfg.Destination.CommitMessage = "upload"
	opts, err = cfg.PublishOptions(id)
	require.NoError(t, err)
	assert.Equal(t, "Tiny", opts.DisplayName)
	assert.Equal(t, "upload", opts.CommitMessage)
}

func TestExpand(t *testing.T) {
	lookup := envMap(map[string]string{"BUCKET": "models", "EMPTY": ""})
	assert.Equal(t, "s3://models/x", expand("s3://${BUCKET}/x", lookup))
	assert.Equal(t, "fallback", expand("${MISSING:-fallback}", lookup))
	assert.Equal(t, "fallback", expand("${EMPTY:-fallback}", lookup))
	assert.Equal(t, "", expand("${MISSING}", lookup))
	assert.Equal(t, "$BUCKET", expand("$BUCKET", lookup))
}

func TestLoad(t *testing.T) {
	t.Setenv("TEST_CONVERTER_NS", "from-env")
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
repo_id: org/tiny-model
quant_scheme: Q4_K_M
destination:
  kind: oci
  namespace: ${TEST_CONVERTER_NS}
  root: localhost:5000
  insecure: true
source:
  ignore:
    - "*.onnx"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "org/tiny-model", cfg.RepoID)
	assert.Equal(t, "Q4_K_M", cfg.Scheme)
	assert.Equal(t, DestinationOCI, cfg.Destination.Kind)
	assert.Equal(t, "from-env", cfg.Destination.Namespace)
	assert.True(t, cfg.Destination.Insecure)
	assert.Equal(t, []string{"*.onnx"}, cfg.Source.Ignore)
	// Unset keys keep their defaults.
	assert.Equal(t, SourceHuggingFace, cfg.Source.Kind)
	assert.Equal(t, DefaultSkipListPath, cfg.SkipListPath)
}

func TestLoad_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("repo_id: [unclosed"), 0o644))
	_, err = Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid YAML")

	require.NoError(t, os.WriteFile(path, []byte("repo_idd: org/x\n"), 0o644))
	_, err = Load(path)
	require.Error(t, err)
}

func TestLoadFromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("repo_id: org/from-file\nquant_scheme: Q4_0\n"), 0o644))

	cfg, err := LoadFromEnv(envMap(map[string]string{
		"CONFIG_FILE":  path,
		"QUANT_SCHEME": "Q6_K",
	}))
	require.NoError(t, err)
	assert.Equal(t, "org/from-file", cfg.RepoID)
	assert.Equal(t, "Q6_K", cfg.Scheme)
}

func TestLoadFromEnv_ExpandsFileWithInjectedLookup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("repo_id: org/tiny-model\ndestination:\n  namespace: ${CONVERTER_TEST_ONLY_NS:-fallback}\n"), 0o644))

	cfg, err := LoadFromEnv(envMap(map[string]string{
		"CONFIG_FILE":            path,
		"CONVERTER_TEST_ONLY_NS": "injected",
	}))
	require.NoError(t, err)
	assert.Equal(t, "injected", cfg.Destination.Namespace)
}
