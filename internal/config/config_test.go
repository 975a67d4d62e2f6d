package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekisa-team/modma/internal/envvar"
)

const validConfig = `
version: "1"
storage:
  models_dir: /tmp/modma-models
server:
  http_port: 8080
  body_read_timeout: 2m
bootstrap:
  strict: false
artifacts:
  scaler:
    file: scaler.json
    source:
      url:
        href: https://example.com/scaler.json
  classifier:
    file: svm_model.json
    source:
      s3:
        bucket: models
        key: modma/svm_model.json
        region: us-east-1
pipeline:
  inference:
    sfreq: 250
    l_freq: 8
    h_freq: 30
    filter_order: 4
    covariance_epsilon: 0.000001
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func TestLoadAndValidate_MergesOverDefaults(t *testing.T) {
	cfg, err := LoadAndValidate(writeConfig(t, validConfig), "")
	require.NoError(t, err)

	assert.Equal(t, "/tmp/modma-models", cfg.Storage.ModelsDir)
	assert.Equal(t, "uploads", cfg.Storage.UploadsDir)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 2*time.Minute, cfg.Server.BodyReadTimeout)
	assert.False(t, cfg.Bootstrap.Strict)

	scaler := cfg.Artifacts[ArtifactScaler]
	src, err := scaler.GetSource()
	require.NoError(t, err)
	assert.Equal(t, SourceTypeURL, src.Type())

	classifier := cfg.Artifacts[ArtifactClassifier]
	src, err = classifier.GetSource()
	require.NoError(t, err)
	assert.Equal(t, SourceTypeS3, src.Type())

	csp := cfg.Artifacts[ArtifactCSP]
	src, err = csp.GetSource()
	require.NoError(t, err)
	assert.Equal(t, SourceTypeHuggingFace, src.Type())

	assert.Equal(t, "E129", cfg.Pipeline.Preprocess.ReferenceChannel)
}

func TestLoadAndValidate_SchemaErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown top-level key", "version: \"1\"\nmodels: {}\n"},
		{"unknown artifact", "version: \"1\"\nartifacts:\n  lda:\n    file: lda.json\n    source:\n      url:\n        href: https://x/lda.json\n"},
		{"two sources", "version: \"1\"\nartifacts:\n  csp:\n    file: csp.json\n    source:\n      url:\n        href: https://x/csp.json\n      s3:\n        bucket: b\n        key: k\n"},
		{"bad port", "version: \"1\"\nserver:\n  http_port: 70000\n"},
		{"missing version", "storage:\n  models_dir: /tmp\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadAndValidate(writeConfig(t, tt.content), "")
			require.Error(t, err)
			assert.Contains(t, err.Error(), "validation failed")
		})
	}
}

func TestLoadAndValidate_CrossFieldErrors(t *testing.T) {
	content := "version: \"1\"\npipeline:\n  preprocess:\n    l_freq: 50\n    h_freq: 45\n"

	_, err := LoadAndValidate(writeConfig(t, content), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "l_freq")
}

func TestLoadAndValidate_InvalidYAML(t *testing.T) {
	_, err := LoadAndValidate(writeConfig(t, "version: [1"), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid YAML")
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv(envvar.ModelDir, "/srv/models")
	t.Setenv(envvar.ModmaServerHTTPPort, "9999")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), "")
	require.NoError(t, err)

	assert.Equal(t, "/srv/models", cfg.Storage.ModelsDir)
	assert.Equal(t, 9999, cfg.Server.HTTPPort)
	assert.True(t, cfg.Bootstrap.Strict)
	assert.Len(t, cfg.Artifacts, len(ArtifactNames()))
}

func TestApplyEnv_InvalidPort(t *testing.T) {
	t.Setenv(envvar.ModmaServerGRPCPort, "grpc")

	err := ApplyEnv(Default())
	require.Error(t, err)
	assert.Contains(t, err.Error(), envvar.ModmaServerGRPCPort)
}

func TestDefault_IsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestArtifactConfig_SetSourceClearsOthers(t *testing.T) {
	a := ArtifactConfig{File: "x.json"}
	_, err := a.GetSource()
	require.ErrorIs(t, err, ErrNoSource)

	a.SetHuggingFaceSource(HuggingFaceSource{Repo: "org/repo", Filename: "x.json"})
	a.SetURLSource("https://example.com/x.json")

	assert.Nil(t, a.Source.HuggingFace)
	require.NotNil(t, a.Source.URL)
	assert.Equal(t, "https://example.com/x.json", a.Source.URL.Href)
}
