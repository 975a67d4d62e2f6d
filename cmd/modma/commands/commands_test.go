package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekisa-team/modma/internal/archive"
	"github.com/ekisa-team/modma/internal/classifier/classifiertest"
	"github.com/ekisa-team/modma/internal/envvar"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return stdout.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "modma "+Version)
}

func TestPreprocess_Passthrough(t *testing.T) {
	t.Setenv(envvar.ModmaConfig, filepath.Join(t.TempDir(), "absent.yaml"))

	path := filepath.Join(t.TempDir(), archive.FileName("sub-01"))
	epochs := [][][]float64{{{1, 2, 3}, {4, 5, 6}}}
	require.NoError(t, archive.WriteFile(path, &archive.Archive{Subject: "sub-01", SFreq: 250, Epochs: epochs}))

	out, err := run(t, "preprocess", path, "--out", t.TempDir())
	require.NoError(t, err)

	var body struct {
		NPZPath string `json:"npz_path"`
		Info    struct {
			Message string `json:"message"`
		} `json:"info"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &body))
	assert.Equal(t, path, body.NPZPath)
	assert.Equal(t, "File already preprocessed (.npz)", body.Info.Message)
}

func TestPreprocess_RequiresArgument(t *testing.T) {
	_, err := run(t, "preprocess")
	assert.Error(t, err)
}

func TestResolveConfigPath(t *testing.T) {
	t.Setenv(envvar.ModmaConfig, "/etc/modma/config.yaml")

	assert.Equal(t, "/etc/modma/config.yaml", (&globalFlags{}).resolveConfigPath())
	assert.Equal(t, "x.yaml", (&globalFlags{configPath: "x.yaml"}).resolveConfigPath())

	require.NoError(t, os.Unsetenv(envvar.ModmaConfig))
	assert.Equal(t, "config.yaml", filepath.Base((&globalFlags{}).resolveConfigPath()))
}

// artifactConfig serves a 4-channel artifact set over HTTP and writes a config
// pointing every artifact at it. Paths listed in missing answer 404.
func artifactConfig(t *testing.T, intercept float64, missing ...string) (configPath, modelsDir string) {
	t.Helper()

	dir := t.TempDir()
	classifiertest.WriteFiles(t, dir, 4, intercept)

	files := http.FileServer(http.Dir(dir))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, m := range missing {
			if strings.HasSuffix(r.URL.Path, m) {
				http.NotFound(w, r)
				return
			}
		}
		files.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	modelsDir = t.TempDir()
	var b strings.Builder
	fmt.Fprintf(&b, "version: \"1\"\nstorage:\n  models_dir: %s\nartifacts:\n", modelsDir)
	for name, file := range map[string]string{
		"csp":           classifiertest.CSPFile,
		"tangent_space": classifiertest.TangentSpaceFile,
		"scaler":        classifiertest.ScalerFile,
		"classifier":    classifiertest.ClassifierFile,
	} {
		fmt.Fprintf(&b, "  %s:\n    file: %s\n    source:\n      url:\n        href: %s/%s\n", name, file, srv.URL, file)
	}

	configPath = filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(b.String()), 0o644))

	return configPath, modelsDir
}

func fourChannelArchive(t *testing.T, subject string) string {
	t.Helper()

	epochs := make([][][]float64, 3)
	for e := range epochs {
		epochs[e] = make([][]float64, 4)
		for c := range epochs[e] {
			row := make([]float64, 250)
			for i := range row {
				row[i] = math.Sin(2*math.Pi*10*float64(i)/250+float64(c)) + 0.1*float64((i*(c+3)+e)%7)
			}
			epochs[e][c] = row
		}
	}

	path := filepath.Join(t.TempDir(), archive.FileName(subject))
	require.NoError(t, archive.WriteFile(path, &archive.Archive{Subject: subject, SFreq: 250, Epochs: epochs}))

	return path
}

func TestPredict(t *testing.T) {
	configPath, _ := artifactConfig(t, 1)

	out, err := run(t, "predict", fourChannelArchive(t, "sub-05"), "--config", configPath)
	require.NoError(t, err)

	var body struct {
		Subject string         `json:"subject"`
		Label   string         `json:"label"`
		Prob    float64        `json:"prob"`
		Votes   map[string]int `json:"votes"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &body), out)
	assert.Equal(t, "sub-05", body.Subject)
	assert.Equal(t, "MDD", body.Label)
	assert.Equal(t, map[string]int{"1": 3}, body.Votes)
	assert.InDelta(t, 1/(1+math.Exp(-1)), body.Prob, 1e-9)
}

func TestPredict_ArtifactUnavailable(t *testing.T) {
	configPath, _ := artifactConfig(t, 1, classifiertest.ScalerFile)

	out, err := run(t, "predict", fourChannelArchive(t, "sub-05"), "--config", configPath)
	require.Error(t, err)
	assert.ErrorContains(t, err, "scaler")
	assert.Empty(t, out)
}

func TestModelsPull(t *testing.T) {
	configPath, modelsDir := artifactConfig(t, -1)

	out, err := run(t, "models", "pull", "--config", configPath)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5)
	assert.Contains(t, lines[0], "STATUS")
	for _, line := range lines[1:] {
		assert.Contains(t, line, "loaded")
		assert.Contains(t, line, "false")
	}
	for _, file := range []string{classifiertest.CSPFile, classifiertest.TangentSpaceFile, classifiertest.ScalerFile, classifiertest.ClassifierFile} {
		assert.FileExists(t, filepath.Join(modelsDir, file))
	}

	out, err = run(t, "models", "pull", "--config", configPath)
	require.NoError(t, err)
	for _, line := range strings.Split(strings.TrimSpace(out), "\n")[1:] {
		assert.Contains(t, line, "true", "second pull reuses the downloaded file")
	}
}

func TestModelsPull_ReportsFailedArtifact(t *testing.T) {
	configPath, _ := artifactConfig(t, 1, classifiertest.ClassifierFile)

	out, err := run(t, "models", "pull", "--config", configPath)
	require.Error(t, err)

	var classifierLine string
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "classifier ") {
			classifierLine = line
		}
	}
	require.NotEmpty(t, classifierLine, out)
	assert.Contains(t, classifierLine, "failed")
}
