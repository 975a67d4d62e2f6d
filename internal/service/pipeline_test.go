package service

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ekisa-team/modma/internal/archive"
	"github.com/ekisa-team/modma/internal/classifier"
	"github.com/ekisa-team/modma/internal/classifier/classifiertest"
	"github.com/ekisa-team/modma/internal/config"
	"github.com/ekisa-team/modma/internal/eeg"
	"github.com/ekisa-team/modma/internal/eeg/egi"
	"github.com/ekisa-team/modma/internal/model"
	"github.com/ekisa-team/modma/internal/preprocess"
	"github.com/ekisa-team/modma/internal/storage"
)

type mockModels struct {
	mock.Mock
}

func (m *mockModels) Artifacts() (*classifier.Artifacts, error) {
	args := m.Called()
	a, _ := args.Get(0).(*classifier.Artifacts)
	return a, args.Error(1)
}

type fixture struct {
	pipeline   *Pipeline
	uploadDir  string
	processDir string
	models     *mockModels
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{uploadDir: t.TempDir(), processDir: t.TempDir(), models: &mockModels{}}

	uploads, err := storage.NewLocal(f.uploadDir)
	require.NoError(t, err)
	out, err := storage.NewLocal(f.processDir)
	require.NoError(t, err)

	cfg := config.Default().Pipeline
	f.pipeline = NewPipeline(uploads, preprocess.New(cfg.Preprocess, out), classifier.NewPredictor(cfg.Inference), f.models)

	return f
}

// npzBytes encodes a 4-channel archive of noisy 12 Hz sines.
func npzBytes(t *testing.T, subject string, epochs int) []byte {
	t.Helper()

	data := make([][][]float64, epochs)
	for e := range data {
		data[e] = make([][]float64, 4)
		for c := range data[e] {
			row := make([]float64, 250)
			for i := range row {
				row[i] = math.Sin(2*math.Pi*12*float64(i)/250+float64(c)) + 0.1*float64((i*(c+3)+e)%7)
			}
			data[e][c] = row
		}
	}

	var buf bytes.Buffer
	require.NoError(t, archive.Encode(&buf, &archive.Archive{Subject: subject, SFreq: 250, Epochs: data}))

	return buf.Bytes()
}

func rawBytes(t *testing.T) []byte {
	t.Helper()

	rec := &eeg.Recording{SFreq: 250}
	for i := 1; i <= 8; i++ {
		row := make([]float64, 500)
		for s := range row {
			row[s] = 1e-6 * math.Sin(2*math.Pi*10*float64(s)/250)
		}
		rec.Channels = append(rec.Channels, eeg.ChannelName(i))
		rec.Data = append(rec.Data, row)
	}

	var buf bytes.Buffer
	require.NoError(t, egi.Write(&buf, rec, time.Now()))

	return buf.Bytes()
}

func TestCheckFileType(t *testing.T) {
	for _, name := range []string{"a.raw", "B.RAW", "x.npz", "y.NpZ"} {
		assert.NoError(t, CheckFileType(name), name)
	}
	for _, name := range []string{"a.fif", "raw", "a.raw.txt", ""} {
		assert.ErrorIs(t, CheckFileType(name), ErrUnsupportedFileType, name)
	}
}

func TestRun_RejectsUnsupportedTypeBeforeSaving(t *testing.T) {
	f := newFixture(t)

	_, err := f.pipeline.Run(context.Background(), "notes.txt", strings.NewReader("x"), true)
	require.ErrorIs(t, err, ErrUnsupportedFileType)

	entries, err := os.ReadDir(f.uploadDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	f.models.AssertNotCalled(t, "Artifacts")
}

func TestRun_PreprocessOnly(t *testing.T) {
	f := newFixture(t)

	res, err := f.pipeline.Run(context.Background(), "sub-07.raw", bytes.NewReader(rawBytes(t)), false)
	require.NoError(t, err)
	require.Nil(t, res.Prediction)
	require.NotNil(t, res.Preprocessed)

	assert.Equal(t, MessagePreprocessed, res.Preprocessed.Message)
	assert.Equal(t, f.processDir, filepath.Dir(res.Preprocessed.NPZPath))
	assert.FileExists(t, res.Preprocessed.NPZPath)
	require.NotNil(t, res.Preprocessed.Info.ChannelsAfter)
	assert.Equal(t, eeg.LayoutSize, *res.Preprocessed.Info.ChannelsAfter)

	entries, err := os.ReadDir(f.uploadDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Regexp(t, `^[0-9a-f]{8}__sub-07\.raw$`, entries[0].Name())

	body, err := json.Marshal(res.Body())
	require.NoError(t, err)
	assert.Contains(t, string(body), `"npz_path"`)
	f.models.AssertNotCalled(t, "Artifacts")
}

func TestRun_Inference(t *testing.T) {
	f := newFixture(t)
	f.models.On("Artifacts").Return(classifiertest.Artifacts(t, 4, 1), nil)

	res, err := f.pipeline.Run(context.Background(), "sub-01.npz", bytes.NewReader(npzBytes(t, "sub-01", 3)), true)
	require.NoError(t, err)
	require.NotNil(t, res.Prediction)

	assert.Equal(t, "sub-01", res.Prediction.Subject)
	assert.Equal(t, classifier.LabelMDD, res.Prediction.Label)
	assert.Equal(t, map[string]int{"1": 3}, res.Prediction.Votes)
	require.NotNil(t, res.Prediction.PreprocessInfo)
	assert.Equal(t, preprocess.MessagePassthrough, res.Prediction.PreprocessInfo.Message)

	var body map[string]any
	raw, err := json.Marshal(res.Body())
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, "MDD", body["label"])
	assert.Contains(t, body, "preprocess_info")
	assert.Contains(t, body, "feature_stats")

	f.models.AssertExpectations(t)
}

func TestRun_InferenceWithoutModels(t *testing.T) {
	f := newFixture(t)
	f.models.On("Artifacts").Return(nil, model.ErrNotLoaded)

	_, err := f.pipeline.Run(context.Background(), "sub-01.npz", bytes.NewReader(npzBytes(t, "sub-01", 1)), true)
	require.ErrorIs(t, err, model.ErrNotLoaded)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageInfer, stageErr.Stage)
	assert.True(t, strings.HasPrefix(err.Error(), "Inference failed: "))
}

func TestRun_PreprocessingError(t *testing.T) {
	f := newFixture(t)

	_, err := f.pipeline.Run(context.Background(), "broken.raw", strings.NewReader("not an eeg file"), true)
	require.Error(t, err)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StagePreprocess, stageErr.Stage)
	assert.True(t, strings.HasPrefix(err.Error(), "Preprocessing error: "))
}

func TestRun_SaveError(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.RemoveAll(f.uploadDir))
	require.NoError(t, os.WriteFile(f.uploadDir, nil, 0o644))

	_, err := f.pipeline.Run(context.Background(), "a.raw", strings.NewReader("x"), false)
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "Failed to save uploaded file: "))
}

func TestPredict(t *testing.T) {
	f := newFixture(t)
	f.models.On("Artifacts").Return(classifiertest.Artifacts(t, 4, -1), nil)

	path := filepath.Join(t.TempDir(), archive.FileName("sub-02"))
	require.NoError(t, os.WriteFile(path, npzBytes(t, "sub-02", 2), 0o644))

	prediction, err := f.pipeline.Predict(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, classifier.LabelHC, prediction.Label)
	assert.Equal(t, "sub-02", prediction.Subject)
}
