package classifier

import (
	"context"
	"encoding/json"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/ekisa-team/modma/internal/archive"
	"github.com/ekisa-team/modma/internal/config"
)

func boolPtr(b bool) *bool { return &b }

// twoChannelDocs returns a consistent artifact set for 2 channels and 1 CSP
// component (fused width 8) with a linear classifier.
func twoChannelDocs(intercept float64) (CSPDocument, TangentSpaceDocument, ScalerDocument, SVMDocument) {
	return CSPDocument{
			Filters:       [][]float64{{1, 0}},
			TransformInto: "average_power",
		},
		TangentSpaceDocument{
			Reference: [][]float64{{1, 0}, {0, 1}},
			Metric:    "riemann",
		},
		ScalerDocument{
			Mean:  make([]float64, 8),
			Scale: []float64{1, 1, 1, 1, 1, 1, 1, 1},
		},
		SVMDocument{
			Kernel:    KernelLinear,
			Classes:   []int{0, 1},
			Coef:      [][]float64{make([]float64, 8)},
			Intercept: []float64{intercept},
		}
}

func testArtifacts(t *testing.T, intercept float64) *Artifacts {
	t.Helper()

	a, err := NewArtifacts(twoChannelDocs(intercept))
	require.NoError(t, err)

	return a
}

func testArchive(epochs int) *archive.Archive {
	rng := rand.New(rand.NewSource(7))
	data := make([][][]float64, epochs)
	for e := range data {
		data[e] = make([][]float64, 2)
		for c := range data[e] {
			row := make([]float64, 250)
			for i := range row {
				row[i] = math.Sin(2*math.Pi*12*float64(i)/250) + 0.5*rng.NormFloat64()
			}
			data[e][c] = row
		}
	}

	return &archive.Archive{Subject: "sub-01", SFreq: 250, Epochs: data}
}

func inferenceConfig() config.InferenceConfig {
	return config.Default().Pipeline.Inference
}

func writeJSON(t *testing.T, dir, name string, v any) string {
	t.Helper()

	data, err := json.Marshal(v)
	require.NoError(t, err)

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	return path
}

func TestMajorityVote(t *testing.T) {
	t.Run("majority", func(t *testing.T) {
		winner, votes := MajorityVote([]int{1, 0, 1, 1})
		assert.Equal(t, 1, winner)
		assert.Equal(t, map[string]int{"0": 1, "1": 3}, votes)
	})

	t.Run("tie goes to first seen", func(t *testing.T) {
		winner, votes := MajorityVote([]int{1, 0, 0, 1})
		assert.Equal(t, 1, winner)
		assert.Equal(t, map[string]int{"0": 2, "1": 2}, votes)

		winner, _ = MajorityVote([]int{0, 1, 1, 0})
		assert.Equal(t, 0, winner)
	})

	t.Run("unanimous", func(t *testing.T) {
		winner, votes := MajorityVote([]int{0, 0})
		assert.Equal(t, 0, winner)
		assert.Equal(t, map[string]int{"0": 2}, votes)
	})
}

func TestLabelFor(t *testing.T) {
	assert.Equal(t, LabelHC, LabelFor(0))
	assert.Equal(t, LabelMDD, LabelFor(1))
	assert.Equal(t, LabelMDD, LabelFor(2))
}

func TestScaler(t *testing.T) {
	s, err := NewScaler(ScalerDocument{Mean: []float64{1, 2}, Scale: []float64{2, 0}})
	require.NoError(t, err)
	assert.Equal(t, 2, s.Width())

	out, err := s.Transform(mat.NewDense(1, 2, []float64{5, 7}))
	require.NoError(t, err)
	assert.InDelta(t, 2.0, out.At(0, 0), 1e-12)
	assert.InDelta(t, 5.0, out.At(0, 1), 1e-12, "zero scale is treated as 1")

	_, err = s.Transform(mat.NewDense(1, 3, nil))
	assert.Error(t, err)

	noMean, err := NewScaler(ScalerDocument{Scale: []float64{2}, WithMean: boolPtr(false)})
	require.NoError(t, err)
	out, err = noMean.Transform(mat.NewDense(1, 1, []float64{4}))
	require.NoError(t, err)
	assert.InDelta(t, 2.0, out.At(0, 0), 1e-12)

	_, err = NewScaler(ScalerDocument{Mean: []float64{1, 2}, Scale: []float64{1}})
	assert.ErrorIs(t, err, ErrInvalidArtifact)

	_, err = NewScaler(ScalerDocument{})
	assert.ErrorIs(t, err, ErrInvalidArtifact)
}

func TestSVMKernels(t *testing.T) {
	base := SVMDocument{
		Classes:        []int{0, 1},
		SupportVectors: [][]float64{{1, 0}, {0, 1}},
		DualCoef:       [][]float64{{1, -1}},
		Intercept:      []float64{0.5},
		Gamma:          0.5,
		Coef0:          1,
		Degree:         2,
	}
	x := []float64{1, 0}

	tests := []struct {
		kernel string
		want   float64
	}{
		{KernelLinear, 1 - 0 + 0.5},
		{KernelRBF, 1 - math.Exp(-0.5*2) + 0.5},
		{KernelPoly, math.Pow(0.5+1, 2) - 1 + 0.5},
		{KernelSigmoid, math.Tanh(1.5) - math.Tanh(1) + 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.kernel, func(t *testing.T) {
			doc := base
			doc.Kernel = tt.kernel

			svm, err := NewSVM(doc)
			require.NoError(t, err)
			assert.Equal(t, 2, svm.Width())
			assert.InDelta(t, tt.want, svm.Decision(x), 1e-12)
			assert.Equal(t, 1, svm.Predict(x))
		})
	}
}

func TestSVMLinearCoefShortcut(t *testing.T) {
	svm, err := NewSVM(SVMDocument{
		Kernel:    KernelLinear,
		Classes:   []int{0, 1},
		Coef:      [][]float64{{2, -1}},
		Intercept: []float64{-1},
	})
	require.NoError(t, err)

	assert.InDelta(t, -2.0, svm.Decision([]float64{0, 1}), 1e-12)
	assert.Equal(t, 0, svm.Predict([]float64{0, 1}))
	assert.Equal(t, 1, svm.Predict([]float64{2, 0}))
}

func TestSVMProbability(t *testing.T) {
	doc := SVMDocument{
		Kernel:    KernelLinear,
		Classes:   []int{0, 1},
		Coef:      [][]float64{{1}},
		Intercept: []float64{0},
	}

	plain, err := NewSVM(doc)
	require.NoError(t, err)
	assert.False(t, plain.Calibrated())
	assert.InDelta(t, 0.5, plain.Probability(0), 1e-12)
	assert.InDelta(t, 1/(1+math.Exp(-2)), plain.Probability(2), 1e-12)

	doc.ProbA = []float64{-3}
	doc.ProbB = []float64{0.1}
	platt, err := NewSVM(doc)
	require.NoError(t, err)
	assert.True(t, platt.Calibrated())
	assert.InDelta(t, 1/(1+math.Exp(-3+0.1)), platt.Probability(1), 1e-12)
	assert.InDelta(t, 1-minProb, platt.Probability(1000), 1e-12)
}

func TestSVMValidation(t *testing.T) {
	valid := SVMDocument{
		Kernel:         KernelRBF,
		Classes:        []int{0, 1},
		SupportVectors: [][]float64{{1, 0}},
		DualCoef:       [][]float64{{1}},
		Intercept:      []float64{0},
		Gamma:          1,
	}
	_, err := NewSVM(valid)
	require.NoError(t, err)

	tests := []struct {
		name   string
		modify func(*SVMDocument)
	}{
		{"unknown kernel", func(d *SVMDocument) { d.Kernel = "precomputed" }},
		{"three classes", func(d *SVMDocument) { d.Classes = []int{0, 1, 2} }},
		{"no intercept", func(d *SVMDocument) { d.Intercept = nil }},
		{"no support vectors", func(d *SVMDocument) { d.SupportVectors = nil }},
		{"dual coef mismatch", func(d *SVMDocument) { d.DualCoef = [][]float64{{1, 2}} }},
		{"ragged vectors", func(d *SVMDocument) {
			d.SupportVectors = [][]float64{{1, 0}, {1}}
			d.DualCoef = [][]float64{{1, 1}}
		}},
		{"zero gamma", func(d *SVMDocument) { d.Gamma = 0 }},
		{"half platt", func(d *SVMDocument) { d.ProbA = []float64{1} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := valid
			tt.modify(&doc)
			_, err := NewSVM(doc)
			assert.ErrorIs(t, err, ErrInvalidArtifact)
		})
	}
}

func TestNewArtifacts(t *testing.T) {
	a := testArtifacts(t, 1)
	assert.Equal(t, 2, a.Channels)
	assert.Equal(t, 8, a.Width())
	assert.Equal(t, "average_power", a.CSP.TransformInto)

	t.Run("scaler width mismatch", func(t *testing.T) {
		c, ts, sc, svm := twoChannelDocs(1)
		sc.Mean = make([]float64, 7)
		sc.Scale = make([]float64, 7)
		_, err := NewArtifacts(c, ts, sc, svm)
		assert.ErrorIs(t, err, ErrInvalidArtifact)
	})

	t.Run("reference size mismatch", func(t *testing.T) {
		c, ts, sc, svm := twoChannelDocs(1)
		ts.Reference = [][]float64{{1}}
		_, err := NewArtifacts(c, ts, sc, svm)
		assert.ErrorIs(t, err, ErrInvalidArtifact)
	})

	t.Run("asymmetric reference", func(t *testing.T) {
		c, ts, sc, svm := twoChannelDocs(1)
		ts.Reference = [][]float64{{1, 0.5}, {0, 1}}
		_, err := NewArtifacts(c, ts, sc, svm)
		assert.ErrorIs(t, err, ErrInvalidArtifact)
	})

	t.Run("unknown metric", func(t *testing.T) {
		c, ts, sc, svm := twoChannelDocs(1)
		ts.Metric = "euclid"
		_, err := NewArtifacts(c, ts, sc, svm)
		assert.ErrorIs(t, err, ErrInvalidArtifact)
	})

	t.Run("unknown csp mode", func(t *testing.T) {
		c, ts, sc, svm := twoChannelDocs(1)
		c.TransformInto = "raw"
		_, err := NewArtifacts(c, ts, sc, svm)
		assert.ErrorIs(t, err, ErrInvalidArtifact)
	})

	t.Run("classifier width mismatch", func(t *testing.T) {
		c, ts, sc, svm := twoChannelDocs(1)
		svm.Coef = [][]float64{make([]float64, 9)}
		_, err := NewArtifacts(c, ts, sc, svm)
		assert.ErrorIs(t, err, ErrInvalidArtifact)
	})
}

func TestLoadArtifacts(t *testing.T) {
	dir := t.TempDir()
	c, ts, sc, svm := twoChannelDocs(-1)

	paths := ArtifactPaths{
		CSP:          writeJSON(t, dir, "csp_pipeline.json", c),
		TangentSpace: writeJSON(t, dir, "global_tangent_space.json", ts),
		Scaler:       writeJSON(t, dir, "scaler.json", sc),
		Classifier:   writeJSON(t, dir, "svm_model.json", svm),
	}

	a, err := LoadArtifacts(paths)
	require.NoError(t, err)
	assert.Equal(t, 8, a.Width())

	t.Run("missing file", func(t *testing.T) {
		broken := paths
		broken.Scaler = filepath.Join(dir, "absent.json")
		_, err := LoadArtifacts(broken)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("invalid json", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte("{"), 0o644))

		broken := paths
		broken.Classifier = bad
		_, err := LoadArtifacts(broken)
		assert.ErrorIs(t, err, ErrInvalidArtifact)
	})
}

func TestPredict(t *testing.T) {
	p := NewPredictor(inferenceConfig())

	t.Run("positive decision is MDD", func(t *testing.T) {
		pred, err := p.Predict(context.Background(), testArtifacts(t, 1), testArchive(3))
		require.NoError(t, err)

		assert.Equal(t, "sub-01", pred.Subject)
		assert.Equal(t, LabelMDD, pred.Label)
		assert.Equal(t, map[string]int{"1": 3}, pred.Votes)
		assert.InDelta(t, 1/(1+math.Exp(-1)), pred.Prob, 1e-12)
		assert.Len(t, pred.FeatureStats.CSPMean, 1)
		assert.Greater(t, pred.FeatureStats.RiemannNormMean, 0.0)
	})

	t.Run("negative decision is HC", func(t *testing.T) {
		pred, err := p.Predict(context.Background(), testArtifacts(t, -1), testArchive(2))
		require.NoError(t, err)

		assert.Equal(t, LabelHC, pred.Label)
		assert.Equal(t, map[string]int{"0": 2}, pred.Votes)
		assert.InDelta(t, 1/(1+math.Exp(1)), pred.Prob, 1e-12)
	})

	t.Run("missing sfreq falls back to config", func(t *testing.T) {
		arc := testArchive(1)
		arc.SFreq = 0

		pred, err := p.Predict(context.Background(), testArtifacts(t, 1), arc)
		require.NoError(t, err)
		assert.Equal(t, LabelMDD, pred.Label)
	})

	t.Run("empty archive", func(t *testing.T) {
		_, err := p.Predict(context.Background(), testArtifacts(t, 1), &archive.Archive{Subject: "x"})
		assert.ErrorIs(t, err, ErrEmptyArchive)
	})

	t.Run("channel mismatch", func(t *testing.T) {
		arc := testArchive(1)
		arc.Epochs[0] = append(arc.Epochs[0], make([]float64, 250))

		_, err := p.Predict(context.Background(), testArtifacts(t, 1), arc)
		assert.ErrorContains(t, err, "model expects 2")
	})

	t.Run("flat epoch has no log power", func(t *testing.T) {
		arc := testArchive(2)
		for c := range arc.Epochs[1] {
			arc.Epochs[1][c] = make([]float64, 250)
		}

		pred, err := p.Predict(context.Background(), testArtifacts(t, 1), arc)
		require.ErrorIs(t, err, ErrNonFinite)
		assert.Nil(t, pred)
		assert.ErrorContains(t, err, "epoch 1")
	})

	t.Run("NaN sample", func(t *testing.T) {
		arc := testArchive(1)
		arc.Epochs[0][0][10] = math.NaN()

		_, err := p.Predict(context.Background(), testArtifacts(t, 1), arc)
		assert.ErrorIs(t, err, ErrNonFinite)
	})
}

func TestFeaturesWidthIndependentOfEpochCount(t *testing.T) {
	p := NewPredictor(inferenceConfig())
	a := testArtifacts(t, 1)

	for _, n := range []int{1, 2, 5} {
		x, err := p.Features(context.Background(), a, testArchive(n))
		require.NoError(t, err)

		rows, cols := x.Dims()
		assert.Equal(t, n, rows)
		assert.Equal(t, a.Width(), cols)
	}
}

func TestPredictFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), archive.FileName("sub-01"))
	require.NoError(t, archive.WriteFile(path, testArchive(2)))

	pred, err := NewPredictor(inferenceConfig()).PredictFile(context.Background(), testArtifacts(t, 1), path)
	require.NoError(t, err)
	assert.Equal(t, "sub-01", pred.Subject)
	assert.Equal(t, LabelMDD, pred.Label)
}
