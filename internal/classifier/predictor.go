package classifier

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/ekisa-team/modma/internal/archive"
	"github.com/ekisa-team/modma/internal/config"
	"github.com/ekisa-team/modma/internal/dsp"
	"github.com/ekisa-team/modma/internal/features"
	"github.com/ekisa-team/modma/internal/telemetry"
)

// Class labels.
const (
	LabelHC  = "HC"
	LabelMDD = "MDD"
)

// ErrEmptyArchive is returned when an archive has no epochs, channels or samples.
var ErrEmptyArchive = errors.New("archive holds no epoch data")

// ErrNonFinite is returned when features or decisions contain NaN or infinity.
var ErrNonFinite = errors.New("features contain NaN or infinity")

var tracer = telemetry.Tracer("modma/classifier")

// FeatureStats summarizes the fused features of one prediction.
type FeatureStats struct {
	CSPMean         []float64 `json:"csp_mean"`
	RiemannNormMean float64   `json:"riemann_norm_mean"`
}

// Prediction is the subject-level classification result.
type Prediction struct {
	Subject      string         `json:"subject"`
	Label        string         `json:"label"`
	Prob         float64        `json:"prob"`
	Votes        map[string]int `json:"votes"`
	FeatureStats FeatureStats   `json:"feature_stats"`
}

// Predictor runs the feature pipeline and classifier over epoch archives.
type Predictor struct {
	cfg config.InferenceConfig
}

// NewPredictor creates a predictor with the given inference settings.
func NewPredictor(cfg config.InferenceConfig) *Predictor {
	return &Predictor{cfg: cfg}
}

// PredictFile reads the archive at path and classifies it.
func (p *Predictor) PredictFile(ctx context.Context, artifacts *Artifacts, path string) (*Prediction, error) {
	arc, err := archive.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return p.Predict(ctx, artifacts, arc)
}

// Predict classifies every epoch of arc and aggregates a subject label.
func (p *Predictor) Predict(ctx context.Context, artifacts *Artifacts, arc *archive.Archive) (*Prediction, error) {
	ctx, span := tracer.Start(ctx, "classifier.Predict", trace.WithAttributes(
		attribute.String("subject", arc.Subject),
	))
	defer span.End()

	n, c, s := arc.Shape()
	if n == 0 || c == 0 || s == 0 {
		return nil, fmt.Errorf("%w: shape (%d, %d, %d)", ErrEmptyArchive, n, c, s)
	}
	if c != artifacts.Channels {
		return nil, fmt.Errorf("archive has %d channels, model expects %d", c, artifacts.Channels)
	}
	for i, epoch := range arc.Epochs {
		for j, row := range epoch {
			if allFinite(row) {
				continue
			}
			return nil, fmt.Errorf("%w: samples of epoch %d, channel %d", ErrNonFinite, i, j)
		}
	}

	x, err := p.Features(ctx, artifacts, arc)
	if err != nil {
		return nil, err
	}
	if err := checkFinite("features", x); err != nil {
		return nil, err
	}
	k := artifacts.CSP.Components()

	scaled, err := artifacts.Scaler.Transform(x)
	if err != nil {
		return nil, err
	}
	if err := checkFinite("scaled features", scaled); err != nil {
		return nil, err
	}

	classes := make([]int, n)
	probs := make([]float64, n)
	for i := 0; i < n; i++ {
		f := artifacts.SVM.Decision(scaled.RawRowView(i))
		classes[i] = artifacts.SVM.Class(f)
		probs[i] = artifacts.SVM.Probability(f)
		if math.IsNaN(f) || math.IsInf(f, 0) || math.IsNaN(probs[i]) {
			return nil, fmt.Errorf("%w: decision for epoch %d", ErrNonFinite, i)
		}
	}

	winner, votes := MajorityVote(classes)
	span.SetAttributes(attribute.Int("epochs", n), attribute.Int("class", winner))

	return &Prediction{
		Subject: arc.Subject,
		Label:   LabelFor(winner),
		Prob:    floats.Sum(probs) / float64(n),
		Votes:   votes,
		FeatureStats: FeatureStats{
			CSPMean:         columnMeans(x.Slice(0, n, 0, k).(*mat.Dense)),
			RiemannNormMean: rowNormMean(x.Slice(0, n, k, k+artifacts.Tangent.Dim()).(*mat.Dense)),
		},
	}, nil
}

// Features returns the fused [csp | tangent | stats] matrix, one row per epoch.
func (p *Predictor) Features(ctx context.Context, artifacts *Artifacts, arc *archive.Archive) (*mat.Dense, error) {
	sfreq := arc.SFreq
	if sfreq <= 0 {
		sfreq = p.cfg.SFreq
	}

	sos, err := dsp.ButterBandpass(p.cfg.FilterOrder, p.cfg.LowFreq, p.cfg.HighFreq, sfreq)
	if err != nil {
		return nil, fmt.Errorf("failed to design band-pass: %w", err)
	}

	_, span := tracer.Start(ctx, "classifier.Filter")
	filtered, err := features.FilterEpochs(ctx, arc.Epochs, sos)
	span.End()
	if err != nil {
		return nil, err
	}

	cspFeatures, err := artifacts.CSP.Transform(filtered)
	if err != nil {
		return nil, err
	}

	n := len(arc.Epochs)
	tangent := mat.NewDense(n, artifacts.Tangent.Dim(), nil)
	for i, epoch := range arc.Epochs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		cov := features.OAS(features.EpochMatrix(epoch), p.cfg.CovarianceEpsilon)
		v, err := artifacts.Tangent.Transform(cov)
		if err != nil {
			return nil, fmt.Errorf("epoch %d: %w", i, err)
		}
		tangent.SetRow(i, v)
	}

	stats := features.Tile(features.Stats(cspFeatures), n)

	return features.Fuse(cspFeatures, tangent, stats)
}

func allFinite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}

	return true
}

// checkFinite reports the first NaN or infinite entry of m.
func checkFinite(what string, m *mat.Dense) error {
	rows, cols := m.Dims()
	for i := 0; i < rows; i++ {
		row := m.RawRowView(i)[:cols]
		if allFinite(row) {
			continue
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: %s at epoch %d, column %d", ErrNonFinite, what, i, j)
			}
		}
	}

	return nil
}

// MajorityVote returns the most frequent class and the tally keyed by class.
// Ties go to the tied class seen first.
func MajorityVote(classes []int) (int, map[string]int) {
	counts := make(map[int]int)
	var order []int
	for _, c := range classes {
		if counts[c] == 0 {
			order = append(order, c)
		}
		counts[c]++
	}

	winner, best := 0, -1
	for _, c := range order {
		if counts[c] > best {
			winner, best = c, counts[c]
		}
	}

	votes := make(map[string]int, len(counts))
	for c, n := range counts {
		votes[strconv.Itoa(c)] = n
	}

	return winner, votes
}

// LabelFor maps a class to its label.
func LabelFor(class int) string {
	if class == 0 {
		return LabelHC
	}

	return LabelMDD
}

func columnMeans(m *mat.Dense) []float64 {
	rows, cols := m.Dims()
	out := make([]float64, cols)
	for j := 0; j < cols; j++ {
		out[j] = floats.Sum(mat.Col(nil, j, m)) / float64(rows)
	}

	return out
}

func rowNormMean(m *mat.Dense) float64 {
	rows, _ := m.Dims()
	var sum float64
	for i := 0; i < rows; i++ {
		sum += floats.Norm(m.RawRowView(i), 2)
	}

	return sum / float64(rows)
}
