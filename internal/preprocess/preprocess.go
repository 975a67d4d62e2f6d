// Package preprocess turns an uploaded recording into an epoch archive.
package preprocess

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ekisa-team/modma/internal/archive"
	"github.com/ekisa-team/modma/internal/config"
	"github.com/ekisa-team/modma/internal/eeg"
	"github.com/ekisa-team/modma/internal/eeg/egi"
	"github.com/ekisa-team/modma/internal/storage"
	"github.com/ekisa-team/modma/internal/telemetry"
)

// ErrUnsupportedFormat is returned for files that are neither .raw nor .npz.
var ErrUnsupportedFormat = errors.New("unsupported EEG file format")

// MessagePassthrough is the info message for archives that skip preprocessing.
const MessagePassthrough = "File already preprocessed (.npz)"

// Quality thresholds that only produce notes.
const (
	minChannelsRequired = 120
	minSFreq            = 200.0
	maxSFreq            = 300.0
)

var tracer = telemetry.Tracer("modma/preprocess")

// Preprocessor normalizes, filters and epochs recordings into an output store.
type Preprocessor struct {
	cfg config.PreprocessConfig
	out *storage.Local
}

// New creates a Preprocessor writing archives into out.
func New(cfg config.PreprocessConfig, out *storage.Local) *Preprocessor {
	return &Preprocessor{cfg: cfg, out: out}
}

// Run preprocesses the file at path and returns the archive path with a summary.
// Archives (.npz) are returned unchanged.
func (p *Preprocessor) Run(ctx context.Context, path string) (string, *Info, error) {
	ctx, span := tracer.Start(ctx, "preprocess.Run")
	defer span.End()

	info := &Info{File: filepath.Base(path)}
	span.SetAttributes(attribute.String("eeg.file", info.File))

	switch strings.ToLower(filepath.Ext(path)) {
	case ".npz":
		info.Message = MessagePassthrough
		return path, info, nil
	case ".raw":
	default:
		err := fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
		span.SetStatus(codes.Error, err.Error())
		return "", nil, err
	}

	slog.Info("Preprocessing recording", "file", info.File)

	rec, err := p.read(ctx, path)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", nil, err
	}

	info.ChannelsBefore = ptr(len(rec.Channels))
	info.SamplingRate = ptr(rec.SFreq)

	realChannels := countLayoutChannels(rec, p.cfg.ReferenceChannel)

	rec, missing := NormalizeChannels(rec, p.cfg.ReferenceChannel)
	for _, name := range missing {
		info.note("Missing channel added: " + name)
	}
	info.ChannelsAfter = ptr(len(rec.Channels))

	if err := ctx.Err(); err != nil {
		return "", nil, err
	}

	if err := p.filter(ctx, rec); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", nil, fmt.Errorf("filtering failed: %w", err)
	}

	epochs := p.epoch(rec, info)
	n, _, _ := epochs.Shape()
	info.EpochCount = ptr(n)

	if rec.SFreq < minSFreq || rec.SFreq > maxSFreq {
		info.note(fmt.Sprintf("Sampling rate %g Hz outside expected %g-%g Hz", rec.SFreq, minSFreq, maxSFreq))
	}
	if realChannels < minChannelsRequired {
		info.note(fmt.Sprintf("Only %d of %d channels present", realChannels, eeg.LayoutSize))
	}

	subject := archive.SubjectFromPath(path)
	outPath, err := p.write(ctx, subject, epochs)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", nil, err
	}

	span.SetAttributes(attribute.Int("eeg.epochs", n), attribute.Int("eeg.missing_channels", len(missing)))
	slog.Info("Preprocessing complete", "file", info.File, "epochs", n, "missing_channels", len(missing), "output", outPath)

	return outPath, info, nil
}

func (p *Preprocessor) read(ctx context.Context, path string) (*eeg.Recording, error) {
	_, span := tracer.Start(ctx, "preprocess.read")
	defer span.End()

	rec, err := egi.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}

	return rec, nil
}

func (p *Preprocessor) filter(ctx context.Context, rec *eeg.Recording) error {
	ctx, span := tracer.Start(ctx, "preprocess.filter")
	defer span.End()

	return BandLimit(ctx, rec, p.cfg.LowFreq, p.cfg.HighFreq)
}

// epoch cuts cue epochs, falling back to the whole recording. The reason
// for a fallback is recorded in info.
func (p *Preprocessor) epoch(rec *eeg.Recording, info *Info) *eeg.Epochs {
	epochs, err := EpochWindow(rec, p.cfg.CueMarker, p.cfg.TMin, p.cfg.TMax)
	switch {
	case err == nil:
		return epochs
	case errors.Is(err, errNoCues), errors.Is(err, errNoValidEpoch):
		info.note(capitalize(err.Error()) + ", using whole recording")
	default:
		info.note("Epoching failed: " + err.Error())
	}

	slog.Warn("Falling back to whole recording", "file", info.File, "reason", err)
	return WholeRecording(rec)
}

func (p *Preprocessor) write(ctx context.Context, subject string, epochs *eeg.Epochs) (string, error) {
	ctx, span := tracer.Start(ctx, "preprocess.write")
	defer span.End()

	name := archive.FileName(subject)
	w, err := p.out.Write(ctx, name)
	if err != nil {
		return "", fmt.Errorf("failed to create archive: %w", err)
	}

	a := &archive.Archive{Subject: subject, SFreq: epochs.SFreq, Epochs: epochs.Data}
	if err := archive.Encode(w, a); err != nil {
		if ab, ok := w.(interface{ Abort() error }); ok {
			_ = ab.Abort()
		}
		return "", fmt.Errorf("failed to write archive: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to write archive: %w", err)
	}

	return p.out.Path(name), nil
}

// countLayoutChannels counts channels of the 128-electrode layout present in rec.
func countLayoutChannels(rec *eeg.Recording, reference string) int {
	layout := make(map[string]bool, eeg.LayoutSize)
	for _, name := range eeg.LayoutChannels() {
		layout[name] = true
	}

	n := 0
	for _, name := range rec.Channels {
		if name != reference && layout[name] {
			n++
		}
	}

	return n
}

func capitalize(s string) string {
	if s == "" {
		return s
	}

	return strings.ToUpper(s[:1]) + s[1:]
}
