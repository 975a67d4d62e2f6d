package preprocess

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/ekisa-team/modma/internal/dsp"
	"github.com/ekisa-team/modma/internal/eeg"
)

// BandLimit applies the zero-phase FIR band-pass to every non-silent
// channel in place. Channels are filtered concurrently.
func BandLimit(ctx context.Context, rec *eeg.Recording, lowFreq, highFreq float64) error {
	band, err := dsp.AutoFIRBand(rec.SFreq, lowFreq, highFreq)
	if err != nil {
		return err
	}

	taps, err := band.Design()
	if err != nil {
		return fmt.Errorf("failed to design filter: %w", err)
	}

	filter := dsp.NewFIRFilter(taps, rec.NumSamples())

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i := range rec.Data {
		if silent(rec.Data[i]) {
			continue
		}

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			out, err := filter.Apply(rec.Data[i])
			if err != nil {
				return fmt.Errorf("channel %s: %w", rec.Channels[i], err)
			}
			rec.Data[i] = out

			return nil
		})
	}

	return g.Wait()
}

func silent(x []float64) bool {
	for _, v := range x {
		if v != 0 {
			return false
		}
	}

	return true
}
