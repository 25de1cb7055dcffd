// Package waveform provides the simulated live trace for the bench
// display: a seeded sine generator with injected noise, and a CSV
// encoder for saving traces.
package waveform

import (
	"bufio"
	"encoding/csv"
	"io"
	"math"
	"math/rand"
	"strconv"
)

// Trace is one frame of simulated samples.
type Trace struct {
	// Name labels the data column.
	Name string

	// DT is the temporal sample spacing in seconds.
	DT float64

	// Samples is the data, in volts.
	Samples []float64
}

// EncodeCSV writes the trace with a time column in streaming fashion.
func (t Trace) EncodeCSV(w io.Writer) error {
	bw := bufio.NewWriter(w)
	cw := csv.NewWriter(bw)
	if err := cw.Write([]string{"time", t.Name}); err != nil {
		return err
	}
	row := make([]string, 2)
	for i, s := range t.Samples {
		row[0] = strconv.FormatFloat(float64(i)*t.DT, 'G', -1, 64)
		row[1] = strconv.FormatFloat(s, 'G', -1, 64)
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	return bw.Flush()
}

// Generator produces a sine wave with gaussian noise riding on it.
// The phase advances across frames so consecutive frames animate
// smoothly.  Deterministic for a given seed.
type Generator struct {
	// AmplitudeV and FrequencyHz shape the carrier.
	AmplitudeV  float64
	FrequencyHz float64

	// NoiseV is the standard deviation of the injected noise in volts.
	NoiseV float64

	rng   *rand.Rand
	phase float64
}

// NewGenerator creates a generator; seed fixes the noise stream.
func NewGenerator(amplitudeV, frequencyHz, noiseV float64, seed int64) *Generator {
	return &Generator{
		AmplitudeV:  amplitudeV,
		FrequencyHz: frequencyHz,
		NoiseV:      noiseV,
		rng:         rand.New(rand.NewSource(seed)),
	}
}

// Next produces a frame of n samples spaced dt seconds apart.
func (g *Generator) Next(name string, n int, dt float64) Trace {
	samples := make([]float64, n)
	omega := 2 * math.Pi * g.FrequencyHz
	for i := range samples {
		samples[i] = g.AmplitudeV*math.Sin(g.phase) + g.NoiseV*g.rng.NormFloat64()
		g.phase += omega * dt
	}
	// keep the phase bounded over long sessions
	g.phase = math.Mod(g.phase, 2*math.Pi)
	return Trace{Name: name, DT: dt, Samples: samples}
}
