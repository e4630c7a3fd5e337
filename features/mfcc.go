// Package features computes acoustic feature frames (MFCCs) from PCM audio.
package features

import (
	"context"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/maastricht-university/meetsync/meeting"
)

const logFloor = 1e-10

type Config struct {
	NumCoefficients int     `yaml:"num_coefficients" mapstructure:"num_coefficients"`
	NumFilters      int     `yaml:"num_filters" mapstructure:"num_filters"`
	FrameLength     float64 `yaml:"frame_length" mapstructure:"frame_length"` // sec
	Hop             float64 `yaml:"hop" mapstructure:"hop"`                   // sec
}

func DefaultConfig() Config {
	return Config{NumCoefficients: 13, NumFilters: 40, FrameLength: 0.025, Hop: 0.01}
}

// MFCC extracts mel-frequency cepstral coefficients, one vector per hop.
type MFCC struct {
	cfg Config
}

func NewMFCC(cfg Config) *MFCC {
	def := DefaultConfig()
	if cfg.NumCoefficients <= 0 {
		cfg.NumCoefficients = def.NumCoefficients
	}
	if cfg.NumFilters <= 0 {
		cfg.NumFilters = def.NumFilters
	}
	if cfg.NumCoefficients > cfg.NumFilters {
		cfg.NumFilters = cfg.NumCoefficients
	}
	if cfg.FrameLength <= 0 {
		cfg.FrameLength = def.FrameLength
	}
	if cfg.Hop <= 0 {
		cfg.Hop = def.Hop
	}
	return &MFCC{cfg: cfg}
}

func (m *MFCC) hopSamples(sampleRate int) int {
	return max(1, int(math.Round(m.cfg.Hop*float64(sampleRate))))
}

func (m *MFCC) FrameRate(sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	return float64(sampleRate) / float64(m.hopSamples(sampleRate))
}

// Features returns one coefficient vector per frame. Empty audio yields no frames.
func (m *MFCC) Features(ctx context.Context, audio meeting.Audio) ([][]float64, error) {
	sr := audio.SampleRate
	if sr <= 0 || len(audio.Samples) == 0 {
		return nil, nil
	}
	frameLen := max(2, int(math.Round(m.cfg.FrameLength*float64(sr))))
	hop := m.hopSamples(sr)
	nfft := nextPow2(frameLen)

	nFrames := 1
	if len(audio.Samples) > frameLen {
		nFrames = 1 + (len(audio.Samples)-frameLen)/hop
	}

	window := hann(frameLen)
	bank := melFilterbank(m.cfg.NumFilters, nfft, sr)
	dct := dctMatrix(m.cfg.NumCoefficients, m.cfg.NumFilters)
	fft := fourier.NewFFT(nfft)

	buf := make([]float64, nfft)
	spec := make([]complex128, nfft/2+1)
	power := make([]float64, nfft/2+1)
	energies := make([]float64, m.cfg.NumFilters)

	out := make([][]float64, nFrames)
	for f := 0; f < nFrames; f++ {
		if f%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		start := f * hop
		for i := range buf {
			buf[i] = 0
		}
		for i := 0; i < frameLen && start+i < len(audio.Samples); i++ {
			buf[i] = audio.Samples[start+i] * window[i]
		}
		spec = fft.Coefficients(spec, buf)
		for k, c := range spec {
			a := cmplx.Abs(c)
			power[k] = a * a / float64(nfft)
		}
		for b, filter := range bank {
			e := 0.0
			for k, w := range filter {
				e += w * power[k]
			}
			energies[b] = math.Log(math.Max(e, logFloor))
		}
		row := make([]float64, m.cfg.NumCoefficients)
		for c := range row {
			s := 0.0
			for b, e := range energies {
				s += dct[c][b] * e
			}
			row[c] = s
		}
		out[f] = row
	}
	return out, nil
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

func hann(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return w
}

func hzToMel(hz float64) float64  { return 2595 * math.Log10(1+hz/700) }
func melToHz(mel float64) float64 { return 700 * (math.Pow(10, mel/2595) - 1) }

// melFilterbank builds triangular filters over the nfft/2+1 power bins, HTK mel scale.
func melFilterbank(nFilters, nfft, sampleRate int) [][]float64 {
	nBins := nfft/2 + 1
	lo, hi := hzToMel(0), hzToMel(float64(sampleRate)/2)
	bins := make([]int, nFilters+2)
	for i := range bins {
		hz := melToHz(lo + (hi-lo)*float64(i)/float64(nFilters+1))
		bins[i] = min(nBins-1, int(math.Floor(float64(nfft+1)*hz/float64(sampleRate))))
	}

	bank := make([][]float64, nFilters)
	for m := 1; m <= nFilters; m++ {
		filter := make([]float64, nBins)
		left, center, right := bins[m-1], bins[m], bins[m+1]
		if center > left {
			for k := left; k <= center; k++ {
				filter[k] = float64(k-left) / float64(center-left)
			}
		}
		if right > center {
			for k := center; k <= right; k++ {
				filter[k] = float64(right-k) / float64(right-center)
			}
		}
		if center == left && center == right {
			filter[center] = 1
		}
		bank[m-1] = filter
	}
	return bank
}

// dctMatrix is the orthonormal DCT-II restricted to the first nCoeffs rows.
func dctMatrix(nCoeffs, n int) [][]float64 {
	out := make([][]float64, nCoeffs)
	for k := range out {
		scale := math.Sqrt(2 / float64(n))
		if k == 0 {
			scale = math.Sqrt(1 / float64(n))
		}
		row := make([]float64, n)
		for i := range row {
			row[i] = scale * math.Cos(math.Pi*float64(k)*(float64(i)+0.5)/float64(n))
		}
		out[k] = row
	}
	return out
}
