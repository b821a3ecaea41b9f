// Package sensor provides the simulated temperature source and its
// per-mode noise profiles.
package sensor

import (
	"math"
	"math/rand/v2"
	"time"

	"codeberg.org/mutker/simtempd/internal/errors"
)

const (
	DefaultBaseline    int32 = 42000
	DefaultNormalNoise int32 = 500
	DefaultNoisyNoise  int32 = 2500

	// MaxJitter keeps the jitter span 2*Jitter within int32.
	MaxJitter int32 = math.MaxInt32 / 2
)

// Profile bounds the jitter applied around the baseline: readings fall in
// [baseline-Jitter, baseline+Jitter).
type Profile struct {
	Jitter int32
}

// Simulated is the default Source. It owns its baseline and random state so
// separate instances never influence each other.
type Simulated struct {
	baseline int32
	profiles map[Mode]Profile
	rng      *rand.Rand
}

// Option configures a Simulated source.
type Option func(*Simulated) error

// WithBaseline sets the centre of the simulated readings.
func WithBaseline(mC int32) Option {
	return func(s *Simulated) error {
		s.baseline = mC
		return nil
	}
}

// WithProfile overrides the jitter used for mode.
func WithProfile(mode Mode, p Profile) Option {
	return func(s *Simulated) error {
		if !mode.Valid() || p.Jitter < 0 || p.Jitter > MaxJitter {
			return errors.New().WithData(ErrInvalidProfile, struct {
				Mode   string
				Jitter int32
			}{
				Mode:   mode.String(),
				Jitter: p.Jitter,
			})
		}
		s.profiles[mode] = p
		return nil
	}
}

// WithSeed makes the sequence of readings reproducible.
func WithSeed(seed uint64) Option {
	return func(s *Simulated) error {
		s.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
		return nil
	}
}

// NewSimulated returns a Source centred on DefaultBaseline.
func NewSimulated(opts ...Option) (*Simulated, error) {
	seed := uint64(time.Now().UnixNano())
	s := &Simulated{
		baseline: DefaultBaseline,
		profiles: map[Mode]Profile{
			ModeNormal: {Jitter: DefaultNormalNoise},
			ModeNoisy:  {Jitter: DefaultNoisyNoise},
		},
		rng: rand.New(rand.NewPCG(seed, seed>>1)),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Next returns baseline plus bounded jitter for mode. Unknown modes use
// the normal profile.
func (s *Simulated) Next(mode Mode) int32 {
	p, ok := s.profiles[mode]
	if !ok {
		p = s.profiles[ModeNormal]
	}
	if p.Jitter == 0 {
		return s.baseline
	}

	v := int64(s.baseline) + int64(s.rng.Int32N(2*p.Jitter)) - int64(p.Jitter)

	return int32(max(math.MinInt32, min(v, math.MaxInt32)))
}

// Sequence returns a Source that replays temps in order and then repeats
// the last one. It ignores the mode.
func Sequence(temps ...int32) Source {
	i := 0
	return SourceFunc(func(Mode) int32 {
		if len(temps) == 0 {
			return DefaultBaseline
		}
		t := temps[min(i, len(temps)-1)]
		i++
		return t
	})
}
