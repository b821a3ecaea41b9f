package sensor

import (
	"math"
	"testing"

	"codeberg.org/mutker/simtempd/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"normal", ModeNormal, false},
		{"noisy", ModeNoisy, false},
		{"noisy\n", ModeNoisy, false},
		{"  normal ", ModeNormal, false},
		{"Noisy", ModeNormal, true},
		{"loud", ModeNormal, true},
		{"", ModeNormal, true},
	}

	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if tt.wantErr {
			require.Error(t, err, tt.in)
			assert.True(t, errors.HasCode(err, errors.ErrInvalidArgument), tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestModeValid(t *testing.T) {
	assert.True(t, ModeNormal.Valid())
	assert.True(t, ModeNoisy.Valid())
	assert.False(t, Mode(7).Valid())
	assert.False(t, Mode(-1).Valid())
	assert.Equal(t, "unknown(7)", Mode(7).String())
	assert.Equal(t, []string{"normal", "noisy"}, Modes())
}

func TestSimulatedStaysWithinProfile(t *testing.T) {
	s, err := NewSimulated(WithSeed(1))
	require.NoError(t, err)

	for i := 0; i < 10000; i++ {
		v := s.Next(ModeNormal)
		assert.GreaterOrEqual(t, v, DefaultBaseline-DefaultNormalNoise)
		assert.Less(t, v, DefaultBaseline+DefaultNormalNoise)

		v = s.Next(ModeNoisy)
		assert.GreaterOrEqual(t, v, DefaultBaseline-DefaultNoisyNoise)
		assert.Less(t, v, DefaultBaseline+DefaultNoisyNoise)
	}
}

func TestSimulatedSeedIsReproducible(t *testing.T) {
	a, err := NewSimulated(WithSeed(42))
	require.NoError(t, err)
	b, err := NewSimulated(WithSeed(42))
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		assert.Equal(t, a.Next(ModeNoisy), b.Next(ModeNoisy))
	}
}

func TestSimulatedInstancesAreIndependent(t *testing.T) {
	a, err := NewSimulated(WithSeed(3), WithBaseline(10000), WithProfile(ModeNormal, Profile{Jitter: 0}))
	require.NoError(t, err)
	b, err := NewSimulated(WithSeed(3), WithProfile(ModeNormal, Profile{Jitter: 0}))
	require.NoError(t, err)

	assert.Equal(t, int32(10000), a.Next(ModeNormal))
	assert.Equal(t, DefaultBaseline, b.Next(ModeNormal))
}

func TestWithProfileRejectsInvalid(t *testing.T) {
	_, err := NewSimulated(WithProfile(Mode(9), Profile{Jitter: 1}))
	assert.True(t, errors.HasCode(err, ErrInvalidProfile))

	_, err = NewSimulated(WithProfile(ModeNormal, Profile{Jitter: -1}))
	assert.True(t, errors.HasCode(err, ErrInvalidProfile))

	_, err = NewSimulated(WithProfile(ModeNoisy, Profile{Jitter: MaxJitter + 1}))
	assert.True(t, errors.HasCode(err, ErrInvalidProfile))
}

func TestMaxJitterDoesNotOverflow(t *testing.T) {
	s, err := NewSimulated(
		WithBaseline(math.MaxInt32-10),
		WithProfile(ModeNoisy, Profile{Jitter: MaxJitter}),
		WithSeed(7),
	)
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		for i := 0; i < 1000; i++ {
			v := s.Next(ModeNoisy)
			assert.GreaterOrEqual(t, v, math.MaxInt32-10-MaxJitter)
		}
	})
}

func TestSequence(t *testing.T) {
	src := Sequence(46000, 44000)
	assert.Equal(t, int32(46000), src.Next(ModeNormal))
	assert.Equal(t, int32(44000), src.Next(ModeNoisy))
	assert.Equal(t, int32(44000), src.Next(ModeNormal))
}

func TestHistory(t *testing.T) {
	h := NewHistory(3)
	assert.Equal(t, int32(0), h.Average())
	assert.Equal(t, int32(10), h.Add(10))
	assert.Equal(t, int32(15), h.Add(20))
	assert.Equal(t, int32(20), h.Add(30))
	assert.Equal(t, int32(30), h.Add(40)) // 20,30,40
}
