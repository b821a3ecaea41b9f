package sensor

import (
	"fmt"
	"strings"

	"codeberg.org/mutker/simtempd/internal/errors"
)

// Source synthesizes one temperature reading in milli-degrees Celsius for
// the given mode. Implementations need not be safe for concurrent use; the
// device calls Next from its producer only.
type Source interface {
	Next(mode Mode) int32
}

// SourceFunc adapts a function to Source.
type SourceFunc func(mode Mode) int32

func (f SourceFunc) Next(mode Mode) int32 {
	return f(mode)
}

// Mode selects the simulation profile.
type Mode int

const (
	ModeNormal Mode = iota
	ModeNoisy
)

var modeNames = map[Mode]string{
	ModeNormal: "normal",
	ModeNoisy:  "noisy",
}

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	_, ok := modeNames[m]
	return ok
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}

	return fmt.Sprintf("unknown(%d)", int(m))
}

// ParseMode accepts "normal" or "noisy". Surrounding whitespace, including
// the trailing newline of an attribute-style write, is ignored.
func ParseMode(s string) (Mode, error) {
	name := strings.TrimSpace(s)
	for m, n := range modeNames {
		if n == name {
			return m, nil
		}
	}

	return ModeNormal, errors.New().WithData(ErrUnknownMode, name)
}

// Modes lists the known mode names in a stable order.
func Modes() []string {
	return []string{ModeNormal.String(), ModeNoisy.String()}
}
