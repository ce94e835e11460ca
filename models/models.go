package models

import (
	"github.com/pkg/errors"
)

type AmpFuzzError int

const (
	Success AmpFuzzError = iota
	MalformedArtifact
	NotReady
	NoTrace
	DegenerateAmp
	NetworkError
	UnknownError
)

var (
	ErrMalformedArtifact = errors.New("malformed artifact")
	ErrNotReady          = errors.New("target did not signal readiness")
	ErrNoTrace           = errors.New("replay produced no trace file")
	ErrDegenerateAmp     = errors.New("degenerate amplification sample")
)

func (e AmpFuzzError) String() string {
	switch e {
	case Success:
		return "ok"
	case MalformedArtifact:
		return "malformed"
	case NotReady:
		return "not_ready"
	case NoTrace:
		return "no_trace"
	case DegenerateAmp:
		return "degenerate"
	case NetworkError:
		return "network"
	default:
		return "unknown"
	}
}

// Skippable reports whether an error of this kind only excludes the current
// artifact from the run.
func (e AmpFuzzError) Skippable() bool {
	return e != UnknownError
}
