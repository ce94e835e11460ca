package selector

import (
	"github.com/lukjok/ampdedup/amp"
	"github.com/lukjok/ampdedup/trace"
)

const (
	AmpFilePrefix   = "amp_"
	QueueFilePrefix = "id:"
)

// ArtifactName is the metadata encoded in an amplification sample file name.
type ArtifactName struct {
	Factor    float64
	PathID    string
	ContentID string
}

// Candidate is one on-disk input that may represent its path.
type Candidate struct {
	File      string
	PathID    string
	ContentID string
	// Factor is the fuzzer-reported L2 factor from the file name. It only orders
	// candidates whose Amp could not be resolved.
	Factor float64
	Amp    *amp.Amp
	Input  []byte
}

// Best is the kept representative of one trace fingerprint.
type Best struct {
	Fingerprint trace.Fingerprint
	Amp         amp.Amp
	PathID      string
	Input       []byte
}

type jsonBest struct {
	Trace trace.Fingerprint `json:"trace"`
	Amp   amp.Amp           `json:"amp"`
	Path  string            `json:"path"`
	Input string            `json:"input"`
}
