package stats

import (
	"log/slog"
	"math"

	"github.com/lukjok/ampdedup/amp"
	"github.com/lukjok/ampdedup/cache"
	"github.com/lukjok/ampdedup/config"
	"github.com/lukjok/ampdedup/metrics"
	"github.com/lukjok/ampdedup/selector"
)

const (
	RunLogFile = "angora.log"
	AmpsDir    = "amps"
	QueueDir   = "queue"
	DedupDir   = "dedup_results"
)

// CacheSources are the artifacts whose listing versions the cached tables.
var CacheSources = []string{AmpsDir, DedupDir, RunLogFile}

// PathAmp is one entry of the run log amps column.
type PathAmp struct {
	Path     string  `json:"path"`
	Factor   float64 `json:"factor"`
	BytesIn  []int   `json:"bytes_in"`
	BytesOut []int   `json:"bytes_out"`
}

// RunSummary is the final state of a campaign run as logged by the fuzzer.
type RunSummary struct {
	Execs     int               `json:"execs"`
	Inputs    int               `json:"inputs"`
	AmpInputs int               `json:"amp_inputs"`
	Paths     int               `json:"paths"`
	AmpPaths  int               `json:"amp_paths"`
	Amps      []PathAmp         `json:"amps"`
	Columns   map[string]string `json:"columns,omitempty"`
}

// PathIndex maps content identities to the path identities they were stored
// under, and path identities to their sample files in the amps directory.
type PathIndex struct {
	Content map[string][]string `json:"content"`
	Files   map[string][]string `json:"files"`
}

// AmpStats holds the derived tables of one run directory.
type AmpStats struct {
	dir      string
	store    *cache.Store
	logger   *slog.Logger
	summary  RunSummary
	pathAmps map[string]amp.Amp
	index    PathIndex
	table    *selector.Table
}

type Options struct {
	Cache   cache.Options
	Jobs    int
	Metrics *metrics.Metrics
}

// Factor is a BAF that encodes infinity as the string "Infinity".
type Factor float64

func (f Factor) MarshalJSON() ([]byte, error) {
	if math.IsInf(float64(f), 1) {
		return []byte(`"Infinity"`), nil
	}
	return json.Marshal(float64(f))
}

// Result summarizes one campaign run. Counts derived from the run log are nil
// when no usable log exists.
type Result struct {
	Dir         string         `json:"dir"`
	Package     string         `json:"package"`
	Program     string         `json:"program"`
	Port        int            `json:"port"`
	Timeout     float64        `json:"timeout"`
	Args        config.RunArgs `json:"args"`
	NExecs      *int           `json:"n_execs,omitempty"`
	NInputs     *int           `json:"n_inputs,omitempty"`
	NRespInputs *int           `json:"n_resp_inputs,omitempty"`
	NPaths      *int           `json:"n_paths,omitempty"`
	NRespPaths  *int           `json:"n_resp_paths,omitempty"`
	NMsgTypes   *int           `json:"n_msg_types"`
	NAmpTypes   *int           `json:"n_amp_types"`
	MaxAmpL2    *Factor        `json:"max_amp_l2"`
	MaxAmpL7    *Factor        `json:"max_amp_l7"`
	Error       string         `json:"error,omitempty"`
}
