package loop

import (
	"context"
	"log/slog"
	"time"

	"github.com/lukjok/ampdedup/metrics"
	"github.com/lukjok/ampdedup/output"
)

const (
	TrackPathEnv        = "ANGORA_TRACK_PATH"
	EarlyTerminationEnv = "ANGORA_EARLY_TERMINATION"
)

// Options describe a dedup replay of one campaign run.
type Options struct {
	// RunDir holds the amps/ and queue/ directories of the run.
	RunDir string
	// OutDir receives traces and the replay index. Defaults to
	// RunDir/dedup_results.
	OutDir string
	// Command is the tracing build of the target and its arguments.
	Command         []string
	Host            string
	Port            int
	StartupTimeout  time.Duration
	ResponseTimeout time.Duration
	ReceiveIdle     time.Duration
	KillGrace       time.Duration
	ListenReady     bool
	// TrackParser converts a raw track file into the JSON event list. Without
	// it the track file has to be JSON already.
	TrackParser string
	RecordPcap  bool
	// Force replays inputs that already have a trace.
	Force bool
}

type LoopManager interface {
	Run(ctx context.Context) ([]output.ReplayRecord, error)
}

var _ LoopManager = (*Loop)(nil)

type Loop struct {
	opts    Options
	logger  *slog.Logger
	metrics *metrics.Metrics
	Output  output.OutputManager
}
