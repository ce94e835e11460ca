package loop

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/lmittmann/tint"
	"github.com/lukjok/ampdedup/amp"
	"github.com/lukjok/ampdedup/communication"
	"github.com/lukjok/ampdedup/metrics"
	"github.com/lukjok/ampdedup/models"
	"github.com/lukjok/ampdedup/output"
	"github.com/lukjok/ampdedup/packet"
	"github.com/lukjok/ampdedup/selector"
	"github.com/lukjok/ampdedup/semaphore"
	"github.com/lukjok/ampdedup/stats"
	"github.com/lukjok/ampdedup/trace"
	"github.com/lukjok/ampdedup/util"
	"github.com/lukjok/ampdedup/watcher"
	"github.com/pkg/errors"
)

func NewLoop(opts Options, logger *slog.Logger, m *metrics.Metrics) *Loop {
	if opts.OutDir == "" {
		opts.OutDir = filepath.Join(opts.RunDir, stats.DedupDir)
	}
	if opts.Host == "" {
		opts.Host = "127.0.0.1"
	}
	if m == nil {
		m = metrics.New()
	}
	return &Loop{
		opts:    opts,
		logger:  logger,
		metrics: m,
		Output:  output.NewFilesystem(opts.OutDir),
	}
}

// Todo lists the inputs of the run to replay.
func (l *Loop) Todo() ([]selector.Candidate, error) {
	amps, err := selector.ScanAmps(filepath.Join(l.opts.RunDir, stats.AmpsDir), l.logger)
	if err != nil {
		return nil, err
	}
	queue, err := selector.ScanQueue(filepath.Join(l.opts.RunDir, stats.QueueDir), l.logger)
	if err != nil {
		return nil, err
	}

	logPath := filepath.Join(l.opts.RunDir, stats.RunLogFile)
	if util.FileExists(logPath) {
		summary, err := stats.ParseRunLog(logPath)
		if err != nil {
			l.logger.Warn("Ranking samples by file name factor", tint.Err(err))
		} else {
			pathAmps := make(map[string]amp.Amp, len(summary.Amps))
			for _, pa := range summary.Amps {
				if a, err := amp.New(pa.BytesIn, pa.BytesOut); err == nil {
					pathAmps[strings.ToLower(pa.Path)] = a
				}
			}
			selector.ResolveAmps(amps, pathAmps)
		}
	}
	return selector.Todo(amps, queue), nil
}

// Run replays every todo input once against the tracing build and returns
// the replay index. Inputs that fail to replay are recorded, not retried.
func (l *Loop) Run(ctx context.Context) ([]output.ReplayRecord, error) {
	if len(l.opts.Command) == 0 {
		return nil, errors.New("No target command configured")
	}
	todo, err := l.Todo()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(l.opts.OutDir, 0755); err != nil {
		return nil, errors.Errorf("Failed to create %s: %s", l.opts.OutDir, err)
	}
	l.metrics.Candidates.Add(float64(len(todo)))
	l.logger.Info("Replaying inputs", "count", len(todo), "out", l.opts.OutDir)

	previous, err := l.Output.LoadIndex()
	if err != nil {
		l.logger.Warn("Starting a new replay index", tint.Err(err))
	}
	known := make(map[string]output.ReplayRecord, len(previous))
	for _, r := range previous {
		known[r.ContentID] = r
	}

	records := make([]output.ReplayRecord, 0, len(todo))
	for idx, c := range todo {
		if err := ctx.Err(); err != nil {
			l.logger.Info("Received interrupt signal. Cleaning up...")
			if serr := l.Output.SaveIndex(records); serr != nil {
				return records, serr
			}
			return records, err
		}

		if !l.opts.Force && util.FileExists(filepath.Join(l.opts.OutDir, output.TraceFileName(c.ContentID))) {
			rec, ok := known[c.ContentID]
			if !ok {
				rec = l.newRecord(c)
				rec.Trace = output.TraceFileName(c.ContentID)
				rec.Result = models.Success.String()
			}
			records = append(records, rec)
			continue
		}

		rec, err := l.runIteration(ctx, c)
		kind := util.ConvertError(err)
		rec.Result = kind.String()
		l.metrics.ObserveReplay(kind)
		l.handleIterationErr(c, kind, err)
		l.logger.Debug("Replayed input", "n", idx+1, "of", len(todo), "file", c.File, "result", rec.Result)

		records = append(records, rec)
		if err := l.Output.SaveIndex(records); err != nil {
			return records, err
		}
	}
	return records, nil
}

func (l *Loop) newRecord(c selector.Candidate) output.ReplayRecord {
	rel, err := filepath.Rel(l.opts.RunDir, c.File)
	if err != nil {
		rel = c.File
	}
	return output.ReplayRecord{ContentID: c.ContentID, File: rel, PathID: c.PathID}
}

func (l *Loop) handleIterationErr(c selector.Candidate, kind models.AmpFuzzError, err error) {
	switch {
	case kind == models.Success:
	case kind.Skippable():
		l.logger.Warn("Replay incomplete", "file", c.File, "result", kind.String(), tint.Err(err))
	default:
		l.logger.Error("Replay failed", "file", c.File, tint.Err(err))
	}
}

func (l *Loop) runIteration(ctx context.Context, c selector.Candidate) (output.ReplayRecord, error) {
	rec := l.newRecord(c)
	trackFile := filepath.Join(l.opts.OutDir, output.RawTraceFileName(c.ContentID))
	if util.FileExists(trackFile) {
		l.logger.Warn("Removing old track file", "file", trackFile)
		if err := os.Remove(trackFile); err != nil {
			return rec, errors.Errorf("Failed to remove old track file: %s", err)
		}
	}

	spec := watcher.ProcessSpec{
		Command: l.opts.Command,
		Env: []string{
			TrackPathEnv + "=" + trackFile,
			EarlyTerminationEnv + "=None",
		},
		Dir:             l.opts.OutDir,
		StartupTimeout:  l.opts.StartupTimeout,
		ResponseTimeout: l.opts.ResponseTimeout,
		KillGrace:       l.opts.KillGrace,
	}

	var sem *semaphore.Semaphore
	if l.opts.ListenReady {
		var err error
		if sem, err = semaphore.New(l.opts.OutDir, semaphore.Name(c.File)); err != nil {
			return rec, err
		}
		defer sem.Close()
		spec.Env = append(spec.Env, sem.Env())
	}

	var (
		ex       *communication.Exchange
		notReady error
	)
	err := watcher.Run(ctx, spec, func(ctx context.Context, p *watcher.Process) error {
		if sem != nil {
			if err := sem.Wait(spec.StartupTimeout); err != nil {
				if p.Exited() {
					return errors.WithMessage(err, "Target exited before listening")
				}
				notReady = err
			}
		} else if err := watcher.Sleep(ctx, spec.StartupTimeout); err != nil {
			return err
		}

		var err error
		ex, err = communication.Probe(ctx, communication.Request{
			Host:        l.opts.Host,
			Port:        l.opts.Port,
			Payload:     c.Input,
			IdleTimeout: l.opts.ReceiveIdle,
			MaxWait:     spec.ResponseTimeout,
		})
		return err
	})
	if ex != nil {
		rec.Responses = len(ex.Responses)
		if a, aerr := ex.Amp(); aerr == nil {
			rec.Amp = &a
		}
		if l.opts.RecordPcap {
			name := "replay_" + c.ContentID + ".pcap"
			if perr := packet.RecordExchange(filepath.Join(l.opts.OutDir, name), ex); perr != nil {
				l.logger.Warn("Failed to record exchange", "file", c.File, tint.Err(perr))
			} else {
				rec.Capture = name
			}
		}
	}
	if err != nil {
		return rec, err
	}
	// The target may have missed the request, so its trace must not reach
	// fingerprint selection.
	if notReady != nil {
		stale := filepath.Join(l.opts.OutDir, output.TraceFileName(c.ContentID))
		if rerr := os.Remove(stale); rerr != nil && !os.IsNotExist(rerr) {
			l.logger.Warn("Failed to remove stale trace", "file", stale, tint.Err(rerr))
		}
		return rec, notReady
	}

	if !util.FileExists(trackFile) {
		return rec, errors.Wrapf(models.ErrNoTrace, "No track file for %s", c.File)
	}
	events, err := l.convertTrack(ctx, trackFile)
	if err != nil {
		return rec, err
	}
	if rec.Trace, err = l.Output.SaveTrace(c.ContentID, events); err != nil {
		return rec, err
	}
	return rec, nil
}

// convertTrack returns the JSON event list of a track file.
func (l *Loop) convertTrack(ctx context.Context, trackFile string) ([]byte, error) {
	var data []byte
	if l.opts.TrackParser != "" {
		var stdout bytes.Buffer
		cmd := exec.CommandContext(ctx, l.opts.TrackParser, trackFile)
		cmd.Stdout = &stdout
		if err := cmd.Run(); err != nil {
			return nil, errors.Errorf("Failed to parse track file %s: %s", trackFile, err)
		}
		data = stdout.Bytes()
		if len(bytes.TrimSpace(data)) == 0 {
			data = []byte("[]")
		}
	} else {
		var err error
		if data, err = os.ReadFile(trackFile); err != nil {
			return nil, errors.Errorf("Failed to read track file: %s", err)
		}
	}

	if _, err := trace.ParseEvents(bytes.NewReader(data)); err != nil {
		return nil, err
	}
	return data, nil
}
