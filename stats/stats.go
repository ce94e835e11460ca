package stats

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/lmittmann/tint"
	"github.com/lukjok/ampdedup/amp"
	"github.com/lukjok/ampdedup/cache"
	"github.com/lukjok/ampdedup/config"
	"github.com/lukjok/ampdedup/models"
	"github.com/lukjok/ampdedup/selector"
	"github.com/lukjok/ampdedup/trace"
	"github.com/lukjok/ampdedup/util"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

var traceFileRe = regexp.MustCompile(`^track_([0-9a-fA-F]{32})\.json$`)

// TraceContentID extracts the content identity from a track_<md5>.json name.
func TraceContentID(name string) (string, error) {
	m := traceFileRe.FindStringSubmatch(filepath.Base(name))
	if m == nil {
		return "", errors.Wrapf(models.ErrMalformedArtifact, "Trace file %q does not name a content identity", name)
	}
	return strings.ToLower(m[1]), nil
}

// NewAmpStats loads the tables of dir from its cache, recomputing every table
// whose cached version is missing or stale.
func NewAmpStats(dir string, opts cache.Options, logger *slog.Logger) (*AmpStats, error) {
	store, err := cache.NewStore(dir, CacheSources, opts, logger)
	if err != nil {
		return nil, err
	}
	s := &AmpStats{
		dir:    dir,
		store:  store,
		logger: logger.With("dir", dir),
	}
	if err := s.loadSummary(); err != nil {
		return nil, err
	}
	if err := s.loadIndex(); err != nil {
		return nil, err
	}
	if err := s.loadTable(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *AmpStats) loadSummary() error {
	ok, err := s.store.Load(cache.PathAmpsFile, &s.summary)
	if err != nil {
		return err
	}
	if !ok {
		if s.summary, err = ParseRunLog(filepath.Join(s.dir, RunLogFile)); err != nil {
			return err
		}
		if err := s.store.Save(cache.PathAmpsFile, s.summary); err != nil {
			return err
		}
	}

	s.pathAmps = make(map[string]amp.Amp, len(s.summary.Amps))
	for _, pa := range s.summary.Amps {
		a, err := amp.New(pa.BytesIn, pa.BytesOut)
		if err != nil {
			s.logger.Warn("Skipping path amplification", "path", pa.Path, tint.Err(err))
			continue
		}
		s.pathAmps[strings.ToLower(pa.Path)] = a
	}
	return nil
}

func (s *AmpStats) loadIndex() error {
	ok, err := s.store.Load(cache.PathHashesFile, &s.index)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	files, err := selector.ListAmpFiles(filepath.Join(s.dir, AmpsDir))
	if err != nil {
		return err
	}
	s.index = PathIndex{
		Content: make(map[string][]string),
		Files:   make(map[string][]string),
	}
	for _, f := range files {
		name, err := selector.ParseArtifactName(f)
		if err != nil {
			s.logger.Warn("Skipping artifact", "file", f, tint.Err(err))
			continue
		}
		s.index.Content[name.ContentID] = append(s.index.Content[name.ContentID], name.PathID)
		s.index.Files[name.PathID] = append(s.index.Files[name.PathID], filepath.Base(f))
	}
	return s.store.Save(cache.PathHashesFile, s.index)
}

func (s *AmpStats) loadTable() error {
	s.table = selector.NewTable()
	ok, err := s.store.Load(cache.MaxAmpsFile, s.table)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	s.table = selector.NewTable()

	traces, err := filepath.Glob(filepath.Join(s.dir, DedupDir, "track_*.json"))
	if err != nil {
		return errors.Errorf("Failed to list traces: %s", err)
	}
	sort.Strings(traces)

	for _, tf := range traces {
		id, err := TraceContentID(tf)
		if err != nil {
			continue
		}
		if s.table.Processed(id) {
			continue
		}
		s.table.MarkProcessed(id)

		fp, err := trace.LoadFile(tf)
		if err != nil {
			s.logger.Warn("Skipping trace", "file", tf, tint.Err(err))
			continue
		}
		a, path, ok := selector.MaxPathAmp(s.index.Content[id], s.pathAmps)
		if !ok {
			continue
		}
		if _, err := s.table.Offer(fp, a, path); err != nil {
			s.logger.Warn("Skipping trace", "file", tf, tint.Err(err))
		}
	}

	for _, b := range s.table.Entries() {
		files := make([]string, len(s.index.Files[b.PathID]))
		for i, f := range s.index.Files[b.PathID] {
			files[i] = filepath.Join(s.dir, AmpsDir, f)
		}
		if b.Input, err = selector.LoadRepresentative(files, b.Amp); err != nil {
			return err
		}
		if b.Input == nil {
			s.logger.Warn("No sample matches the path amplification", "path", b.PathID)
		}
	}
	return s.store.Save(cache.MaxAmpsFile, s.table)
}

func (s *AmpStats) Dir() string {
	return s.dir
}

func (s *AmpStats) Summary() RunSummary {
	return s.summary
}

func (s *AmpStats) Table() *selector.Table {
	return s.table
}

// NExecs is the number of target executions.
func (s *AmpStats) NExecs() int {
	return s.summary.Execs
}

// NInputs counts inputs that found new coverage or a better amplification.
func (s *AmpStats) NInputs() int {
	return s.summary.Inputs + s.summary.AmpInputs
}

// NRespInputs counts inputs that found a better amplification.
func (s *AmpStats) NRespInputs() int {
	return s.summary.AmpInputs
}

func (s *AmpStats) NPaths() int {
	return s.summary.Paths
}

func (s *AmpStats) NRespPaths() int {
	return s.summary.AmpPaths
}

// NMsgTypes counts unique response paths.
func (s *AmpStats) NMsgTypes() int {
	return s.table.Len()
}

// NAmpTypes counts unique response paths that amplify at L2.
func (s *AmpStats) NAmpTypes() int {
	return s.table.Amplifying()
}

func (s *AmpStats) MaxAmp() (*selector.Best, bool) {
	return s.table.Max()
}

// Analyze summarizes every run directory below root, that is every directory
// holding a fuzz.cfg. Results follow the walk order of root.
func Analyze(ctx context.Context, root string, opts Options, logger *slog.Logger) ([]Result, error) {
	dirs, err := util.FindDirsWithFile(root, config.RunConfigFile)
	if err != nil {
		return nil, err
	}
	jobs := opts.Jobs
	if jobs < 1 {
		jobs = 1
	}

	results := make([]Result, len(dirs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for i, d := range dirs {
		i, d := i, d
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			logger.Info("Checking run", "dir", d)
			res, err := AnalyzeDir(d, opts.Cache, logger)
			if opts.Metrics != nil {
				opts.Metrics.ObserveRun(util.ConvertError(err))
				if res.NMsgTypes != nil {
					opts.Metrics.Fingerprints.Set(float64(*res.NMsgTypes))
				}
			}
			if err != nil {
				logger.Warn("Run analysis incomplete", "dir", d, tint.Err(err))
				res.Error = err.Error()
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// AnalyzeDir summarizes one run directory. The returned Result is usable even
// when err is set.
func AnalyzeDir(dir string, opts cache.Options, logger *slog.Logger) (Result, error) {
	res := Result{Dir: dir}
	rc, err := config.LoadRunConfig(filepath.Join(dir, config.RunConfigFile))
	if err != nil {
		return res, err
	}
	res.Package = rc.Package
	res.Program = rc.Program
	res.Port = rc.Port
	res.Timeout = rc.Timeout
	res.Args = rc.Args

	if _, err := os.Stat(filepath.Join(dir, RunLogFile)); os.IsNotExist(err) {
		return res, nil
	}
	a, err := NewAmpStats(dir, opts, logger)
	if err != nil {
		return res, err
	}

	intp := func(n int) *int { return &n }
	res.NExecs = intp(a.NExecs())
	res.NInputs = intp(a.NInputs())
	res.NRespInputs = intp(a.NRespInputs())
	res.NPaths = intp(a.NPaths())
	res.NRespPaths = intp(a.NRespPaths())
	res.NMsgTypes = intp(a.NMsgTypes())
	res.NAmpTypes = intp(a.NAmpTypes())
	if best, ok := a.MaxAmp(); ok {
		l2 := Factor(best.Amp.Factor(amp.L2))
		l7 := Factor(best.Amp.Factor(amp.L7))
		res.MaxAmpL2, res.MaxAmpL7 = &l2, &l7
	}
	return res, nil
}
