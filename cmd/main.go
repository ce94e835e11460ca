package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/lukjok/ampdedup/amp"
	"github.com/lukjok/ampdedup/cache"
	"github.com/lukjok/ampdedup/config"
	"github.com/lukjok/ampdedup/coverage"
	"github.com/lukjok/ampdedup/loop"
	"github.com/lukjok/ampdedup/metrics"
	"github.com/lukjok/ampdedup/output"
	"github.com/lukjok/ampdedup/packet"
	"github.com/lukjok/ampdedup/stats"
	"github.com/lukjok/ampdedup/trace"
	"github.com/lukjok/ampdedup/util"
	"github.com/pkg/errors"
	"github.com/pterm/pterm"
	"github.com/urfave/cli/v2"
)

type app struct {
	conf    config.Configuration
	logger  *slog.Logger
	closer  io.Closer
	metrics *metrics.Metrics
}

func (a *app) before(c *cli.Context) error {
	a.conf = config.Default()
	if cfgPath := c.String("cfg"); len(cfgPath) != 0 {
		conf, err := config.ParseConfigurationFile(cfgPath)
		if err != nil {
			return err
		}
		a.conf = conf
	}
	if c.IsSet("log-level") {
		a.conf.LogLevel = c.String("log-level")
	}
	if c.IsSet("log-file") {
		a.conf.LogFile = c.String("log-file")
	}
	if c.IsSet("metrics-file") {
		a.conf.MetricsFile = c.String("metrics-file")
	}

	logger, closer, err := util.NewLogger(a.conf.LogLevel, a.conf.LogFile)
	if err != nil {
		return err
	}
	a.logger, a.closer = logger, closer
	a.metrics = metrics.New()
	return nil
}

func (a *app) after(c *cli.Context) error {
	if a.metrics != nil && a.conf.MetricsFile != "" {
		if err := a.metrics.WriteTextfile(a.conf.MetricsFile); err != nil {
			a.logger.Warn("Failed to export metrics", tint.Err(err))
		}
	}
	if a.closer != nil {
		return a.closer.Close()
	}
	return nil
}

func (a *app) cacheOptions(c *cli.Context) cache.Options {
	return cache.Options{
		Force:      a.conf.ForceRefresh || c.Bool("force"),
		TrustStale: a.conf.TrustStaleCache || c.Bool("trust-stale"),
	}
}

func (a *app) analyze(c *cli.Context) error {
	root := c.Args().First()
	if root == "" {
		root = "results"
	}
	jobs := a.conf.Jobs
	if c.IsSet("jobs") {
		jobs = c.Int("jobs")
	}

	results, err := stats.Analyze(c.Context, root, stats.Options{
		Cache:   a.cacheOptions(c),
		Jobs:    jobs,
		Metrics: a.metrics,
	}, a.logger)
	if err != nil {
		return err
	}
	var out output.OutputManager = output.NewFilesystem(root)
	if err := out.SaveResults(results); err != nil {
		return err
	}
	if err := output.RenderResults(os.Stdout, results); err != nil {
		return err
	}
	pterm.Success.Printfln("Analyzed %d runs, results in %s", len(results), filepath.Join(root, output.ResultsFileName))
	return nil
}

func (a *app) dedup(c *cli.Context) error {
	runDir := c.Args().First()
	if runDir == "" {
		return errors.New("Run directory was not given")
	}

	opts := loop.Options{
		RunDir:          runDir,
		OutDir:          c.String("out"),
		Command:         a.conf.Program,
		Host:            a.conf.Host,
		Port:            a.conf.Port,
		StartupTimeout:  a.conf.StartupTimeout.Duration,
		ResponseTimeout: a.conf.ResponseTimeout.Duration,
		ReceiveIdle:     a.conf.ReceiveIdle.Duration,
		KillGrace:       a.conf.KillGrace.Duration,
		ListenReady:     a.conf.ListenReady,
		TrackParser:     a.conf.TrackParser,
		RecordPcap:      a.conf.RecordPcap || c.Bool("pcap"),
		Force:           c.Bool("force"),
	}

	cfgPath := filepath.Join(runDir, config.RunConfigFile)
	if len(opts.Command) == 0 && util.FileExists(cfgPath) {
		rc, err := config.LoadRunConfig(cfgPath)
		if err != nil {
			return err
		}
		opts.Command = []string{rc.TrackProgram()}
		opts.Port = rc.Port
		if rc.Args.DisableListenReady {
			opts.ListenReady = false
		}
	}
	if c.IsSet("port") {
		opts.Port = c.Int("port")
	}

	var runner loop.LoopManager = loop.NewLoop(opts, a.logger, a.metrics)
	records, err := runner.Run(c.Context)
	if err != nil {
		return err
	}
	if err := output.RenderReplays(os.Stdout, records); err != nil {
		return err
	}
	pterm.Success.Printfln("Replayed %d inputs", len(records))
	return nil
}

func (a *app) merge(c *cli.Context) error {
	if c.Args().Len() < 1 {
		return errors.New("Base coverage file was not given")
	}
	args := c.Args().Slice()
	m, err := coverage.MergeFiles(args[0], args[1:]...)
	if err != nil {
		return err
	}
	a.logger.Info("Merged coverage", "file", args[0], "targets", len(m.Targets), "edges", len(m.Edges))
	return nil
}

func (a *app) fingerprint(c *cli.Context) error {
	for _, f := range c.Args().Slice() {
		fp, err := trace.LoadFile(f)
		if err != nil {
			return err
		}
		fmt.Printf("%s\t%s\t%d threads\n", fp, f, len(fp.Threads()))
		if c.Bool("key") {
			fmt.Println(fp.Key())
		}
	}
	return nil
}

func (a *app) pcapAmp(c *cli.Context) error {
	f := c.Args().First()
	if f == "" {
		return errors.New("Capture file was not given")
	}
	port := a.conf.Port
	if c.IsSet("port") {
		port = c.Int("port")
	}
	sample, err := packet.AmpFromPcap(f, port)
	if err != nil {
		return err
	}
	data := pterm.TableData{{"Layer", "Request", "Response", "BAF"}}
	for _, l := range amp.Layers {
		baf := "inf"
		if v, err := sample.BAF(l); err == nil {
			baf = fmt.Sprintf("%.3f", v)
		}
		data = append(data, []string{
			fmt.Sprintf("L%d", l),
			fmt.Sprint(sample.In().Size(l)),
			fmt.Sprint(sample.Out().Size(l)),
			baf,
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func main() {
	a := &app{}
	forceFlag := func(usage string) cli.Flag {
		return &cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: usage}
	}
	portFlag := func() cli.Flag {
		return &cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "UDP port of the target"}
	}

	cliApp := &cli.App{
		Name:      "ampdedup",
		Version:   "0.1",
		Compiled:  time.Now(),
		Usage:     "deduplicates and ranks amplification fuzzing results",
		UsageText: "ampdedup [options] command [arguments]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "cfg",
				Aliases: []string{"c"},
				Usage:   "Path to the configuration file",
			},
			&cli.StringFlag{Name: "log-level", Value: "info", Usage: "debug, info, warn or error"},
			&cli.StringFlag{Name: "log-file", Usage: "Append logs to this file instead of stderr"},
			&cli.StringFlag{Name: "metrics-file", Usage: "Write metrics in the textfile format"},
		},
		Before: a.before,
		After:  a.after,
		Commands: []*cli.Command{
			{
				Name:      "analyze",
				Usage:     "Summarize every run below a result directory",
				ArgsUsage: "[dir]",
				Flags: []cli.Flag{
					forceFlag("Recompute every cached table"),
					&cli.BoolFlag{Name: "trust-stale", Usage: "Load cached tables without checking them"},
					&cli.IntFlag{Name: "jobs", Aliases: []string{"j"}, Usage: "Runs analyzed in parallel"},
				},
				Action: a.analyze,
			},
			{
				Name:      "dedup",
				Usage:     "Replay the inputs of a run against the tracing build",
				ArgsUsage: "<run dir>",
				Flags: []cli.Flag{
					forceFlag("Replay inputs that already have a trace"),
					portFlag(),
					&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Output directory for traces"},
					&cli.BoolFlag{Name: "pcap", Usage: "Record every exchange as pcap"},
				},
				Action: a.dedup,
			},
			{
				Name:      "merge",
				Usage:     "Merge coverage maps into the first one",
				ArgsUsage: "<base> [other...]",
				Action:    a.merge,
			},
			{
				Name:      "fingerprint",
				Usage:     "Print the canonical fingerprint of trace files",
				ArgsUsage: "<trace.json...>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "key", Usage: "Also print the full fingerprint"},
				},
				Action: a.fingerprint,
			},
			{
				Name:      "pcap-amp",
				Usage:     "Compute the amplification of a capture",
				ArgsUsage: "<file.pcap>",
				Flags:     []cli.Flag{portFlag()},
				Action:    a.pcapAmp,
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cliApp.RunContext(ctx, os.Args); err != nil {
		pterm.Error.Println(err)
		stop()
		os.Exit(1)
	}
}
