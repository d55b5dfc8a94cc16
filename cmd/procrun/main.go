// File: cmd/procrun/main.go
// Author: momentics <momentics@gmail.com>

// Command procrun runs one command under the hioload-exec supervisor.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/momentics/hioload-exec/api"
	"github.com/momentics/hioload-exec/control"
	"github.com/momentics/hioload-exec/fdio"
	"github.com/momentics/hioload-exec/internal/config"
	"github.com/momentics/hioload-exec/internal/logging"
	"github.com/momentics/hioload-exec/internal/report"
	"github.com/momentics/hioload-exec/process"
	"github.com/momentics/hioload-exec/readers"
	"github.com/momentics/hioload-exec/runner"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/sys/unix"
)

var version = "dev"

func main() {
	code := exitOK
	cmd := newRootCmd(viper.New(), os.Stdout, &code)
	if err := cmd.Execute(); err != nil {
		if code == exitOK {
			code = exitError
		}
	}
	os.Exit(code)
}

func newRootCmd(v *viper.Viper, stdout io.Writer, code *int) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "procrun",
		Short: "Run a command with captured output and a bounded reap",
		Long: `procrun launches a command over pipes, drives its stdout, stderr and
optional stdin through a poll reactor, and reaps it with a deadline that
escalates to SIGKILL. Its exit status is 0 on success, 1 when the command
exited non-zero and 2 on any other failure.`,
		SilenceUsage: true,
	}
	rootCmd.SetOut(stdout)

	rootCmd.PersistentFlags().String(FlagConfig, "", "TOML config file (env PROCRUN_CONFIG)")
	rootCmd.PersistentFlags().String(FlagLogLevel, "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String(FlagLogFile, "", "Rotating log file instead of stderr")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "procrun %s\n", version)
		},
	}

	runCmd := &cobra.Command{
		Use:   "run [flags] -- command [args...]",
		Short: "Run a command under supervision",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(v)
			if err != nil {
				*code = exitError
				return err
			}
			*code, err = runCommand(cmd.Context(), cfg, v.GetString(FlagInput), args, cmd.OutOrStdout())
			return err
		},
	}
	runCmd.Flags().String(FlagInput, "", `File streamed to the command's stdin ("-" for our stdin)`)
	runCmd.Flags().String(FlagCapture, config.CaptureStdio, "Output capture: stdio, memory, file or null")
	runCmd.Flags().String(FlagOutFile, "", "Destination of stdout for --capture file")
	runCmd.Flags().String(FlagDir, "", "Working directory of the command")
	runCmd.Flags().Int(FlagCPU, -1, "Pin the supervisor and command to this CPU (-1 = no pinning)")
	runCmd.Flags().Int(FlagPollTimeout, -1, "Reactor wait in milliseconds (-1 waits forever)")
	runCmd.Flags().Int(FlagIdleLimit, 0, "Abort after this many consecutive idle waits (0 = never)")
	runCmd.Flags().Duration(FlagReapTimeout, process.DefaultReapTimeout, "Reap deadline before SIGKILL")
	runCmd.Flags().Int(FlagStdinWrite, int(runner.DefaultStdinWriteTimeout/time.Millisecond), "Milliseconds forwarded stdin may stall before the child is terminated")
	runCmd.Flags().String(FlagReport, "", "Append a TOML run record to this file")
	runCmd.Flags().String(FlagMetricsFile, "", "Write Prometheus metrics to this textfile")

	bind := func(f *pflag.Flag) {
		if key, ok := flagKeys[f.Name]; ok {
			_ = v.BindPFlag(key, f)
		}
	}
	rootCmd.PersistentFlags().VisitAll(bind)
	runCmd.Flags().VisitAll(bind)
	_ = v.BindPFlag(FlagInput, runCmd.Flags().Lookup(FlagInput))

	rootCmd.AddCommand(versionCmd, runCmd)
	return rootCmd
}

// runCommand supervises argv and maps the result to an exit status.
func runCommand(ctx context.Context, cfg *config.Config, input string, argv []string, stdout io.Writer) (int, error) {
	logRes, err := logging.Setup("procrun", cfg.Log, os.Stderr)
	if err != nil {
		return exitError, err
	}
	defer func() { _ = logRes.Close() }()
	log := logRes.Logger

	rp, closeReaders, err := buildReaders(cfg, stdout)
	if err != nil {
		return exitError, err
	}
	defer closeReaders()

	metrics := control.NewMetrics()
	probes := control.NewDebugProbes()
	opts := []runner.Option{
		runner.WithLogger(log),
		runner.WithMetrics(metrics),
		runner.WithProbes(probes),
		runner.WithReapTimeout(cfg.ReapTimeout),
		runner.WithStdinWriteTimeout(time.Duration(cfg.StdinWriteTimeoutMs) * time.Millisecond),
		runner.WithCPU(cfg.CPU),
	}
	if cfg.Dir != "" {
		opts = append(opts, runner.WithProcessOptions(process.WithDir(cfg.Dir)))
	}
	r := runner.New(rp, opts...)

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, unix.SIGINT, unix.SIGTERM)
	defer stop()

	var ok bool
	if input != "" {
		in, oerr := openInput(input)
		if oerr != nil {
			return exitError, oerr
		}
		defer func() { _ = in.Close() }()
		ok, err = r.RunWithInput(ctx, argv, in)
	} else {
		ok, err = r.Run(ctx, argv)
	}

	captured := rp
	if idle, isIdle := rp.(*readers.Idle); isIdle {
		captured = idle.ReaderPair
	}
	if s, isStreams := captured.(*readers.Streams); isStreams {
		_, _ = stdout.Write(s.Stdout())
		_, _ = os.Stderr.Write(s.Stderr())
	}
	log.Debug().Interface("state", probes.DumpState()).Msg("runner state")

	err = errors.Join(err, persist(cfg, r.LastRun(), metrics, log))
	return exitCode(ok, err), err
}

func buildReaders(cfg *config.Config, stdout io.Writer) (api.ReaderPair, func(), error) {
	var rp api.ReaderPair
	closer := func() {}
	switch cfg.Capture {
	case config.CaptureMemory:
		rp = readers.NewStreams()
	case config.CaptureFile:
		f, err := readers.NewFileOut(cfg.OutFile)
		if err != nil {
			return nil, nil, err
		}
		rp, closer = f, func() { _ = f.Close() }
	case config.CaptureNull:
		rp = &readers.Null{}
	default:
		rp = &readers.Stdio{Out: stdout, Err: os.Stderr}
	}
	if cfg.PollTimeoutMs >= 0 {
		rp = readers.NewIdle(rp, cfg.PollTimeoutMs, cfg.IdleLimit)
	}
	return rp, closer, nil
}

func openInput(path string) (*fdio.AutoFd, error) {
	if path == "-" {
		return fdio.Dup(int(os.Stdin.Fd()))
	}
	return fdio.Open(path, unix.O_RDONLY, 0)
}

func persist(cfg *config.Config, run report.Run, metrics *control.Metrics, log zerolog.Logger) error {
	var err error
	if cfg.ReportPath != "" {
		if rerr := report.Append(cfg.ReportPath, run); rerr != nil {
			err = errors.Join(err, rerr)
		} else {
			log.Debug().Str("path", cfg.ReportPath).Msg("run report appended")
		}
	}
	if cfg.MetricsFile != "" {
		err = errors.Join(err, metrics.WriteTextfile(cfg.MetricsFile))
	}
	return err
}

func exitCode(ok bool, err error) int {
	switch {
	case err != nil:
		return exitError
	case ok:
		return exitOK
	default:
		return exitFailure
	}
}
