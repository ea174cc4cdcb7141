package subcmd

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mengelbart/glpipe/cmdmain"
	"github.com/mengelbart/glpipe/config"
	"github.com/mengelbart/glpipe/flags"
	"github.com/mengelbart/glpipe/internal/logging"
)

func init() {
	cmdmain.RegisterSubCmd("run", func() cmdmain.SubCmd { return new(Run) })
}

type Run struct{}

// Help implements cmdmain.SubCmd.
func (r *Run) Help() string {
	return "Run a pipeline described in a YAML file"
}

// Exec implements cmdmain.SubCmd.
func (r *Run) Exec(cmd string, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)

	flags.RegisterInto(fs, []flags.FlagName{
		flags.ConfigFlag,
		flags.HTTPAddrFlag,
		flags.HTTPSAddrFlag,
		flags.CertFlag,
		flags.KeyFlag,
		flags.TraceFramesFlag,
	}...)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Run a pipeline described in a YAML file until interrupted

Usage:
	%s run [flags]

Flags given on the command line override the http section of the file.

Flags:
`, cmd)
		fs.PrintDefaults()
		fmt.Fprintln(os.Stderr)
	}
	fs.Parse(args)

	cfg, err := config.Load(flags.Config)
	if err != nil {
		return err
	}
	if cfg.Log.Format != "" || cfg.Log.Level != "" {
		format, err := logging.ParseFormat(cfg.Log.Format)
		if err != nil {
			return err
		}
		level, err := logging.ParseLevel(cfg.Log.Level)
		if err != nil {
			return err
		}
		logging.Configure(format, level, nil)
	}
	applyHTTPFlags(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := newPipeline(cfg, flags.TraceFrames)
	if err != nil {
		return err
	}
	defer p.Close()

	slog.Info("running pipeline", "config", flags.Config, "source", cfg.Source.Kind, "effects", cfg.Effects)
	return p.Run(ctx, false)
}

func applyHTTPFlags(cfg *config.Config) {
	if flags.HTTPAddr == "" {
		return
	}
	if cfg.HTTP == nil {
		cfg.HTTP = &config.HTTPConfig{}
	}
	cfg.HTTP.Address = flags.HTTPAddr
	if flags.Cert != "" {
		cfg.HTTP.CertFile = flags.Cert
		cfg.HTTP.KeyFile = flags.Key
		cfg.HTTP.TLSAddr = flags.HTTPSAddr
	}
}
