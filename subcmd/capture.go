package subcmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/mengelbart/glpipe/cmdmain"
	"github.com/mengelbart/glpipe/config"
	"github.com/mengelbart/glpipe/flags"
)

func init() {
	cmdmain.RegisterSubCmd("capture", func() cmdmain.SubCmd { return new(Capture) })
}

type Capture struct{}

// Help implements cmdmain.SubCmd.
func (c *Capture) Help() string {
	return "Capture frames from an image or GStreamer source through a chain of effects"
}

// Exec implements cmdmain.SubCmd.
func (c *Capture) Exec(cmd string, args []string) error {
	fs := flag.NewFlagSet("capture", flag.ExitOnError)

	flags.RegisterInto(fs, []flags.FlagName{
		flags.InputFlag,
		flags.SourceLocationFlag,
		flags.WidthFlag,
		flags.HeightFlag,
		flags.FPSFlag,
		flags.EffectsFlag,
		flags.CountFlag,
		flags.IntervalFlag,
		flags.OutputFlag,
		flags.FormatFlag,
		flags.TraceFramesFlag,
	}...)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Capture frames through a chain of effects and write them to disk

Usage:
	%s capture [flags]

Flags:
`, cmd)
		fs.PrintDefaults()
		fmt.Fprintln(os.Stderr)
	}
	fs.Parse(args)

	if len(fs.Args()) > 0 {
		fmt.Printf("error: unknown extra arguments: %v\n", fs.Args())
		fs.Usage()
		os.Exit(1)
	}

	cfg, err := captureConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	p, err := newPipeline(cfg, flags.TraceFrames)
	if err != nil {
		return err
	}
	defer p.Close()
	return p.Run(ctx, true)
}

// captureConfig turns the command line flags into a pipeline description.
func captureConfig() (*config.Config, error) {
	cfg := &config.Config{
		Source: config.SourceConfig{
			FPS: int(flags.FPS),
		},
		Effects: splitList(flags.Effects),
		Capture: config.CaptureConfig{
			Count:    int(flags.Count),
			Interval: flags.Interval,
			Dir:      flags.Output,
			Format:   flags.Format,
		},
	}
	if flags.Input != "" {
		cfg.Source.Kind = "image"
		cfg.Source.Path = flags.Input
	} else {
		cfg.Source.Kind = "gst"
		cfg.Source.Pipeline = flags.SourceLocation
		cfg.Source.Width = int(flags.Width)
		cfg.Source.Height = int(flags.Height)
	}
	if cfg.Capture.Count == 0 {
		return nil, fmt.Errorf("invalid %v: must be at least 1", flags.CountFlag)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, e := range strings.Split(s, ",") {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, e)
		}
	}
	if len(out) == 0 {
		out = []string{config.DefaultEffect}
	}
	return out
}
