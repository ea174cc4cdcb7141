// Package flags implements command-line flags for glpipe.
//
// The design idea is taken from [upspin.io/flags], but most of the code is
// modified. This package uses a slightly modified version of [RegisterInto] and
// the internal [flags]-map. See [Upspin LICENSE] for upspins copyright and
// license information.
//
// [upspin.io/flags]: https://github.com/upspin/upspin/tree/334f107fe3d98225d7adfbb35b74e066fbca9875/flags
// [Upspin LICENSE]: https://github.com/upspin/upspin/blob/334f107fe3d98225d7adfbb35b74e066fbca9875/LICENSE
package flags

import (
	"flag"
	"fmt"
	"time"
)

type FlagName string

// flag keys
const (
	ConfigFlag FlagName = "config"

	HTTPAddrFlag  FlagName = "http-address"
	HTTPSAddrFlag FlagName = "https-address"
	CertFlag      FlagName = "cert"
	KeyFlag       FlagName = "key"

	InputFlag          FlagName = "input"
	SourceLocationFlag FlagName = "source-location"
	WidthFlag          FlagName = "width"
	HeightFlag         FlagName = "height"
	FPSFlag            FlagName = "fps"
	FramesFlag         FlagName = "frames"

	EffectsFlag FlagName = "effects"

	CountFlag    FlagName = "count"
	IntervalFlag FlagName = "interval"
	OutputFlag   FlagName = "output"
	FormatFlag   FlagName = "format"

	TraceFramesFlag FlagName = "trace-frames"
)

// Flag vars
var (
	// Config is the YAML pipeline description of the run command.
	Config = "pipeline.yaml"

	// HTTP Server, empty disables the control API
	HTTPAddr = ""

	HTTPSAddr = "127.0.0.1:4443"

	// TLS certificate, empty serves plain HTTP/1.1 only
	Cert = ""

	Key = ""

	// Input image, empty uses the GStreamer source
	Input = ""

	SourceLocation = "videotestsrc is-live=true"

	Width  = uint(640)
	Height = uint(480)
	FPS    = uint(30)

	// Frames stops the GStreamer source after n buffers, 0 is unlimited
	Frames = uint(0)

	Effects = "none"

	Count    = uint(1)
	Interval = time.Duration(0)
	Output   = "."
	Format   = "bmp"

	TraceFrames = false
)

type flagVar func(*flag.FlagSet)

func stringVar(p *string, name FlagName, defaultValue *string, usage string) func(*flag.FlagSet) {
	return func(fs *flag.FlagSet) {
		fs.StringVar(p, string(name), *defaultValue, usage)
	}
}

func uintVar(p *uint, name FlagName, defaultValue *uint, usage string) func(*flag.FlagSet) {
	return func(fs *flag.FlagSet) {
		fs.UintVar(p, string(name), *defaultValue, usage)
	}
}

func boolVar(p *bool, name FlagName, defaultValue *bool, usage string) func(*flag.FlagSet) {
	return func(fs *flag.FlagSet) {
		fs.BoolVar(p, string(name), *defaultValue, usage)
	}
}

func durationVar(p *time.Duration, name FlagName, defaultValue *time.Duration, usage string) func(*flag.FlagSet) {
	return func(fs *flag.FlagSet) {
		fs.DurationVar(p, string(name), *defaultValue, usage)
	}
}

var flags = map[FlagName]flagVar{
	ConfigFlag: stringVar(&Config, ConfigFlag, &Config, "YAML pipeline description"),

	// Control API
	HTTPAddrFlag:  stringVar(&HTTPAddr, HTTPAddrFlag, &HTTPAddr, "Control API address, empty disables the API"),
	HTTPSAddrFlag: stringVar(&HTTPSAddr, HTTPSAddrFlag, &HTTPSAddr, "Control API address for HTTP/2 and HTTP/3 (requires <cert> and <key>)"),
	CertFlag:      stringVar(&Cert, CertFlag, &Cert, "TLS Certificate"),
	KeyFlag:       stringVar(&Key, KeyFlag, &Key, "TLS Certificate key"),

	// Source flags
	InputFlag:          stringVar(&Input, InputFlag, &Input, "Input image (PNG, JPEG or BMP). If empty, frames are read from <source-location>"),
	SourceLocationFlag: stringVar(&SourceLocation, SourceLocationFlag, &SourceLocation, "GStreamer launch description of the source elements"),
	WidthFlag:          uintVar(&Width, WidthFlag, &Width, "Frame width of the GStreamer source"),
	HeightFlag:         uintVar(&Height, HeightFlag, &Height, "Frame height of the GStreamer source"),
	FPSFlag:            uintVar(&FPS, FPSFlag, &FPS, "Frame rate of the image source"),
	FramesFlag:         uintVar(&Frames, FramesFlag, &Frames, "Number of buffers the GStreamer source produces, 0 means unlimited"),

	EffectsFlag: stringVar(&Effects, EffectsFlag, &Effects, "Comma separated list of effects (none, grayscale, negative, sepia, flip-vertical, flip-horizontal, binarize)"),

	// Capture flags
	CountFlag:    uintVar(&Count, CountFlag, &Count, "Number of frames to capture"),
	IntervalFlag: durationVar(&Interval, IntervalFlag, &Interval, "Minimum time between two captures"),
	OutputFlag:   stringVar(&Output, OutputFlag, &Output, "Output directory for captured frames"),
	FormatFlag:   stringVar(&Format, FormatFlag, &Format, "Image format of captured frames (bmp, png)"),

	// tracing flags
	TraceFramesFlag: boolVar(&TraceFrames, TraceFramesFlag, &TraceFrames, "Log every frame leaving the source"),
}

func RegisterInto(fs *flag.FlagSet, names ...FlagName) {
	if len(names) == 0 {
		for _, f := range flags {
			f(fs)
		}
	} else {
		for _, n := range names {
			f, ok := flags[n]
			if !ok {
				panic(fmt.Sprintf("unknown flag: %q", n))
			}
			f(fs)
		}
	}
}
