package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/mengelbart/glpipe"
)

type Format string

const (
	TextFormat Format = "text"
	JSONFormat Format = "json"
)

// ParseFormat accepts the names used on the command line and in config
// files.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case TextFormat, JSONFormat:
		return f, nil
	case "":
		return TextFormat, nil
	default:
		return "", fmt.Errorf("unknown log format: %q", s)
	}
}

// ParseLevel parses debug, info, warn or error.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return l, fmt.Errorf("unknown log level: %q", s)
	}
	return l, nil
}

func Configure(format Format, level slog.Level, writer io.Writer) {
	if writer == nil {
		writer = os.Stderr
	}
	ho := &slog.HandlerOptions{
		AddSource:   false,
		Level:       level,
		ReplaceAttr: nil,
	}
	switch format {
	case JSONFormat:
		slog.SetDefault(slog.New(slog.NewJSONHandler(writer, ho)))
	case TextFormat:
		slog.SetDefault(slog.New(slog.NewTextHandler(writer, ho)))
	default:
		panic(fmt.Sprintf("unexpected logging.format: %#v", format))
	}
}

// FrameLogger logs every frame that passes a glpipe.HookPipeline.
type FrameLogger struct {
	logger *slog.Logger
	seq    uint64
	last   time.Time
}

func NewFrameLogger(name string, logger *slog.Logger) *FrameLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &FrameLogger{
		logger: logger.With("node", name).WithGroup("frame"),
	}
}

// Hook returns the hook to install with glpipe.NewHookPipeline. It runs on
// the render thread only, so the logger needs no locking.
func (l *FrameLogger) Hook() glpipe.Hook {
	return glpipe.Observe(l.LogFrame)
}

func (l *FrameLogger) LogFrame(f glpipe.Frame) {
	now := time.Now()
	var gap time.Duration
	if !l.last.IsZero() {
		gap = now.Sub(l.last)
	}
	l.last = now
	l.seq++
	l.logger.Debug(
		"frame",
		"sequence-number", l.seq,
		"texture", f.Texture,
		"oes", f.OES,
		"gles3", f.GLES3,
		"width", f.Width,
		"height", f.Height,
		"gap", gap,
	)
}

// Frames returns the number of frames logged so far.
func (l *FrameLogger) Frames() uint64 {
	return l.seq
}
