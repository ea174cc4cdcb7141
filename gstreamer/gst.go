// Package gstreamer feeds frames produced by a GStreamer pipeline into the
// input surface of a glpipe.SurfaceSource.
package gstreamer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-gst/go-glib/glib"
	"github.com/go-gst/go-gst/gst"
)

var initOnce sync.Once

// Init initializes GStreamer. It is safe to call more than once.
func Init() {
	initOnce.Do(func() {
		gst.Init(nil)
	})
}

// runPipeline plays pipeline until EOS, an error message on the bus or
// until ctx is done.
func runPipeline(ctx context.Context, pipeline *gst.Pipeline, logger *slog.Logger) error {
	mainloop := glib.NewMainLoop(glib.MainContextDefault(), false)

	var runErr error
	pipeline.GetPipelineBus().AddWatch(func(msg *gst.Message) bool {
		switch msg.Type() {
		case gst.MessageEOS:
			logger.Debug("end of stream")
			mainloop.Quit()
		case gst.MessageError:
			err := msg.ParseError()
			logger.Error("pipeline error", "error", err.Error(), "debug", err.DebugString())
			runErr = fmt.Errorf("gstreamer: %w", err)
			mainloop.Quit()
		}
		return true
	})

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, mainloop.Quit)
	defer stop()

	mainloop.Run()
	if err := pipeline.BlockSetState(gst.StateNull); err != nil {
		logger.Warn("failed to stop pipeline", "error", err)
	}
	if runErr == nil && ctx.Err() != nil && !errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	return runErr
}

func setProperties(e *gst.Element, pp map[string]any) error {
	for k, v := range pp {
		if err := e.SetProperty(k, v); err != nil {
			return fmt.Errorf("failed to set %v on %v: %w", k, e.GetName(), err)
		}
	}
	return nil
}
