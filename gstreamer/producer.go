package gstreamer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync/atomic"

	"github.com/go-gst/go-gst/gst"
	"github.com/go-gst/go-gst/gst/app"
)

// DefaultSource is the launch description used when none is configured.
const DefaultSource = "videotestsrc is-live=true"

// FrameWriter accepts decoded frames, for example a softgl.InputSurface.
type FrameWriter interface {
	WriteImage(ctx context.Context, img image.Image) error
}

type ProducerOption func(*Producer) error

// Source sets the launch description of the elements in front of the
// conversion to RGBA, e.g. "filesrc location=in.mp4 ! decodebin".
func Source(desc string) ProducerOption {
	return func(p *Producer) error {
		if desc == "" {
			return errors.New("empty source description")
		}
		p.source = desc
		return nil
	}
}

// Frames stops the producer after n frames. Zero means unlimited.
func Frames(n int) ProducerOption {
	return func(p *Producer) error {
		if n < 0 {
			return fmt.Errorf("invalid frame count: %d", n)
		}
		p.frames = n
		return nil
	}
}

func Logger(l *slog.Logger) ProducerOption {
	return func(p *Producer) error {
		p.logger = l
		return nil
	}
}

// Producer runs a GStreamer pipeline that ends in an appsink and writes
// every RGBA sample to a FrameWriter.
type Producer struct {
	source string
	width  int
	height int
	frames int
	logger *slog.Logger
	writer FrameWriter

	ctx      context.Context
	pipeline *gst.Pipeline
	written  atomic.Uint64
	dropped  atomic.Uint64
}

func NewProducer(w FrameWriter, width, height int, opts ...ProducerOption) (*Producer, error) {
	if w == nil {
		return nil, errors.New("missing frame writer")
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid frame size: %dx%d", width, height)
	}
	p := &Producer{
		source: DefaultSource,
		width:  width,
		height: height,
		logger: slog.Default(),
		writer: w,
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Description returns the launch description of the whole pipeline.
func (p *Producer) Description() string {
	src := p.source
	if p.frames > 0 {
		src = fmt.Sprintf("%s num-buffers=%d", src, p.frames)
	}
	return fmt.Sprintf(
		"%s ! videoconvert ! videoscale ! video/x-raw,format=RGBA,width=%d,height=%d ! appsink name=sink",
		src, p.width, p.height,
	)
}

// Run builds the pipeline and blocks until the stream ends, fails or ctx is
// done.
func (p *Producer) Run(ctx context.Context) error {
	Init()
	desc := p.Description()
	p.logger.Info("starting gstreamer producer", "pipeline", desc)
	pipeline, err := gst.NewPipelineFromString(desc)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}
	elem, err := pipeline.GetElementByName("sink")
	if err != nil {
		return fmt.Errorf("failed to find appsink: %w", err)
	}
	if err := setProperties(elem, map[string]any{
		"sync":        false,
		"max-buffers": uint(2),
	}); err != nil {
		return err
	}
	p.ctx = ctx
	p.pipeline = pipeline
	sink := app.SinkFromElement(elem)
	sink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: p.onSample,
	})

	err = runPipeline(ctx, pipeline, p.logger)
	p.logger.Info("gstreamer producer stopped", "written", p.written.Load(), "dropped", p.dropped.Load())
	return err
}

func (p *Producer) onSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		return gst.FlowEOS
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		p.dropped.Add(1)
		return gst.FlowOK
	}
	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	if len(data) < p.width*p.height*4 {
		buffer.Unmap()
		p.dropped.Add(1)
		p.logger.Warn("short buffer", "size", len(data))
		return gst.FlowOK
	}
	img := image.NewRGBA(image.Rect(0, 0, p.width, p.height))
	copy(img.Pix, data)
	buffer.Unmap()

	if err := p.writer.WriteImage(p.ctx, img); err != nil {
		p.logger.Debug("stopping producer", "error", err)
		return gst.FlowEOS
	}
	p.written.Add(1)
	return gst.FlowOK
}

// Written returns the number of frames handed to the writer.
func (p *Producer) Written() uint64 {
	return p.written.Load()
}

// Dropped returns the number of samples that could not be read.
func (p *Producer) Dropped() uint64 {
	return p.dropped.Load()
}
