package subcmd

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/julienschmidt/httprouter"
	"github.com/mengelbart/glpipe"
	"github.com/mengelbart/glpipe/config"
	"github.com/mengelbart/glpipe/gstreamer"
	"github.com/mengelbart/glpipe/internal/http"
	"github.com/mengelbart/glpipe/internal/logging"
	"github.com/mengelbart/glpipe/softgl"
	"golang.org/x/image/bmp"
	"golang.org/x/sync/errgroup"
)

// capturedQueue bounds the captures waiting to be written to disk.
const capturedQueue = 64

// pipeline is source -> [trace] -> effects -> fan-out -> capture, running
// on a softgl render context.
type pipeline struct {
	cfg    *config.Config
	logger *slog.Logger

	ctx     *glpipe.Context
	source  glpipe.Node
	stream  *glpipe.SurfaceSource
	trace   *glpipe.HookPipeline
	effects []*glpipe.EffectPipeline
	fanout  *glpipe.SurfaceDistributePipeline
	capture *glpipe.CapturePipeline

	captured chan *image.RGBA
	failed   chan error
}

func newPipeline(cfg *config.Config, trace bool) (p *pipeline, err error) {
	gpu, err := softgl.New(softgl.Logger(slog.Default()))
	if err != nil {
		return nil, err
	}
	ctx, err := glpipe.NewContext(gpu, glpipe.Logger(slog.Default()))
	if err != nil {
		gpu.Release()
		return nil, err
	}
	p = &pipeline{
		cfg:      cfg,
		logger:   slog.Default().With("component", "pipeline"),
		ctx:      ctx,
		captured: make(chan *image.RGBA, capturedQueue),
		failed:   make(chan error, 1),
	}
	defer func() {
		if err != nil {
			p.Close()
		}
	}()

	// Build the tail first so the source never emits into a half built
	// chain.
	p.capture = glpipe.NewCapturePipeline(ctx, glpipe.CaptureFuncs{
		Capture: p.onCapture,
		Error:   p.onCaptureError,
	})
	p.fanout = glpipe.NewSurfaceDistributePipeline(ctx)
	if err = p.fanout.SetPipeline(p.capture); err != nil {
		return nil, err
	}
	for _, o := range cfg.Outputs {
		if err = p.fanout.AddSurface(o.Key, softgl.NewOutputSurface(o.Width, o.Height), o.Mirror); err != nil {
			return nil, err
		}
	}

	var head glpipe.Node = p.fanout
	ids := cfg.EffectIDs()
	p.effects = make([]*glpipe.EffectPipeline, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		e := glpipe.NewEffectPipeline(ctx, ids[i])
		if err = e.SetPipeline(head); err != nil {
			return nil, err
		}
		p.effects[i] = e
		head = e
	}
	if trace {
		fl := logging.NewFrameLogger("source", slog.Default())
		p.trace = glpipe.NewHookPipeline(ctx, fl.Hook())
		if err = p.trace.SetPipeline(head); err != nil {
			return nil, err
		}
		head = p.trace
	}

	switch cfg.Source.Kind {
	case "image":
		var img image.Image
		if img, err = loadImage(cfg.Source.Path); err != nil {
			return nil, err
		}
		var src *glpipe.ImageSource
		if src, err = glpipe.NewImageSource(ctx, img, glpipe.FrameRate(float64(cfg.Source.FPS))); err != nil {
			return nil, err
		}
		p.source = src
	case "gst":
		if p.stream, err = glpipe.NewSurfaceSource(ctx, cfg.Source.Width, cfg.Source.Height, nil); err != nil {
			return nil, err
		}
		p.source = p.stream
	default:
		return nil, fmt.Errorf("unknown source kind: %q", cfg.Source.Kind)
	}
	if err = p.source.SetPipeline(head); err != nil {
		return nil, err
	}
	return p, nil
}

// nodes returns the pipeline's nodes by the names the control API uses.
func (p *pipeline) nodes() map[string]glpipe.Node {
	m := map[string]glpipe.Node{
		"source":  p.source,
		"fanout":  p.fanout,
		"capture": p.capture,
	}
	if p.trace != nil {
		m["trace"] = p.trace
	}
	for i, e := range p.effects {
		m["effect-"+strconv.Itoa(i)] = e
	}
	return m
}

func (p *pipeline) onCapture(img *image.RGBA) {
	select {
	case p.captured <- img:
	default:
		p.logger.Warn("dropping capture, writer is behind")
	}
}

func (p *pipeline) onCaptureError(err error) {
	select {
	case p.failed <- err:
	default:
	}
}

// Run triggers the configured captures and runs the producer, the capture
// writer and the control API until ctx is done. With stopAfterCapture set it
// returns once the configured number of frames is written.
func (p *pipeline) Run(ctx context.Context, stopAfterCapture bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := p.capture.TriggerN(p.cfg.Capture.Count, p.cfg.Capture.Interval); err != nil {
		return err
	}

	eg, ctx := errgroup.WithContext(ctx)
	if p.stream != nil {
		eg.Go(func() error {
			return p.runProducer(ctx)
		})
	}
	if p.cfg.HTTP != nil {
		eg.Go(func() error {
			return p.serve(ctx)
		})
	}
	eg.Go(func() error {
		limit := 0
		if stopAfterCapture {
			limit = p.cfg.Capture.Count
		}
		err := p.writeCaptures(ctx, limit)
		if err == nil {
			cancel()
		}
		return err
	})
	err := eg.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (p *pipeline) runProducer(ctx context.Context) error {
	s, err := p.stream.Ready().Wait(ctx)
	if err != nil {
		return err
	}
	in, ok := s.(*softgl.InputSurface)
	if !ok {
		return fmt.Errorf("unexpected input surface %T", s)
	}
	opts := []gstreamer.ProducerOption{
		gstreamer.Frames(p.cfg.Source.Frames),
		gstreamer.Logger(slog.Default().With("component", "gstreamer")),
	}
	if p.cfg.Source.Pipeline != "" {
		opts = append(opts, gstreamer.Source(p.cfg.Source.Pipeline))
	}
	producer, err := gstreamer.NewProducer(in, p.cfg.Source.Width, p.cfg.Source.Height, opts...)
	if err != nil {
		return err
	}
	return producer.Run(ctx)
}

func (p *pipeline) serve(ctx context.Context) error {
	api := http.NewAPI(func(w, h int) (glpipe.Surface, error) {
		if w <= 0 || h <= 0 {
			return nil, fmt.Errorf("invalid surface size: %dx%d", w, h)
		}
		return softgl.NewOutputSurface(w, h), nil
	})
	for name, n := range p.nodes() {
		api.Register(name, n)
	}
	mux := httprouter.New()
	api.RegisterRoutes(mux)

	opts := []http.Option{
		http.H1Address(p.cfg.HTTP.Address),
		http.Handle(mux),
		http.RequestLogger(slog.Default()),
	}
	if p.cfg.HTTP.CertFile != "" {
		opts = append(opts, http.CertificateFiles(p.cfg.HTTP.CertFile, p.cfg.HTTP.KeyFile))
	}
	if p.cfg.HTTP.TLSAddr != "" {
		opts = append(opts, http.H2Address(p.cfg.HTTP.TLSAddr), http.H3Address(p.cfg.HTTP.TLSAddr))
	}
	s, err := http.NewServer(opts...)
	if err != nil {
		return err
	}
	return s.ListenAndServe(ctx)
}

// writeCaptures stores captured frames in the configured directory. A
// positive limit stops it after that many frames.
func (p *pipeline) writeCaptures(ctx context.Context, limit int) error {
	if err := os.MkdirAll(p.cfg.Capture.Dir, 0o755); err != nil {
		return err
	}
	for n := 0; limit <= 0 || n < limit; {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-p.failed:
			if limit > 0 {
				return err
			}
			p.logger.Error("capture failed", "error", err)
		case img := <-p.captured:
			n++
			name := filepath.Join(p.cfg.Capture.Dir, fmt.Sprintf("frame-%04d.%s", n, p.cfg.Capture.Format))
			if err := writeImage(name, p.cfg.Capture.Format, img); err != nil {
				return err
			}
			p.logger.Info("frame captured", "file", name, "width", img.Bounds().Dx(), "height", img.Bounds().Dy())
		}
	}
	return nil
}

// Close releases every node and stops the render thread.
func (p *pipeline) Close() error {
	return p.ctx.Close()
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %v: %w", path, err)
	}
	return img, nil
}

func writeImage(name, format string, img image.Image) (err error) {
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()
	return encodeImage(f, format, img)
}

func encodeImage(w io.Writer, format string, img image.Image) error {
	switch format {
	case "bmp":
		return bmp.Encode(w, img)
	case "png":
		return png.Encode(w, img)
	default:
		return fmt.Errorf("unknown image format: %q", format)
	}
}
