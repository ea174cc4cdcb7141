package glpipe_test

import (
	"errors"
	"sync/atomic"
	"testing"
	"testing/synctest"
	"time"

	"github.com/mengelbart/glpipe"
	"github.com/mengelbart/glpipe/softgl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeliveryCount(t *testing.T) {
	const (
		n = 5
		k = 10
	)
	ctx, _ := newContext(t)
	head := glpipe.NewProxy(ctx)
	counters := make([]*counter, n)
	for i := range counters {
		counters[i] = newCounter(ctx)
		require.NoError(t, glpipe.Append(head, counters[i]))
	}
	frame := upload(t, ctx, testImage(4, 4))

	for range k {
		require.NoError(t, ctx.Deliver(head, frame))
	}
	for _, c := range counters {
		assert.Equal(t, k, c.count())
	}

	// Remove the second node; its count freezes.
	removed := counters[1]
	require.NoError(t, removed.Remove())
	for range k {
		require.NoError(t, ctx.Deliver(head, frame))
	}
	for i, c := range counters {
		if c == removed {
			assert.Equal(t, k, c.count(), "node %d", i)
			continue
		}
		assert.Equal(t, 2*k, c.count(), "node %d", i)
	}
}

func TestHook(t *testing.T) {
	ctx, _ := newContext(t)
	var seen []int
	drop := glpipe.NewHookPipeline(ctx, func(f glpipe.Frame, next func(glpipe.Frame)) {
		if f.Width%2 == 1 {
			return
		}
		f.Height = 1
		next(f)
	})
	tail := glpipe.NewHookPipeline(ctx, glpipe.Observe(func(f glpipe.Frame) {
		seen = append(seen, f.Width*10+f.Height)
	}))
	require.NoError(t, drop.SetPipeline(tail))

	for w := range 4 {
		require.NoError(t, ctx.Deliver(drop, glpipe.Frame{Width: w, Height: 5}))
	}
	assert.Equal(t, []int{1, 21}, seen)

	passthrough := glpipe.NewHookPipeline(ctx, nil)
	require.NoError(t, glpipe.Insert(drop, passthrough))
	require.NoError(t, ctx.Deliver(drop, glpipe.Frame{Width: 4, Height: 5}))
	assert.Equal(t, []int{1, 21, 41}, seen)
}

func TestReleaseIsIdempotent(t *testing.T) {
	ctx, gpu := newContext(t)
	out := softgl.NewOutputSurface(8, 8)
	img := testImage(8, 8)

	imageSource, err := glpipe.NewImageSource(ctx, img)
	require.NoError(t, err)
	surfaceSource, err := glpipe.NewSurfaceSource(ctx, 8, 8, nil)
	require.NoError(t, err)
	renderer, err := glpipe.NewSurfaceRendererPipeline(ctx, out)
	require.NoError(t, err)

	nodes := []glpipe.Node{
		imageSource,
		surfaceSource,
		glpipe.NewProxy(ctx),
		glpipe.NewHookPipeline(ctx, nil),
		glpipe.NewDrawerPipeline(ctx),
		glpipe.NewEffectPipeline(ctx, glpipe.EffectSepia),
		glpipe.NewMediaEffectPipeline(ctx, glpipe.UseEffect(glpipe.EffectNegative)),
		glpipe.NewDistributePipeline(ctx),
		glpipe.NewSurfaceDistributePipeline(ctx),
		glpipe.NewCapturePipeline(ctx, nil),
		glpipe.NewOnFramePipeline(ctx, nil),
		renderer,
	}
	head := glpipe.NewProxy(ctx)
	for _, n := range nodes[2:] {
		require.NoError(t, glpipe.Append(head, n))
	}
	require.NoError(t, ctx.Deliver(head, upload(t, ctx, img)))

	for _, n := range nodes {
		require.NoError(t, n.Release())
		require.NoError(t, n.Release())
		assert.Equal(t, glpipe.Released, n.State(), "%v", n)
		assert.True(t, n.IsReleased())
	}
	chain, err := glpipe.Nodes(head)
	require.NoError(t, err)
	assert.Equal(t, []glpipe.Node{head}, chain)

	// Only the texture uploaded by the test is left.
	assert.Equal(t, 1, gpu.Textures())
}

func TestNoDeliveryAfterRelease(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctx, _ := newContext(t)
		src, err := glpipe.NewImageSource(ctx, testImage(8, 8))
		require.NoError(t, err)
		c := newCounter(ctx)
		require.NoError(t, src.SetPipeline(c))

		time.Sleep(time.Second)
		synctest.Wait()
		require.NoError(t, src.Release())
		frozen := c.count()
		assert.Positive(t, frozen)

		time.Sleep(time.Second)
		synctest.Wait()
		assert.Equal(t, frozen, c.count())
	})
}

func TestImageSourceRate(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctx, _ := newContext(t)
		src, err := glpipe.NewImageSource(ctx, testImage(8, 8), glpipe.FrameRate(10))
		require.NoError(t, err)
		c := newCounter(ctx)
		require.NoError(t, src.SetPipeline(c))

		time.Sleep(time.Second - time.Millisecond)
		synctest.Wait()
		assert.Equal(t, 10, c.count())
		require.NoError(t, src.Release())
	})
}

func TestImageSourceSetImage(t *testing.T) {
	ctx, _ := newContext(t)
	src, err := glpipe.NewImageSource(ctx, testImage(8, 8), glpipe.FrameRate(1000))
	require.NoError(t, err)
	require.NoError(t, src.SetImage(testImage(16, 4)))
	w, h := src.Size()
	assert.Equal(t, 16, w)
	assert.Equal(t, 4, h)

	_, err = glpipe.NewImageSource(ctx, testImage(8, 8), glpipe.FrameRate(0))
	assert.Error(t, err)
	_, err = glpipe.NewImageSource(ctx, nil)
	assert.Error(t, err)

	require.NoError(t, src.Release())
	assert.ErrorIs(t, src.SetImage(testImage(8, 8)), glpipe.ErrReleased)
}

func TestContextRenderThread(t *testing.T) {
	ctx, _ := newContext(t)
	assert.False(t, ctx.OnRenderThread())
	assert.True(t, ctx.IsValid())

	var inner bool
	err := ctx.Invoke(func() error {
		// Nested calls run inline instead of deadlocking.
		return ctx.Invoke(func() error {
			inner = ctx.OnRenderThread()
			return nil
		})
	})
	require.NoError(t, err)
	assert.True(t, inner)

	done := make(chan struct{})
	require.NoError(t, ctx.Post(func() error {
		close(done)
		return nil
	}))
	<-done
}

func TestContextRecoversPanics(t *testing.T) {
	ctx, _ := newContext(t)
	err := ctx.Invoke(func() error {
		panic("boom")
	})
	assert.ErrorContains(t, err, "boom")

	want := errors.New("failed")
	assert.Equal(t, want, ctx.Invoke(func() error { return want }))

	// The render thread survived.
	assert.NoError(t, ctx.Invoke(func() error { return nil }))
}

func TestContextClose(t *testing.T) {
	gpu, err := softgl.New()
	require.NoError(t, err)
	ctx, err := glpipe.NewContext(gpu)
	require.NoError(t, err)

	src, err := glpipe.NewImageSource(ctx, testImage(8, 8))
	require.NoError(t, err)
	effect := glpipe.NewEffectPipeline(ctx, glpipe.EffectNegative)
	require.NoError(t, src.SetPipeline(effect))

	require.NoError(t, ctx.Close())
	require.NoError(t, ctx.Close())

	assert.True(t, src.IsReleased())
	assert.True(t, effect.IsReleased())
	assert.False(t, ctx.IsValid())
	assert.Equal(t, 0, gpu.Textures())
	assert.ErrorIs(t, ctx.Post(func() error { return nil }), glpipe.ErrContextClosed)
	assert.ErrorIs(t, ctx.Invoke(func() error { return nil }), glpipe.ErrContextClosed)
	assert.NoError(t, src.Release())
}

func TestContextLostBackend(t *testing.T) {
	gpu, err := softgl.New()
	require.NoError(t, err)
	gpu.Lose()
	_, err = glpipe.NewContext(gpu)
	assert.ErrorIs(t, err, softgl.ErrLost)
}

func TestContextPostFromRenderThread(t *testing.T) {
	gpu, err := softgl.New()
	require.NoError(t, err)
	ctx, err := glpipe.NewContext(gpu, glpipe.QueueSize(1))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, ctx.Close())
	})

	var order []int
	done := make(chan struct{})
	err = ctx.Invoke(func() error {
		// More posts than the queue holds.
		for i := range 4 {
			assert.NoError(t, ctx.Post(func() error {
				order = append(order, i)
				if i == 3 {
					close(done)
				}
				return nil
			}))
		}
		order = append(order, -1)
		return nil
	})
	require.NoError(t, err)
	select {
	case <-done:
	case <-time.After(testTimeout):
		t.Fatal("posted tasks did not run")
	}
	require.NoError(t, ctx.Invoke(func() error {
		assert.Equal(t, []int{-1, 0, 1, 2, 3}, order)
		return nil
	}))
}

func TestContextPostRacingClose(t *testing.T) {
	gpu, err := softgl.New()
	require.NoError(t, err)
	ctx, err := glpipe.NewContext(gpu, glpipe.QueueSize(1))
	require.NoError(t, err)

	var ran atomic.Int64
	results := make(chan error, 8)
	for range 8 {
		go func() {
			for {
				if err := ctx.Post(func() error {
					ran.Add(1)
					return nil
				}); err != nil {
					results <- err
					return
				}
			}
		}()
	}
	require.Eventually(t, func() bool {
		return ran.Load() > 0
	}, testTimeout, tick)
	require.NoError(t, ctx.Close())
	after := ran.Load()

	for range 8 {
		select {
		case err := <-results:
			assert.ErrorIs(t, err, glpipe.ErrContextClosed)
		case <-time.After(testTimeout):
			t.Fatal("Post kept accepting work after Close")
		}
	}
	assert.Equal(t, after, ran.Load())
}
