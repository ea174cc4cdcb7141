package glpipe_test

import (
	"math/rand/v2"
	"testing"

	"github.com/mengelbart/glpipe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func proxies(ctx *glpipe.Context, n int) []*glpipe.Proxy {
	ps := make([]*glpipe.Proxy, n)
	for i := range ps {
		ps[i] = glpipe.NewProxy(ctx)
	}
	return ps
}

func TestSetPipeline(t *testing.T) {
	ctx, _ := newContext(t)
	p := proxies(ctx, 3)

	require.NoError(t, p[0].SetPipeline(p[1]))
	assert.Equal(t, p[1], p[0].Pipeline())
	assert.Equal(t, p[0], p[1].Parent())
	assert.Equal(t, glpipe.Attached, p[0].State())
	assert.Equal(t, glpipe.Created, p[2].State())

	// Replacing the successor detaches the old one.
	require.NoError(t, p[0].SetPipeline(p[2]))
	assert.Equal(t, p[2], p[0].Pipeline())
	assert.Nil(t, p[1].Parent())

	require.NoError(t, p[0].SetPipeline(nil))
	assert.Nil(t, p[0].Pipeline())
	assert.Nil(t, p[2].Parent())
}

func TestSetPipelineErrors(t *testing.T) {
	ctx, _ := newContext(t)
	p := proxies(ctx, 3)
	require.NoError(t, p[0].SetPipeline(p[1]))
	require.NoError(t, p[1].SetPipeline(p[2]))

	cases := []struct {
		name string
		from *glpipe.Proxy
		to   *glpipe.Proxy
		want error
	}{
		{"self", p[0], p[0], glpipe.ErrCycle},
		{"cycle", p[2], p[0], glpipe.ErrCycle},
		{"parented", p[0], p[2], glpipe.ErrAlreadyLinked},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.from.SetPipeline(tc.to)
			assert.ErrorIs(t, err, tc.want)
			assert.ErrorIs(t, err, glpipe.ErrInvalidState)
		})
	}

	// Nothing changed.
	nodes, err := glpipe.Nodes(p[1])
	require.NoError(t, err)
	assert.Equal(t, []glpipe.Node{p[0], p[1], p[2]}, nodes)
}

func TestForeignNode(t *testing.T) {
	ctx1, _ := newContext(t)
	ctx2, _ := newContext(t)
	a := glpipe.NewProxy(ctx1)
	b := glpipe.NewProxy(ctx2)

	assert.ErrorIs(t, a.SetPipeline(b), glpipe.ErrForeignNode)
	assert.ErrorIs(t, glpipe.Insert(a, b), glpipe.ErrForeignNode)
	assert.ErrorIs(t, glpipe.Append(a, b), glpipe.ErrForeignNode)
}

func TestNilNode(t *testing.T) {
	ctx, _ := newContext(t)
	a := glpipe.NewProxy(ctx)
	var missing *glpipe.Proxy

	assert.ErrorIs(t, glpipe.Insert(a, missing), glpipe.ErrNilNode)
	assert.ErrorIs(t, glpipe.Insert(nil, a), glpipe.ErrNilNode)
	assert.ErrorIs(t, glpipe.Append(a, nil), glpipe.ErrNilNode)
	assert.ErrorIs(t, glpipe.Remove(nil), glpipe.ErrNilNode)
	_, err := glpipe.FindFirst(nil)
	assert.ErrorIs(t, err, glpipe.ErrNilNode)
}

func TestInsert(t *testing.T) {
	ctx, _ := newContext(t)
	p := proxies(ctx, 5)
	require.NoError(t, p[0].SetPipeline(p[1]))
	require.NoError(t, p[2].SetPipeline(p[3]))

	// p[2] brings its successor p[3] along; p[1] follows p[3].
	require.NoError(t, glpipe.Insert(p[0], p[2]))
	nodes, err := glpipe.Nodes(p[0])
	require.NoError(t, err)
	assert.Equal(t, []glpipe.Node{p[0], p[2], p[3], p[1]}, nodes)
	assert.Equal(t, p[3], p[1].Parent())

	require.NoError(t, glpipe.Append(p[2], p[4]))
	last, err := glpipe.FindLast(p[0])
	require.NoError(t, err)
	assert.Equal(t, p[4], last)

	assert.ErrorIs(t, glpipe.Insert(p[4], p[4]), glpipe.ErrAlreadyLinked)
	assert.ErrorIs(t, glpipe.Insert(p[4], p[0]), glpipe.ErrCycle)
}

func TestRemove(t *testing.T) {
	ctx, _ := newContext(t)
	p := proxies(ctx, 3)
	require.NoError(t, p[0].SetPipeline(p[1]))
	require.NoError(t, p[1].SetPipeline(p[2]))

	require.NoError(t, glpipe.Remove(p[1]))
	assert.Equal(t, p[2], p[0].Pipeline())
	assert.Equal(t, p[0], p[2].Parent())
	assert.Nil(t, p[1].Parent())
	assert.Nil(t, p[1].Pipeline())
	assert.Equal(t, glpipe.Created, p[1].State())

	// Removing a detached node is a no-op.
	require.NoError(t, p[1].Remove())

	require.NoError(t, p[0].Remove())
	assert.Nil(t, p[2].Parent())
}

func TestFind(t *testing.T) {
	ctx, _ := newContext(t)
	head := glpipe.NewProxy(ctx)
	effect := glpipe.NewEffectPipeline(ctx, glpipe.EffectNone)
	dist := glpipe.NewDistributePipeline(ctx)
	tail := glpipe.NewProxy(ctx)
	for _, n := range []glpipe.Node{effect, dist, tail} {
		require.NoError(t, glpipe.Append(head, n))
	}

	first, err := glpipe.FindFirst(tail)
	require.NoError(t, err)
	assert.Equal(t, head, first)

	e, err := glpipe.Find[*glpipe.EffectPipeline](tail)
	require.NoError(t, err)
	assert.Same(t, effect, e)

	d, err := glpipe.Find[*glpipe.DistributePipeline](dist)
	require.NoError(t, err)
	assert.Same(t, dist, d)

	c, err := glpipe.Find[*glpipe.CapturePipeline](tail)
	require.NoError(t, err)
	assert.Nil(t, c)

	n, err := glpipe.FindFunc(tail, func(n glpipe.Node) bool {
		return n.ID() == head.ID()
	})
	require.NoError(t, err)
	assert.Equal(t, head, n)
}

func TestFindThroughFanOut(t *testing.T) {
	ctx, _ := newContext(t)
	head := glpipe.NewProxy(ctx)
	dist := glpipe.NewDistributePipeline(ctx)
	child := glpipe.NewProxy(ctx)
	leaf := glpipe.NewProxy(ctx)
	require.NoError(t, head.SetPipeline(dist))
	require.NoError(t, dist.AddPipeline(child))
	require.NoError(t, child.SetPipeline(leaf))

	first, err := glpipe.FindFirst(leaf)
	require.NoError(t, err)
	assert.Equal(t, head, first)
}

// Random insert, append and remove sequences keep every chain consistent.
func TestChainIntegrity(t *testing.T) {
	ctx, _ := newContext(t)
	rng := rand.New(rand.NewPCG(1, 2))
	p := proxies(ctx, 16)

	for range 500 {
		a, b := p[rng.IntN(len(p))], p[rng.IntN(len(p))]
		switch rng.IntN(3) {
		case 0:
			_ = glpipe.Insert(a, b)
		case 1:
			_ = glpipe.Append(a, b)
		case 2:
			require.NoError(t, glpipe.Remove(a))
		}

		for _, x := range p {
			first, err := glpipe.FindFirst(x)
			require.NoError(t, err)
			last, err := glpipe.FindLast(x)
			require.NoError(t, err)
			firstOfLast, err := glpipe.FindFirst(last)
			require.NoError(t, err)
			require.Equal(t, first, firstOfLast)

			nodes, err := glpipe.Nodes(x)
			require.NoError(t, err)
			seen := map[glpipe.NodeID]bool{}
			for i, n := range nodes {
				require.False(t, seen[n.ID()], "node %d visited twice", n.ID())
				seen[n.ID()] = true
				if i > 0 {
					require.Equal(t, nodes[i-1], n.Parent())
				}
			}
			require.True(t, seen[x.ID()])
		}
	}
}

func TestReleasedNode(t *testing.T) {
	ctx, _ := newContext(t)
	p := proxies(ctx, 3)
	require.NoError(t, p[0].SetPipeline(p[1]))
	require.NoError(t, p[1].SetPipeline(p[2]))

	require.NoError(t, p[1].Release())
	require.NoError(t, p[1].Release())
	assert.Equal(t, glpipe.Released, p[1].State())

	// Released nodes leave the chain and refuse further links.
	nodes, err := glpipe.Nodes(p[0])
	require.NoError(t, err)
	assert.Equal(t, []glpipe.Node{p[0], p[2]}, nodes)
	assert.ErrorIs(t, p[1].SetPipeline(p[0]), glpipe.ErrReleased)
	assert.ErrorIs(t, glpipe.Insert(p[0], p[1]), glpipe.ErrReleased)
	assert.ErrorIs(t, p[1].Remove(), glpipe.ErrReleased)
	_, err = glpipe.FindFirst(p[1])
	assert.ErrorIs(t, err, glpipe.ErrReleased)
}
