package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/domain"
)

type engine struct {
	name   string
	closed atomic.Bool
}

func (e *engine) Close() error {
	e.closed.Store(true)
	return nil
}

func counting(builds *atomic.Int32, delay time.Duration) func(context.Context) (*engine, error) {
	return func(context.Context) (*engine, error) {
		n := builds.Add(1)
		time.Sleep(delay)
		return &engine{name: string(rune('a' + n))}, nil
	}
}

func TestCache_BuildsOncePerKey(t *testing.T) {
	c := NewCache[*engine](0, 0)
	key := Key{SessionID: "s1", Filename: "doc.pdf"}
	var builds atomic.Int32

	first, err := c.GetOrBuild(context.Background(), key, counting(&builds, 0))
	require.NoError(t, err)
	second, err := c.GetOrBuild(context.Background(), key, counting(&builds, 0))
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int32(1), builds.Load())
}

func TestCache_ConcurrentCallersShareOneBuild(t *testing.T) {
	c := NewCache[*engine](0, 0)
	key := Key{SessionID: "s1", Filename: "doc.pdf"}
	var builds atomic.Int32

	const callers = 16
	results := make([]*engine, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e, err := c.GetOrBuild(context.Background(), key, counting(&builds, 30*time.Millisecond))
			assert.NoError(t, err)
			results[i] = e
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), builds.Load())
	for _, e := range results {
		assert.Same(t, results[0], e)
	}
}

func TestCache_DifferentKeysAreIndependent(t *testing.T) {
	c := NewCache[*engine](0, 0)
	var builds atomic.Int32

	a, err := c.GetOrBuild(context.Background(), Key{"s1", "a.pdf"}, counting(&builds, 0))
	require.NoError(t, err)
	b, err := c.GetOrBuild(context.Background(), Key{"s2", "a.pdf"}, counting(&builds, 0))
	require.NoError(t, err)

	assert.NotSame(t, a, b)
	assert.Equal(t, 2, c.Len())
}

func TestCache_FailedBuildIsNotCached(t *testing.T) {
	c := NewCache[*engine](0, 0)
	key := Key{SessionID: "s1", Filename: "bad.pdf"}
	boom := errors.New("no text")

	_, err := c.GetOrBuild(context.Background(), key, func(context.Context) (*engine, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Len())

	var builds atomic.Int32
	e, err := c.GetOrBuild(context.Background(), key, counting(&builds, 0))
	require.NoError(t, err)
	assert.NotNil(t, e)
	assert.Equal(t, int32(1), builds.Load())
}

func TestCache_EvictionClosesEngines(t *testing.T) {
	c := NewCache[*engine](1, 0)
	var builds atomic.Int32

	first, err := c.GetOrBuild(context.Background(), Key{"s1", "a.pdf"}, counting(&builds, 0))
	require.NoError(t, err)
	_, err = c.GetOrBuild(context.Background(), Key{"s1", "b.pdf"}, counting(&builds, 0))
	require.NoError(t, err)

	assert.True(t, first.closed.Load())
	assert.Equal(t, 1, c.Len())
	_, ok := c.Get(Key{"s1", "a.pdf"})
	assert.False(t, ok)
}

func TestCache_TTL(t *testing.T) {
	c := NewCache[*engine](0, 50*time.Millisecond)
	key := Key{"s1", "a.pdf"}
	var builds atomic.Int32

	_, err := c.GetOrBuild(context.Background(), key, counting(&builds, 0))
	require.NoError(t, err)
	time.Sleep(120 * time.Millisecond)

	_, ok := c.Get(key)
	assert.False(t, ok)
	_, err = c.GetOrBuild(context.Background(), key, counting(&builds, 0))
	require.NoError(t, err)
	assert.Equal(t, int32(2), builds.Load())
}

func TestCache_EvictSession(t *testing.T) {
	c := NewCache[*engine](0, 0)
	var builds atomic.Int32
	a, _ := c.GetOrBuild(context.Background(), Key{"s1", "a.pdf"}, counting(&builds, 0))
	b, _ := c.GetOrBuild(context.Background(), Key{"s1", "b.pdf"}, counting(&builds, 0))
	other, _ := c.GetOrBuild(context.Background(), Key{"s2", "a.pdf"}, counting(&builds, 0))

	assert.Equal(t, 2, c.EvictSession("s1"))
	assert.True(t, a.closed.Load())
	assert.True(t, b.closed.Load())
	assert.False(t, other.closed.Load())
	assert.Equal(t, 1, c.Len())
}

func TestRegistry_ClearKeepsEngines(t *testing.T) {
	r := NewRegistry()
	c := NewCache[*engine](0, 0)
	r.OnEnd(func(id string) { c.EvictSession(id) })

	s := r.Start()
	assert.NotEmpty(t, s.ID)
	s.Append(domain.RoleUser, "hi")
	s.Append(domain.RoleAssistant, "hello")
	assert.Len(t, s.History(), 2)

	var builds atomic.Int32
	e, err := c.GetOrBuild(context.Background(), Key{s.ID, "doc.pdf"}, counting(&builds, 0))
	require.NoError(t, err)

	assert.True(t, r.Clear(s.ID))
	assert.Empty(t, s.History())
	assert.Equal(t, 1, c.Len())
	assert.False(t, e.closed.Load())

	r.End(s.ID)
	_, ok := r.Get(s.ID)
	assert.False(t, ok)
	assert.True(t, e.closed.Load())
	assert.Equal(t, 0, c.Len())
	assert.False(t, r.Clear(s.ID))
}

func TestRegistry_UniqueIDs(t *testing.T) {
	r := NewRegistry()
	a, b := r.Start(), r.Start()
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 2, r.Len())

	a.SetDocument("x.pdf")
	assert.Equal(t, "x.pdf", a.Document())
	assert.Empty(t, b.Document())
}

func TestRegistry_EndRunsHooksOnce(t *testing.T) {
	r := NewRegistry()
	var ended []string
	r.OnEnd(func(id string) { ended = append(ended, "first:"+id) })
	r.OnEnd(func(id string) { ended = append(ended, "second:"+id) })

	s := r.Start()
	r.End(s.ID)
	r.End(s.ID)
	r.End("unknown")

	assert.Equal(t, []string{"first:" + s.ID, "second:" + s.ID}, ended)
	assert.Equal(t, 0, r.Len())
}
