package resolver

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coachpo/typebus/typeid"
)

func TestSparseHandlerIdempotent(t *testing.T) {
	space := NewSpace(typeid.NewRegistry())
	s := NewSparse(space)
	defer s.Close()

	var got int
	HandlerOf[ping](s).Subscribe(func(p ping) { got = p.seq })
	HandlerOf[ping](s).Publish(ping{seq: 7})
	require.Equal(t, 7, got)
}

func TestSparseInstancesAreIsolated(t *testing.T) {
	space := NewSpace(typeid.NewRegistry())
	a := NewSparse(space)
	defer a.Close()
	b := NewSparse(space)
	defer b.Close()

	var aCalls, bCalls int
	HandlerOf[ping](a).Subscribe(func(ping) { aCalls++ })
	HandlerOf[ping](b).Subscribe(func(ping) { bCalls++ })

	HandlerOf[ping](b).Publish(ping{})
	require.Equal(t, 0, aCalls)
	require.Equal(t, 1, bCalls)
}

func TestSparseCloseClearsSlotsForIndexReuse(t *testing.T) {
	space := NewSpace(typeid.NewRegistry())

	a := NewSparse(space)
	var leaked int
	HandlerOf[ping](a).Subscribe(func(ping) { leaked++ })
	HandlerOf[pong](a).Subscribe(func(pong) { leaked++ })
	aIndex := a.Index()
	require.NoError(t, a.Close())

	// B reuses A's freed dense index and must start from fresh, empty
	// registries for every type A touched.
	b := NewSparse(space)
	defer b.Close()
	require.Equal(t, aIndex, b.Index())

	require.Equal(t, 0, HandlerOf[ping](b).Len())
	require.Equal(t, 0, HandlerOf[pong](b).Len())
	HandlerOf[ping](b).Publish(ping{})
	require.Equal(t, 0, leaked)
}

func TestSparseCloseIsIdempotent(t *testing.T) {
	space := NewSpace(typeid.NewRegistry())
	s := NewSparse(space)
	HandlerOf[ping](s).Subscribe(func(ping) {})

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	require.Equal(t, 0, space.live())
}

func TestSparseHandleNeverReused(t *testing.T) {
	space := NewSpace(typeid.NewRegistry())

	a := NewSparse(space)
	require.NoError(t, a.Close())
	b := NewSparse(space)
	defer b.Close()

	require.NotEqual(t, a.handle, b.handle)
}

func TestSparseSlotGrowthLeavesOtherSlotsAlone(t *testing.T) {
	space := NewSpace(typeid.NewRegistry())

	a := NewSparse(space)
	defer a.Close()
	var aCalls int
	HandlerOf[ping](a).Subscribe(func(ping) { aCalls++ })

	// Growing the per-type slice for later instances must not disturb A's
	// live registry.
	b := NewSparse(space)
	defer b.Close()
	c := NewSparse(space)
	defer c.Close()
	HandlerOf[ping](c).Subscribe(func(ping) {})

	HandlerOf[ping](a).Publish(ping{})
	require.Equal(t, 1, aCalls)
}

func TestSparseLiveCountTracksInstances(t *testing.T) {
	space := NewSpace(typeid.NewRegistry())

	a := NewSparse(space)
	b := NewSparse(space)
	require.Equal(t, 2, space.live())

	require.NoError(t, a.Close())
	require.Equal(t, 1, space.live())
	require.NoError(t, b.Close())
	require.Equal(t, 0, space.live())
}

func TestSparseConcurrentResolutionAcrossInstances(t *testing.T) {
	space := NewSpace(typeid.NewRegistry())

	const instances = 8
	var wg sync.WaitGroup
	for i := 0; i < instances; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := NewSparse(space)
			defer s.Close()
			HandlerOf[ping](s).Subscribe(func(ping) {})
			HandlerOf[pong](s).Publish(pong{})
		}()
	}
	wg.Wait()
	require.Equal(t, 0, space.live())
}
