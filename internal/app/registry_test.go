package app

import (
	"fmt"
	"sync"
	"testing"

	"github.com/dkeye/Duet/internal/core"
	"github.com/dkeye/Duet/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubConn struct{ id core.ConnectionID }

func (s stubConn) ID() core.ConnectionID { return s.id }
func (s stubConn) TrySend(core.Frame) error { return nil }
func (s stubConn) Close() {}

func TestRegisterReplacesSilently(t *testing.T) {
	r := NewRegistry()
	c1, c2 := stubConn{"c1"}, stubConn{"c2"}

	prev, err := r.Register("u1", c1)
	require.NoError(t, err)
	assert.Nil(t, prev)

	prev, err = r.Register("u1", c2)
	require.NoError(t, err)
	assert.Equal(t, c1, prev)

	got, ok := r.Lookup("u1")
	require.True(t, ok)
	assert.Equal(t, core.ConnectionID("c2"), got.ID())
	assert.Equal(t, []domain.UserID{"u1"}, r.Online())
}

func TestRegisterRejectsInvalidIdentity(t *testing.T) {
	r := NewRegistry()
	for _, uid := range []domain.UserID{"", "undefined", "null", " u1"} {
		_, err := r.Register(uid, stubConn{"c"})
		assert.ErrorIs(t, err, domain.ErrInvalidIdentity)
	}
	assert.Zero(t, r.Count())
}

func TestUnregisterStaleIsNoop(t *testing.T) {
	r := NewRegistry()
	_, _ = r.Register("u1", stubConn{"c1"})
	_, _ = r.Register("u1", stubConn{"c2"})

	_, removed := r.Unregister("c1")
	assert.False(t, removed)
	_, ok := r.Lookup("u1")
	assert.True(t, ok)

	uid, removed := r.Unregister("c2")
	assert.True(t, removed)
	assert.Equal(t, domain.UserID("u1"), uid)
	_, ok = r.Lookup("u1")
	assert.False(t, ok)

	_, removed = r.Unregister("c2")
	assert.False(t, removed)
}

func TestOnlineSorted(t *testing.T) {
	r := NewRegistry()
	for _, u := range []domain.UserID{"u3", "u1", "u2"} {
		_, _ = r.Register(u, stubConn{core.ConnectionID("c-" + u)})
	}
	assert.Equal(t, []domain.UserID{"u1", "u2", "u3"}, r.Online())
	assert.Len(t, r.Connections(), 3)
}

func TestRegistryConcurrentOneConnectionPerUser(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := core.ConnectionID(fmt.Sprintf("c%d", i))
			_, _ = r.Register("u1", stubConn{id})
			if i%2 == 0 {
				r.Unregister(id)
			}
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, r.Count(), 1)
	if c, ok := r.Lookup("u1"); ok {
		uid, ok := r.UserOf(c.ID())
		require.True(t, ok)
		assert.Equal(t, domain.UserID("u1"), uid)
	}
}
