package registry_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depotfs/depot/internal/model"
	"github.com/depotfs/depot/internal/registry"
)

func TestRegisterLookupRemove(t *testing.T) {
	tbl := registry.New[int]()

	require.NoError(t, tbl.Register("a", 1))
	v, ok := tbl.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	assert.True(t, tbl.Remove("a"))
	_, ok = tbl.Lookup("a")
	assert.False(t, ok)
	assert.False(t, tbl.Remove("a"))
}

func TestRegisterConflict(t *testing.T) {
	tbl := registry.New[string]()

	require.NoError(t, tbl.Register("x", "first"))
	err := tbl.Register("x", "second")
	assert.ErrorIs(t, err, model.ErrNameConflict)

	v, ok := tbl.Lookup("x")
	require.True(t, ok)
	assert.Equal(t, "first", v)
}

func TestConcurrentAccess(t *testing.T) {
	tbl := registry.New[int]()

	const n = 200
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			name := fmt.Sprintf("job-%d", i)
			if err := tbl.Register(name, i); err != nil {
				t.Errorf("register %s: %v", name, err)
				return
			}
			v, ok := tbl.Lookup(name)
			if !ok || v != i {
				t.Errorf("lookup %s: got %v %v", name, v, ok)
			}
			if i%2 == 0 {
				tbl.Remove(name)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, n/2, tbl.Len())
}
