package frames

import (
	"runtime"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/GriffinCanCode/WalletKit/bridge/internal/shared/id"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	b := &Binding{Page: newFakePage("https://a.example"), FrameID: id.MainFrame}

	r.Register("s1", b)
	got, ok := r.Lookup("s1")
	require.True(t, ok)
	assert.Same(t, b, got)

	_, ok = r.Lookup("missing")
	assert.False(t, ok)

	r.Register("", b)
	r.Register("s2", nil)
	assert.Equal(t, 1, r.Len())
	runtime.KeepAlive(b)
}

func TestRegistryReplacesBinding(t *testing.T) {
	r := NewRegistry()
	page := newFakePage("https://a.example")
	first := &Binding{Page: page, FrameID: "f1"}
	second := &Binding{Page: page, FrameID: "f2"}

	r.Register("s", first)
	r.Register("s", second)

	got, ok := r.Lookup("s")
	require.True(t, ok)
	assert.Equal(t, id.FrameID("f2"), got.FrameID)
	assert.Empty(t, r.Sessions(first))
	runtime.KeepAlive(first)
	runtime.KeepAlive(second)
}

func TestRegistryForgetBinding(t *testing.T) {
	r := NewRegistry()
	page := newFakePage("https://a.example")
	a := &Binding{Page: page, FrameID: "a"}
	b := &Binding{Page: page, FrameID: "b"}

	r.Register("s1", a)
	r.Register("s2", a)
	r.Register("s3", b)

	sessions := r.Sessions(a)
	sort.Strings(sessions)
	assert.Equal(t, []string{"s1", "s2"}, sessions)

	removed := r.ForgetBinding(a)
	sort.Strings(removed)
	assert.Equal(t, []string{"s1", "s2"}, removed)
	assert.Equal(t, 1, r.Len())
	assert.Nil(t, r.ForgetBinding(nil))

	r.Forget("s3")
	assert.Equal(t, 0, r.Len())
	runtime.KeepAlive(b)
}

func TestRegistryDoesNotKeepBindingsAlive(t *testing.T) {
	r := NewRegistry()
	func() {
		b := &Binding{Page: newFakePage("https://gone.example"), FrameID: id.MainFrame}
		r.Register("ephemeral", b)
	}()

	require.Eventually(t, func() bool {
		runtime.GC()
		_, ok := r.Lookup("ephemeral")
		return !ok
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, r.Len())
}

func TestRegistryOnChange(t *testing.T) {
	r := NewRegistry()
	var last atomic.Int64
	last.Store(-1)
	r.OnChange(func(n int) { last.Store(int64(n)) })

	b := &Binding{Page: newFakePage("https://a.example"), FrameID: id.MainFrame}
	r.Register("s1", b)
	assert.EqualValues(t, 1, last.Load())
	r.Register("s2", b)
	assert.EqualValues(t, 2, last.Load())
	r.ForgetBinding(b)
	assert.EqualValues(t, 0, last.Load())
}
