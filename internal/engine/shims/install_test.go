package shims

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/GriffinCanCode/WalletKit/bridge/internal/storage"
	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type installed struct {
	vm    *goja.Runtime
	lane  *recordingLane
	set   *Set
	store *storage.MemoryStore
}

func install(t *testing.T) *installed {
	t.Helper()
	lane := newRecordingLane()
	store := storage.NewMemoryStore()
	set := New(lane, Options{Client: testClient(), Store: store, StoragePrefix: "walletkit:"})
	vm := goja.New()
	_, err := set.Install(vm)
	require.NoError(t, err)
	t.Cleanup(set.Shutdown)
	return &installed{vm: vm, lane: lane, set: set, store: store}
}

// deliver runs a recorded hook on the vm the way the engine lane would
func (in *installed) deliver(t *testing.T, inv invocation) {
	t.Helper()
	parts := strings.Split(inv.path, ".")
	obj := in.vm.Get(parts[0]).ToObject(in.vm)
	fn, ok := goja.AssertFunction(obj.Get(parts[1]))
	require.True(t, ok, inv.path)

	args := make([]goja.Value, len(inv.args))
	for i, a := range inv.args {
		args[i] = in.vm.ToValue(a)
	}
	_, err := fn(obj, args...)
	require.NoError(t, err)
}

func (in *installed) eval(t *testing.T, src string) goja.Value {
	t.Helper()
	v, err := in.vm.RunString(src)
	require.NoError(t, err)
	return v
}

func TestInstallPublishesGlobals(t *testing.T) {
	in := install(t)

	for _, name := range []string{
		"setTimeout", "clearTimeout", "setInterval", "queueMicrotask", "fetch",
		"Headers", "Response", "AbortController", "EventSource", "localStorage",
		"atob", "btoa", "TextEncoder", "TextDecoder", "WalletKitCrypto", NativeObject,
	} {
		assert.False(t, goja.IsUndefined(in.vm.Get(name)), name)
	}
	assert.Equal(t, "function", in.eval(t, "typeof crypto.getRandomValues").String())
}

func TestPreludeTimers(t *testing.T) {
	in := install(t)

	in.eval(t, `var fired = []; setTimeout(function (a, b) { fired.push(a + b); }, 1, 2, 3);`)
	inv := in.lane.nextOf(t, hookTimerFire)
	in.deliver(t, inv)
	assert.Equal(t, int64(5), in.eval(t, "fired[0]").ToInteger())

	in.deliver(t, inv)
	assert.Equal(t, int64(1), in.eval(t, "fired.length").ToInteger())
}

func TestPreludeClearTimeout(t *testing.T) {
	in := install(t)

	in.eval(t, `var hit = false; var id = setTimeout(function () { hit = true; }, 50); clearTimeout(id);`)
	assert.Equal(t, 0, in.set.Timers.Active())

	in.deliver(t, invocation{path: hookTimerFire, args: []any{in.eval(t, "id").ToInteger()}})
	assert.False(t, in.eval(t, "hit").ToBoolean())
}

func TestPreludeFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Echo", r.Header.Get("X-Api-Key"))
		_, _ = w.Write([]byte(`{"ok":true,"method":"` + r.Method + `"}`))
	}))
	defer srv.Close()

	in := install(t)
	require.NoError(t, in.vm.Set("target", srv.URL))

	in.eval(t, `
		var result = null, echoed = null;
		fetch(target, { method: 'post', headers: { 'X-Api-Key': 'k1' }, body: '{}' })
			.then(function (r) { echoed = r.headers.get('x-echo'); return r.json(); })
			.then(function (body) { result = body; });
	`)

	in.deliver(t, in.lane.nextOf(t, hookFetchResolve))
	assert.True(t, in.eval(t, "result.ok").ToBoolean())
	assert.Equal(t, "POST", in.eval(t, "result.method").String())
	assert.Equal(t, "k1", in.eval(t, "echoed").String())
}

func TestPreludeFetchAbort(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	in := install(t)
	require.NoError(t, in.vm.Set("target", srv.URL))

	in.eval(t, `
		var failure = null;
		var controller = new AbortController();
		fetch(target, { signal: controller.signal }).catch(function (err) { failure = err; });
		controller.abort();
	`)

	in.deliver(t, in.lane.nextOf(t, hookFetchReject))
	assert.Equal(t, "AbortError", in.eval(t, "failure.name").String())
}

func TestPreludeLocalStorage(t *testing.T) {
	in := install(t)

	in.eval(t, `localStorage.setItem('wallets', '[1]'); localStorage.setItem('config', 'x');`)
	raw, ok, err := in.store.Get("walletkit:wallets")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "[1]", raw)

	assert.Equal(t, int64(2), in.eval(t, "localStorage.length").ToInteger())
	assert.Equal(t, "config", in.eval(t, "localStorage.key(0)").String())
	assert.True(t, goja.IsNull(in.eval(t, "localStorage.getItem('missing')")))

	in.eval(t, `localStorage.removeItem('config')`)
	assert.Equal(t, int64(1), in.eval(t, "localStorage.length").ToInteger())
}

func TestPreludeEncodingAndCrypto(t *testing.T) {
	in := install(t)

	assert.Equal(t, "aGVsbG8=", in.eval(t, "btoa('hello')").String())
	assert.Equal(t, "hello", in.eval(t, "atob('aGVsbG8=')").String())
	assert.Equal(t, "h\u00e9llo", in.eval(t, "new TextDecoder().decode(new TextEncoder().encode('h\\u00e9llo'))").String())
	assert.Equal(t, int64(6), in.eval(t, "new TextEncoder().encode('h\\u00e9llo').length").ToInteger())

	hexDigest := in.eval(t, `
		(function () {
			var bytes = WalletKitCrypto.sha256('abc'), out = '';
			for (var i = 0; i < bytes.length; i++) out += ('0' + bytes[i].toString(16)).slice(-2);
			return out;
		})()
	`).String()
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", hexDigest)

	assert.Equal(t, int64(16), in.eval(t, "crypto.getRandomValues(new Uint8Array(16)).length").ToInteger())
	assert.Len(t, in.eval(t, "crypto.randomUUID()").String(), 36)

	_, err := in.vm.RunString("btoa('\\u20ac')")
	assert.Error(t, err)
}

func TestPreludeEventSource(t *testing.T) {
	in := install(t)

	in.eval(t, `
		var seen = [];
		var es = new EventSource('http://127.0.0.1:1/events');
		es.onopen = function () { seen.push('open'); };
		es.addEventListener('tick', function (e) { seen.push(e.data + '@' + e.lastEventId); });
		es.onerror = function () { seen.push('error:' + es.readyState); };
	`)
	id := in.eval(t, "es._id").ToInteger()

	in.deliver(t, invocation{path: hookStreamOpen, args: []any{id}})
	in.deliver(t, invocation{path: hookStreamMessage, args: []any{id, "tick", "1", "7"}})
	in.deliver(t, invocation{path: hookStreamError, args: []any{id, "gone", noReconnect}})

	assert.Equal(t, "open,1@7,error:2", in.eval(t, "seen.join(',')").String())
	assert.Equal(t, int64(2), in.eval(t, "es.readyState").ToInteger())
}
