// Tests for the State Registry operations.
package registry

import (
	"bytes"
	"log/slog"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/keepstate/internal/memory"
	"github.com/mesh-intelligence/keepstate/pkg/types"
)

func TestRegistry_RegisterDuplicateKey(t *testing.T) {
	reg := New(memory.New())
	first := MapAccessor{"a": "one"}
	require.NoError(t, reg.Register(first, "svc", types.Bare{Name: "a"}))

	err := reg.Register(MapAccessor{"b": "two"}, "svc", types.Bare{Name: "b"})
	require.ErrorIs(t, err, types.ErrDuplicateKey)

	fields, err := reg.Fields("svc")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, fields, "first registration must be unchanged")
}

func TestRegistry_RegisterInvalid(t *testing.T) {
	tests := []struct {
		name     string
		instance types.Accessor
		keyName  string
		specs    []types.FieldSpec
		want     error
	}{
		{
			name:     "empty key name",
			instance: MapAccessor{},
			keyName:  "",
			specs:    types.Fields("a"),
			want:     types.ErrInvalidKeyName,
		},
		{
			name:     "nil accessor",
			instance: nil,
			keyName:  "svc",
			specs:    types.Fields("a"),
			want:     types.ErrInvalidField,
		},
		{
			name:     "empty field name",
			instance: MapAccessor{},
			keyName:  "svc",
			specs:    []types.FieldSpec{types.Bare{Name: "a"}, types.WithDefault{Name: ""}},
			want:     types.ErrInvalidField,
		},
		{
			name:     "nil spec",
			instance: MapAccessor{},
			keyName:  "svc",
			specs:    []types.FieldSpec{types.Bare{Name: "a"}, nil},
			want:     types.ErrInvalidField,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := New(memory.New())
			err := reg.Register(tt.instance, tt.keyName, tt.specs...)
			require.ErrorIs(t, err, tt.want)
			assert.False(t, reg.Registered(tt.keyName), "failed registration must not be recorded")
		})
	}
}

func TestRegistry_RegisterRepeatedFieldReplaces(t *testing.T) {
	reg := New(memory.New())
	acc := MapAccessor{}
	require.NoError(t, reg.Register(acc, "svc",
		types.WithDefault{Name: "a", Value: "first"},
		types.Bare{Name: "b"},
		types.WithDefault{Name: "a", Value: "second"},
	))

	fields, err := reg.Fields("svc")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, fields)

	require.NoError(t, reg.RecoverState("svc"))
	assert.Equal(t, "second", acc["a"])
}

func TestRegistry_RegisterDoesNotTouchStore(t *testing.T) {
	store := newRecordingStore()
	reg := New(store)
	acc := newRecordingAccessor(map[string]any{"a": "x"})

	require.NoError(t, reg.Register(acc, "svc", types.Fields("a")...))
	assert.Empty(t, store.recorded())
	assert.Empty(t, acc.touched)
}

func TestRegistry_NotRegistered(t *testing.T) {
	reg := New(memory.New())

	ops := map[string]func() error{
		"SaveState":       func() error { return reg.SaveState("nope") },
		"RecoverState":    func() error { return reg.RecoverState("nope") },
		"ResetState":      func() error { return reg.ResetState("nope") },
		"ResetToDefaults": func() error { return reg.ResetToDefaults("nope") },
		"ClearStorage":    func() error { return reg.ClearStorage("nope") },
		"PruneExpired":    func() error { _, err := reg.PruneExpired("nope"); return err },
		"Fields":          func() error { _, err := reg.Fields("nope"); return err },
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, op(), types.ErrNotRegistered)
		})
	}
}

func TestRegistry_SaveRecoverRoundTrip(t *testing.T) {
	store := memory.New()

	saved := MapAccessor{
		"name":  "alice",
		"count": 42.0,
		"tags":  []any{"a", "b"},
		"prefs": map[string]any{"theme": "dark", "size": 3.0},
		"on":    true,
	}
	specs := types.Fields("name", "count", "tags", "prefs", "on")

	reg := New(store, WithNamespace("app"))
	require.NoError(t, reg.Register(saved, "svc", specs...))
	require.NoError(t, reg.SaveState("svc"))

	// A fresh registry and instance, as after a reload.
	restored := MapAccessor{}
	reg2 := New(store, WithNamespace("app"))
	require.NoError(t, reg2.Register(restored, "svc", specs...))
	require.NoError(t, reg2.RecoverState("svc"))

	assert.Equal(t, saved, restored)
}

func TestRegistry_SaveWritesNamespacedEnvelope(t *testing.T) {
	store := memory.New()
	reg := New(store, WithNamespace("app"))
	require.NoError(t, reg.Register(MapAccessor{"cart": []any{"x"}}, "svc", types.Fields("cart")...))
	require.NoError(t, reg.SaveState("svc"))

	raw, ok, err := store.Get("app.cart")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"value":["x"]}`, raw)
	assert.Equal(t, "app.cart", reg.StorageKey("cart"))
	assert.Equal(t, "app.", reg.Namespace())
}

func TestRegistry_SaveAbsentRemoves(t *testing.T) {
	store := memory.New()
	require.NoError(t, store.Set("missing", `{"value":1}`))
	require.NoError(t, store.Set("nilmap", `{"value":{}}`))

	var nilMap map[string]any
	reg := New(store)
	require.NoError(t, reg.Register(MapAccessor{"nilmap": nilMap}, "svc", types.Fields("missing", "nilmap")...))
	require.NoError(t, reg.SaveState("svc"))

	keys, err := store.Keys()
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestRegistry_SaveStoreErrorAborts(t *testing.T) {
	store := &failingStore{Store: memory.New(), failSet: true}
	reg := New(store)
	require.NoError(t, reg.Register(MapAccessor{"a": 1, "b": 2}, "svc", types.Fields("a", "b")...))

	err := reg.SaveState("svc")
	require.ErrorIs(t, err, errBroken)
	assert.Contains(t, err.Error(), `"a"`)
}

func TestRegistry_RecoverStoreErrorReturned(t *testing.T) {
	store := &failingStore{Store: memory.New(), failGet: true}
	reg := New(store)
	require.NoError(t, reg.Register(MapAccessor{}, "svc", types.Fields("a")...))

	assert.ErrorIs(t, reg.RecoverState("svc"), errBroken)
}

func TestRegistry_DefaultFallback(t *testing.T) {
	defaultPrefs := map[string]any{"theme": "light"}
	acc := MapAccessor{"theme": "blue"}

	reg := New(memory.New())
	require.NoError(t, reg.Register(acc, "svc",
		types.WithDefault{Name: "theme", Value: "dark"},
		types.WithDefault{Name: "prefs", Value: defaultPrefs},
		types.Bare{Name: "plain"},
	))
	require.NoError(t, reg.RecoverState("svc"))

	assert.Equal(t, "dark", acc["theme"])
	assert.Equal(t, defaultPrefs, acc["prefs"])
	assert.NotContains(t, acc, "plain")

	// Defaults are cloned so the registered value stays pristine.
	acc["prefs"].(map[string]any)["theme"] = "changed"
	assert.Equal(t, "light", defaultPrefs["theme"])
}

func TestRegistry_FalsyDefaultIsNoDefault(t *testing.T) {
	for _, v := range []any{nil, false, 0, 0.0, ""} {
		acc := MapAccessor{"f": "existing"}
		reg := New(memory.New())
		require.NoError(t, reg.Register(acc, "svc", types.WithDefault{Name: "f", Value: v}))
		require.NoError(t, reg.RecoverState("svc"))
		assert.NotContains(t, acc, "f", "default %#v", v)
	}
}

func TestRegistry_UnregisteredFieldsUntouched(t *testing.T) {
	store := memory.New()
	acc := newRecordingAccessor(map[string]any{"a": "1", "b": "2", "secret": "s"})

	reg := New(store)
	require.NoError(t, reg.Register(acc, "svc", types.Fields("a", "b")...))
	require.NoError(t, reg.SaveState("svc"))
	require.NoError(t, reg.RecoverState("svc"))
	require.NoError(t, reg.ResetState("svc"))
	require.NoError(t, reg.ResetToDefaults("svc"))
	require.NoError(t, reg.ClearStorage("svc"))

	assert.NotContains(t, acc.touched, "secret")
	assert.Equal(t, "s", acc.MapAccessor["secret"])
}

func TestRegistry_IdentityShortCircuit(t *testing.T) {
	stuff := map[string]any{"a": 1.0}
	acc := MapAccessor{"stuff": stuff}
	spy := &spyCopier{}
	store := memory.New()

	reg := New(store, WithCopier(spy))
	require.NoError(t, reg.Register(acc, "svc", types.WithDefault{Name: "stuff", Value: stuff}))

	require.NoError(t, reg.RecoverState("svc"))
	assert.Zero(t, spy.calls, "default identical to current must not be copied")

	// A stored snapshot is merged into the live map.
	require.NoError(t, store.Set("stuff", `{"value":{"b":2}}`))
	require.NoError(t, reg.RecoverState("svc"))
	assert.Equal(t, 1, spy.calls)
	assert.Equal(t, reflect.ValueOf(stuff).Pointer(), reflect.ValueOf(acc["stuff"]).Pointer())
	assert.Equal(t, map[string]any{"b": 2.0}, stuff)
}

func TestRegistry_IdenticalScalarSkipsSet(t *testing.T) {
	store := memory.New()
	require.NoError(t, store.Set("n", `{"value":5}`))

	sets := 0
	value := any(5.0)
	acc := Bindings{"n": {
		Get: func() any { return value },
		Set: func(v any) error { sets++; value = v; return nil },
	}}

	reg := New(store)
	require.NoError(t, reg.Register(acc, "svc", types.Fields("n")...))
	require.NoError(t, reg.RecoverState("svc"))
	assert.Zero(t, sets)
}

func TestRegistry_Expiration(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	store := memory.New()
	acc := MapAccessor{"token": "abc"}

	reg := New(store, WithClock(clock.Now))
	require.NoError(t, reg.Register(acc, "svc",
		types.WithExpiry{Name: "token", Value: "none", TTL: 1500 * time.Millisecond},
	))
	require.NoError(t, reg.SaveState("svc"))

	raw, _, err := store.Get("token")
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":"abc","expire":"2026-01-02T03:04:06.500Z"}`, raw)

	acc["token"] = "changed"
	clock.Advance(time.Second)
	require.NoError(t, reg.RecoverState("svc"))
	assert.Equal(t, "abc", acc["token"], "live entry applies")

	acc["token"] = "changed"
	clock.Advance(500 * time.Millisecond)
	require.NoError(t, reg.RecoverState("svc"))
	assert.Equal(t, "none", acc["token"], "entry expiring exactly now is expired")

	_, ok, err := store.Get("token")
	require.NoError(t, err)
	assert.True(t, ok, "expired entries are not deleted by recovery")
}

func TestRegistry_ExpiryWithoutTTL(t *testing.T) {
	store := memory.New()
	reg := New(store)
	require.NoError(t, reg.Register(MapAccessor{"a": "x"}, "svc", types.WithExpiry{Name: "a", TTL: -time.Second}))
	require.NoError(t, reg.SaveState("svc"))

	raw, _, err := store.Get("a")
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":"x"}`, raw)
}

func TestRegistry_ClearStorageScoped(t *testing.T) {
	store := memory.New()
	require.NoError(t, store.Set("foreign", "keep me"))

	a := MapAccessor{"x": 1, "y": 2}
	b := MapAccessor{"z": 3}
	reg := New(store)
	require.NoError(t, reg.Register(a, "a", types.Fields("x", "y")...))
	require.NoError(t, reg.Register(b, "b", types.Fields("z")...))
	require.NoError(t, reg.SaveState("a"))
	require.NoError(t, reg.SaveState("b"))

	require.NoError(t, reg.ClearStorage("a"))

	keys, err := store.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"foreign", "z"}, keys)
	assert.Equal(t, MapAccessor{"x": 1, "y": 2}, a, "instance must not change")
}

func TestRegistry_ResetStateRecoversThenClears(t *testing.T) {
	store := newRecordingStore()
	acc := MapAccessor{"x": "saved", "y": "saved"}
	reg := New(store, WithNamespace("app"))
	require.NoError(t, reg.Register(acc, "svc", types.Fields("x", "y")...))
	require.NoError(t, reg.SaveState("svc"))

	acc["x"] = "dirty"
	store.reset()
	require.NoError(t, reg.ResetState("svc"))

	assert.Equal(t, []string{
		"get app.x", "get app.y",
		"remove app.x", "remove app.y",
	}, store.recorded())
	assert.Equal(t, "saved", acc["x"], "recovery runs before the clear")

	keys, err := store.Keys()
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestRegistry_ResetToDefaults(t *testing.T) {
	store := newRecordingStore()
	acc := MapAccessor{"theme": "saved", "note": "saved"}
	reg := New(store)
	require.NoError(t, reg.Register(acc, "svc",
		types.WithDefault{Name: "theme", Value: "dark"},
		types.Bare{Name: "note"},
	))
	require.NoError(t, reg.SaveState("svc"))

	store.reset()
	require.NoError(t, reg.ResetToDefaults("svc"))

	assert.Equal(t, MapAccessor{"theme": "dark"}, acc)
	assert.Equal(t, []string{"remove theme", "remove note"}, store.recorded(), "store is not read")
}

func TestRegistry_CorruptEntriesFallBack(t *testing.T) {
	tests := []struct {
		name   string
		stored string
	}{
		{name: "invalid json", stored: "{not json"},
		{name: "bad expire", stored: `{"value":"x","expire":"tomorrow"}`},
		{name: "wrong type", stored: `{"value":"not a number"}`},
		{name: "bare null", stored: `null`},
		{name: "bare array", stored: `[1,2]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))

			store := memory.New()
			require.NoError(t, store.Set("age", tt.stored))

			p := &profile{Age: 4}
			acc, err := BindStruct(p)
			require.NoError(t, err)

			reg := New(store, WithLogger(logger))
			require.NoError(t, reg.Register(acc, "svc", types.WithDefault{Name: "age", Value: 30}))
			require.NoError(t, reg.RecoverState("svc"))

			assert.Equal(t, 30, p.Age)
			assert.Contains(t, buf.String(), "level=WARN")
		})
	}
}

type counters struct {
	Hits  uint `json:"hits"`
	Age   int  `json:"age"`
	Small int8 `json:"small"`
}

func TestRegistry_NumbersThatDoNotFitFallBack(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))

	store := memory.New()
	require.NoError(t, store.Set("hits", `{"value":-1}`))
	require.NoError(t, store.Set("age", `{"value":1.5}`))
	require.NoError(t, store.Set("small", `{"value":300}`))

	c := &counters{Hits: 1, Age: 2, Small: 3}
	acc, err := BindStruct(c)
	require.NoError(t, err)

	reg := New(store, WithLogger(logger))
	require.NoError(t, reg.Register(acc, "svc",
		types.WithDefault{Name: "hits", Value: uint(10)},
		types.WithDefault{Name: "age", Value: 30},
		types.WithDefault{Name: "small", Value: int8(7)},
	))
	require.NoError(t, reg.RecoverState("svc"))

	assert.Equal(t, counters{Hits: 10, Age: 30, Small: 7}, *c)
	assert.Equal(t, 3, strings.Count(buf.String(), "level=WARN"))
}

func TestRegistry_WholeNumbersConvert(t *testing.T) {
	store := memory.New()
	require.NoError(t, store.Set("hits", `{"value":12}`))
	require.NoError(t, store.Set("small", `{"value":-128}`))

	c := &counters{}
	acc, err := BindStruct(c)
	require.NoError(t, err)

	reg := New(store)
	require.NoError(t, reg.Register(acc, "svc", types.Fields("hits", "small")...))
	require.NoError(t, reg.RecoverState("svc"))

	assert.Equal(t, uint(12), c.Hits)
	assert.Equal(t, int8(-128), c.Small)
}

func TestRegistry_RecoverSlicePointerInPlace(t *testing.T) {
	store := memory.New()
	require.NoError(t, store.Set("list", `{"value":["a","b"]}`))

	list := &[]string{"old"}
	acc := MapAccessor{"list": list}
	reg := New(store)
	require.NoError(t, reg.Register(acc, "svc", types.Fields("list")...))
	require.NoError(t, reg.RecoverState("svc"))

	assert.Same(t, list, acc["list"])
	assert.Equal(t, []string{"a", "b"}, *list)
}

func TestRegistry_RecoverPointerInPlace(t *testing.T) {
	store := memory.New()
	require.NoError(t, store.Set("prefs", `{"value":{"theme":"dark","size":12}}`))

	p := &profile{Prefs: &prefs{Theme: "light"}}
	held := p.Prefs
	acc, err := BindStruct(p)
	require.NoError(t, err)

	reg := New(store)
	require.NoError(t, reg.Register(acc, "svc", types.Fields("prefs")...))
	require.NoError(t, reg.RecoverState("svc"))

	assert.Same(t, held, p.Prefs)
	assert.Equal(t, prefs{Theme: "dark", Size: 12}, *held)
}

func TestRegistry_PruneExpired(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)}
	store := memory.New()
	require.NoError(t, store.Set("live", `{"value":1,"expire":"2026-05-02T00:00:00.000Z"}`))
	require.NoError(t, store.Set("old", `{"value":1,"expire":"2026-04-30T00:00:00.000Z"}`))
	require.NoError(t, store.Set("broken", `{`))
	require.NoError(t, store.Set("forever", `{"value":1}`))

	acc := MapAccessor{}
	reg := New(store, WithClock(clock.Now))
	require.NoError(t, reg.Register(acc, "svc", types.Fields("live", "old", "broken", "forever", "missing")...))

	removed, err := reg.PruneExpired("svc")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	keys, err := store.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"forever", "live"}, keys)
	assert.Empty(t, acc, "prune never touches the instance")
}
