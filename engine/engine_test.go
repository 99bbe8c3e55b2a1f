package engine

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tjmonk/varmsg/definition"
	"github.com/tjmonk/varmsg/render"
	"github.com/tjmonk/varmsg/sink"
	"github.com/tjmonk/varmsg/varstore"
)

type fixture struct {
	store    *varstore.MemStore
	registry *definition.Registry
	loader   *definition.Loader
	stdout   *bytes.Buffer
	engine   *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := varstore.NewMemStore()
	store.Define(varstore.VarDef{Name: "x", Value: "1"})
	store.Define(varstore.VarDef{Name: "y", Value: "hello"})

	stdout := &bytes.Buffer{}
	registry := definition.NewRegistry()

	return &fixture{
		store:    store,
		registry: registry,
		loader:   definition.NewLoader(store, sink.Options{Stdout: stdout}, nil),
		stdout:   stdout,
		engine:   New(registry, store, render.New(store, nil), nil),
	}
}

func (f *fixture) load(t *testing.T, name, doc string) *definition.Definition {
	t.Helper()
	def, err := f.loader.FromDocument(context.Background(), name, []byte(doc))
	require.NoError(t, err)
	f.registry.Add(def)
	return def
}

func TestEngine_Pulse(t *testing.T) {
	ctx := context.Background()

	t.Run("fires on the interval", func(t *testing.T) {
		f := newFixture(t)
		f.load(t, "msg1", `{"enabled":true,"interval":2,"output_type":"stdout","vars":["x"]}`)

		for i := 0; i < 6; i++ {
			f.engine.Pulse(ctx)
		}

		lines := strings.Count(f.stdout.String(), "\n")
		assert.Equal(t, 3, lines)
		assert.Contains(t, f.stdout.String(), `{ "x":"1"}`)
	})

	t.Run("disabled definition stays silent", func(t *testing.T) {
		f := newFixture(t)
		f.load(t, "msg1", `{"enabled":false,"interval":1,"output_type":"stdout","vars":["x"]}`)

		for i := 0; i < 5; i++ {
			f.engine.Pulse(ctx)
		}
		assert.Empty(t, f.stdout.String())
	})

	t.Run("zero interval never fires", func(t *testing.T) {
		f := newFixture(t)
		f.load(t, "msg1", `{"enabled":true,"interval":0,"output_type":"stdout","vars":["x"]}`)

		for i := 0; i < 5; i++ {
			f.engine.Pulse(ctx)
		}
		assert.Empty(t, f.stdout.String())
	})

	t.Run("trigger changes never fire a generation", func(t *testing.T) {
		f := newFixture(t)
		def := f.load(t, "msg1", `{
			"enabled": true,
			"interval": 0,
			"output_type": "stdout",
			"trigger": ["x"],
			"vars": ["y"]
		}`)
		require.NotNil(t, def.TriggerSet)
		assert.Equal(t, 1, def.TriggerSet.Len())

		h, err := f.store.FindByName(ctx, "x")
		require.NoError(t, err)

		// Scheduling is interval-driven only: mutating a trigger
		// variable between pulses produces nothing.
		for i := 0; i < 5; i++ {
			require.NoError(t, f.store.SetValue(ctx, h, fmt.Sprintf("%d", i)))
			f.engine.Pulse(ctx)
		}
		assert.Empty(t, f.stdout.String())
	})

	t.Run("enable control variable pauses and resumes", func(t *testing.T) {
		f := newFixture(t)
		f.load(t, "msg1", `{
			"enabled": true,
			"prefix": "/varmsg/msg1",
			"interval": 1,
			"output_type": "stdout",
			"vars": ["x"]
		}`)

		f.engine.Pulse(ctx)
		assert.Equal(t, 1, strings.Count(f.stdout.String(), "\n"))

		h, err := f.store.FindByName(ctx, "/varmsg/msg1/enable")
		require.NoError(t, err)
		require.NoError(t, f.store.SetValue(ctx, h, "0"))

		f.engine.Pulse(ctx)
		f.engine.Pulse(ctx)
		assert.Equal(t, 1, strings.Count(f.stdout.String(), "\n"))

		require.NoError(t, f.store.SetValue(ctx, h, "1"))
		f.engine.Pulse(ctx)
		assert.Equal(t, 2, strings.Count(f.stdout.String(), "\n"))
	})

	t.Run("rescan control variable refreshes the body set", func(t *testing.T) {
		f := newFixture(t)
		f.store.Define(varstore.VarDef{Name: "/net/rx", Value: "10", Tags: []string{"net"}})
		f.load(t, "msg1", `{
			"enabled": true,
			"prefix": "/varmsg/msg1",
			"interval": 1,
			"output_type": "stdout",
			"vars": {"tags": "net"}
		}`)

		f.engine.Pulse(ctx)
		assert.NotContains(t, f.stdout.String(), "/net/tx")

		f.store.Define(varstore.VarDef{Name: "/net/tx", Value: "20", Tags: []string{"net"}})
		h, err := f.store.FindByName(ctx, "/varmsg/msg1/rescan")
		require.NoError(t, err)
		require.NoError(t, f.store.SetValue(ctx, h, "1"))

		f.stdout.Reset()
		f.engine.Pulse(ctx)
		assert.Contains(t, f.stdout.String(), `"/net/tx":"20"`)

		// The switch clears itself
		value, err := f.store.GetValue(ctx, h)
		require.NoError(t, err)
		assert.Equal(t, "0", value)
	})

	t.Run("broken definition does not stall its siblings", func(t *testing.T) {
		f := newFixture(t)
		bad := f.store.Define(varstore.VarDef{Name: "flaky", Value: "?"})
		f.load(t, "broken", `{
			"enabled": true,
			"prefix": "/varmsg/broken",
			"interval": 1,
			"output_type": "stdout",
			"vars": ["flaky"]
		}`)
		f.load(t, "healthy", `{"enabled":true,"interval":1,"output_type":"stdout","vars":["y"]}`)
		f.store.SetPrintError(bad, fmt.Errorf("variable unavailable"))

		f.engine.Pulse(ctx)

		assert.Contains(t, f.stdout.String(), `{ "y":"hello"}`)
		assert.NotContains(t, f.stdout.String(), "flaky")

		// The failure lands on the broken definition's error counter
		h, err := f.store.FindByName(ctx, "/varmsg/broken/errcount")
		require.NoError(t, err)
		value, err := f.store.GetValue(ctx, h)
		require.NoError(t, err)
		assert.Equal(t, "1", value)
	})

	t.Run("latest loaded definition is processed first", func(t *testing.T) {
		f := newFixture(t)
		f.load(t, "first", `{"enabled":true,"interval":1,"output_type":"stdout","vars":["x"]}`)
		f.load(t, "second", `{"enabled":true,"interval":1,"output_type":"stdout","vars":["y"]}`)

		f.engine.Pulse(ctx)

		out := f.stdout.String()
		assert.Less(t, strings.Index(out, `"y"`), strings.Index(out, `"x"`))
	})

	t.Run("tx counter is published after each generation", func(t *testing.T) {
		f := newFixture(t)
		f.load(t, "msg1", `{
			"enabled": true,
			"prefix": "/varmsg/msg1",
			"interval": 1,
			"output_type": "stdout",
			"vars": ["x"]
		}`)

		f.engine.Pulse(ctx)
		f.engine.Pulse(ctx)

		h, err := f.store.FindByName(ctx, "/varmsg/msg1/txcount")
		require.NoError(t, err)
		value, err := f.store.GetValue(ctx, h)
		require.NoError(t, err)
		assert.Equal(t, "2", value)
	})
}

func TestEngine_Run(t *testing.T) {
	f := newFixture(t)
	f.load(t, "msg1", `{"enabled":true,"interval":1,"output_type":"stdout","vars":["x"]}`)
	f.engine.pulse = 5 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := f.engine.Run(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, f.stdout.String())
}

func TestEngine_WithPulse(t *testing.T) {
	e := New(definition.NewRegistry(), varstore.NewMemStore(), nil, nil,
		WithPulse(250*time.Millisecond))
	assert.Equal(t, 250*time.Millisecond, e.pulse)

	// Non-positive values keep the default
	e = New(definition.NewRegistry(), varstore.NewMemStore(), nil, nil, WithPulse(0))
	assert.Equal(t, DefaultPulse, e.pulse)
}
