package builder

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"yashubustudio/weatherdesk/internal/capability"
	"yashubustudio/weatherdesk/internal/platform"
)

type fakePlugin struct {
	name         string
	configureErr error
	section      *yaml.Node
	env          capability.Env
	configured   int
	events       []string
}

func (p *fakePlugin) Name() string { return p.name }

func (p *fakePlugin) Configure(section *yaml.Node, env capability.Env) error {
	p.configured++
	p.section = section
	p.env = env
	return p.configureErr
}

func (p *fakePlugin) Commands() map[string]capability.Command {
	return map[string]capability.Command{
		"ping": func(_ context.Context, call capability.Call) (any, error) {
			return map[string]string{"window": call.Window, "request": call.RequestID}, nil
		},
		"fail": func(context.Context, capability.Call) (any, error) {
			return nil, errors.New("boom")
		},
	}
}

func (p *fakePlugin) WindowCreated(w capability.Window) { p.events = append(p.events, "created:"+w.Label()) }
func (p *fakePlugin) WindowClosing(w capability.Window) { p.events = append(p.events, "closing:"+w.Label()) }
func (p *fakePlugin) Exiting()                          { p.events = append(p.events, "exiting") }

type fakeWindow struct{ label string }

func (w fakeWindow) Label() string                   { return w.label }
func (w fakeWindow) Geometry() capability.Geometry   { return capability.Geometry{} }
func (w fakeWindow) SetGeometry(capability.Geometry) {}

type fakeLoop struct {
	startErr error
	started  *Runtime
	ran      bool
}

func (l *fakeLoop) Start(rt *Runtime) error {
	l.started = rt
	return l.startErr
}

func (l *fakeLoop) Run() { l.ran = true }

const testConfig = `
identifier: io.example.app
productName: Example
app:
  windows:
    - label: main
    - label: about
capabilities:
  - identifier: main
    windows: [main]
    permissions: ["alpha:allow-ping", "alpha:allow-fail"]
  - identifier: desktop-only
    windows: ["*"]
    platforms: [desktop]
    permissions: ["beta:default"]
plugins:
  alpha:
    key: value
  gamma:
    ignored: true
`

func finalize(t *testing.T, v platform.Variant, plugins ...capability.Plugin) (*Runtime, error) {
	t.Helper()
	b := New(WithVariant(v), WithRegisterer(prometheus.NewRegistry()))
	for _, p := range plugins {
		require.NoError(t, b.Register(p))
	}
	return b.Finalize([]byte(testConfig))
}

func TestBuilder_PreservesRegistrationOrder(t *testing.T) {
	b := New()
	for _, n := range []string{"c", "a", "b"} {
		require.NoError(t, b.Register(&fakePlugin{name: n}))
	}
	assert.Equal(t, []string{"c", "a", "b"}, b.Plugins())
}

func TestBuilder_RegisterAfterFinalizeIsRejected(t *testing.T) {
	b := New(WithVariant(platform.Desktop))
	require.NoError(t, b.Register(&fakePlugin{name: "alpha"}))
	require.NoError(t, b.Register(&fakePlugin{name: "beta"}))
	_, err := b.Finalize([]byte(testConfig))
	require.NoError(t, err)

	assert.ErrorIs(t, b.Register(&fakePlugin{name: "late"}), ErrFinalized)
	_, err = b.Finalize([]byte(testConfig))
	assert.ErrorIs(t, err, ErrFinalized)
}

func TestBuilder_FailedFinalizeStillConsumes(t *testing.T) {
	b := New()
	_, err := b.Finalize([]byte("not: [valid"))
	require.Error(t, err)
	assert.ErrorIs(t, b.Register(&fakePlugin{name: "alpha"}), ErrFinalized)
}

func TestBuilder_RejectsNilPlugin(t *testing.T) {
	assert.Error(t, New().Register(nil))
}

func TestFinalize_ConfiguresPluginsWithTheirSection(t *testing.T) {
	alpha := &fakePlugin{name: "alpha"}
	beta := &fakePlugin{name: "beta"}
	rt, err := finalize(t, platform.Desktop, alpha, beta)
	require.NoError(t, err)

	assert.Equal(t, 1, alpha.configured)
	require.NotNil(t, alpha.section)
	assert.Nil(t, beta.section)
	assert.Equal(t, "io.example.app", alpha.env.Identifier)
	require.Len(t, alpha.env.Windows, 2)
	assert.Equal(t, "main", alpha.env.Windows[0].Label)

	assert.Equal(t, []string{"alpha", "beta"}, rt.Plugins())
	assert.Equal(t, platform.Desktop, rt.Variant())
	assert.Equal(t, "Example", rt.ProductName())
	assert.True(t, rt.HasPlugin("beta"))
	assert.False(t, rt.HasPlugin("gamma"))
}

func TestFinalize_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name    string
		variant platform.Variant
		config  string
		plugins []capability.Plugin
	}{
		{
			name:    "MalformedYAML",
			config:  "identifier: [",
			plugins: []capability.Plugin{&fakePlugin{name: "alpha"}},
		},
		{
			name:    "DuplicatePlugin",
			config:  testConfig,
			plugins: []capability.Plugin{&fakePlugin{name: "alpha"}, &fakePlugin{name: "beta"}, &fakePlugin{name: "alpha"}},
		},
		{
			name:    "PermissionForUnregisteredPlugin",
			variant: platform.Desktop,
			config:  testConfig,
			plugins: []capability.Plugin{&fakePlugin{name: "alpha"}},
		},
		{
			name:    "UnknownCommand",
			config:  "identifier: io.example.app\nproductName: X\napp:\n  windows: [{label: main}]\ncapabilities:\n  - identifier: c\n    windows: [main]\n    permissions: [alpha:allow-launch]\n",
			plugins: []capability.Plugin{&fakePlugin{name: "alpha"}},
		},
		{
			name:    "PersistGeometryWithoutWindowState",
			variant: platform.Mobile,
			config:  "identifier: io.example.app\nproductName: X\napp:\n  windows: [{label: main, persistGeometry: true}]\n",
			plugins: []capability.Plugin{&fakePlugin{name: "shell"}},
		},
		{
			name:    "PluginRejectsSection",
			config:  "identifier: io.example.app\nproductName: X\napp:\n  windows: [{label: main}]\n",
			plugins: []capability.Plugin{&fakePlugin{name: "alpha", configureErr: errors.New("bad section")}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New(WithVariant(tt.variant))
			for _, p := range tt.plugins {
				require.NoError(t, b.Register(p))
			}
			rt, err := b.Finalize([]byte(tt.config))
			assert.Nil(t, rt)
			var cfgErr *ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.NotEmpty(t, cfgErr.Error())
		})
	}
}

func TestFinalize_PlatformScopedCapabilitySkippedOnMobile(t *testing.T) {
	rt, err := finalize(t, platform.Mobile, &fakePlugin{name: "alpha"})
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha"}, rt.Plugins())
}

func TestFinalize_PersistGeometryAcceptedWithWindowState(t *testing.T) {
	b := New(WithVariant(platform.Desktop))
	require.NoError(t, b.Register(&fakePlugin{name: capability.WindowStatePlugin}))
	_, err := b.Finalize([]byte("identifier: io.example.app\nproductName: X\napp:\n  windows: [{label: main, persistGeometry: true}]\n"))
	assert.NoError(t, err)
}

func TestRuntime_WindowsIsACopy(t *testing.T) {
	rt, err := finalize(t, platform.Desktop, &fakePlugin{name: "alpha"}, &fakePlugin{name: "beta"})
	require.NoError(t, err)

	ws := rt.Windows()
	ws[0].Label = "mutated"
	assert.Equal(t, "main", rt.Windows()[0].Label)
}

func TestRuntime_Invoke(t *testing.T) {
	reg := prometheus.NewRegistry()
	b := New(WithVariant(platform.Desktop), WithRegisterer(reg))
	require.NoError(t, b.Register(&fakePlugin{name: "alpha"}))
	require.NoError(t, b.Register(&fakePlugin{name: "beta"}))
	rt, err := b.Finalize([]byte(testConfig))
	require.NoError(t, err)
	ctx := context.Background()

	out, err := rt.Invoke(ctx, "main", "plugin:alpha|ping", nil)
	require.NoError(t, err)
	var res map[string]string
	require.NoError(t, json.Unmarshal(out, &res))
	assert.Equal(t, "main", res["window"])
	assert.Len(t, res["request"], 36)

	// beta:default is granted to every window on desktop.
	_, err = rt.Invoke(ctx, "about", "plugin:beta|ping", nil)
	assert.NoError(t, err)

	_, err = rt.Invoke(ctx, "about", "plugin:alpha|ping", nil)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = rt.Invoke(ctx, "main", "plugin:alpha|missing", nil)
	assert.ErrorIs(t, err, ErrUnknownCommand)
	_, err = rt.Invoke(ctx, "main", "alpha.ping", nil)
	assert.ErrorIs(t, err, ErrUnknownCommand)
	_, err = rt.Invoke(ctx, "main", "plugin:gamma|ping", nil)
	assert.ErrorIs(t, err, ErrUnknownCommand)

	_, err = rt.Invoke(ctx, "main", "plugin:alpha|fail", nil)
	assert.EqualError(t, err, "boom")

	assert.Equal(t, 1.0, testutil.ToFloat64(rt.invocations.WithLabelValues("alpha", "ping", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rt.invocations.WithLabelValues("alpha", "ping", "denied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rt.invocations.WithLabelValues("alpha", "fail", "error")))
}

func TestRuntime_MobileDoesNotGrantDesktopCapability(t *testing.T) {
	rt, err := finalize(t, platform.Mobile, &fakePlugin{name: "alpha"}, &fakePlugin{name: "beta"})
	require.NoError(t, err)

	_, err = rt.Invoke(context.Background(), "main", "plugin:beta|ping", nil)
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestRuntime_StartWrapsLoopFailure(t *testing.T) {
	rt, err := finalize(t, platform.Desktop, &fakePlugin{name: "alpha"}, &fakePlugin{name: "beta"})
	require.NoError(t, err)

	loop := &fakeLoop{startErr: errors.New("no display")}
	err = rt.Start(loop)
	var startErr *LoopStartError
	require.ErrorAs(t, err, &startErr)
	assert.EqualError(t, startErr.Unwrap(), "no display")
	assert.False(t, loop.ran)

	ok := &fakeLoop{}
	require.NoError(t, rt.Start(ok))
	assert.Same(t, rt, ok.started)
	assert.False(t, ok.ran, "Start does not enter the loop")
}

func TestRuntime_LifecycleFanOut(t *testing.T) {
	alpha := &fakePlugin{name: "alpha"}
	beta := &fakePlugin{name: "beta"}
	rt, err := finalize(t, platform.Desktop, alpha, beta)
	require.NoError(t, err)

	rt.WindowCreated(fakeWindow{"main"})
	rt.WindowClosing(fakeWindow{"main"})
	rt.Exiting()
	rt.Exiting()

	want := []string{"created:main", "closing:main", "exiting"}
	assert.Equal(t, want, alpha.events)
	assert.Equal(t, want, beta.events)
}

func TestConfigurationError_Unwrap(t *testing.T) {
	inner := errors.New("inner")
	err := error(&ConfigurationError{Reason: "r", Err: inner})
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "configuration: r: inner", err.Error())
	assert.Equal(t, "configuration: r", (&ConfigurationError{Reason: "r"}).Error())
}
