package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shashiranjanraj/patternbus/pkg/bus"
	"github.com/shashiranjanraj/patternbus/pkg/script"
)

func quietBus() *bus.Bus {
	return bus.New(bus.WithLogger(nil), bus.WithMetrics(false))
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestAdminHealthz(t *testing.T) {
	rec := get(t, newAdminRouter(quietBus()), "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestAdminBindingsAndCache(t *testing.T) {
	b := quietBus()
	noop := func(string, string, *bus.Event) (bus.Result, error) { return bus.Continue, nil }
	b.BindFunc(`^order\.`, noop)
	b.BindFunc(`created$`, noop)
	require.NoError(t, b.Fire("order.created", nil))

	h := newAdminRouter(b)

	rec := get(t, h, "/bindings")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"bindings": [{"handle": 1, "pattern": "^order\\."}, {"handle": 2, "pattern": "created$"}],
		"stats": {"bindings": 2, "cached_names": 1}
	}`, rec.Body.String())

	rec = get(t, h, "/cache/order.created")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"event": "order.created", "listeners": [1, 2]}`, rec.Body.String())

	rec = get(t, h, "/cache/order.shipped")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestAdminMetrics(t *testing.T) {
	rec := get(t, newAdminRouter(quietBus()), "/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "patternbus_")
}

func TestReadCommands(t *testing.T) {
	runner := script.NewRunner(quietBus())
	require.NoError(t, runner.Bind(script.Binding{Name: "audit", Pattern: `^order\.`}))

	in := strings.NewReader(strings.Join([]string{
		"# warm up",
		"fire order.created {id: 1}",
		"",
		"bind guard cancelled$",
		"nonsense here",
		"flush user.created",
		"unbind guard",
	}, "\n"))
	var out bytes.Buffer

	readCommands(in, &out, runner)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "fire order.created -> audit continue", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "error: script: invalid scenario: unknown command"), lines[1])
	assert.Contains(t, lines[2], "no cached listeners")
}

func TestWriteReport(t *testing.T) {
	rep := &script.Report{Steps: []script.StepResult{
		{Index: 0, Action: "fire", Target: "order.created", Calls: []script.Call{
			{Binding: "audit", Result: bus.Continue},
			{Binding: "guard", Result: bus.Veto},
		}},
		{Index: 1, Action: "flush", Target: "user.created", Err: bus.ErrNotCached},
	}}

	var out bytes.Buffer
	require.NoError(t, writeReport(&out, rep))

	text := out.String()
	assert.Contains(t, text, "STEP")
	assert.Regexp(t, `0\s+fire\s+order\.created\s+guard\s+veto`, text)
	assert.Regexp(t, `1\s+flush\s+user\.created\s+-\s+error: bus: event has no cached listeners`, text)
}

func TestWriteReportJSON(t *testing.T) {
	rep := &script.Report{Steps: []script.StepResult{
		{Index: 0, Action: "fire", Target: "a", Calls: []script.Call{{Binding: "x", Event: "a", Pattern: "a", Result: bus.Veto}}},
		{Index: 1, Action: "flush", Target: "b", Err: bus.ErrNotCached},
	}}

	var out bytes.Buffer
	require.NoError(t, writeReportJSON(&out, rep))

	var got struct {
		Steps []struct {
			Action string `json:"action"`
			Calls  []struct {
				Result string `json:"result"`
			} `json:"calls"`
			Error string `json:"error"`
		} `json:"steps"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	require.Len(t, got.Steps, 2)
	assert.Equal(t, "veto", got.Steps[0].Calls[0].Result)
	assert.Empty(t, got.Steps[0].Error)
	assert.Equal(t, bus.ErrNotCached.Error(), got.Steps[1].Error)
}

func TestRunCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orders.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
source: checkout
bindings:
  - {name: audit, pattern: '^order\.'}
  - {name: guard, pattern: 'cancelled$', veto: true}
steps:
  - fire: order.created
  - fire: order.cancelled
  - flush: order.created
`), 0o600))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"run", "--log-level", "error", path})
	t.Cleanup(func() { rootCmd.SetArgs(nil); rootCmd.SetOut(nil) })

	require.NoError(t, execute())

	text := out.String()
	assert.Regexp(t, `0\s+fire\s+order\.created\s+audit\s+continue`, text)
	assert.Regexp(t, `1\s+fire\s+order\.cancelled\s+guard\s+veto`, text)
	assert.Regexp(t, `2\s+flush\s+order\.created\s+-\s+ok`, text)
}

func TestRunCommandReportsFailedSteps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("steps: [{flush: nothing}]\n"), 0o600))

	closed := 0
	prev := attachMongo
	attachMongo = func() (func(), error) { return func() { closed++ }, nil }
	t.Cleanup(func() { attachMongo = prev })

	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"run", "--log-level", "error", path})
	t.Cleanup(func() { rootCmd.SetArgs(nil); rootCmd.SetOut(nil) })

	assert.EqualError(t, execute(), "1 of 1 steps failed")
	assert.Equal(t, 1, closed, "log sink is closed even though the command failed")

	closeLogging()
	assert.Equal(t, 1, closed)
}
