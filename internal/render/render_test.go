package render

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodeMonkeyCybersecurity/paramflow/pkg/capture"
	"github.com/CodeMonkeyCybersecurity/paramflow/pkg/correlation"
	"github.com/CodeMonkeyCybersecurity/paramflow/pkg/graph"
	"github.com/CodeMonkeyCybersecurity/paramflow/pkg/tracker"
)

func tracked(t *testing.T) map[string]*tracker.TrackedParameter {
	t.Helper()
	pairs, err := capture.NewMemorySource(&capture.MessagePair{
		Request: []byte("GET /?user=alice&token=abcdefghijklmnopqrstuvwxyz0123&blank= HTTP/1.1\r\n\r\n"),
	}).Messages(context.Background())
	require.NoError(t, err)
	result, err := correlation.NewCorrelator(nil, correlation.DefaultOptions()).Correlate(context.Background(), pairs, nil)
	require.NoError(t, err)

	out := make(map[string]*tracker.TrackedParameter)
	for _, p := range result.URLParameters() {
		out[p.RepresentativeName] = tracker.NewTrackedParameter(p)
	}
	return out
}

func TestLabel(t *testing.T) {
	vs := tracked(t)

	assert.Equal(t, []string{"user", "alice"}, Label(vs["user"]))
	assert.Equal(t, []string{"blank", "(empty)"}, Label(vs["blank"]))

	token := vs["token"]
	assert.Equal(t, []string{"token", "abcdefghijklmnopqrstu..."}, Label(token))

	token.Param.MarkSecret()
	assert.Equal(t, "* token", Label(token)[0])
}

func TestMetricsSize(t *testing.T) {
	w, h := DefaultMetrics().Size(tracked(t)["user"])
	assert.Equal(t, 5*7+16, w)
	assert.Equal(t, 2*16+16, h)
}

func TestTerminalSize(t *testing.T) {
	w, h := NewTerminal().Size(tracked(t)["user"])
	assert.Equal(t, 9, w, "border, padding and five cells of text")
	assert.Equal(t, 4, h)
}

func TestTerminalDraw(t *testing.T) {
	vs := tracked(t)
	term := NewTerminal()
	m := graph.NewModel[*tracker.TrackedParameter](term.Options())
	m.AddEdge(vs["user"], vs["token"])
	m.AddEdge(vs["token"], vs["token"])
	m.AddVertex(vs["blank"])

	scene := m.Render(term)
	out := term.Draw(scene)

	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "(empty)")
	assert.Contains(t, out, "▶")
	assert.Contains(t, out, "↺")
	assert.LessOrEqual(t, len(strings.Split(out, "\n")), scene.Height)

	assert.Equal(t, []string{"user -> token", "token -> (self)"}, Edges(scene))
}

func TestTerminalDrawEmpty(t *testing.T) {
	term := NewTerminal()
	m := graph.NewModel[*tracker.TrackedParameter](term.Options())
	assert.Empty(t, term.Draw(m.Render(term)))
}
