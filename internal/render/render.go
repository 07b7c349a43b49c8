// Package render sizes and draws provenance graph vertices.
package render

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/CodeMonkeyCybersecurity/paramflow/pkg/graph"
	"github.com/CodeMonkeyCybersecurity/paramflow/pkg/tracker"
)

const valueLimit = 24

// Label is the text drawn inside a vertex box
func Label(v *tracker.TrackedParameter) []string {
	name := v.Param.RepresentativeName
	if v.Param.IsSecret() {
		name = "* " + name
	}
	value := v.Param.DecodedValue
	if len(value) > valueLimit {
		value = value[:valueLimit-3] + "..."
	}
	if value == "" {
		value = "(empty)"
	}
	return []string{name, value}
}

// Metrics approximates a proportional font so graph geometry can be exported
// for clients that draw it themselves
type Metrics struct {
	CharWidth  int
	LineHeight int
	Padding    int
}

func DefaultMetrics() Metrics {
	return Metrics{CharWidth: 7, LineHeight: 16, Padding: 8}
}

func (m Metrics) Size(v *tracker.TrackedParameter) (int, int) {
	lines := Label(v)
	widest := 0
	for _, l := range lines {
		widest = max(widest, lipgloss.Width(l))
	}
	return widest*m.CharWidth + 2*m.Padding, len(lines)*m.LineHeight + 2*m.Padding
}

// Edges lists the scene's edges as "parent -> child" lines, self-loops last
func Edges(scene *graph.Scene[*tracker.TrackedParameter]) []string {
	var out []string
	for _, c := range scene.Connectors {
		out = append(out, c.Parent.Param.RepresentativeName+" -> "+c.Child.Param.RepresentativeName)
	}
	for _, a := range scene.Arcs {
		out = append(out, a.Vertex.Param.RepresentativeName+" -> (self)")
	}
	return out
}

func pad(s string, width int) string {
	if w := lipgloss.Width(s); w < width {
		return s + strings.Repeat(" ", width-w)
	}
	return s
}
