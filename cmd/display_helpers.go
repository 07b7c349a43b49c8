package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/CodeMonkeyCybersecurity/paramflow/internal/analysis"
	"github.com/CodeMonkeyCybersecurity/paramflow/pkg/correlation"
	"github.com/CodeMonkeyCybersecurity/paramflow/pkg/params"
)

func colorLocation(loc params.Location) string {
	name := strings.ToUpper(loc.String())
	switch loc {
	case params.LocationCookie:
		return color.New(color.FgYellow).Sprint(name)
	case params.LocationJSON:
		return color.New(color.FgMagenta).Sprint(name)
	case params.LocationREST:
		return color.New(color.FgBlue).Sprint(name)
	default:
		return color.New(color.FgCyan).Sprint(name)
	}
}

func colorSecret(p *correlation.CorrelatedParam) string {
	if !p.IsSecret() {
		return p.RepresentativeName
	}
	return color.New(color.FgRed, color.Bold).Sprint("* " + p.RepresentativeName)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// displaySummary prints per-location counts, the secret parameters and cookie
// behaviour of a finished run
func displaySummary(w io.Writer, res *analysis.Result) {
	corr := res.Correlation
	if corr == nil {
		return
	}

	fmt.Fprintf(w, "\n%s\n", color.New(color.Bold).Sprint("Parameters"))
	fmt.Fprintf(w, "  Messages: %d\n", corr.MessageCount())
	for _, loc := range params.Locations() {
		fmt.Fprintf(w, "  %-18s %d\n", colorLocation(loc), len(corr.ByLocation(loc)))
	}

	secretParams := corr.ParamSecrets()
	fmt.Fprintf(w, "\n%s (%d)\n", color.New(color.Bold).Sprint("Secrets"), len(secretParams))
	for _, p := range secretParams {
		fmt.Fprintf(w, "  %s = %s [%s, %d instances]\n",
			colorSecret(p),
			truncate(p.DisplayValue(corr.ShowDecoded), 48),
			p.Location,
			p.InstanceCount())
	}

	if stats := corr.CookieStatistics(); len(stats) > 0 {
		fmt.Fprintf(w, "\n%s\n", color.New(color.Bold).Sprint("Cookies"))
		for _, s := range stats {
			fmt.Fprintf(w, "  %-24s sent %-4d set %-4d values %-4d len %d-%d\n",
				truncate(s.Name, 24), s.RequestCount, s.SetCount, s.UniqueValues, s.MinLength, s.MaxLength)
		}
	}

	if diags := corr.Diagnostics(); len(diags) > 0 {
		fmt.Fprintf(w, "\n%s %d messages could not be parsed\n", color.YellowString("⚠"), len(diags))
	}

	if res.Graph != nil {
		fmt.Fprintf(w, "\n%s %d tracked (%s mode), %d edges\n",
			color.New(color.Bold).Sprint("Provenance:"),
			res.Graph.Len(), res.TrackMode, len(res.Graph.Edges()))
	}
}
