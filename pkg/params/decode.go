package params

import (
	"html"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
)

// Decode applies the format's decoding to a raw value. Undecodable input is
// returned unchanged so extraction never fails on a bad escape.
func Decode(format Format, raw string) string {
	switch format {
	case FormatURLEncoded:
		if v, err := url.QueryUnescape(raw); err == nil {
			return v
		}
	case FormatCookie, FormatPath:
		if v, err := url.PathUnescape(raw); err == nil {
			return v
		}
	case FormatJSON:
		if !strings.ContainsRune(raw, '\\') {
			return raw
		}
		quoted := `"` + raw + `"`
		if gjson.Valid(quoted) {
			return gjson.Parse(quoted).String()
		}
	case FormatHTML:
		return html.UnescapeString(raw)
	}
	return raw
}
