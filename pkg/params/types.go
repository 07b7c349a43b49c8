// Package params turns captured HTTP messages into parameter instances.
package params

import (
	"fmt"
	"strings"

	"github.com/CodeMonkeyCybersecurity/paramflow/pkg/capture"
)

// Format is the wire encoding a value was found in
type Format int

const (
	FormatURLEncoded Format = iota
	FormatJSON
	FormatCookie
	FormatMultipart
	FormatPlain
	FormatHTML
	FormatPath
)

var formatNames = map[Format]string{
	FormatURLEncoded: "URL-ENCODED",
	FormatJSON:       "JSON",
	FormatCookie:     "COOKIE",
	FormatMultipart:  "MULTIPART",
	FormatPlain:      "PLAIN",
	FormatHTML:       "HTML",
	FormatPath:       "PATH",
}

func (f Format) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("FORMAT(%d)", int(f))
}

// Location is the parameter category an extractor pass looks at
type Location int

const (
	LocationURL Location = iota
	LocationBody
	LocationCookie
	LocationJSON
	LocationREST
)

var locationNames = []string{"url", "body", "cookie", "json", "rest"}

func (l Location) String() string {
	if int(l) >= 0 && int(l) < len(locationNames) {
		return locationNames[l]
	}
	return fmt.Sprintf("location(%d)", int(l))
}

func (l Location) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// ParseLocation accepts the lower-case category names used by the CLI and API
func ParseLocation(s string) (Location, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range locationNames {
		if s == name {
			return Location(i), nil
		}
	}
	return 0, fmt.Errorf("unknown parameter location %q", s)
}

// Locations returns every category in processing order
func Locations() []Location {
	return []Location{LocationURL, LocationBody, LocationCookie, LocationJSON, LocationREST}
}

// ParamInstance is one occurrence of a named value in one message.
// Offsets index into the request or response bytes depending on Direction;
// -1 means the position could not be determined.
type ParamInstance struct {
	Name         string
	RawValue     string
	DecodedValue string
	Format       Format
	Location     Location
	ValueStart   int
	ValueEnd     int
	Message      *capture.MessagePair
	Direction    capture.Direction
}

// MessageIndex is the capture position of the owning exchange
func (p *ParamInstance) MessageIndex() int {
	if p.Message == nil {
		return -1
	}
	return p.Message.Index
}

// Before orders instances by capture position: exchange, then request before
// response, then offset within the message
func (p *ParamInstance) Before(q *ParamInstance) bool {
	if p.MessageIndex() != q.MessageIndex() {
		return p.MessageIndex() < q.MessageIndex()
	}
	if p.Direction != q.Direction {
		return p.Direction < q.Direction
	}
	return p.ValueStart < q.ValueStart
}

func (p *ParamInstance) String() string {
	return fmt.Sprintf("%s %s=%s", p.Format, p.Name, p.DecodedValue)
}
