package params

import (
	"fmt"
	"sort"
	"strings"

	"github.com/CodeMonkeyCybersecurity/paramflow/pkg/capture"
)

// Extractor pulls the parameters of one location category out of a message pair
type Extractor interface {
	Extract(msg *capture.MessagePair, loc Location) ([]*ParamInstance, error)
}

// HTTPExtractor understands raw HTTP/1.x messages. It is stateless and safe
// for concurrent use.
type HTTPExtractor struct{}

func NewHTTPExtractor() *HTTPExtractor {
	return &HTTPExtractor{}
}

// Extract returns the instances found in the request and response of msg,
// ordered by position. Any parse failure discards the whole message for loc.
func (e *HTTPExtractor) Extract(msg *capture.MessagePair, loc Location) ([]*ParamInstance, error) {
	if msg == nil {
		return nil, fmt.Errorf("%w: nil message", ErrParse)
	}

	req, err := parseMessage(msg.Request)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	target, err := parseRequestLine(req.startLine)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}

	var resp *message
	if msg.HasResponse() && loc != LocationURL && loc != LocationREST {
		resp, err = parseMessage(msg.Response)
		if err != nil {
			return nil, fmt.Errorf("response: %w", err)
		}
		if !isResponseLine(resp.startLine) {
			return nil, fmt.Errorf("response: %w: malformed status line %q", ErrParse, truncate(resp.startLine, 64))
		}
	}

	b := &builder{msg: msg, loc: loc}
	switch loc {
	case LocationURL:
		b.dir = capture.Request
		base := target.offset + target.queryStart
		b.pairs(splitPairs(target.query(), '&', false), base, FormatURLEncoded)

	case LocationBody:
		b.dir = capture.Request
		if err := b.requestBody(req); err != nil {
			return nil, err
		}
		if resp != nil {
			b.dir = capture.Response
			if err := b.responseForms(resp); err != nil {
				return nil, err
			}
		}

	case LocationCookie:
		b.dir = capture.Request
		for _, h := range req.headersNamed("Cookie") {
			b.pairs(splitPairs(h.value, ';', true), h.valueStart, FormatCookie)
		}
		if resp != nil {
			b.dir = capture.Response
			for _, h := range resp.headersNamed("Set-Cookie") {
				first := h.value
				if i := strings.IndexByte(first, ';'); i != -1 {
					first = first[:i]
				}
				pairs := splitPairs(first, ';', true)
				if len(pairs) > 0 {
					b.pairs(pairs[:1], h.valueStart, FormatCookie)
				}
			}
		}

	case LocationJSON:
		b.dir = capture.Request
		if err := b.json(req); err != nil {
			return nil, fmt.Errorf("request: %w", err)
		}
		if resp != nil {
			b.dir = capture.Response
			if err := b.json(resp); err != nil {
				return nil, fmt.Errorf("response: %w", err)
			}
		}

	case LocationREST:
		b.dir = capture.Request
		b.pathSegments(target)

	default:
		return nil, fmt.Errorf("unsupported location %s", loc)
	}

	sort.SliceStable(b.out, func(i, j int) bool { return b.out[i].Before(b.out[j]) })
	return b.out, nil
}

// builder accumulates instances for one message side at a time
type builder struct {
	msg *capture.MessagePair
	loc Location
	dir capture.Direction
	out []*ParamInstance
}

func (b *builder) add(name, raw, decoded string, format Format, start, end int) {
	b.out = append(b.out, &ParamInstance{
		Name:         name,
		RawValue:     raw,
		DecodedValue: decoded,
		Format:       format,
		Location:     b.loc,
		ValueStart:   start,
		ValueEnd:     end,
		Message:      b.msg,
		Direction:    b.dir,
	})
}

func (b *builder) pairs(pairs []pair, base int, format Format) {
	for _, p := range pairs {
		name := Decode(format, p.name)
		if name == "" {
			continue
		}
		b.add(name, p.value, Decode(format, p.value), format, base+p.valueStart, base+p.valueEnd)
	}
}

func (b *builder) requestBody(req *message) error {
	if len(req.body) == 0 {
		return nil
	}
	mt, mtParams := req.mediaType()
	switch {
	case mt == "application/x-www-form-urlencoded":
		b.pairs(splitPairs(string(req.body), '&', false), req.bodyStart, FormatURLEncoded)
	case mt == "multipart/form-data":
		boundary := mtParams["boundary"]
		if boundary == "" {
			return fmt.Errorf("request: %w: multipart body without boundary", ErrParse)
		}
		for _, part := range splitMultipart(req.body, boundary) {
			if part.filename != "" || part.name == "" {
				continue
			}
			b.add(part.name, part.value, Decode(FormatMultipart, part.value), FormatMultipart,
				req.bodyStart+part.valueStart, req.bodyStart+part.valueEnd)
		}
	}
	return nil
}

func (b *builder) responseForms(resp *message) error {
	mt, _ := resp.mediaType()
	if !strings.Contains(mt, "html") || len(resp.body) == 0 {
		return nil
	}
	fields, err := formFields(resp.body)
	if err != nil {
		return fmt.Errorf("response: %w: %v", ErrParse, err)
	}
	for _, f := range fields {
		start, end := f.start, f.end
		if start >= 0 {
			start += resp.bodyStart
			end += resp.bodyStart
		}
		b.add(f.name, f.raw, f.value, FormatHTML, start, end)
	}
	return nil
}

func (b *builder) json(m *message) error {
	if !isJSONBody(m) {
		return nil
	}
	leaves, err := jsonLeaves(m.body)
	if err != nil {
		return err
	}
	for _, l := range leaves {
		start, end := l.start, l.end
		if start >= 0 {
			start += m.bodyStart
			end += m.bodyStart
		}
		b.add(l.name, l.raw, l.value, FormatJSON, start, end)
	}
	return nil
}

func (b *builder) pathSegments(t requestTarget) {
	path := t.path()
	base := t.offset + t.pathStart
	index := 0
	offset := 0
	for offset < len(path) {
		end := strings.IndexByte(path[offset:], '/')
		if end == -1 {
			end = len(path) - offset
		}
		if seg := path[offset : offset+end]; seg != "" {
			b.add(fmt.Sprintf("path[%d]", index), seg, Decode(FormatPath, seg), FormatPath,
				base+offset, base+offset+end)
			index++
		}
		offset += end + 1
	}
}
