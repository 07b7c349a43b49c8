package params

import (
	"bytes"
	"fmt"
	"html"
	"mime"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"
)

type multipartPart struct {
	name       string
	filename   string
	value      string
	valueStart int
	valueEnd   int
}

// splitMultipart walks a multipart body keeping value offsets relative to the body
func splitMultipart(body []byte, boundary string) []multipartPart {
	delim := []byte("--" + boundary)
	var parts []multipartPart

	pos := bytes.Index(body, delim)
	for pos != -1 {
		pos += len(delim)
		if bytes.HasPrefix(body[pos:], []byte("--")) {
			break
		}
		next := bytes.Index(body[pos:], delim)
		if next == -1 {
			break
		}
		next += pos
		if part, ok := parsePart(body, pos, next); ok {
			parts = append(parts, part)
		}
		pos = next
	}
	return parts
}

func parsePart(body []byte, start, end int) (multipartPart, bool) {
	segment := body[start:end]
	headEnd, sep := bytes.Index(segment, []byte("\r\n\r\n")), 4
	if headEnd == -1 {
		headEnd, sep = bytes.Index(segment, []byte("\n\n")), 2
	}
	if headEnd == -1 {
		return multipartPart{}, false
	}

	var part multipartPart
	for _, line := range strings.Split(string(segment[:headEnd]), "\n") {
		line = strings.TrimSpace(line)
		colon := strings.IndexByte(line, ':')
		if colon == -1 || !strings.EqualFold(line[:colon], "Content-Disposition") {
			continue
		}
		_, params, err := mime.ParseMediaType(strings.TrimSpace(line[colon+1:]))
		if err != nil {
			return multipartPart{}, false
		}
		part.name = params["name"]
		part.filename = params["filename"]
	}

	valueStart := start + headEnd + sep
	valueEnd := end
	// the CRLF before the next delimiter belongs to the delimiter
	if valueEnd-2 >= valueStart && string(body[valueEnd-2:valueEnd]) == "\r\n" {
		valueEnd -= 2
	} else if valueEnd-1 >= valueStart && body[valueEnd-1] == '\n' {
		valueEnd--
	}
	part.value = string(body[valueStart:valueEnd])
	part.valueStart = valueStart
	part.valueEnd = valueEnd
	return part, true
}

type formField struct {
	name  string
	raw   string
	value string
	start int
	end   int
}

// formFields lists named input and textarea elements of an HTML document.
// Offsets are located by scanning forward from the previous field; a value
// that cannot be found in the markup gets -1.
func formFields(body []byte) ([]formField, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	text := string(body)
	cursor := 0
	var fields []formField
	doc.Find("input[name], textarea[name]").Each(func(_ int, s *goquery.Selection) {
		name, _ := s.Attr("name")
		if name == "" {
			return
		}
		var value string
		if goquery.NodeName(s) == "textarea" {
			value = s.Text()
		} else {
			value, _ = s.Attr("value")
		}

		f := formField{name: name, raw: value, value: value, start: -1, end: -1}
		tagStart := findNameAttr(text, name, cursor)
		if tagStart != -1 {
			cursor = tagStart
			if value != "" {
				for _, candidate := range []string{value, html.EscapeString(value), escapeQuotesOnly(value)} {
					if i := strings.Index(text[tagStart:], candidate); i != -1 {
						f.start = tagStart + i
						f.end = f.start + len(candidate)
						f.raw = candidate
						cursor = f.end
						break
					}
				}
			}
		}
		fields = append(fields, f)
	})
	return fields, nil
}

func findNameAttr(text, name string, from int) int {
	best := -1
	for _, quoted := range []string{`name="` + name + `"`, `name='` + name + `'`, `name=` + name} {
		if i := strings.Index(text[from:], quoted); i != -1 && (best == -1 || from+i < best) {
			best = from + i
		}
	}
	if best == -1 {
		return -1
	}
	if lt := strings.LastIndexByte(text[:best], '<'); lt != -1 && lt >= from {
		return lt
	}
	return best
}

func escapeQuotesOnly(s string) string {
	return strings.NewReplacer(`&`, "&amp;", `"`, "&quot;").Replace(s)
}

func isJSONBody(m *message) bool {
	if len(bytes.TrimSpace(m.body)) == 0 {
		return false
	}
	mt, _ := m.mediaType()
	if strings.Contains(mt, "json") {
		return true
	}
	trimmed := bytes.TrimSpace(m.body)
	return (trimmed[0] == '{' || trimmed[0] == '[') && gjson.ValidBytes(trimmed)
}

type jsonLeaf struct {
	name  string
	raw   string
	value string
	start int
	end   int
}

// jsonLeaves flattens a document into dotted-path leaves. Offsets come from
// gjson's raw token index and are relative to body.
func jsonLeaves(body []byte) ([]jsonLeaf, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: malformed JSON body", ErrParse)
	}
	var leaves []jsonLeaf
	walkJSON(body, gjson.ParseBytes(body), "", "", &leaves)
	return leaves, nil
}

func walkJSON(body []byte, node gjson.Result, name, path string, leaves *[]jsonLeaf) {
	switch {
	case node.IsObject():
		node.ForEach(func(key, value gjson.Result) bool {
			walkJSON(body, value, joinName(name, key.String()), joinPath(path, escapePath(key.String())), leaves)
			return true
		})
	case node.IsArray():
		i := 0
		node.ForEach(func(_, value gjson.Result) bool {
			idx := strconv.Itoa(i)
			walkJSON(body, value, joinName(name, idx), joinPath(path, idx), leaves)
			i++
			return true
		})
	case node.Type == gjson.String, node.Type == gjson.Number, node.Type == gjson.True, node.Type == gjson.False:
		if name == "" {
			return
		}
		leaf := jsonLeaf{name: name, start: -1, end: -1}
		located := gjson.GetBytes(body, path)
		raw := node.Raw
		if located.Exists() && located.Index > 0 {
			raw = located.Raw
			leaf.start = located.Index
			leaf.end = located.Index + len(raw)
		}
		if node.Type == gjson.String {
			leaf.value = node.String()
			leaf.raw = strings.TrimSuffix(strings.TrimPrefix(raw, `"`), `"`)
			if leaf.start >= 0 {
				leaf.start++
				leaf.end--
			}
		} else {
			leaf.value = raw
			leaf.raw = raw
		}
		*leaves = append(*leaves, leaf)
	}
}

func joinName(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func joinPath(prefix, component string) string {
	if prefix == "" {
		return component
	}
	return prefix + "." + component
}

// escapePath backslash-escapes gjson path syntax inside an object key
func escapePath(key string) string {
	var sb strings.Builder
	for _, r := range key {
		switch r {
		case '.', '*', '?', '|', '#', '@', '\\', '!', '=', '<', '>', '%', '[', ']', '{', '}', ',', ':', '"':
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
