package capture

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// harFile mirrors the subset of HAR 1.2 needed to rebuild raw messages
type harFile struct {
	Log struct {
		Entries []harEntry `json:"entries"`
	} `json:"log"`
}

type harEntry struct {
	StartedDateTime string      `json:"startedDateTime"`
	Request         harRequest  `json:"request"`
	Response        harResponse `json:"response"`
}

type harHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type harRequest struct {
	Method      string      `json:"method"`
	URL         string      `json:"url"`
	HTTPVersion string      `json:"httpVersion"`
	Headers     []harHeader `json:"headers"`
	PostData    *struct {
		MimeType string `json:"mimeType"`
		Text     string `json:"text"`
	} `json:"postData,omitempty"`
}

type harResponse struct {
	Status      int         `json:"status"`
	StatusText  string      `json:"statusText"`
	HTTPVersion string      `json:"httpVersion"`
	Headers     []harHeader `json:"headers"`
	Content     struct {
		MimeType string `json:"mimeType"`
		Text     string `json:"text"`
		Encoding string `json:"encoding"`
	} `json:"content"`
}

// SkippedEntry records a HAR entry that could not be turned into a message pair
type SkippedEntry struct {
	Entry int
	Err   error
}

func (s SkippedEntry) Error() string {
	return fmt.Sprintf("har entry %d: %v", s.Entry, s.Err)
}

// HARSource is a MemorySource loaded from an HTTP Archive
type HARSource struct {
	*MemorySource
	Skipped []SkippedEntry
}

// LoadHARFile opens and parses a HAR file
func LoadHARFile(path string) (*HARSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture: %w", err)
	}
	defer f.Close()
	return LoadHAR(f)
}

// LoadHAR rebuilds raw HTTP/1.1 messages from HAR entries in archive order
func LoadHAR(r io.Reader) (*HARSource, error) {
	var doc harFile
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode HAR: %w", err)
	}

	src := &HARSource{MemorySource: NewMemorySource()}
	for i, e := range doc.Log.Entries {
		pair, err := e.toPair()
		if err != nil {
			src.Skipped = append(src.Skipped, SkippedEntry{Entry: i, Err: err})
			continue
		}
		src.Append(pair)
	}
	return src, nil
}

func (e harEntry) toPair() (*MessagePair, error) {
	u, err := url.Parse(e.Request.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", e.Request.URL, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("url %q has no host", e.Request.URL)
	}

	pair := &MessagePair{
		URL:     e.Request.URL,
		Host:    u.Host,
		Request: e.Request.raw(u),
	}
	if e.Response.Status > 0 {
		resp, err := e.Response.raw()
		if err != nil {
			return nil, err
		}
		pair.Response = resp
	}
	if ts, err := time.Parse(time.RFC3339Nano, e.StartedDateTime); err == nil {
		pair.Time = ts
	}
	return pair, nil
}

func (r harRequest) raw(u *url.URL) []byte {
	var buf bytes.Buffer
	method := r.Method
	if method == "" {
		method = "GET"
	}
	fmt.Fprintf(&buf, "%s %s %s\r\n", method, u.RequestURI(), wireVersion(r.HTTPVersion))

	hasHost := false
	for _, h := range r.Headers {
		if strings.HasPrefix(h.Name, ":") {
			continue
		}
		if strings.EqualFold(h.Name, "host") {
			hasHost = true
		}
		fmt.Fprintf(&buf, "%s: %s\r\n", h.Name, h.Value)
	}
	if !hasHost {
		fmt.Fprintf(&buf, "Host: %s\r\n", u.Host)
	}
	buf.WriteString("\r\n")
	if r.PostData != nil {
		buf.WriteString(r.PostData.Text)
	}
	return buf.Bytes()
}

func (r harResponse) raw() ([]byte, error) {
	var buf bytes.Buffer
	status := r.StatusText
	if status == "" {
		status = statusText(r.Status)
	}
	fmt.Fprintf(&buf, "%s %d %s\r\n", wireVersion(r.HTTPVersion), r.Status, status)
	for _, h := range r.Headers {
		if strings.HasPrefix(h.Name, ":") {
			continue
		}
		fmt.Fprintf(&buf, "%s: %s\r\n", h.Name, h.Value)
	}
	buf.WriteString("\r\n")

	body := r.Content.Text
	if r.Content.Encoding == "base64" && body != "" {
		decoded, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return nil, fmt.Errorf("invalid base64 response content: %w", err)
		}
		body = string(decoded)
	}
	buf.WriteString(body)
	return buf.Bytes(), nil
}

// wireVersion maps HAR protocol labels (h2, HTTP/2.0, http/3) onto an HTTP/1.1 start line
func wireVersion(v string) string {
	if strings.HasPrefix(strings.ToUpper(v), "HTTP/1.") {
		return strings.ToUpper(v)
	}
	return "HTTP/1.1"
}

func statusText(code int) string {
	if text := http.StatusText(code); text != "" {
		return text
	}
	return strconv.Itoa(code)
}
