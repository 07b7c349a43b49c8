package params

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodeMonkeyCybersecurity/paramflow/pkg/capture"
)

func newPair(req, resp string) *capture.MessagePair {
	return &capture.MessagePair{
		URL:      "https://app.example.com/",
		Host:     "app.example.com",
		Request:  []byte(req),
		Response: []byte(resp),
	}
}

func byName(t *testing.T, instances []*ParamInstance) map[string]*ParamInstance {
	t.Helper()
	out := make(map[string]*ParamInstance, len(instances))
	for _, p := range instances {
		out[p.Name] = p
	}
	return out
}

// assertOffsets checks that the recorded range points at the raw value
func assertOffsets(t *testing.T, p *ParamInstance) {
	t.Helper()
	raw := capture.Raw(p.Message, p.Direction)
	require.GreaterOrEqual(t, p.ValueStart, 0, "%s has no offset", p.Name)
	require.LessOrEqual(t, p.ValueEnd, len(raw))
	assert.Equal(t, p.RawValue, string(raw[p.ValueStart:p.ValueEnd]), "offsets of %s", p.Name)
}

func TestExtractURL(t *testing.T) {
	msg := newPair("GET /search?q=hello+world&id=42&flag HTTP/1.1\r\nHost: app.example.com\r\n\r\n", "")

	got, err := NewHTTPExtractor().Extract(msg, LocationURL)
	require.NoError(t, err)
	require.Len(t, got, 3)

	params := byName(t, got)
	assert.Equal(t, "hello+world", params["q"].RawValue)
	assert.Equal(t, "hello world", params["q"].DecodedValue)
	assert.Equal(t, FormatURLEncoded, params["q"].Format)
	assert.Equal(t, LocationURL, params["q"].Location)
	assert.Equal(t, capture.Request, params["q"].Direction)
	assert.Equal(t, "42", params["id"].DecodedValue)
	assert.Equal(t, "", params["flag"].DecodedValue)

	assertOffsets(t, params["q"])
	assertOffsets(t, params["id"])
	assert.Equal(t, "q", got[0].Name, "instances are position ordered")
}

func TestExtractURLAbsoluteForm(t *testing.T) {
	msg := newPair("GET http://app.example.com/a/b?token=abc%3D HTTP/1.1\r\n\r\n", "")

	got, err := NewHTTPExtractor().Extract(msg, LocationURL)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "abc=", got[0].DecodedValue)
	assertOffsets(t, got[0])

	rest, err := NewHTTPExtractor().Extract(msg, LocationREST)
	require.NoError(t, err)
	require.Len(t, rest, 2)
	assert.Equal(t, "a", rest[0].DecodedValue)
	assert.Equal(t, "b", rest[1].DecodedValue)
}

func TestExtractBody(t *testing.T) {
	t.Run("form request", func(t *testing.T) {
		msg := newPair("POST /login HTTP/1.1\r\n"+
			"Content-Type: application/x-www-form-urlencoded\r\n\r\n"+
			"user=alice&pass=p%40ss", "")

		got, err := NewHTTPExtractor().Extract(msg, LocationBody)
		require.NoError(t, err)
		params := byName(t, got)
		require.Len(t, params, 2)
		assert.Equal(t, "p@ss", params["pass"].DecodedValue)
		assertOffsets(t, params["user"])
		assertOffsets(t, params["pass"])
	})

	t.Run("multipart request", func(t *testing.T) {
		body := "--XyZ\r\n" +
			"Content-Disposition: form-data; name=\"title\"\r\n\r\n" +
			"quarterly report\r\n" +
			"--XyZ\r\n" +
			"Content-Disposition: form-data; name=\"upload\"; filename=\"a.txt\"\r\n" +
			"Content-Type: text/plain\r\n\r\n" +
			"file contents\r\n" +
			"--XyZ--\r\n"
		msg := newPair("POST /upload HTTP/1.1\r\n"+
			"Content-Type: multipart/form-data; boundary=XyZ\r\n\r\n"+body, "")

		got, err := NewHTTPExtractor().Extract(msg, LocationBody)
		require.NoError(t, err)
		require.Len(t, got, 1, "file parts are skipped")
		assert.Equal(t, "title", got[0].Name)
		assert.Equal(t, "quarterly report", got[0].DecodedValue)
		assert.Equal(t, FormatMultipart, got[0].Format)
		assertOffsets(t, got[0])
	})

	t.Run("html response inputs", func(t *testing.T) {
		resp := "HTTP/1.1 200 OK\r\nContent-Type: text/html; charset=utf-8\r\n\r\n" +
			`<html><body><form action="/save">` +
			`<input type="hidden" name="csrf" value="tok&amp;en">` +
			`<input name="email" value="a@b.c">` +
			`<textarea name="notes">remember me</textarea>` +
			`</form></body></html>`
		msg := newPair("GET /form HTTP/1.1\r\n\r\n", resp)

		got, err := NewHTTPExtractor().Extract(msg, LocationBody)
		require.NoError(t, err)
		params := byName(t, got)
		require.Len(t, params, 3)

		csrf := params["csrf"]
		assert.Equal(t, "tok&en", csrf.DecodedValue)
		assert.Equal(t, "tok&amp;en", csrf.RawValue)
		assert.Equal(t, FormatHTML, csrf.Format)
		assert.Equal(t, capture.Response, csrf.Direction)
		assertOffsets(t, csrf)
		assertOffsets(t, params["email"])
		assert.Equal(t, "remember me", params["notes"].DecodedValue)
	})

	t.Run("non form content ignored", func(t *testing.T) {
		msg := newPair("POST /x HTTP/1.1\r\nContent-Type: text/plain\r\n\r\na=b", "")
		got, err := NewHTTPExtractor().Extract(msg, LocationBody)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestExtractCookies(t *testing.T) {
	msg := newPair(
		"GET / HTTP/1.1\r\nHost: app.example.com\r\nCookie: SESSION=abc123; theme=dark+mode\r\n\r\n",
		"HTTP/1.1 200 OK\r\nSet-Cookie: SESSION=def456; Path=/; HttpOnly\r\nSet-Cookie: lang=en\r\n\r\n",
	)

	got, err := NewHTTPExtractor().Extract(msg, LocationCookie)
	require.NoError(t, err)
	require.Len(t, got, 4)

	assert.Equal(t, "SESSION", got[0].Name)
	assert.Equal(t, "abc123", got[0].DecodedValue)
	assert.Equal(t, capture.Request, got[0].Direction)
	assert.Equal(t, "dark+mode", got[1].DecodedValue, "cookie decoding keeps plus signs")

	assert.Equal(t, "SESSION", got[2].Name)
	assert.Equal(t, "def456", got[2].DecodedValue)
	assert.Equal(t, capture.Response, got[2].Direction)
	assert.Equal(t, "lang", got[3].Name)

	for _, p := range got {
		assert.Equal(t, FormatCookie, p.Format)
		assertOffsets(t, p)
	}
}

func TestExtractJSON(t *testing.T) {
	body := `{"user":{"id":"u-1","admin":false},"items":[{"sku":"X1"},{"sku":"X\"2"}],"total":12.5,"note":null}`
	msg := newPair(
		"POST /api/cart HTTP/1.1\r\nContent-Type: application/json\r\n\r\n"+body,
		"HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\n\r\n[{\"token\":\"t0k\"}]",
	)

	got, err := NewHTTPExtractor().Extract(msg, LocationJSON)
	require.NoError(t, err)
	params := byName(t, got)

	require.Contains(t, params, "user.id")
	assert.Equal(t, "u-1", params["user.id"].DecodedValue)
	assert.Equal(t, "false", params["user.admin"].DecodedValue)
	assert.Equal(t, "X1", params["items.0.sku"].DecodedValue)
	assert.Equal(t, `X"2`, params["items.1.sku"].DecodedValue)
	assert.Equal(t, `X\"2`, params["items.1.sku"].RawValue)
	assert.Equal(t, "12.5", params["total"].DecodedValue)
	assert.NotContains(t, params, "note", "null leaves are skipped")

	for _, name := range []string{"user.id", "user.admin", "items.0.sku", "items.1.sku", "total"} {
		assertOffsets(t, params[name])
	}

	require.Contains(t, params, "0.token", "syntactically JSON bodies are parsed regardless of type")
	assert.Equal(t, capture.Response, params["0.token"].Direction)
	assertOffsets(t, params["0.token"])
}

func TestExtractRESTSegments(t *testing.T) {
	msg := newPair("GET /api/users/john%20doe//orders?page=2 HTTP/1.1\r\n\r\n", "")

	got, err := NewHTTPExtractor().Extract(msg, LocationREST)
	require.NoError(t, err)
	require.Len(t, got, 4)

	assert.Equal(t, "path[0]", got[0].Name)
	assert.Equal(t, "api", got[0].DecodedValue)
	assert.Equal(t, "path[2]", got[2].Name)
	assert.Equal(t, "john doe", got[2].DecodedValue)
	assert.Equal(t, "path[3]", got[3].Name)
	assert.Equal(t, "orders", got[3].DecodedValue)
	for _, p := range got {
		assertOffsets(t, p)
	}
}

func TestExtractParseErrors(t *testing.T) {
	tests := []struct {
		name string
		msg  *capture.MessagePair
		loc  Location
	}{
		{
			name: "empty request",
			msg:  newPair("", ""),
			loc:  LocationURL,
		},
		{
			name: "malformed request line",
			msg:  newPair("this is not http\r\n\r\n", ""),
			loc:  LocationURL,
		},
		{
			name: "malformed json with json content type",
			msg:  newPair("POST / HTTP/1.1\r\nContent-Type: application/json\r\n\r\n{\"a\":", ""),
			loc:  LocationJSON,
		},
		{
			name: "malformed status line",
			msg:  newPair("GET / HTTP/1.1\r\n\r\n", "garbage\r\n\r\n"),
			loc:  LocationCookie,
		},
		{
			name: "multipart without boundary",
			msg:  newPair("POST / HTTP/1.1\r\nContent-Type: multipart/form-data\r\n\r\nx", ""),
			loc:  LocationBody,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewHTTPExtractor().Extract(tt.msg, tt.loc)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrParse))
			assert.Nil(t, got)
		})
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		format Format
		raw    string
		want   string
	}{
		{FormatURLEncoded, "a+b%20c", "a b c"},
		{FormatURLEncoded, "bad%zzescape", "bad%zzescape"},
		{FormatCookie, "a+b%3D", "a+b="},
		{FormatPath, "john%20doe", "john doe"},
		{FormatJSON, `line\nbreak`, "line\nbreak"},
		{FormatJSON, `été`, "été"},
		{FormatJSON, "plain", "plain"},
		{FormatHTML, "&lt;b&gt; &amp; &#39;", "<b> & '"},
		{FormatMultipart, "a+b%20", "a+b%20"},
		{FormatPlain, "%41", "%41"},
	}

	for _, tt := range tests {
		t.Run(tt.format.String()+"/"+tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, Decode(tt.format, tt.raw))
		})
	}
}

func TestInstanceOrdering(t *testing.T) {
	m0 := &capture.MessagePair{Index: 0}
	m1 := &capture.MessagePair{Index: 1}

	req0 := &ParamInstance{Message: m0, Direction: capture.Request, ValueStart: 50}
	resp0 := &ParamInstance{Message: m0, Direction: capture.Response, ValueStart: 3}
	req0early := &ParamInstance{Message: m0, Direction: capture.Request, ValueStart: 10}
	req1 := &ParamInstance{Message: m1, Direction: capture.Request, ValueStart: 0}

	assert.True(t, req0.Before(resp0))
	assert.False(t, resp0.Before(req0))
	assert.True(t, req0early.Before(req0))
	assert.True(t, resp0.Before(req1))
}

func TestParseLocation(t *testing.T) {
	for _, loc := range Locations() {
		got, err := ParseLocation(loc.String())
		require.NoError(t, err)
		assert.Equal(t, loc, got)
	}
	_, err := ParseLocation("header")
	assert.Error(t, err)
}
