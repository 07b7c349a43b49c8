package capture

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySourceNumbersPairs(t *testing.T) {
	src := NewMemorySource(&MessagePair{URL: "a"}, &MessagePair{URL: "b", ID: "fixed"})
	src.Append(&MessagePair{URL: "c"})

	pairs, err := src.Messages(context.Background())
	require.NoError(t, err)
	require.Len(t, pairs, 3)
	for i, p := range pairs {
		assert.Equal(t, i, p.Index)
		assert.NotEmpty(t, p.ID)
	}
	assert.Equal(t, "fixed", pairs[1].ID)
	assert.Equal(t, 3, src.Len())

	pairs[0] = nil
	again, _ := src.Messages(context.Background())
	assert.NotNil(t, again[0], "callers get a copy")
}

func TestMemorySourceCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMemorySource().Messages(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRaw(t *testing.T) {
	p := &MessagePair{Request: []byte("req"), Response: []byte("resp")}
	assert.Equal(t, "req", string(Raw(p, Request)))
	assert.Equal(t, "resp", string(Raw(p, Response)))
	assert.Nil(t, Raw(nil, Request))
	assert.True(t, p.HasResponse())
	assert.False(t, (&MessagePair{}).HasResponse())
	assert.Equal(t, "request", Request.String())
	assert.Equal(t, "response", Response.String())
}

func TestScope(t *testing.T) {
	tests := []struct {
		name  string
		hosts []string
		host  string
		want  bool
	}{
		{"empty scope", nil, "anything.test", true},
		{"exact", []string{"app.example.com"}, "app.example.com", true},
		{"exact with port", []string{"app.example.com"}, "app.example.com:8443", true},
		{"case insensitive", []string{"App.Example.com"}, "app.EXAMPLE.com", true},
		{"other host", []string{"app.example.com"}, "api.example.com", false},
		{"wildcard subdomain", []string{"*.example.com"}, "api.example.com", true},
		{"wildcard apex", []string{"*.example.com"}, "example.com", true},
		{"wildcard lookalike", []string{"*.example.com"}, "badexample.com", false},
		{"blank entries ignored", []string{" ", "x.test"}, "x.test", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Scope{Hosts: tt.hosts}.InScope(&MessagePair{Host: tt.host}))
		})
	}
}

func TestScopeFilterKeepsIndexes(t *testing.T) {
	pairs, _ := NewMemorySource(
		&MessagePair{Host: "a.test"},
		&MessagePair{Host: "b.test"},
		&MessagePair{Host: "a.test"},
	).Messages(context.Background())

	kept := Scope{Hosts: []string{"a.test"}}.Filter(pairs)
	require.Len(t, kept, 2)
	assert.Equal(t, 0, kept[0].Index)
	assert.Equal(t, 2, kept[1].Index)
}

const sampleHAR = `{
  "log": {
    "entries": [
      {
        "startedDateTime": "2024-05-01T10:00:00.000Z",
        "request": {
          "method": "POST",
          "url": "https://app.example.com/login?next=%2Fhome",
          "httpVersion": "h2",
          "headers": [
            {"name": ":authority", "value": "app.example.com"},
            {"name": "Content-Type", "value": "application/x-www-form-urlencoded"}
          ],
          "postData": {"mimeType": "application/x-www-form-urlencoded", "text": "user=alice"}
        },
        "response": {
          "status": 302,
          "httpVersion": "HTTP/1.1",
          "headers": [{"name": "Set-Cookie", "value": "SESSION=abc; Path=/"}],
          "content": {"mimeType": "text/plain", "text": "aGVsbG8=", "encoding": "base64"}
        }
      },
      {
        "request": {"method": "GET", "url": "/relative", "headers": []},
        "response": {"status": 200, "headers": [], "content": {}}
      },
      {
        "request": {"url": "https://app.example.com/pending", "headers": [{"name": "Host", "value": "app.example.com"}]},
        "response": {"status": 0, "headers": [], "content": {}}
      }
    ]
  }
}`

func TestLoadHAR(t *testing.T) {
	src, err := LoadHAR(strings.NewReader(sampleHAR))
	require.NoError(t, err)

	require.Len(t, src.Skipped, 1)
	assert.Equal(t, 1, src.Skipped[0].Entry)
	assert.Contains(t, src.Skipped[0].Error(), "har entry 1")

	pairs, err := src.Messages(context.Background())
	require.NoError(t, err)
	require.Len(t, pairs, 2)

	login := pairs[0]
	assert.Equal(t, "app.example.com", login.Host)
	assert.Equal(t, 2024, login.Time.Year())
	assert.Equal(t,
		"POST /login?next=%2Fhome HTTP/1.1\r\n"+
			"Content-Type: application/x-www-form-urlencoded\r\n"+
			"Host: app.example.com\r\n"+
			"\r\n"+
			"user=alice",
		string(login.Request))
	assert.Equal(t,
		"HTTP/1.1 302 Found\r\nSet-Cookie: SESSION=abc; Path=/\r\n\r\nhello",
		string(login.Response))

	pending := pairs[1]
	assert.Equal(t, 1, pending.Index)
	assert.True(t, strings.HasPrefix(string(pending.Request), "GET /pending HTTP/1.1\r\n"))
	assert.Equal(t, 1, strings.Count(string(pending.Request), "Host:"))
	assert.False(t, pending.HasResponse())
}

func TestLoadHARErrors(t *testing.T) {
	_, err := LoadHAR(strings.NewReader("{"))
	assert.ErrorContains(t, err, "failed to decode HAR")

	_, err = LoadHARFile(filepath.Join(t.TempDir(), "missing.har"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	bad := `{"log":{"entries":[{"request":{"url":"https://x.test/"},"response":{"status":200,"content":{"text":"!!","encoding":"base64"}}}]}}`
	src, err := LoadHAR(strings.NewReader(bad))
	require.NoError(t, err)
	require.Len(t, src.Skipped, 1)
	assert.Zero(t, src.Len())
}
