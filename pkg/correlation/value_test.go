package correlation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeValueCharset(t *testing.T) {
	tests := []struct {
		value string
		want  string
	}{
		{"", CharsetEmpty},
		{"12345", CharsetNumeric},
		{"deadBEEF", CharsetHex},
		{"abcXYZ123", CharsetAlphanumeric},
		{"ab-_cd", CharsetBase64URL},
		{"ab+/cd==", CharsetBase64},
		{"a b!", CharsetMixed},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, AnalyzeValue(tt.value).Charset)
		})
	}
}

func TestAnalyzeValueHashGuess(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  string
	}{
		{"md5", "d41d8cd98f00b204e9800998ecf8427e", "MD5"},
		{"sha1", "da39a3ee5e6b4b0d3255bfef95601890afd80709", "SHA-1"},
		{"sha256", "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", "SHA-256"},
		{"odd length", "abc123", ""},
		{"not hex", "zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AnalyzeValue(tt.value).HashGuess)
		})
	}
}

func TestAnalyzeValueEntropy(t *testing.T) {
	assert.Equal(t, 0.0, AnalyzeValue("aaaa").Entropy)
	assert.InDelta(t, 1.0, AnalyzeValue("abab").Entropy, 1e-9)
	assert.InDelta(t, 2.0, AnalyzeValue("abcd").Entropy, 1e-9)
	assert.Equal(t, 0.0, AnalyzeValue("").Entropy)
}

func TestAnalyzeValueJWT(t *testing.T) {
	token := "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9." +
		"eyJzdWIiOiIxMjM0NTY3ODkwIiwibmFtZSI6IkpvaG4gRG9lIiwiaWF0IjoxNTE2MjM5MDIyfQ." +
		"SflKxwRJSMeKKF2QT4fwpMeJf36POk6yJV_adQssw5c"

	a := AnalyzeValue(token)
	require.NotNil(t, a.JWT)
	assert.Equal(t, "HS256", a.JWT.Algorithm)
	assert.Equal(t, []string{"alg", "typ"}, a.JWT.HeaderKeys)
	assert.Equal(t, []string{"sub", "name", "iat"}, a.JWT.ClaimKeys)

	assert.Nil(t, AnalyzeValue("eyJub3QiOiJqd3Qi.x").JWT)
	assert.Nil(t, AnalyzeValue("a.b.c").JWT)
}

func TestAnalyzeValueURLEncoding(t *testing.T) {
	a := AnalyzeValue("a%20b%3D")
	assert.True(t, a.URLEncoded)
	assert.Equal(t, "a b=", a.URLDecoded)

	plain := AnalyzeValue("plain")
	assert.False(t, plain.URLEncoded)
	assert.Empty(t, plain.URLDecoded)
}
