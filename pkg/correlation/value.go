package correlation

import (
	"encoding/base64"
	"math"
	"net/url"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// Charset classes reported by AnalyzeValue, narrowest first
const (
	CharsetEmpty        = "empty"
	CharsetNumeric      = "numeric"
	CharsetHex          = "hex"
	CharsetAlphanumeric = "alphanumeric"
	CharsetBase64URL    = "base64url"
	CharsetBase64       = "base64"
	CharsetMixed        = "mixed"
)

var (
	numericRe   = regexp.MustCompile(`^[0-9]+$`)
	hexRe       = regexp.MustCompile(`^[0-9a-fA-F]+$`)
	alnumRe     = regexp.MustCompile(`^[0-9a-zA-Z]+$`)
	base64URLRe = regexp.MustCompile(`^[0-9a-zA-Z_-]+={0,2}$`)
	base64Re    = regexp.MustCompile(`^[0-9a-zA-Z+/]+={0,2}$`)
)

var hashLengths = map[int]string{
	32:  "MD5",
	40:  "SHA-1",
	64:  "SHA-256",
	128: "SHA-512",
}

// ValueAnalysis describes the shape of a parameter value
type ValueAnalysis struct {
	Length     int      `json:"length"`
	Charset    string   `json:"charset"`
	Entropy    float64  `json:"entropy"`
	HashGuess  string   `json:"hash_guess,omitempty"`
	JWT        *JWTInfo `json:"jwt,omitempty"`
	URLEncoded bool     `json:"url_encoded"`
	URLDecoded string   `json:"url_decoded,omitempty"`
}

type JWTInfo struct {
	Algorithm  string   `json:"algorithm"`
	HeaderKeys []string `json:"header_keys"`
	ClaimKeys  []string `json:"claim_keys"`
}

// AnalyzeValue classifies a value for display next to a parameter
func AnalyzeValue(value string) ValueAnalysis {
	a := ValueAnalysis{
		Length:  len(value),
		Charset: classifyCharset(value),
		Entropy: shannonEntropy(value),
	}

	if a.Charset == CharsetHex || a.Charset == CharsetNumeric {
		a.HashGuess = hashLengths[len(value)]
	}

	a.JWT = parseJWT(value)

	if decoded, err := url.QueryUnescape(value); err == nil && decoded != value {
		a.URLEncoded = true
		a.URLDecoded = decoded
	}
	return a
}

func classifyCharset(v string) string {
	switch {
	case v == "":
		return CharsetEmpty
	case numericRe.MatchString(v):
		return CharsetNumeric
	case hexRe.MatchString(v):
		return CharsetHex
	case alnumRe.MatchString(v):
		return CharsetAlphanumeric
	case base64URLRe.MatchString(v):
		return CharsetBase64URL
	case base64Re.MatchString(v):
		return CharsetBase64
	default:
		return CharsetMixed
	}
}

// shannonEntropy returns bits of entropy per character
func shannonEntropy(s string) float64 {
	if len(s) == 0 {
		return 0
	}

	freq := make(map[rune]float64)
	total := 0.0
	for _, char := range s {
		freq[char]++
		total++
	}

	var entropy float64
	for _, count := range freq {
		p := count / total
		entropy -= p * math.Log2(p)
	}
	return entropy
}

func parseJWT(v string) *JWTInfo {
	parts := strings.Split(v, ".")
	if len(parts) != 3 || !strings.HasPrefix(parts[0], "eyJ") {
		return nil
	}

	header, ok := decodeSegment(parts[0])
	if !ok {
		return nil
	}
	claims, ok := decodeSegment(parts[1])
	if !ok {
		return nil
	}

	info := &JWTInfo{Algorithm: header.Get("alg").String()}
	header.ForEach(func(key, _ gjson.Result) bool {
		info.HeaderKeys = append(info.HeaderKeys, key.String())
		return true
	})
	claims.ForEach(func(key, _ gjson.Result) bool {
		info.ClaimKeys = append(info.ClaimKeys, key.String())
		return true
	})
	return info
}

func decodeSegment(seg string) (gjson.Result, bool) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(seg, "="))
	if err != nil || !gjson.ValidBytes(raw) {
		return gjson.Result{}, false
	}
	doc := gjson.ParseBytes(raw)
	return doc, doc.IsObject()
}
