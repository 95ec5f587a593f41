package shims

import (
	"encoding/base64"
	"errors"
	"strings"
	"unicode/utf8"
)

var errInvalidCharacter = errors.New("InvalidCharacterError: string contains characters outside of the Latin1 range")

// Encoding implements atob/btoa with binary-string semantics plus UTF-8
// helpers for TextEncoder and TextDecoder.
type Encoding struct{}

// Btoa base64-encodes a binary string (every code point must be <= 0xFF)
func (Encoding) Btoa(s string) (string, error) {
	buf := make([]byte, 0, len(s))
	for _, r := range s {
		if r > 0xFF {
			return "", errInvalidCharacter
		}
		buf = append(buf, byte(r))
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

// Atob decodes base64 into a binary string. ASCII whitespace is ignored
// and padding is optional.
func (Encoding) Atob(s string) (string, error) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\f', '\r':
			return -1
		}
		return r
	}, s)
	s = strings.TrimRight(s, "=")

	raw, err := base64.RawStdEncoding.DecodeString(s)
	if err != nil {
		return "", errors.New("InvalidCharacterError: the string to be decoded is not correctly encoded")
	}
	return binaryString(raw), nil
}

// EncodeUtf8 returns the base64 of the UTF-8 encoding of s
func (Encoding) EncodeUtf8(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

// DecodeUtf8 decodes base64 bytes as UTF-8, replacing invalid sequences
func (Encoding) DecodeUtf8(b64 string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return "", err
	}
	if utf8.Valid(raw) {
		return string(raw), nil
	}
	return strings.ToValidUTF8(string(raw), "\uFFFD"), nil
}

func binaryString(raw []byte) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, c := range raw {
		b.WriteRune(rune(c))
	}
	return b.String()
}
