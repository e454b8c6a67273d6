package key

import (
	"errors"
	"net/url"
	"strings"
)

// Separator terminates every encoded segment of a Key.
const Separator = '/'

// ErrMalformedKey is returned by Decode for strings that are not canonical keys.
var ErrMalformedKey = errors.New("key: malformed canonical key")

// Key is the canonical, order-preserving and prefix-safe form of a sequence of
// key segments. Every segment is percent-encoded and followed by Separator, so
// the key of ["A"] ("A/") is never a string prefix of the key of ["AB"] ("AB/").
type Key string

// --------------------------------------------------------------------------
// Encoding
// --------------------------------------------------------------------------

// Encode turns the given segments into a canonical Key.
// A single bare string is a one-segment sequence. Calling Encode without
// segments returns the empty Key, which is a prefix of every key.
func Encode(segments ...string) Key {
	var sb strings.Builder
	for _, segment := range segments {
		escape(&sb, segment)
		sb.WriteByte(Separator)
	}
	return Key(sb.String())
}

// Parse encodes a human written, '/'-separated path such as "DATA/Key1".
// A single trailing separator is ignored and the empty string maps to the
// empty Key. Segments are taken literally, so Parse cannot express segments
// that contain a '/' (use Encode for those).
func Parse(path string) Key {
	if path == "" {
		return ""
	}
	path = strings.TrimSuffix(path, string(Separator))
	return Encode(strings.Split(path, string(Separator))...)
}

// Decode returns the segments a canonical key was built from.
func Decode(k Key) ([]string, error) {
	if k == "" {
		return []string{}, nil
	}
	s := string(k)
	if s[len(s)-1] != Separator {
		return nil, ErrMalformedKey
	}

	parts := strings.Split(s[:len(s)-1], string(Separator))
	segments := make([]string, 0, len(parts))
	for _, part := range parts {
		if !isCanonical(part) {
			return nil, ErrMalformedKey
		}
		segment, err := url.PathUnescape(part)
		if err != nil {
			return nil, ErrMalformedKey
		}
		segments = append(segments, segment)
	}
	return segments, nil
}

// Valid reports whether k is a canonical key (as produced by Encode).
func Valid(k Key) bool {
	_, err := Decode(k)
	return err == nil
}

// --------------------------------------------------------------------------
// Key Methods
// --------------------------------------------------------------------------

// String returns the canonical string.
func (k Key) String() string {
	return string(k)
}

// HasPrefix reports whether k lies in the namespace spanned by prefix.
func (k Key) HasPrefix(prefix Key) bool {
	return strings.HasPrefix(string(k), string(prefix))
}

// Segments is a shorthand for Decode that returns nil for malformed keys.
func (k Key) Segments() []string {
	segments, err := Decode(k)
	if err != nil {
		return nil
	}
	return segments
}

// Path renders the key the way Parse reads it ("DATA/Key1").
// Only meant for display: segments containing '/' are not escaped.
func (k Key) Path() string {
	return strings.Join(k.Segments(), string(Separator))
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

const upperHex = "0123456789ABCDEF"

// unreserved reports whether c is left as is by the percent-encoding.
// This is the character set of encodeURIComponent.
func unreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '-', '_', '.', '!', '~', '*', '\'', '(', ')':
		return true
	}
	return false
}

// escape percent-encodes s bytewise into sb
func escape(sb *strings.Builder, s string) {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if unreserved(c) {
			sb.WriteByte(c)
			continue
		}
		sb.WriteByte('%')
		sb.WriteByte(upperHex[c>>4])
		sb.WriteByte(upperHex[c&15])
	}
}

// isCanonical checks that an encoded segment only contains unreserved
// characters and well-formed uppercase escapes, so that Decode(Encode(x)) is
// the only way to produce a valid key.
func isCanonical(part string) bool {
	for i := 0; i < len(part); i++ {
		c := part[i]
		if c == '%' {
			if i+2 >= len(part) || !isUpperHex(part[i+1]) || !isUpperHex(part[i+2]) {
				return false
			}
			if unreserved(fromHex(part[i+1])<<4 | fromHex(part[i+2])) {
				return false
			}
			i += 2
			continue
		}
		if !unreserved(c) {
			return false
		}
	}
	return true
}

func isUpperHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('A' <= c && c <= 'F')
}

func fromHex(c byte) byte {
	if c <= '9' {
		return c - '0'
	}
	return c - 'A' + 10
}
