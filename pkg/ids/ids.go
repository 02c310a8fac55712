// Package ids generates the short, typed identifiers of stored records.
//
// Format: <kind:2>-<base62_ts:4><base62_rand:6> (13 chars including the dash)
//
// Kinds:
//   - mn = minutes result
//   - jb = queued job
//   - mu = model update
//
// The timestamp component is microseconds modulo 62^4, so IDs created close
// together share a prefix.
package ids

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"
)

// Record kinds.
const (
	KindMinutes     = "mn"
	KindJob         = "jb"
	KindModelUpdate = "mu"
)

// Length is the length of every ID.
const Length = 13

const base62Alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// base62Max is 62^4 = 14,776,336
const base62Max = 62 * 62 * 62 * 62

var validKinds = map[string]bool{
	KindMinutes:     true,
	KindJob:         true,
	KindModelUpdate: true,
}

// Errors
var (
	ErrInvalidFormat = errors.New("invalid id format")
	ErrInvalidKind   = errors.New("invalid id kind")
)

// ID is a parsed identifier.
type ID struct {
	Kind      string
	Timestamp string
	Random    string
	Raw       string
}

func (id ID) String() string {
	return id.Raw
}

// New generates an ID of kind. Panics if kind is not one of the Kind
// constants.
func New(kind string) string {
	if !validKinds[kind] {
		panic(fmt.Sprintf("ids: invalid kind: %q", kind))
	}
	ts := encodeBase62(uint64(time.Now().UnixMicro()) % base62Max)
	return kind + "-" + ts + randomBase62(6)
}

// Generator returns a func producing IDs of kind.
func Generator(kind string) func() string {
	if !validKinds[kind] {
		panic(fmt.Sprintf("ids: invalid kind: %q", kind))
	}
	return func() string { return New(kind) }
}

// Parse validates and parses id.
func Parse(id string) (ID, error) {
	if len(id) != Length {
		return ID{}, fmt.Errorf("%w: expected %d characters, got %d", ErrInvalidFormat, Length, len(id))
	}
	if id[2] != '-' {
		return ID{}, fmt.Errorf("%w: missing dash at position 2", ErrInvalidFormat)
	}

	kind := id[:2]
	if !validKinds[kind] {
		return ID{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidKind, kind)
	}
	suffix := id[3:]
	if !isValidBase62(suffix) {
		return ID{}, fmt.Errorf("%w: suffix contains invalid characters", ErrInvalidFormat)
	}

	return ID{Kind: kind, Timestamp: suffix[:4], Random: suffix[4:], Raw: id}, nil
}

// Is reports whether id is a valid ID of kind.
func Is(id, kind string) bool {
	p, err := Parse(id)
	return err == nil && p.Kind == kind
}

func encodeBase62(n uint64) string {
	result := make([]byte, 4)
	for i := 3; i >= 0; i-- {
		result[i] = base62Alphabet[n%62]
		n /= 62
	}
	return string(result)
}

// randomBase62 uses rejection sampling to avoid modulo bias.
func randomBase62(length int) string {
	result := make([]byte, length)

	// 256 = 4*62 + 8: bytes 248-255 are rejected.
	const maxUnbiased = 248

	var buf [16]byte
	for i := 0; i < length; {
		if _, err := rand.Read(buf[:]); err != nil {
			panic(fmt.Sprintf("ids: reading random bytes: %v", err))
		}
		for _, b := range buf {
			if i == length {
				break
			}
			if b < maxUnbiased {
				result[i] = base62Alphabet[b%62]
				i++
			}
		}
	}
	return string(result)
}

func isValidBase62(s string) bool {
	for _, c := range s {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z') {
			return false
		}
	}
	return true
}
