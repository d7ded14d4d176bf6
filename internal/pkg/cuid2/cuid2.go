// Package cuid2 generates prefixed, URL-safe ids such as "imp_1rK5iqX0…".
// Ids are time-sortable by default: a 6-character base62 timestamp is
// followed by crypto-random base62 characters.
package cuid2

import (
	"crypto/rand"
	"strings"
	"time"
)

const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// Prefixes used by the service.
const (
	PrefixImport = "imp"
	PrefixUpload = "upl"
	PrefixToken  = "tok"
)

// EncodeTimestamp encodes Unix seconds as 6 base62 characters, preserving
// lexical order up to ~56 billion seconds.
func EncodeTimestamp(seconds int64) string {
	out := make([]byte, 6)
	for i := 5; i >= 0; i-- {
		out[i] = alphabet[seconds%62]
		seconds /= 62
	}
	return string(out)
}

// randomString draws 6 bits per character and rejects values >= 62 so every
// character is uniformly distributed.
func randomString(length int) string {
	buf := make([]byte, (length*6)/8+4)
	fill := func() {
		if _, err := rand.Read(buf); err != nil {
			panic("cuid2: read random bytes: " + err.Error())
		}
	}
	fill()

	var sb strings.Builder
	sb.Grow(length)
	var bits uint64
	var n uint
	pos := 0
	for sb.Len() < length {
		for n < 6 && pos < len(buf) {
			bits = bits<<8 | uint64(buf[pos])
			n += 8
			pos++
		}
		v := (bits >> (n - 6)) & 0x3f
		n -= 6
		if v < 62 {
			sb.WriteByte(alphabet[v])
		}
		if pos >= len(buf) && n < 6 && sb.Len() < length {
			fill()
			pos, bits, n = 0, 0, 0
		}
	}
	return sb.String()
}

// Options tunes generated ids.
type Options struct {
	// Unsorted drops the timestamp prefix.
	Unsorted bool
	// RandomLength overrides the random part length (18 sorted, 24 unsorted).
	RandomLength int
}

// New returns an id for prefix.
func New(prefix string, opts ...Options) string {
	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}
	length := o.RandomLength
	if o.Unsorted {
		if length <= 0 {
			length = 24
		}
		return prefix + "_" + randomString(length)
	}
	if length <= 0 {
		length = 18
	}
	return prefix + "_" + EncodeTimestamp(time.Now().Unix()) + randomString(length)
}
