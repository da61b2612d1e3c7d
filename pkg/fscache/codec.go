package fscache

import (
	"bytes"
	"strconv"
	"time"
)

var headerMarker = []byte("##")

// encodeEntry prefixes payload with the expiration header. A non-positive
// ttl writes an empty header, meaning the entry never expires.
func encodeEntry(payload []byte, ttl time.Duration, now time.Time) []byte {
	var expiration string
	if secs := ttlSeconds(ttl); secs > 0 {
		expiration = strconv.FormatInt(now.Unix()+secs, 10)
	}

	out := make([]byte, 0, len(payload)+len(expiration)+5)
	out = append(out, headerMarker...)
	out = append(out, expiration...)
	out = append(out, headerMarker...)
	out = append(out, '\n')

	return append(out, payload...)
}

// decodeEntry splits data into payload and expiration (unix seconds, 0 for
// none). Content without a valid header is returned whole with expiration 0.
func decodeEntry(data []byte) (payload []byte, expiration int64) {
	rest, ok := bytes.CutPrefix(data, headerMarker)
	if !ok {
		return data, 0
	}

	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}

	digits := rest[:end]

	rest, ok = bytes.CutPrefix(rest[end:], []byte("##\n"))
	if !ok {
		return data, 0
	}

	if len(digits) == 0 {
		return rest, 0
	}

	expiration, err := strconv.ParseInt(string(digits), 10, 64)
	if err != nil {
		// Overflow: treat as no expiration.
		return rest, 0
	}

	return rest, expiration
}

// isExpired reports whether an entry with the given header has expired.
func isExpired(expiration int64, now time.Time) bool {
	return expiration != 0 && now.Unix() >= expiration
}

// ttlSeconds converts ttl to whole seconds, rounding up so that a positive
// sub-second ttl still expires.
func ttlSeconds(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}

	secs := int64(ttl / time.Second)
	if ttl%time.Second != 0 {
		secs++
	}

	return secs
}
