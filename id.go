package vcore

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// newID generates an id of the form vec_<creation-epoch-ms>_<9-char base36>
// (spec §6). The entropy segment is sliced from a fresh UUID's random bytes
// and base36-encoded, rather than drawing from a separate PRNG.
func newID(nowMs int64) string {
	entropy := base36FromUUID(uuid.New(), 9)
	return "vec_" + strconv.FormatInt(nowMs, 10) + "_" + entropy
}

// base36FromUUID derives an n-character base36 string from u's 16 random
// bytes, treating them as a big unsigned integer.
func base36FromUUID(u uuid.UUID, n int) string {
	b := u[:]
	var digits []byte
	// Repeated divide-by-36 over the byte slice, big-endian.
	work := make([]byte, len(b))
	copy(work, b)
	for i := 0; i < n+4 && !allZero(work); i++ {
		rem := 0
		for j := 0; j < len(work); j++ {
			cur := rem*256 + int(work[j])
			work[j] = byte(cur / 36)
			rem = cur % 36
		}
		digits = append(digits, base36Alphabet[rem])
	}
	for len(digits) < n {
		digits = append(digits, '0')
	}
	// digits were produced least-significant-first; reverse and take n.
	reversed := make([]byte, len(digits))
	for i, d := range digits {
		reversed[len(digits)-1-i] = d
	}
	s := string(reversed)
	if len(s) > n {
		s = s[len(s)-n:]
	}
	return s
}

func allZero(b []byte) bool {
	for _, x := range b {
		if x != 0 {
			return false
		}
	}
	return true
}

// idCreationMs extracts the creation epoch-ms embedded in a vcore id,
// returning false if id doesn't match the vec_<epoch>_<entropy> shape. Used
// by FIFO pruning when metadata.timestamp is absent (spec §4.5).
func idCreationMs(id string) (int64, bool) {
	if !strings.HasPrefix(id, "vec_") {
		return 0, false
	}
	rest := id[len("vec_"):]
	idx := strings.IndexByte(rest, '_')
	if idx < 0 {
		return 0, false
	}
	ms, err := strconv.ParseInt(rest[:idx], 10, 64)
	if err != nil {
		return 0, false
	}
	return ms, true
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}
