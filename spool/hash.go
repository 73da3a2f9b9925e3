package spool

import (
	"encoding/base64"

	"github.com/minio/highwayhash"
)

var (
	// This key was randomly generated but needs to be consistent between
	// builds so that entries written by one build validate under another.
	entryHashKey = [32]byte{
		0x3c, 0x91, 0x2e, 0x55, 0xb0, 0x1a, 0xd4, 0x6f,
		0x88, 0x02, 0xc7, 0x4e, 0x19, 0xe3, 0x5d, 0xaa,
		0x71, 0x0c, 0xf6, 0x24, 0x8b, 0x39, 0xde, 0x90,
		0x45, 0xb7, 0x6a, 0x1f, 0xcd, 0x58, 0x03, 0xe2,
	}
)

// Produces the checksum header stored on the first line of every entry
// file, in the form "hh=<base64>".
func checksum(payload []byte) string {
	h, _ := highwayhash.New64(entryHashKey[:])
	h.Write(payload)
	return "hh=" + base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

// Returns true if the given header matches the payload.
func verifyChecksum(header string, payload []byte) bool {
	return header == checksum(payload)
}
