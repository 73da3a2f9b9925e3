package spool

import (
	"strings"
	"testing"

	"github.com/liquidgecka/testlib"
)

func TestChecksum(t *testing.T) {
	T := testlib.NewT(t)
	defer T.Finish()

	header := checksum([]byte("payload"))
	T.Equal(strings.HasPrefix(header, "hh="), true)

	// Stable across calls, distinct across payloads.
	T.Equal(checksum([]byte("payload")), header)
	T.NotEqual(checksum([]byte("payloae")), header)

	T.Equal(verifyChecksum(header, []byte("payload")), true)
	T.Equal(verifyChecksum(header, []byte("tampered")), false)
	T.Equal(verifyChecksum("md5=bogus", []byte("payload")), false)
}
