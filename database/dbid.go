// Package database assembles and writes the binary file family the player
// firmware reads: the track/playlist index, the play-history store and the
// small player-state file.
package database

import (
	"crypto/md5"
	"fmt"
)

// MakeDBID derives the 8-byte database identity of a spoken name: the first
// half of the MD5 of the text. The same text always yields the same id, which
// is what makes voice prompt reuse across runs possible.
func MakeDBID(text string) [8]byte {
	sum := md5.Sum([]byte(text))
	var dbid [8]byte
	copy(dbid[:], sum[:8])
	return dbid
}

// DBIDFileName renders a dbid the way the firmware locates voice prompt
// files: bytes in reverse order, lowercase hex.
func DBIDFileName(dbid [8]byte) string {
	out := make([]byte, 0, 16)
	for i := len(dbid) - 1; i >= 0; i-- {
		out = append(out, fmt.Sprintf("%02x", dbid[i])...)
	}
	return string(out)
}
