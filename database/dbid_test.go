package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMakeDBID(t *testing.T) {
	// md5("test") = 098f6bcd4621d373cade4e832627b4f6
	dbid := MakeDBID("test")
	assert.Equal(t, [8]byte{0x09, 0x8f, 0x6b, 0xcd, 0x46, 0x21, 0xd3, 0x73}, dbid)

	assert.Equal(t, dbid, MakeDBID("test"), "same text must yield the same id")
	assert.NotEqual(t, dbid, MakeDBID("Test"))
}

func TestDBIDFileName(t *testing.T) {
	assert.Equal(t, "73d32146cd6b8f09", DBIDFileName(MakeDBID("test")))
	assert.Equal(t, "0000000000000000", DBIDFileName([8]byte{}))
	assert.Len(t, DBIDFileName(MakeDBID("anything")), 16)
}
