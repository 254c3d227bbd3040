package database

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shufflegen/types"
)

func sampleTracks() []TrackRecord {
	return []TrackRecord{
		{
			DevicePath:  "/iPod_Control/Music/a.mp3",
			Format:      types.FormatMP3,
			StopAtMS:    215000,
			VolumeGain:  3,
			AlbumID:     0,
			ArtistID:    0,
			TrackNumber: 1,
			DiscNumber:  1,
			DBID:        MakeDBID("a"),
		},
		{
			DevicePath: "/iPod_Control/Music/b.m4a",
			Format:     types.FormatAAC,
			DBID:       MakeDBID("b"),
		},
	}
}

func TestBuildIndexHeader(t *testing.T) {
	tracks := sampleTracks()
	playlists := []PlaylistRecord{{Master: true, Indices: []uint32{0, 1}}}

	data := BuildIndex(tracks, playlists, true)
	require.GreaterOrEqual(t, len(data), dbHeaderLen)

	assert.Equal(t, []byte("bdhs"), data[0:4])
	assert.Equal(t, uint32(0x02000003), binary.LittleEndian.Uint32(data[4:8]))
	assert.Equal(t, uint32(dbHeaderLen), binary.LittleEndian.Uint32(data[8:12]))
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(data[12:16]), "track count")
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(data[16:20]), "playlist count")
	assert.Equal(t, byte(0), data[28], "max volume unrestricted")
	assert.Equal(t, byte(1), data[29], "voiceover flag")
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(data[32:36]), "non-podcast count")
	assert.Equal(t, uint32(dbHeaderLen), binary.LittleEndian.Uint32(data[36:40]), "track table offset")

	trackTableLen := 20 + len(tracks)*4 + len(tracks)*trackRecordLen
	assert.Equal(t, uint32(dbHeaderLen+trackTableLen), binary.LittleEndian.Uint32(data[40:44]), "playlist table offset")

	playlistTableLen := 20 + len(playlists)*4 + (44 + 4*2)
	assert.Len(t, data, dbHeaderLen+trackTableLen+playlistTableLen)
}

func TestBuildIndexVoiceoverFlagOff(t *testing.T) {
	data := BuildIndex(sampleTracks(), nil, false)
	assert.Equal(t, byte(0), data[29])
}

func TestBuildIndexDeterministic(t *testing.T) {
	tracks := sampleTracks()
	playlists := []PlaylistRecord{
		{Master: true, Indices: []uint32{0, 1}},
		{DBID: MakeDBID("rock"), Indices: []uint32{1}},
	}
	assert.Equal(t,
		BuildIndex(tracks, playlists, true),
		BuildIndex(tracks, playlists, true),
		"identical input must serialize to identical bytes")
}

func TestTrackRecordLayout(t *testing.T) {
	tracks := sampleTracks()
	data := BuildIndex(tracks, nil, false)

	// First record sits right after the track table header.
	rec := dbHeaderLen + 20 + len(tracks)*4
	record := data[rec : rec+trackRecordLen]

	assert.Equal(t, []byte("rths"), record[0:4])
	assert.Equal(t, uint32(trackRecordLen), binary.LittleEndian.Uint32(record[4:8]))
	assert.Equal(t, uint32(215000), binary.LittleEndian.Uint32(record[12:16]), "stop position")
	assert.Equal(t, uint32(3), binary.LittleEndian.Uint32(record[16:20]), "volume gain")
	assert.Equal(t, uint32(fileTypeMPEG), binary.LittleEndian.Uint32(record[20:24]))

	name := record[24 : 24+256]
	assert.Equal(t, "/iPod_Control/Music/a.mp3", string(name[:25]))
	assert.Equal(t, byte(0), name[25], "filename is zero padded")

	assert.Equal(t, byte(1), record[284], "dontskip")
	assert.Equal(t, uint32(0x200), binary.LittleEndian.Uint32(record[288:292]), "pregap")
	assert.Equal(t, uint32(0x200), binary.LittleEndian.Uint32(record[292:296]), "postgap")

	// Second record carries the AAC file type.
	second := data[rec+trackRecordLen : rec+2*trackRecordLen]
	assert.Equal(t, uint32(fileTypeAAC), binary.LittleEndian.Uint32(second[20:24]))
}

func TestPlaylistRecordLayout(t *testing.T) {
	playlists := []PlaylistRecord{
		{DBID: MakeDBID("masterlist"), Master: true, Indices: []uint32{0, 1, 2}},
		{DBID: MakeDBID("jazz"), Indices: []uint32{2}},
	}
	data := BuildIndex(sampleTracks(), playlists, true)

	tableOffset := int(binary.LittleEndian.Uint32(data[40:44]))
	assert.Equal(t, []byte("hphs"), data[tableOffset:tableOffset+4])
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(data[tableOffset+8:tableOffset+12]))

	firstOffset := int(binary.LittleEndian.Uint32(data[tableOffset+20 : tableOffset+24]))
	master := data[firstOffset:]
	assert.Equal(t, []byte("lphs"), master[0:4])
	assert.Equal(t, uint32(44+4*3), binary.LittleEndian.Uint32(master[4:8]), "record length")
	assert.Equal(t, uint32(3), binary.LittleEndian.Uint32(master[8:12]), "song count")
	assert.Equal(t, uint32(3), binary.LittleEndian.Uint32(master[12:16]), "song count repeated")
	masterDBID := MakeDBID("masterlist")
	assert.Equal(t, masterDBID[:], master[16:24])
	assert.Equal(t, uint32(listTypeMaster), binary.LittleEndian.Uint32(master[24:28]))
	assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(master[44:48]), "first index")
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(master[52:56]), "last index")

	secondOffset := int(binary.LittleEndian.Uint32(data[tableOffset+24 : tableOffset+28]))
	normal := data[secondOffset:]
	assert.Equal(t, uint32(listTypeNormal), binary.LittleEndian.Uint32(normal[24:28]))
}

func TestReadIndexPathsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, IndexFileName)

	tracks := sampleTracks()
	require.NoError(t, os.WriteFile(path, BuildIndex(tracks, nil, false), 0644))

	paths, err := ReadIndexPaths(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"/iPod_Control/Music/a.mp3", "/iPod_Control/Music/b.m4a"}, paths)
}

func TestReadIndexPathsMissingFile(t *testing.T) {
	paths, err := ReadIndexPaths(filepath.Join(t.TempDir(), IndexFileName))
	assert.NoError(t, err)
	assert.Empty(t, paths)
}

func TestReadIndexPathsCorrupt(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, IndexFileName)
	require.NoError(t, os.WriteFile(path, []byte("not a database"), 0644))

	_, err := ReadIndexPaths(path)
	assert.ErrorIs(t, err, types.ErrSerialization)
}
