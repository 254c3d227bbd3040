package database

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"shufflegen/types"
)

// Index file layout constants. All numeric fields are little-endian; the
// magic strings are stored as-is.
const (
	IndexFileName = "iTunesSD"

	dbHeaderLen    = 64
	trackRecordLen = 0x174

	fileTypeMPEG = 1
	fileTypeAAC  = 2

	listTypeMaster = 1
	listTypeNormal = 2
)

var (
	magicDB       = []byte("bdhs")
	magicTracks   = []byte("hths")
	magicTrack    = []byte("rths")
	magicLists    = []byte("hphs")
	magicList     = []byte("lphs")
	dbVersionWord = uint32(0x02000003)
)

// TrackRecord is one entry of the on-device track table.
type TrackRecord struct {
	DevicePath  string // device-absolute path, e.g. "/iPod_Control/Music/a.mp3"
	Format      types.TrackFormat
	StopAtMS    uint32
	VolumeGain  uint32
	AlbumID     uint32
	ArtistID    uint32
	TrackNumber uint16
	DiscNumber  uint16
	DBID        [8]byte
}

// PlaylistRecord is one entry of the on-device playlist table. Indices refer
// to positions in the track table.
type PlaylistRecord struct {
	DBID    [8]byte
	Master  bool
	Indices []uint32
}

// leBuffer wraps bytes.Buffer with little-endian field writers. Writes to a
// bytes.Buffer cannot fail, so the helpers don't return errors.
type leBuffer struct {
	bytes.Buffer
}

func (b *leBuffer) u8(v uint8)   { b.WriteByte(v) }
func (b *leBuffer) u16(v uint16) { _ = binary.Write(b, binary.LittleEndian, v) }
func (b *leBuffer) u32(v uint32) { _ = binary.Write(b, binary.LittleEndian, v) }
func (b *leBuffer) u64(v uint64) { _ = binary.Write(b, binary.LittleEndian, v) }
func (b *leBuffer) raw(p []byte) { b.Write(p) }
func (b *leBuffer) zeros(n int)  { b.Write(make([]byte, n)) }

// fixedString writes s into a zero-padded field of n bytes, truncating when
// the UTF-8 encoding is longer.
func (b *leBuffer) fixedString(s string, n int) {
	field := make([]byte, n)
	copy(field, s)
	b.raw(field)
}

// BuildIndex serializes the complete track/playlist index file. Track table
// order is the on-device play order and the single source of truth for the
// indices every playlist references.
func BuildIndex(tracks []TrackRecord, playlists []PlaylistRecord, voiceover bool) []byte {
	trackTable := buildTrackTable(tracks, dbHeaderLen)
	playlistOffset := uint32(dbHeaderLen + len(trackTable))
	playlistTable := buildPlaylistTable(playlists, playlistOffset)

	var b leBuffer
	b.raw(magicDB)
	b.u32(dbVersionWord)
	b.u32(dbHeaderLen)
	b.u32(uint32(len(tracks)))
	b.u32(uint32(len(playlists)))
	b.u64(0)
	b.u8(0) // max_volume: unrestricted
	if voiceover {
		b.u8(1)
	} else {
		b.u8(0)
	}
	b.u16(0)
	b.u32(uint32(len(tracks))) // none of ours are podcasts
	b.u32(dbHeaderLen)
	b.u32(playlistOffset)
	b.zeros(20)

	b.raw(trackTable)
	b.raw(playlistTable)
	return b.Bytes()
}

func buildTrackRecord(t TrackRecord) []byte {
	fileType := uint32(fileTypeMPEG)
	if t.Format == types.FormatAAC {
		fileType = fileTypeAAC
	}

	var b leBuffer
	b.raw(magicTrack)
	b.u32(trackRecordLen)
	b.u32(0) // start_at_pos_ms
	b.u32(t.StopAtMS)
	b.u32(t.VolumeGain)
	b.u32(fileType)
	b.fixedString(t.DevicePath, 256)
	b.u32(0)     // bookmark
	b.u8(1)      // dontskip
	b.u8(0)      // remember
	b.u8(0)      // unintalbum
	b.u8(0)      // unknown
	b.u32(0x200) // pregap
	b.u32(0x200) // postgap
	b.u32(0)     // numsamples
	b.u32(0)
	b.u32(0) // gapless
	b.u32(0)
	b.u32(t.AlbumID)
	b.u16(t.TrackNumber)
	b.u16(t.DiscNumber)
	b.u64(0)
	b.raw(t.DBID[:])
	b.u32(t.ArtistID)
	b.zeros(32)
	return b.Bytes()
}

func buildTrackTable(tracks []TrackRecord, baseOffset uint32) []byte {
	headerLen := uint32(20 + len(tracks)*4)

	chunks := make([][]byte, 0, len(tracks))
	for _, t := range tracks {
		chunks = append(chunks, buildTrackRecord(t))
	}

	var b leBuffer
	b.raw(magicTracks)
	b.u32(headerLen)
	b.u32(uint32(len(tracks)))
	b.u64(0)

	offset := uint32(0)
	for _, c := range chunks {
		b.u32(baseOffset + headerLen + offset)
		offset += uint32(len(c))
	}
	for _, c := range chunks {
		b.raw(c)
	}
	return b.Bytes()
}

func buildPlaylistRecord(p PlaylistRecord) []byte {
	listType := uint32(listTypeNormal)
	if p.Master {
		listType = listTypeMaster
	}

	var b leBuffer
	b.raw(magicList)
	b.u32(uint32(44 + 4*len(p.Indices)))
	b.u32(uint32(len(p.Indices)))
	b.u32(uint32(len(p.Indices))) // number_of_nonaudio
	b.raw(p.DBID[:])
	b.u32(listType)
	b.zeros(16)
	for _, idx := range p.Indices {
		b.u32(idx)
	}
	return b.Bytes()
}

func buildPlaylistTable(playlists []PlaylistRecord, baseOffset uint32) []byte {
	headerLen := uint32(0x14 + len(playlists)*4)

	chunks := make([][]byte, 0, len(playlists))
	for _, p := range playlists {
		chunks = append(chunks, buildPlaylistRecord(p))
	}

	var b leBuffer
	b.raw(magicLists)
	b.u32(headerLen)
	b.u32(uint32(len(playlists)))
	b.raw([]byte{0xFF, 0xFF}) // non-podcast lists
	b.raw([]byte{0x01, 0x00}) // master lists
	b.raw([]byte{0xFF, 0xFF}) // non-audiobook lists
	b.raw([]byte{0x00, 0x00})

	offset := baseOffset + headerLen
	for _, c := range chunks {
		b.u32(offset)
		offset += uint32(len(c))
	}
	for _, c := range chunks {
		b.raw(c)
	}
	return b.Bytes()
}

// ReadIndexPaths extracts the device paths of the track table from an
// existing index file, in table order. It is the position→path map needed to
// carry play history forward across regenerations. A missing file yields an
// empty slice and no error; a file we can't understand is an error the
// caller may treat as "no usable history".
func ReadIndexPaths(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", types.ErrIO, path, err)
	}

	if len(data) < dbHeaderLen || !bytes.Equal(data[:4], magicDB) {
		return nil, fmt.Errorf("%w: %s is not a track index file", types.ErrSerialization, path)
	}

	numTracks := binary.LittleEndian.Uint32(data[12:16])
	trackHeaderOffset := binary.LittleEndian.Uint32(data[36:40])

	hdr := int(trackHeaderOffset)
	if hdr+20 > len(data) || !bytes.Equal(data[hdr:hdr+4], magicTracks) {
		return nil, fmt.Errorf("%w: %s has a corrupt track table", types.ErrSerialization, path)
	}

	paths := make([]string, 0, numTracks)
	for i := 0; i < int(numTracks); i++ {
		offPos := hdr + 20 + i*4
		if offPos+4 > len(data) {
			return nil, fmt.Errorf("%w: %s track offset table truncated", types.ErrSerialization, path)
		}
		rec := int(binary.LittleEndian.Uint32(data[offPos : offPos+4]))
		if rec+trackRecordLen > len(data) || !bytes.Equal(data[rec:rec+4], magicTrack) {
			return nil, fmt.Errorf("%w: %s track record %d out of bounds", types.ErrSerialization, path, i)
		}
		name := data[rec+24 : rec+24+256]
		if n := bytes.IndexByte(name, 0); n >= 0 {
			name = name[:n]
		}
		paths = append(paths, string(name))
	}
	return paths, nil
}
