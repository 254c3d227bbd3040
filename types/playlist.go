package types

// PlaylistOrigin says how a playlist came to exist.
type PlaylistOrigin string

const (
	PlaylistOriginMaster    PlaylistOrigin = "master"
	PlaylistOriginFile      PlaylistOrigin = "file"
	PlaylistOriginDirectory PlaylistOrigin = "directory"
	PlaylistOriginTag       PlaylistOrigin = "tag"
)

// Playlist is an ordered group of tracks referenced by their final on-device
// index. Every index is guaranteed to resolve to a surviving track; dangling
// entries are dropped before a Playlist is built.
type Playlist struct {
	Name    string
	Origin  PlaylistOrigin
	Indices []uint32
}
