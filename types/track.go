package types

// TrackFormat identifies the audio container of a track on the device.
type TrackFormat string

const (
	FormatMP3  TrackFormat = "mp3"
	FormatAAC  TrackFormat = "aac"
	FormatWAV  TrackFormat = "wav"
	FormatFLAC TrackFormat = "flac"
)

// FormatForExt maps a lowercase file extension (with dot) to a TrackFormat.
// The firmware only distinguishes MPEG audio from the AAC family; everything
// else rides in the MP3 slot.
func FormatForExt(ext string) TrackFormat {
	switch ext {
	case ".m4a", ".m4b", ".m4p", ".aa":
		return FormatAAC
	case ".wav":
		return FormatWAV
	case ".flac":
		return FormatFLAC
	default:
		return FormatMP3
	}
}

// Track is one audio file destined for the device database. Identity across
// regenerations is the device-relative path; the on-device index is assigned
// at serialization time only.
type Track struct {
	Path        string      // absolute path to the playable file
	Format      TrackFormat // format of the playable file
	Title       string
	Artist      string
	Album       string
	Genre       string
	TrackNumber int
	DiscNumber  int
	DurationMS  uint32
	VolumeGain  uint32 // 0..99
}

// VoiceText returns the text spoken for this track: "title - artist" when
// both tags are present, otherwise the filename stem supplied by the caller.
func (t *Track) VoiceText(stem string) string {
	if t.Title != "" && t.Artist != "" {
		return t.Title + " - " + t.Artist
	}
	return stem
}

// Summary is the result of a completed run, reported back to the caller.
type Summary struct {
	Tracks    int `json:"tracks"`
	Albums    int `json:"albums"`
	Artists   int `json:"artists"`
	Playlists int `json:"playlists"`
}
