package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatForExt(t *testing.T) {
	tests := []struct {
		ext  string
		want TrackFormat
	}{
		{".mp3", FormatMP3},
		{".m4a", FormatAAC},
		{".m4b", FormatAAC},
		{".m4p", FormatAAC},
		{".aa", FormatAAC},
		{".wav", FormatWAV},
		{".flac", FormatFLAC},
		{".ogg", FormatMP3},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatForExt(tt.ext), tt.ext)
	}
}

func TestVoiceText(t *testing.T) {
	full := &Track{Title: "Song", Artist: "Band"}
	assert.Equal(t, "Song - Band", full.VoiceText("file"))

	noArtist := &Track{Title: "Song"}
	assert.Equal(t, "file", noArtist.VoiceText("file"), "partial tags fall back to the stem")

	assert.Equal(t, "file", (&Track{}).VoiceText("file"))
}
