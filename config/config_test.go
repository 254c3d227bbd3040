package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	cfg := New()
	assert.Equal(t, "ffmpeg", cfg.FFmpegPath)
	assert.Equal(t, "ffprobe", cfg.FFprobePath)
	assert.Equal(t, 45.0, cfg.AnalysisSeconds)
	assert.Equal(t, 1.0, cfg.GainStepDB)
	assert.Equal(t, DirPlaylistsDisabled, cfg.DirPlaylistDepth)
	assert.False(t, cfg.DirPlaylistsEnabled())
	assert.False(t, cfg.ID3PlaylistsEnabled())
	assert.Greater(t, cfg.Workers(), 0)
}

func TestDeviceLayout(t *testing.T) {
	cfg := &Config{DeviceRoot: "/mnt/player"}
	assert.Equal(t, filepath.Join("/mnt/player", "iPod_Control"), cfg.ControlDir())
	assert.Equal(t, filepath.Join("/mnt/player", "iPod_Control", "Music"), cfg.MusicDir())
	assert.Equal(t, filepath.Join("/mnt/player", "iPod_Control", "iTunes"), cfg.DatabaseDir())
	assert.Equal(t, filepath.Join("/mnt/player", "iPod_Control", "Speakable"), cfg.SpeakableDir())
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			DeviceRoot:       t.TempDir(),
			GainStepDB:       1.0,
			DirPlaylistDepth: DirPlaylistsDisabled,
		}
	}

	require.NoError(t, valid().Validate())

	cfg := valid()
	cfg.TrackGain = 100
	assert.Error(t, cfg.Validate(), "gain above device maximum")

	cfg = valid()
	cfg.GainStepDB = 0
	assert.Error(t, cfg.Validate(), "zero gain step")

	cfg = valid()
	cfg.DirPlaylistDepth = -3
	assert.Error(t, cfg.Validate(), "depth below the disabled sentinel")

	cfg = valid()
	cfg.DeviceRoot = filepath.Join(cfg.DeviceRoot, "missing")
	assert.Error(t, cfg.Validate(), "root must exist")
}

func TestDirPlaylistsEnabled(t *testing.T) {
	for _, depth := range []int{-1, 0, 1, 5} {
		cfg := &Config{DirPlaylistDepth: depth}
		assert.True(t, cfg.DirPlaylistsEnabled(), "depth %d", depth)
	}
	assert.False(t, (&Config{DirPlaylistDepth: DirPlaylistsDisabled}).DirPlaylistsEnabled())
}
