package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// DirPlaylistsDisabled marks auto directory playlists as off. Any value
// >= -1 enables them: -1 unlimited depth, 0 a single playlist for the whole
// music root, n stop nesting at the n-th folder level.
const DirPlaylistsDisabled = -2

// Config is the full option set the engine accepts from its CLI collaborator.
type Config struct {
	DeviceRoot string

	TrackVoiceover    bool
	PlaylistVoiceover bool
	RenameUnicode     bool
	Verbose           bool

	// TrackGain is the manual gain value, used as a fixed value for every
	// track or as the fallback when auto analysis fails. Range 0..99.
	TrackGain     int
	AutoTrackGain bool

	DirPlaylistDepth int    // DirPlaylistsDisabled when off
	ID3Template      string // empty when off, e.g. "{artist} - {album}"

	// Tool and tuning knobs, overridable through SHUFFLEGEN_* env vars.
	FFmpegPath      string  `mapstructure:"ffmpeg_path"`
	FFprobePath     string  `mapstructure:"ffprobe_path"`
	SpeechCommand   string  `mapstructure:"speech_command"`
	AnalysisSeconds float64 `mapstructure:"analysis_seconds"`
	GainStepDB      float64 `mapstructure:"gain_step_db"`
	TranscodeWorkers int    `mapstructure:"transcode_workers"`
	VoiceWorkers     int    `mapstructure:"voice_workers"`
	LogFile          string `mapstructure:"log_file"`
}

// New returns a Config with defaults filled in and environment overrides
// applied.
func New() *Config {
	v := viper.New()
	v.SetEnvPrefix("SHUFFLEGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("ffmpeg_path", "ffmpeg")
	v.SetDefault("ffprobe_path", "ffprobe")
	v.SetDefault("speech_command", "")
	v.SetDefault("analysis_seconds", 45.0)
	v.SetDefault("gain_step_db", 1.0)
	v.SetDefault("transcode_workers", 0)
	v.SetDefault("voice_workers", 4)
	v.SetDefault("log_file", "")

	cfg := &Config{
		DirPlaylistDepth: DirPlaylistsDisabled,
	}
	if err := v.Unmarshal(cfg); err != nil {
		// Environment overrides are best effort; defaults still apply.
		cfg.FFmpegPath = "ffmpeg"
		cfg.FFprobePath = "ffprobe"
		cfg.AnalysisSeconds = 45.0
		cfg.GainStepDB = 1.0
		cfg.VoiceWorkers = 4
	}
	cfg.DirPlaylistDepth = DirPlaylistsDisabled
	return cfg
}

// Workers returns the CPU-bound pool size: the configured value, or the
// host's hardware parallelism when unset.
func (c *Config) Workers() int {
	if c.TranscodeWorkers > 0 {
		return c.TranscodeWorkers
	}
	return runtime.NumCPU()
}

// DirPlaylistsEnabled reports whether directory-derived playlists are on.
func (c *Config) DirPlaylistsEnabled() bool {
	return c.DirPlaylistDepth != DirPlaylistsDisabled
}

// ID3PlaylistsEnabled reports whether tag-derived playlists are on.
func (c *Config) ID3PlaylistsEnabled() bool {
	return c.ID3Template != ""
}

// ControlDir returns the device's control directory.
func (c *Config) ControlDir() string {
	return filepath.Join(c.DeviceRoot, "iPod_Control")
}

// MusicDir returns the music tree under the control directory.
func (c *Config) MusicDir() string {
	return filepath.Join(c.ControlDir(), "Music")
}

// DatabaseDir returns the directory holding the binary database files.
func (c *Config) DatabaseDir() string {
	return filepath.Join(c.ControlDir(), "iTunes")
}

// SpeakableDir returns the voice prompt root.
func (c *Config) SpeakableDir() string {
	return filepath.Join(c.ControlDir(), "Speakable")
}

// Validate checks the option set and the device root. The root must exist
// and be writable; the control directory tree is created later if absent.
func (c *Config) Validate() error {
	if c.TrackGain < 0 || c.TrackGain > 99 {
		return fmt.Errorf("track gain %d out of range 0-99", c.TrackGain)
	}
	if c.GainStepDB <= 0 {
		return fmt.Errorf("gain step must be positive, got %g", c.GainStepDB)
	}
	if c.DirPlaylistDepth < DirPlaylistsDisabled {
		return fmt.Errorf("invalid directory playlist depth %d", c.DirPlaylistDepth)
	}

	info, err := os.Stat(c.DeviceRoot)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("device root %q is not a directory (not connected or mounted?)", c.DeviceRoot)
	}

	// Probe for write permission the way the device tools always have:
	// create and remove a scratch file.
	probe := filepath.Join(c.DeviceRoot, ".shufflegen_write_test")
	if err := os.WriteFile(probe, []byte("probe"), 0644); err != nil {
		return fmt.Errorf("device root %q is not writable: %w", c.DeviceRoot, err)
	}
	_ = os.Remove(probe)
	return nil
}
