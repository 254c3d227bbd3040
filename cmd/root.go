package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"shufflegen/config"
	"shufflegen/logger"
	"shufflegen/services"
	"shufflegen/types"
)

var rootCmd = &cobra.Command{
	Use:   "shufflegen <device-root>",
	Short: "Generate the track database for shuffle-style players",
	Long: `shufflegen scans the music on a mounted player, converts lossless
sources to MP3, and writes the binary track database the firmware reads.
Play counts and bookmarks from the previous database are preserved for
tracks that are still present.

Optional extras: spoken track and playlist names, automatic volume
leveling, playlists derived from folders, .m3u/.pls files, or tags.`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	flags := rootCmd.Flags()

	flags.BoolP("track-voiceover", "t", false, "synthesize spoken track names")
	flags.BoolP("playlist-voiceover", "p", false, "synthesize spoken playlist names")
	flags.BoolP("rename-unicode", "u", false, "rename files the device filesystem can't represent")
	flags.IntP("track-gain", "g", 0, "fixed volume gain for every track (0-99)")
	flags.Bool("auto-track-gain", false, "derive per-track gain from loudness analysis")

	flags.StringP("auto-dir-playlists", "d", "", "derive playlists from folders; optional depth (-1 unlimited, 0 whole music folder, n levels)")
	flags.Lookup("auto-dir-playlists").NoOptDefVal = "-1"

	flags.StringP("auto-id3-playlists", "i", "", "derive playlists from tags; optional template like \"{artist} - {album}\"")
	flags.Lookup("auto-id3-playlists").NoOptDefVal = "{artist}"

	flags.BoolP("verbose", "v", false, "debug logging")
	flags.String("log-file", "", "also write JSON logs to this file")
}

// Execute runs the CLI. Errors are already logged by the time it returns.
func Execute() error {
	return rootCmd.Execute()
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return err
	}

	logger.Init(logger.Config{Verbose: cfg.Verbose, OutputPath: cfg.LogFile})
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", logger.ErrorField(err))
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := services.NewEngine(cfg).Run(ctx)
	if err != nil {
		logger.Error("run failed", logger.ErrorField(err))
		if types.IsFatal(err) {
			logger.Error("the database on the device is stale; re-run after fixing the problem")
		}
		return err
	}

	logger.Info("done",
		logger.Int("tracks", summary.Tracks),
		logger.Int("albums", summary.Albums),
		logger.Int("artists", summary.Artists),
		logger.Int("playlists", summary.Playlists))
	return nil
}

func buildConfig(cmd *cobra.Command, deviceRoot string) (*config.Config, error) {
	flags := cmd.Flags()
	cfg := config.New()
	cfg.DeviceRoot = deviceRoot

	cfg.TrackVoiceover, _ = flags.GetBool("track-voiceover")
	cfg.PlaylistVoiceover, _ = flags.GetBool("playlist-voiceover")
	cfg.RenameUnicode, _ = flags.GetBool("rename-unicode")
	cfg.TrackGain, _ = flags.GetInt("track-gain")
	cfg.AutoTrackGain, _ = flags.GetBool("auto-track-gain")
	cfg.Verbose, _ = flags.GetBool("verbose")

	if logFile, _ := flags.GetString("log-file"); logFile != "" {
		cfg.LogFile = logFile
	}

	if flags.Changed("auto-dir-playlists") {
		raw, _ := flags.GetString("auto-dir-playlists")
		depth, err := strconv.Atoi(raw)
		if err != nil || depth < -1 {
			return nil, fmt.Errorf("invalid directory playlist depth %q", raw)
		}
		cfg.DirPlaylistDepth = depth
	}

	if flags.Changed("auto-id3-playlists") {
		cfg.ID3Template, _ = flags.GetString("auto-id3-playlists")
	}

	return cfg, nil
}
