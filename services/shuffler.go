package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/schollz/progressbar/v3"

	"shufflegen/config"
	"shufflegen/database"
	"shufflegen/logger"
	"shufflegen/types"
)

// masterPlaylistKey seeds the master playlist's content id so its voice
// prompt file lands at a stable name across runs.
const masterPlaylistKey = "masterlist"

// masterPlaylistText is what the device speaks for the all-songs list.
const masterPlaylistText = "All songs"

// Engine runs the full database generation pipeline against one device root:
// scan, convert, analyze, derive playlists, synthesize prompts, serialize.
type Engine struct {
	cfg        *config.Config
	scanner    *Scanner
	transcoder *Transcoder
	analyzer   *Analyzer
	voiceover  *Voiceover
}

// NewEngine wires the pipeline for the given configuration.
func NewEngine(cfg *config.Config) *Engine {
	return &Engine{
		cfg:        cfg,
		scanner:    NewScanner(cfg),
		transcoder: NewTranscoder(cfg),
		analyzer:   NewAnalyzer(cfg),
		voiceover:  NewVoiceover(cfg, NewCommandSynthesizer(cfg.SpeechCommand)),
	}
}

// Run executes the pipeline. Cancellation is honored between stages and
// inside the parallel ones; once serialization starts it runs to completion
// so the device is never left with a half-written database.
func (e *Engine) Run(ctx context.Context) (types.Summary, error) {
	if err := e.initDirectories(); err != nil {
		return types.Summary{}, err
	}

	if e.cfg.RenameUnicode {
		logger.Info("renaming files for the device filesystem")
		if err := e.scanner.RenameUnicode(); err != nil {
			return types.Summary{}, err
		}
	}

	scan, err := e.scanner.Scan()
	if err != nil {
		return types.Summary{}, err
	}
	logger.Info("scan complete",
		logger.Int("audio", len(scan.AudioFiles)),
		logger.Int("lossless", len(scan.FlacFiles)),
		logger.Int("playlistFiles", len(scan.PlaylistFiles)))

	paths := e.collectPlayable(ctx, scan)
	if err := ctx.Err(); err != nil {
		return types.Summary{}, err
	}

	bar := newBar(len(paths), "reading tags")
	tracks := e.scanner.Describe(ctx, paths, e.cfg.Workers(), barTick(bar))
	finishBar(bar)
	if err := ctx.Err(); err != nil {
		return types.Summary{}, err
	}

	e.applyGain(ctx, tracks)
	if err := ctx.Err(); err != nil {
		return types.Summary{}, err
	}

	playlists := e.buildPlaylists(paths, tracks, scan)

	dbids := trackDBIDs(tracks)
	e.generatePrompts(ctx, tracks, dbids, playlists)

	// Point of no return: the files below must be written together.
	if err := ctx.Err(); err != nil {
		return types.Summary{}, err
	}
	return e.serialize(tracks, dbids, playlists)
}

// initDirectories creates the control tree. Existing voice prompt files are
// left in place so they can be reused across runs.
func (e *Engine) initDirectories() error {
	speakable := e.cfg.SpeakableDir()
	for _, dir := range []string{
		e.cfg.DatabaseDir(),
		e.cfg.MusicDir(),
		filepath.Join(speakable, "Tracks"),
		filepath.Join(speakable, "Playlists"),
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("%w: creating %s: %v", types.ErrIO, dir, err)
		}
	}
	return nil
}

// collectPlayable converts lossless sources and merges the survivors with
// the already playable files into one deduplicated, case-insensitively
// sorted path list. A failed conversion excludes the track from this run
// but leaves its source on disk for the next one.
func (e *Engine) collectPlayable(ctx context.Context, scan *ScanResult) []string {
	// MP3 siblings of pending sources are conversion leftovers; the
	// conversion step adopts them, so they must not be double counted.
	pendingTargets := make(map[string]bool, len(scan.FlacFiles))
	for _, f := range scan.FlacFiles {
		pendingTargets[strings.TrimSuffix(f, filepath.Ext(f))+".mp3"] = true
	}

	final := make(map[string]bool, len(scan.AudioFiles)+len(scan.FlacFiles))
	for _, p := range scan.AudioFiles {
		if !pendingTargets[p] {
			final[p] = true
		}
	}

	if len(scan.FlacFiles) > 0 {
		logger.Info("converting lossless sources", logger.Int("count", len(scan.FlacFiles)))
		bar := newBar(len(scan.FlacFiles), "converting")
		results := e.transcoder.ConvertAll(ctx, scan.FlacFiles, e.cfg.Workers(), barTick(bar))
		finishBar(bar)

		for _, r := range results {
			if r.Err != nil {
				logger.Error("conversion failed, track excluded this run",
					logger.String("source", r.Source), logger.ErrorField(r.Err))
				continue
			}
			final[r.Output] = true
		}
	}

	paths := make([]string, 0, len(final))
	for p := range final {
		paths = append(paths, p)
	}
	sort.Slice(paths, func(i, j int) bool {
		li, lj := strings.ToLower(paths[i]), strings.ToLower(paths[j])
		if li != lj {
			return li < lj
		}
		// Paths differing only by case need a stable order too, or the
		// index bytes would depend on map iteration order.
		return paths[i] < paths[j]
	})
	return paths
}

// applyGain sets every track's volume gain, either from loudness analysis or
// from the fixed configured value.
func (e *Engine) applyGain(ctx context.Context, tracks []types.Track) {
	if !e.cfg.AutoTrackGain {
		for i := range tracks {
			tracks[i].VolumeGain = uint32(e.cfg.TrackGain)
		}
		return
	}
	logger.Info("analyzing loudness", logger.Int("tracks", len(tracks)))
	bar := newBar(len(tracks), "analyzing")
	e.analyzer.ApplyAutoGain(ctx, tracks, e.cfg.Workers(), barTick(bar))
	finishBar(bar)
}

// buildPlaylists derives every configured playlist kind. Playlists that end
// up with no resolvable entries are dropped with a warning.
func (e *Engine) buildPlaylists(paths []string, tracks []types.Track, scan *ScanResult) []types.Playlist {
	builder := NewPlaylistBuilder(e.cfg, paths)
	var playlists []types.Playlist

	if e.cfg.DirPlaylistsEnabled() {
		if e.cfg.DirPlaylistDepth == 0 {
			playlists = append(playlists, builder.FromDirectory(e.cfg.MusicDir(), filepath.Base(e.cfg.MusicDir())))
		} else {
			for _, dir := range scan.PlaylistDirs {
				playlists = append(playlists, builder.FromDirectory(dir, filepath.Base(dir)))
			}
		}
	}

	for _, file := range scan.PlaylistFiles {
		playlist, err := builder.FromFile(file)
		if err != nil {
			logger.Warn("unreadable playlist file, skipping",
				logger.String("path", file), logger.ErrorField(err))
			continue
		}
		playlists = append(playlists, playlist)
	}

	if e.cfg.ID3PlaylistsEnabled() {
		playlists = append(playlists, builder.FromTemplate(e.cfg.ID3Template, tracks)...)
	}

	kept := playlists[:0]
	for _, p := range playlists {
		if len(p.Indices) == 0 {
			logger.Warn("playlist has no tracks, skipping", logger.String("name", p.Name))
			continue
		}
		kept = append(kept, p)
	}
	return kept
}

// trackDBIDs derives each track's content id from its spoken text, so the
// id stays stable as long as title and artist do.
func trackDBIDs(tracks []types.Track) [][8]byte {
	dbids := make([][8]byte, len(tracks))
	for i := range tracks {
		dbids[i] = database.MakeDBID(tracks[i].VoiceText(pathStem(tracks[i].Path)))
	}
	return dbids
}

func pathStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// generatePrompts synthesizes the enabled voice prompt sets. Failures here
// are never fatal: the device falls back to silent navigation.
func (e *Engine) generatePrompts(ctx context.Context, tracks []types.Track, dbids [][8]byte, playlists []types.Playlist) {
	var prompts []Prompt
	if e.cfg.TrackVoiceover {
		for i := range tracks {
			prompts = append(prompts, Prompt{
				Text: tracks[i].VoiceText(pathStem(tracks[i].Path)),
				DBID: dbids[i],
			})
		}
	}
	if e.cfg.PlaylistVoiceover {
		prompts = append(prompts, Prompt{
			Text:     masterPlaylistText,
			DBID:     database.MakeDBID(masterPlaylistKey),
			Playlist: true,
		})
		for _, p := range playlists {
			prompts = append(prompts, Prompt{
				Text:     p.Name,
				DBID:     database.MakeDBID(p.Name),
				Playlist: true,
			})
		}
	}
	e.voiceover.Prune(prompts)
	if len(prompts) == 0 {
		return
	}

	logger.Info("synthesizing voice prompts", logger.Int("count", len(prompts)))
	bar := newBar(len(prompts), "speaking")
	stats := e.voiceover.Generate(ctx, prompts, e.cfg.VoiceWorkers, barTick(bar))
	finishBar(bar)
	logger.Info("voice prompts done",
		logger.Int("created", stats.Created),
		logger.Int("reused", stats.Reused),
		logger.Int("failed", stats.Failed))
}

// serialize writes the index, history, and player state files. The history
// written alongside the new index preserves play statistics for every track
// that survives, keyed by device path.
func (e *Engine) serialize(tracks []types.Track, dbids [][8]byte, playlists []types.Playlist) (types.Summary, error) {
	albumIDs := make(map[string]uint32)
	artistIDs := make(map[string]uint32)
	intern := func(ids map[string]uint32, name string) uint32 {
		if name == "" {
			name = "Unknown"
		}
		if id, ok := ids[name]; ok {
			return id
		}
		id := uint32(len(ids))
		ids[name] = id
		return id
	}

	devicePaths := make([]string, len(tracks))
	records := make([]database.TrackRecord, len(tracks))
	for i, t := range tracks {
		devicePath, err := e.devicePath(t.Path)
		if err != nil {
			return types.Summary{}, err
		}
		devicePaths[i] = devicePath
		records[i] = database.TrackRecord{
			DevicePath:  devicePath,
			Format:      t.Format,
			StopAtMS:    t.DurationMS,
			VolumeGain:  t.VolumeGain,
			AlbumID:     intern(albumIDs, t.Album),
			ArtistID:    intern(artistIDs, t.Artist),
			TrackNumber: uint16(t.TrackNumber),
			DiscNumber:  uint16(t.DiscNumber),
			DBID:        dbids[i],
		}
	}

	master := database.PlaylistRecord{Master: true, Indices: allIndices(len(tracks))}
	if e.cfg.PlaylistVoiceover {
		master.DBID = database.MakeDBID(masterPlaylistKey)
	}
	playlistRecords := []database.PlaylistRecord{master}
	for _, p := range playlists {
		playlistRecords = append(playlistRecords, database.PlaylistRecord{
			DBID:    database.MakeDBID(p.Name),
			Indices: p.Indices,
		})
	}

	databaseDir := e.cfg.DatabaseDir()
	prior := database.LoadHistory(databaseDir)

	// The header flag only announces track prompts; playlist prompts are
	// signalled per record through their dbids.
	index := database.BuildIndex(records, playlistRecords, e.cfg.TrackVoiceover)
	if err := database.WriteFileAtomic(filepath.Join(databaseDir, database.IndexFileName), index); err != nil {
		return types.Summary{}, err
	}

	history := database.BuildHistoryFile(devicePaths, prior)
	if err := database.WriteFileAtomic(filepath.Join(databaseDir, database.HistoryFileName), history); err != nil {
		return types.Summary{}, err
	}

	if err := database.EnsurePlayerState(databaseDir); err != nil {
		return types.Summary{}, err
	}

	summary := types.Summary{
		Tracks:    len(tracks),
		Albums:    len(albumIDs),
		Artists:   len(artistIDs),
		Playlists: len(playlistRecords),
	}
	logger.Info("database written",
		logger.Int("tracks", summary.Tracks),
		logger.Int("albums", summary.Albums),
		logger.Int("artists", summary.Artists),
		logger.Int("playlists", summary.Playlists))
	return summary, nil
}

// devicePath maps an absolute host path to the device-absolute form stored
// in the index, always slash separated.
func (e *Engine) devicePath(path string) (string, error) {
	rel, err := filepath.Rel(e.cfg.DeviceRoot, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%w: %s is outside the device root", types.ErrSerialization, path)
	}
	return "/" + filepath.ToSlash(rel), nil
}

func allIndices(n int) []uint32 {
	indices := make([]uint32, n)
	for i := range indices {
		indices[i] = uint32(i)
	}
	return indices
}

func newBar(total int, description string) *progressbar.ProgressBar {
	if total == 0 {
		return nil
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionShowCount(),
	)
}

func barTick(bar *progressbar.ProgressBar) func() {
	if bar == nil {
		return nil
	}
	return func() { _ = bar.Add(1) }
}

func finishBar(bar *progressbar.ProgressBar) {
	if bar != nil {
		_ = bar.Finish()
	}
}
