package services

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dhowden/tag"

	"shufflegen/config"
	"shufflegen/logger"
	"shufflegen/types"
)

var (
	audioExtensions    = []string{".mp3", ".m4a", ".m4b", ".m4p", ".aa", ".wav", ".flac"}
	musicExtensions    = []string{".mp3", ".m4a", ".m4b", ".m4p", ".aa", ".wav"}
	playlistExtensions = []string{".pls", ".m3u"}
)

func hasExtension(path string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

// ScanResult is the classified contents of the device root.
type ScanResult struct {
	FlacFiles     []string // lossless sources queued for transcoding
	AudioFiles    []string // device-playable audio
	PlaylistFiles []string // externally authored .m3u/.pls files
	PlaylistDirs  []string // folders eligible for directory-derived playlists
}

// Scanner enumerates the music tree and reads embedded tags.
type Scanner struct {
	cfg *config.Config
	run commandRunner
}

// NewScanner creates a scanner for the configured device root.
func NewScanner(cfg *config.Config) *Scanner {
	return &Scanner{cfg: cfg, run: execRunner}
}

// Scan walks the device root and classifies every candidate file. The walk
// order is lexicographic by relative path, so repeated runs over an unchanged
// tree see the same sequence. Hidden entries and the voice prompt subtree are
// excluded.
func (s *Scanner) Scan() (*ScanResult, error) {
	root := s.cfg.DeviceRoot
	speakable := s.cfg.SpeakableDir()
	musicRoot := s.cfg.MusicDir()
	result := &ScanResult{}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logger.Warn("cannot access path, skipping", logger.String("path", path), logger.ErrorField(err))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if path == root {
			return nil
		}

		name := d.Name()
		if strings.HasPrefix(name, ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if path == speakable || isSubpath(path, speakable) {
				return filepath.SkipDir
			}
			if s.cfg.DirPlaylistsEnabled() && isSubpath(path, musicRoot) && path != musicRoot {
				rel, relErr := filepath.Rel(musicRoot, path)
				if relErr == nil {
					depth := len(strings.Split(filepath.ToSlash(rel), "/"))
					if s.cfg.DirPlaylistDepth < 0 || depth <= s.cfg.DirPlaylistDepth {
						result.PlaylistDirs = append(result.PlaylistDirs, path)
					}
				}
			}
			return nil
		}

		switch {
		case hasExtension(name, []string{".flac"}):
			result.FlacFiles = append(result.FlacFiles, path)
		case hasExtension(name, musicExtensions):
			result.AudioFiles = append(result.AudioFiles, path)
		case hasExtension(name, playlistExtensions):
			result.PlaylistFiles = append(result.PlaylistFiles, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: scanning %s: %v", types.ErrIO, root, err)
	}

	sort.Strings(result.FlacFiles)
	sort.Strings(result.AudioFiles)
	sort.Strings(result.PlaylistFiles)
	sort.Strings(result.PlaylistDirs)
	return result, nil
}

// Describe reads tags and duration for each playable file, producing the
// Track values the rest of the pipeline works on. A file with unreadable
// tags is still included with empty tag fields — never dropped silently.
func (s *Scanner) Describe(ctx context.Context, paths []string, workers int, progress func()) []types.Track {
	tracks := make([]types.Track, len(paths))
	runParallel(ctx, workers, len(paths), func(i int) {
		tracks[i] = s.describeOne(ctx, paths[i])
		if progress != nil {
			progress()
		}
	})
	return tracks
}

func (s *Scanner) describeOne(ctx context.Context, path string) types.Track {
	track := types.Track{
		Path:   path,
		Format: types.FormatForExt(strings.ToLower(filepath.Ext(path))),
	}

	f, err := os.Open(path)
	if err != nil {
		logger.Warn("cannot open file for tag reading, keeping with empty tags",
			logger.String("path", path), logger.ErrorField(err))
	} else {
		meta, tagErr := tag.ReadFrom(f)
		_ = f.Close()
		if tagErr != nil {
			logger.Warn("unreadable tags, keeping with empty tags",
				logger.String("path", path), logger.ErrorField(tagErr))
		} else {
			track.Title = meta.Title()
			track.Artist = meta.Artist()
			track.Album = meta.Album()
			track.Genre = meta.Genre()
			track.TrackNumber, _ = meta.Track()
			track.DiscNumber, _ = meta.Disc()
		}
	}

	duration, err := probeDurationMS(ctx, s.run, s.cfg.FFprobePath, path)
	if err != nil {
		logger.Debug("duration probe failed", logger.String("path", path), logger.ErrorField(err))
	} else {
		track.DurationMS = duration
	}
	return track
}

// isSubpath reports whether path sits underneath parent.
func isSubpath(path, parent string) bool {
	rel, err := filepath.Rel(parent, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// hasNonASCII reports whether a path segment carries bytes outside the
// device filesystem's character set.
func hasNonASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > 127 {
			return true
		}
	}
	return false
}

// needsRename reports whether a path segment would be invalid or ambiguous
// on the device filesystem: non-representable characters, or a trailing dot
// or space, which FAT silently strips.
func needsRename(segment string) bool {
	return hasNonASCII(segment) ||
		strings.HasSuffix(segment, ".") ||
		strings.HasSuffix(segment, " ")
}

// hashSegment derives the deterministic replacement name for a segment that
// can't be represented: the first eight hex characters of the segment's MD5,
// reversed, each re-encoded as the uppercase hex of its character code. The
// scheme is inherited from the device's long-standing sync tools so renames
// stay stable across implementations.
func hashSegment(segment string) string {
	sum := md5.Sum([]byte(segment))
	digest := hex.EncodeToString(sum[:])[:8]
	var b strings.Builder
	for i := len(digest) - 1; i >= 0; i-- {
		fmt.Fprintf(&b, "%02X", digest[i])
	}
	return b.String()
}

// renamedPath rewrites each non-representable segment of a slash-separated
// path to its hash replacement, re-appending the audio extension when the
// final segment was rewritten.
func renamedPath(path string) string {
	parts := strings.Split(path, "/")
	lastRenamed := false
	for i, part := range parts {
		if needsRename(part) {
			parts[i] = hashSegment(part)
			lastRenamed = true
		} else {
			lastRenamed = false
		}
	}
	joined := strings.Join(parts, "/")
	if lastRenamed {
		ext := strings.ToLower(filepath.Ext(path))
		for _, e := range audioExtensions {
			if ext == e {
				return joined + ext
			}
		}
	}
	return joined
}

// RenameUnicode performs the minimal on-disk renames needed for the target
// filesystem: audio/playlist files whose names can't be represented get
// hashed names, and directories containing such candidates are hashed too.
// Renames happen before any downstream stage reads the tree.
func (s *Scanner) RenameUnicode() error {
	_, err := renameUnicodeDir(s.cfg.DeviceRoot)
	return err
}

// renameUnicodeDir walks depth-first; it returns whether the subtree
// contained any recognizable audio or playlist file, which is what decides
// whether a directory itself needs renaming.
func renameUnicodeDir(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, fmt.Errorf("%w: reading %s: %v", types.ErrIO, dir, err)
	}

	found := false
	for _, entry := range entries {
		name := entry.Name()
		src := filepath.Join(dir, name)

		if entry.IsDir() {
			sub, err := renameUnicodeDir(src)
			if err != nil {
				return found, err
			}
			found = sub || found
			if found && needsRename(name) {
				dest := filepath.Join(dir, hashSegment(name))
				logger.Info("renaming directory", logger.String("from", src), logger.String("to", dest))
				if err := os.Rename(src, dest); err != nil {
					logger.Error("rename failed", logger.String("from", src), logger.ErrorField(err))
				}
			}
			continue
		}

		if !hasExtension(name, audioExtensions) && !hasExtension(name, playlistExtensions) {
			continue
		}
		found = true
		if needsRename(name) {
			ext := strings.ToLower(filepath.Ext(name))
			dest := filepath.Join(dir, hashSegment(name)+ext)
			logger.Info("renaming file", logger.String("from", src), logger.String("to", dest))
			if err := os.Rename(src, dest); err != nil {
				logger.Error("rename failed", logger.String("from", src), logger.ErrorField(err))
			}
		}
	}
	return found, nil
}
