package services

import (
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"shufflegen/config"
	"shufflegen/logger"
	"shufflegen/types"
)

// PlaylistBuilder derives playlists from folders, playlist files, and tags.
// Entries are resolved against the final on-device track set: a reference
// that doesn't match a surviving track is logged and dropped, never invented.
type PlaylistBuilder struct {
	cfg       *config.Config
	positions map[string]uint32
}

// NewPlaylistBuilder creates a builder over the serialized track order.
// trackPaths must be the absolute paths of the final track set, in the order
// they will be written to the database.
func NewPlaylistBuilder(cfg *config.Config, trackPaths []string) *PlaylistBuilder {
	positions := make(map[string]uint32, len(trackPaths))
	for i, p := range trackPaths {
		positions[filepath.Clean(p)] = uint32(i)
	}
	return &PlaylistBuilder{cfg: cfg, positions: positions}
}

// FromDirectory builds a playlist from every playable file under dir,
// named after the folder. Entries follow the scan's lexicographic order.
func (b *PlaylistBuilder) FromDirectory(dir, name string) types.Playlist {
	var members []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if hasExtension(d.Name(), musicExtensions) {
			members = append(members, path)
		}
		return nil
	})
	if err != nil {
		logger.Warn("cannot enumerate playlist folder", logger.String("dir", dir), logger.ErrorField(err))
	}
	sort.Strings(members)

	playlist := types.Playlist{Name: name, Origin: types.PlaylistOriginDirectory}
	for _, m := range members {
		if idx, ok := b.positions[filepath.Clean(m)]; ok {
			playlist.Indices = append(playlist.Indices, idx)
		}
	}
	return playlist
}

// FromFile parses an .m3u or .pls file into a playlist named after the file.
// Relative entries resolve against the playlist's own folder; file:// URLs
// and percent-encoding are accepted. Entries pointing outside the final
// track set are skipped with a warning.
func (b *PlaylistBuilder) FromFile(path string) (types.Playlist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.Playlist{}, fmt.Errorf("%w: reading %s: %v", types.ErrPlaylistParse, path, err)
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	playlist := types.Playlist{Name: name, Origin: types.PlaylistOriginFile}

	var entries []string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pls":
		entries = plsEntries(string(data))
	default:
		entries = m3uEntries(string(data))
	}

	base := filepath.Dir(path)
	for _, entry := range entries {
		resolved := b.resolveEntry(entry, base)
		idx, ok := b.positions[resolved]
		if !ok {
			logger.Warn("playlist entry has no matching track, skipping",
				logger.String("playlist", path), logger.String("entry", entry))
			continue
		}
		playlist.Indices = append(playlist.Indices, idx)
	}
	return playlist, nil
}

// resolveEntry turns one playlist line into a cleaned absolute path, applying
// the same rename scheme the on-disk tree went through when unicode renaming
// is active.
func (b *PlaylistBuilder) resolveEntry(entry, base string) string {
	entry = strings.TrimPrefix(entry, "file://")
	if decoded, err := url.PathUnescape(entry); err == nil {
		entry = decoded
	}
	entry = filepath.FromSlash(entry)
	if !filepath.IsAbs(entry) {
		entry = filepath.Join(base, entry)
	}
	entry = filepath.Clean(entry)
	if b.cfg.RenameUnicode {
		entry = filepath.FromSlash(renamedPath(filepath.ToSlash(entry)))
	}
	return entry
}

func m3uEntries(content string) []string {
	var entries []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(line, "\uFEFF"))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		entries = append(entries, line)
	}
	return entries
}

// plsEntries collects FileN= values ordered by their numeric key, which is
// the play order a .pls file declares regardless of line order.
func plsEntries(content string) []string {
	type numbered struct {
		index int
		path  string
	}
	var entries []numbered
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(line, "\uFEFF"))
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		if !strings.HasPrefix(key, "file") {
			continue
		}
		index, err := strconv.Atoi(key[len("file"):])
		if err != nil {
			continue
		}
		entries = append(entries, numbered{index: index, path: strings.TrimSpace(value)})
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].index < entries[j].index })

	paths := make([]string, len(entries))
	for i, e := range entries {
		paths[i] = e.path
	}
	return paths
}

// FromTemplate groups the final track set by a tag template such as
// "{artist}" or "{artist} - {album}". A track missing a referenced tag lands
// in an "unknown" group rather than being dropped. Groups appear in
// first-seen order over the track set, which is deterministic because the
// track order is; empty groups can't occur by construction.
func (b *PlaylistBuilder) FromTemplate(template string, tracks []types.Track) []types.Playlist {
	groups := make(map[string][]uint32)
	var names []string
	for i, t := range tracks {
		name := expandTemplate(template, &t)
		if _, seen := groups[name]; !seen {
			names = append(names, name)
		}
		groups[name] = append(groups[name], uint32(i))
	}

	playlists := make([]types.Playlist, 0, len(names))
	for _, name := range names {
		playlists = append(playlists, types.Playlist{
			Name:    name,
			Origin:  types.PlaylistOriginTag,
			Indices: groups[name],
		})
	}
	return playlists
}

var templateFields = map[string]func(*types.Track) string{
	"{artist}": func(t *types.Track) string { return t.Artist },
	"{album}":  func(t *types.Track) string { return t.Album },
	"{genre}":  func(t *types.Track) string { return t.Genre },
	"{title}":  func(t *types.Track) string { return t.Title },
}

func expandTemplate(template string, t *types.Track) string {
	name := template
	for placeholder, field := range templateFields {
		if !strings.Contains(name, placeholder) {
			continue
		}
		value := field(t)
		if value == "" {
			value = "unknown"
		}
		name = strings.ReplaceAll(name, placeholder, value)
	}
	return name
}
