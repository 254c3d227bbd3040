package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bogem/id3v2"
	"github.com/dhowden/tag"
	"github.com/google/uuid"

	"shufflegen/config"
	"shufflegen/logger"
	"shufflegen/types"
)

// Transcoder converts lossless sources to the device's playback format:
// FLAC in, 320 kbps MP3 out, tags copied verbatim. The source file is
// deleted only after the replacement has been fully written and renamed
// into place.
type Transcoder struct {
	ffmpegPath string
	run        commandRunner
}

// ConvertResult is the outcome of one conversion task. Output is empty when
// Err is set; in that case the source file is guaranteed untouched.
type ConvertResult struct {
	Source string
	Output string
	Err    error
}

// NewTranscoder creates a transcoder using the configured ffmpeg binary.
func NewTranscoder(cfg *config.Config) *Transcoder {
	return &Transcoder{ffmpegPath: cfg.FFmpegPath, run: execRunner}
}

// ConvertAll runs one conversion task per source file on a pool of the given
// size. Tasks are independent: each writes only its own result slot, and a
// failed conversion never stops the batch.
func (t *Transcoder) ConvertAll(ctx context.Context, sources []string, workers int, progress func()) []ConvertResult {
	results := make([]ConvertResult, len(sources))
	runParallel(ctx, workers, len(sources), func(i int) {
		out, err := t.convertOne(ctx, sources[i])
		results[i] = ConvertResult{Source: sources[i], Output: out, Err: err}
		if progress != nil {
			progress()
		}
	})
	return results
}

func (t *Transcoder) convertOne(ctx context.Context, sourcePath string) (string, error) {
	outPath := strings.TrimSuffix(sourcePath, filepath.Ext(sourcePath)) + ".mp3"

	// A sibling MP3 means a previous run already converted this source.
	if _, err := os.Stat(outPath); err == nil {
		logger.Debug("converted file already present, removing source",
			logger.String("source", sourcePath))
		if err := os.Remove(sourcePath); err != nil {
			logger.Warn("cannot remove converted source", logger.String("path", sourcePath), logger.ErrorField(err))
		}
		return outPath, nil
	}

	logger.Debug("converting to mp3", logger.String("source", sourcePath))

	tmp := filepath.Join(filepath.Dir(outPath), "."+uuid.NewString()+".mp3.tmp")
	_, err := t.run(ctx, t.ffmpegPath,
		"-y",
		"-v", "error",
		"-i", sourcePath,
		"-vn",
		"-c:a", "libmp3lame",
		"-b:a", "320k",
		"-f", "mp3",
		tmp,
	)
	if err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("%w: %s: %v", types.ErrTranscode, sourcePath, err)
	}

	if info, statErr := os.Stat(tmp); statErr != nil || info.Size() == 0 {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("%w: %s: encoder produced no output", types.ErrTranscode, sourcePath)
	}

	// Tags are copied onto the temp file so the final rename publishes a
	// complete track in one step.
	if err := copyTags(sourcePath, tmp); err != nil {
		logger.Warn("tag copy failed, converted file keeps no tags",
			logger.String("source", sourcePath), logger.ErrorField(err))
	}

	if err := os.Rename(tmp, outPath); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("%w: %s: %v", types.ErrTranscode, sourcePath, err)
	}

	// Only now is the source safe to delete.
	if err := os.Remove(sourcePath); err != nil {
		logger.Warn("cannot remove converted source", logger.String("path", sourcePath), logger.ErrorField(err))
	}
	return outPath, nil
}

// copyTags reads the source's embedded tags and writes them as ID3v2 frames
// on the destination MP3.
func copyTags(src, dst string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	meta, err := tag.ReadFrom(f)
	_ = f.Close()
	if err != nil {
		return fmt.Errorf("%w: reading tags from %s: %v", types.ErrFormat, src, err)
	}

	out, err := id3v2.Open(dst, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("%w: opening %s for tagging: %v", types.ErrFormat, dst, err)
	}
	defer out.Close()

	if v := meta.Title(); v != "" {
		out.SetTitle(v)
	}
	if v := meta.Artist(); v != "" {
		out.SetArtist(v)
	}
	if v := meta.Album(); v != "" {
		out.SetAlbum(v)
	}
	if v := meta.Genre(); v != "" {
		out.SetGenre(v)
	}
	if n, _ := meta.Track(); n > 0 {
		out.AddTextFrame("TRCK", id3v2.EncodingUTF8, strconv.Itoa(n))
	}
	if n, _ := meta.Disc(); n > 0 {
		out.AddTextFrame("TPOS", id3v2.EncodingUTF8, strconv.Itoa(n))
	}
	return out.Save()
}
