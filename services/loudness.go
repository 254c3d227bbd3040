package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/google/uuid"

	"shufflegen/config"
	"shufflegen/logger"
	"shufflegen/types"
)

// Analyzer estimates perceptual loudness per track and maps the batch to the
// device gain scale [0,99]. Estimation decodes real audio content — embedded
// replay-gain style tags are deliberately ignored.
type Analyzer struct {
	ffmpegPath string
	run        commandRunner
	maxSeconds float64
	gainStepDB float64
	fallback   uint32
}

// NewAnalyzer creates an analyzer from the engine configuration.
func NewAnalyzer(cfg *config.Config) *Analyzer {
	return &Analyzer{
		ffmpegPath: cfg.FFmpegPath,
		run:        execRunner,
		maxSeconds: cfg.AnalysisSeconds,
		gainStepDB: cfg.GainStepDB,
		fallback:   uint32(cfg.TrackGain),
	}
}

// EstimateDBFS decodes up to the configured analysis window of a track and
// returns its RMS level in dBFS. Decoding goes through a mono 16-bit PCM
// intermediate so every input codec is measured on equal footing.
func (a *Analyzer) EstimateDBFS(ctx context.Context, path string) (float64, error) {
	tmp := filepath.Join(os.TempDir(), "shufflegen-"+uuid.NewString()+".wav")
	defer os.Remove(tmp)

	args := []string{"-y", "-v", "error", "-i", path}
	if a.maxSeconds > 0 {
		args = append(args, "-t", fmt.Sprintf("%g", a.maxSeconds))
	}
	args = append(args, "-ac", "1", "-acodec", "pcm_s16le", "-f", "wav", tmp)
	if _, err := a.run(ctx, a.ffmpegPath, args...); err != nil {
		return 0, fmt.Errorf("%w: %s: %v", types.ErrAnalysis, path, err)
	}

	db, err := rmsDBFS(tmp)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", types.ErrAnalysis, path, err)
	}
	return db, nil
}

// rmsDBFS computes the root-mean-square level of a WAV file in dBFS.
func rmsDBFS(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		return 0, errors.New("decoded intermediate is not a valid WAV file")
	}

	var divisor float64
	switch decoder.BitDepth {
	case 16:
		divisor = 32768.0
	case 24:
		divisor = 8388608.0
	case 32:
		divisor = 2147483648.0
	default:
		return 0, fmt.Errorf("unsupported bit depth %d", decoder.BitDepth)
	}

	sumSquares := 0.0
	count := 0
	buf := &audio.IntBuffer{Data: make([]int, 8192)}
	for {
		n, err := decoder.PCMBuffer(buf)
		if err != nil {
			return 0, err
		}
		if n == 0 {
			break
		}
		for _, sample := range buf.Data[:n] {
			v := float64(sample) / divisor
			sumSquares += v * v
		}
		count += n
	}
	if count == 0 {
		return 0, errors.New("no audio samples decoded")
	}

	rms := math.Sqrt(sumSquares / float64(count))
	if rms <= 1e-12 {
		return -120.0, nil // digital silence
	}
	return 20.0 * math.Log10(rms), nil
}

// ApplyAutoGain estimates loudness for every track on the worker pool and
// assigns relative gains: the loudest analyzed track is the reference and
// gets no added gain, quieter tracks get proportionally more, clamped to 99.
// Tracks whose analysis fails keep the configured fallback gain. The mapping
// is monotonic and depends only on the batch's estimates, so identical
// inputs always produce identical gains.
func (a *Analyzer) ApplyAutoGain(ctx context.Context, tracks []types.Track, workers int, progress func()) int {
	estimates := make([]float64, len(tracks))
	analyzed := make([]bool, len(tracks))

	runParallel(ctx, workers, len(tracks), func(i int) {
		db, err := a.EstimateDBFS(ctx, tracks[i].Path)
		if err != nil {
			logger.Warn("loudness analysis failed, using fallback gain",
				logger.String("path", tracks[i].Path),
				logger.Int("fallback", int(a.fallback)),
				logger.ErrorField(err))
		} else {
			estimates[i] = db
			analyzed[i] = true
		}
		if progress != nil {
			progress()
		}
	})

	reference := math.Inf(-1)
	analyzedCount := 0
	for i := range tracks {
		if analyzed[i] {
			analyzedCount++
			if estimates[i] > reference {
				reference = estimates[i]
			}
		}
	}
	if analyzedCount == 0 {
		logger.Warn("no track could be analyzed, auto gain skipped")
		for i := range tracks {
			tracks[i].VolumeGain = a.fallback
		}
		return 0
	}

	for i := range tracks {
		if !analyzed[i] {
			tracks[i].VolumeGain = a.fallback
			continue
		}
		tracks[i].VolumeGain = MapGain(reference, estimates[i], a.gainStepDB)
	}

	logger.Info("auto gain complete",
		logger.Int("analyzed", analyzedCount),
		logger.Int("tracks", len(tracks)),
		logger.Float64("referenceDBFS", reference))
	return analyzedCount
}

// MapGain converts a loudness estimate to a device gain value. Tracks at or
// above the reference level map to 0; each stepDB below it adds one gain
// unit, clamped to the device maximum of 99.
func MapGain(referenceDB, trackDB, stepDB float64) uint32 {
	if stepDB <= 0 {
		stepDB = 1.0
	}
	gain := math.Round((referenceDB - trackDB) / stepDB)
	if gain < 0 {
		gain = 0
	}
	if gain > 99 {
		gain = 99
	}
	return uint32(gain)
}
