package services

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/google/uuid"

	"shufflegen/config"
	"shufflegen/database"
	"shufflegen/logger"
	"shufflegen/types"
)

// Synthesizer turns a name into short spoken audio. It is deliberately
// narrow so tests can substitute a deterministic double and so the speech
// backend can be swapped without touching the engine.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// CommandSynthesizer shells out to a local text-to-speech tool that writes
// WAV files. pico2wave and espeak both take "-w <file> <text>"; a custom
// command with the same calling convention can be configured.
type CommandSynthesizer struct {
	command string
	run     commandRunner
}

// NewCommandSynthesizer creates a synthesizer for the given command. An
// empty command means probe the PATH for a known tool at synthesis time.
func NewCommandSynthesizer(command string) *CommandSynthesizer {
	return &CommandSynthesizer{command: command, run: execRunner}
}

func (s *CommandSynthesizer) resolveCommand() (string, error) {
	if s.command != "" {
		return s.command, nil
	}
	for _, candidate := range []string{"pico2wave", "espeak-ng", "espeak"} {
		if _, err := exec.LookPath(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: no speech synthesis command found on PATH", types.ErrSynthesis)
}

// Synthesize produces WAV bytes for the given text.
func (s *CommandSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	command, err := s.resolveCommand()
	if err != nil {
		return nil, err
	}

	tmp := filepath.Join(os.TempDir(), "shufflegen-voice-"+uuid.NewString()+".wav")
	defer os.Remove(tmp)

	if _, err := s.run(ctx, command, "-w", tmp, text); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrSynthesis, err)
	}
	data, err := os.ReadFile(tmp)
	if err != nil || len(data) == 0 {
		return nil, fmt.Errorf("%w: speech command produced no output for %q", types.ErrSynthesis, text)
	}
	return data, nil
}

// Prompt is one spoken name to make available on the device.
type Prompt struct {
	Text     string
	DBID     [8]byte
	Playlist bool
}

// VoiceoverStats tallies the outcome of a prompt generation batch.
type VoiceoverStats struct {
	Created int
	Reused  int
	Failed  int
}

// Voiceover writes spoken-name prompt files where the firmware expects them.
// Output is content-addressed by the spoken text (through the dbid), so a
// prompt that already exists is reused rather than re-synthesized.
type Voiceover struct {
	synth        Synthesizer
	speakableDir string
}

// NewVoiceover creates the prompt writer for the configured device.
func NewVoiceover(cfg *config.Config, synth Synthesizer) *Voiceover {
	return &Voiceover{synth: synth, speakableDir: cfg.SpeakableDir()}
}

// PromptPath returns the firmware location of a prompt file.
func (v *Voiceover) PromptPath(p Prompt) string {
	sub := "Tracks"
	if p.Playlist {
		sub = "Playlists"
	}
	return filepath.Join(v.speakableDir, sub, database.DBIDFileName(p.DBID)+".wav")
}

// Generate synthesizes all missing prompts on a bounded pool. Synthesis
// failures are recoverable: the entry is skipped and the track or playlist
// plays without a spoken name. Tasks are commutative, so the pool's
// completion order doesn't affect the result set.
func (v *Voiceover) Generate(ctx context.Context, prompts []Prompt, workers int, progress func()) VoiceoverStats {
	outcomes := make([]int, len(prompts)) // 0 created, 1 reused, 2 failed

	runParallel(ctx, workers, len(prompts), func(i int) {
		defer func() {
			if progress != nil {
				progress()
			}
		}()
		outcomes[i] = v.generateOne(ctx, prompts[i])
	})

	var stats VoiceoverStats
	for _, o := range outcomes {
		switch o {
		case 0:
			stats.Created++
		case 1:
			stats.Reused++
		default:
			stats.Failed++
		}
	}
	return stats
}

// Prune removes prompt files no longer referenced by the current run, so a
// renamed or deleted track does not leave an orphaned spoken name behind.
// Wanted prompts stay untouched, which is what keeps them reusable.
func (v *Voiceover) Prune(prompts []Prompt) {
	wanted := map[string]map[string]bool{
		"Tracks":    make(map[string]bool),
		"Playlists": make(map[string]bool),
	}
	for _, p := range prompts {
		sub := "Tracks"
		if p.Playlist {
			sub = "Playlists"
		}
		wanted[sub][database.DBIDFileName(p.DBID)+".wav"] = true
	}

	for sub, keep := range wanted {
		dir := filepath.Join(v.speakableDir, sub)
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() || keep[entry.Name()] {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			if err := os.Remove(path); err != nil {
				logger.Warn("cannot remove stale voice prompt",
					logger.String("path", path), logger.ErrorField(err))
				continue
			}
			logger.Debug("removed stale voice prompt", logger.String("path", path))
		}
	}
}

func (v *Voiceover) generateOne(ctx context.Context, p Prompt) int {
	path := v.PromptPath(p)
	if _, err := os.Stat(path); err == nil {
		logger.Debug("voice prompt already present", logger.String("path", path))
		return 1
	}

	text := p.Text
	if text == "" {
		text = "unknown"
	}

	data, err := v.synth.Synthesize(ctx, text)
	if err != nil {
		logger.Warn("voice synthesis failed, name will not be spoken",
			logger.String("text", text), logger.ErrorField(err))
		return 2
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		logger.Warn("cannot write voice prompt",
			logger.String("path", path), logger.ErrorField(err))
		return 2
	}
	return 0
}
