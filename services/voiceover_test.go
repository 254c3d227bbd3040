package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shufflegen/database"
)

type fakeSynth struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
}

func (f *fakeSynth) Synthesize(ctx context.Context, text string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, text)
	f.mu.Unlock()
	if f.fail[text] {
		return nil, errors.New("synthesis refused")
	}
	return []byte("RIFF " + text), nil
}

func newTestVoiceover(t *testing.T, synth Synthesizer) *Voiceover {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "Tracks"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "Playlists"), 0755))
	return &Voiceover{synth: synth, speakableDir: dir}
}

func TestGeneratePrompts(t *testing.T) {
	synth := &fakeSynth{}
	v := newTestVoiceover(t, synth)

	prompts := []Prompt{
		{Text: "Song - Artist", DBID: database.MakeDBID("Song - Artist")},
		{Text: "rock", DBID: database.MakeDBID("rock"), Playlist: true},
	}

	stats := v.Generate(context.Background(), prompts, 2, nil)
	assert.Equal(t, VoiceoverStats{Created: 2}, stats)

	trackFile := filepath.Join(v.speakableDir, "Tracks",
		database.DBIDFileName(prompts[0].DBID)+".wav")
	assert.FileExists(t, trackFile)

	listFile := filepath.Join(v.speakableDir, "Playlists",
		database.DBIDFileName(prompts[1].DBID)+".wav")
	assert.FileExists(t, listFile)
}

func TestGenerateReusesExistingPrompt(t *testing.T) {
	synth := &fakeSynth{}
	v := newTestVoiceover(t, synth)

	p := Prompt{Text: "cached", DBID: database.MakeDBID("cached")}
	require.NoError(t, os.WriteFile(v.PromptPath(p), []byte("old"), 0644))

	stats := v.Generate(context.Background(), []Prompt{p}, 1, nil)
	assert.Equal(t, VoiceoverStats{Reused: 1}, stats)
	assert.Empty(t, synth.calls, "cached prompts are not re-synthesized")

	data, err := os.ReadFile(v.PromptPath(p))
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))
}

func TestPruneRemovesStalePrompts(t *testing.T) {
	synth := &fakeSynth{}
	v := newTestVoiceover(t, synth)

	kept := Prompt{Text: "kept", DBID: database.MakeDBID("kept")}
	require.NoError(t, os.WriteFile(v.PromptPath(kept), []byte("RIFF kept"), 0644))
	stale := Prompt{Text: "stale", DBID: database.MakeDBID("stale")}
	require.NoError(t, os.WriteFile(v.PromptPath(stale), []byte("RIFF stale"), 0644))
	staleList := Prompt{Text: "old list", DBID: database.MakeDBID("old list"), Playlist: true}
	require.NoError(t, os.WriteFile(v.PromptPath(staleList), []byte("RIFF old"), 0644))

	v.Prune([]Prompt{kept})

	assert.FileExists(t, v.PromptPath(kept))
	assert.NoFileExists(t, v.PromptPath(stale))
	assert.NoFileExists(t, v.PromptPath(staleList))
}

func TestGenerateToleratesFailures(t *testing.T) {
	synth := &fakeSynth{fail: map[string]bool{"bad": true}}
	v := newTestVoiceover(t, synth)

	prompts := []Prompt{
		{Text: "good", DBID: database.MakeDBID("good")},
		{Text: "bad", DBID: database.MakeDBID("bad")},
	}

	stats := v.Generate(context.Background(), prompts, 1, nil)
	assert.Equal(t, VoiceoverStats{Created: 1, Failed: 1}, stats)

	_, err := os.Stat(v.PromptPath(prompts[1]))
	assert.True(t, os.IsNotExist(err), "no file for a failed prompt")
}

func TestGenerateEmptyTextSpeaksUnknown(t *testing.T) {
	synth := &fakeSynth{}
	v := newTestVoiceover(t, synth)

	p := Prompt{DBID: database.MakeDBID("")}
	stats := v.Generate(context.Background(), []Prompt{p}, 1, nil)
	assert.Equal(t, VoiceoverStats{Created: 1}, stats)
	assert.Equal(t, []string{"unknown"}, synth.calls)
}
