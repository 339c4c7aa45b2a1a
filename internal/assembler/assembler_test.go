package assembler

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"scenetalk/internal/audio"
	"scenetalk/internal/background"
	"scenetalk/internal/dialogue"
	"scenetalk/internal/tts"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestAssembler(t *testing.T, synth tts.Synthesizer) *Assembler {
	t.Helper()
	provider := background.NewProvider(discardLogger(), background.ProviderOptions{})
	a, err := New(discardLogger(), synth, provider, Options{})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func sampleConversation() []dialogue.Line {
	return []dialogue.Line{
		{Speaker: "A", Text: "Hello"},
		{Speaker: "B", Text: "Hi there"},
		{Speaker: "A", Text: "How are you?"},
	}
}

func TestAssembleCombinedDuration(t *testing.T) {
	stub := tts.NewStubSynthesizer()
	a := newTestAssembler(t, stub)

	lines := sampleConversation()
	result, err := a.Assemble(context.Background(), lines, AssembleOptions{})
	require.NoError(t, err)

	var want time.Duration
	for _, line := range lines {
		want += tts.StubDuration(line.Text)
	}
	want += time.Duration(len(lines)-1) * time.Second

	combined, err := audio.DecodeFile(result.Combined)
	require.NoError(t, err)
	require.Equal(t, want, combined.Duration())
}

func TestAssemblePerLineFiles(t *testing.T) {
	stub := tts.NewStubSynthesizer()
	a := newTestAssembler(t, stub)

	result, err := a.Assemble(context.Background(), sampleConversation(), AssembleOptions{})
	require.NoError(t, err)

	require.Len(t, result.Individual, 3)
	for _, key := range []string{"A_0", "B_1", "A_2"} {
		path, ok := result.Individual[key]
		require.Truef(t, ok, "missing key %s", key)
		_, err := os.Stat(path)
		require.NoError(t, err)
	}
}

func TestAssembleVoiceAssignment(t *testing.T) {
	stub := tts.NewStubSynthesizer()
	a := newTestAssembler(t, stub)

	_, err := a.Assemble(context.Background(), sampleConversation(), AssembleOptions{})
	require.NoError(t, err)

	calls := stub.Calls()
	require.Len(t, calls, 3)
	// A's two lines share one identity; B's differs
	require.Equal(t, calls[0].Voice.ID, calls[2].Voice.ID)
	require.NotEqual(t, calls[0].Voice.ID, calls[1].Voice.ID)
}

func TestAssembleHonorsVoiceHint(t *testing.T) {
	stub := tts.NewStubSynthesizer()
	a := newTestAssembler(t, stub)

	lines := []dialogue.Line{
		{Speaker: "Dad", Text: "Dinner is ready!", VoiceHint: tts.GenderMale},
		{Speaker: "Yuki", Text: "Coming!", VoiceHint: tts.GenderFemale},
	}
	_, err := a.Assemble(context.Background(), lines, AssembleOptions{})
	require.NoError(t, err)

	calls := stub.Calls()
	require.Equal(t, tts.GenderMale, calls[0].Voice.Gender)
	require.Equal(t, tts.GenderFemale, calls[1].Voice.Gender)
}

func TestAssembleSkipsBlankLines(t *testing.T) {
	stub := tts.NewStubSynthesizer()
	a := newTestAssembler(t, stub)

	lines := []dialogue.Line{
		{Speaker: "A", Text: "Hello"},
		{Speaker: "B", Text: "   "},
		{Speaker: "A", Text: "Goodbye"},
	}
	result, err := a.Assemble(context.Background(), lines, AssembleOptions{})
	require.NoError(t, err)

	require.Len(t, result.Individual, 2)
	require.Contains(t, result.Individual, "A_0")
	require.Contains(t, result.Individual, "A_2")

	// one gap between the two emitted clips
	want := tts.StubDuration("Hello") + time.Second + tts.StubDuration("Goodbye")
	combined, err := audio.DecodeFile(result.Combined)
	require.NoError(t, err)
	require.Equal(t, want, combined.Duration())
}

func TestAssembleAllBlankFails(t *testing.T) {
	stub := tts.NewStubSynthesizer()
	a := newTestAssembler(t, stub)

	lines := []dialogue.Line{
		{Speaker: "A", Text: ""},
		{Speaker: "B", Text: "   "},
	}
	_, err := a.Assemble(context.Background(), lines, AssembleOptions{})
	require.ErrorIs(t, err, dialogue.ErrEmptyConversation)

	entries, err := os.ReadDir(a.Workdir())
	require.NoError(t, err)
	require.Empty(t, entries, "no output files on failure")
}

func TestAssembleSynthesisFailureAborts(t *testing.T) {
	failure := &tts.SynthesisError{Engine: "azure", Reason: "canceled"}
	a := newTestAssembler(t, &tts.FailingSynthesizer{Err: failure})

	_, err := a.Assemble(context.Background(), sampleConversation(), AssembleOptions{})
	var synthErr *tts.SynthesisError
	require.ErrorAs(t, err, &synthErr)
}

func TestAssembleBackgroundKeepsDuration(t *testing.T) {
	stub := tts.NewStubSynthesizer()
	plain := newTestAssembler(t, stub)
	withBG := newTestAssembler(t, tts.NewStubSynthesizer())

	lines := sampleConversation()

	plainResult, err := plain.Assemble(context.Background(), lines, AssembleOptions{})
	require.NoError(t, err)
	bgResult, err := withBG.Assemble(context.Background(), lines, AssembleOptions{
		Background: background.Preset(background.PresetCafe),
	})
	require.NoError(t, err)

	plainClip, err := audio.DecodeFile(plainResult.Combined)
	require.NoError(t, err)
	bgClip, err := audio.DecodeFile(bgResult.Combined)
	require.NoError(t, err)
	require.Equal(t, plainClip.Duration(), bgClip.Duration())
}

func TestAssembleFileBackgroundKeepsDuration(t *testing.T) {
	dir := t.TempDir()
	bgPath := filepath.Join(dir, "ambience.wav")
	short := audio.Tone(audio.DefaultSampleRate, 200, 300*time.Millisecond, 0.4)
	require.NoError(t, short.WriteWAV(bgPath))

	stub := tts.NewStubSynthesizer()
	a := newTestAssembler(t, stub)

	lines := sampleConversation()
	result, err := a.Assemble(context.Background(), lines, AssembleOptions{
		Background: background.File(bgPath),
	})
	require.NoError(t, err)

	var want time.Duration
	for _, line := range lines {
		want += tts.StubDuration(line.Text)
	}
	want += time.Duration(len(lines)-1) * time.Second

	combined, err := audio.DecodeFile(result.Combined)
	require.NoError(t, err)
	require.Equal(t, want, combined.Duration())
}

func TestAssembleDoesNotMutateInput(t *testing.T) {
	stub := tts.NewStubSynthesizer()
	a := newTestAssembler(t, stub)

	lines := sampleConversation()
	original := make([]dialogue.Line, len(lines))
	copy(original, lines)

	_, err := a.Assemble(context.Background(), lines, AssembleOptions{})
	require.NoError(t, err)
	require.Equal(t, original, lines)
}

func TestCloseRemovesWorkdir(t *testing.T) {
	provider := background.NewProvider(discardLogger(), background.ProviderOptions{})
	a, err := New(discardLogger(), tts.NewStubSynthesizer(), provider, Options{})
	require.NoError(t, err)

	_, err = a.Assemble(context.Background(), sampleConversation(), AssembleOptions{})
	require.NoError(t, err)

	require.NoError(t, a.Close())
	_, err = os.Stat(a.Workdir())
	require.True(t, os.IsNotExist(err))
}

func TestVoicePoolExhaustionWraps(t *testing.T) {
	stub := tts.NewStubSynthesizer()
	a := newTestAssembler(t, stub)

	lines := []dialogue.Line{
		{Speaker: "S1", Text: "one"},
		{Speaker: "S2", Text: "two"},
		{Speaker: "S3", Text: "three"},
		{Speaker: "S4", Text: "four"},
		{Speaker: "S5", Text: "five"},
	}
	_, err := a.Assemble(context.Background(), lines, AssembleOptions{})
	require.NoError(t, err)

	calls := stub.Calls()
	seen := map[string]bool{}
	for _, call := range calls[:4] {
		require.False(t, seen[call.Voice.ID], "pool voices must be distinct until exhausted")
		seen[call.Voice.ID] = true
	}
	// fifth speaker wraps to the start of the pool
	require.Equal(t, calls[0].Voice.ID, calls[4].Voice.ID)
}
