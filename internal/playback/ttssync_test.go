package playback

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Robertoarce/wakatto-sub005/internal/scene"
)

func TestTTSState_ModeToggle(t *testing.T) {
	s := newTTSState()
	assert.False(t, s.external())

	s.setMode(true)
	assert.True(t, s.external())

	s.setOffset("aya", 7)
	s.speaker = "aya"
	s.setMode(false)
	assert.False(t, s.external())
	_, ok := s.offset("aya")
	assert.False(t, ok, "disabling sync must drop reported offsets")
	assert.Empty(t, s.speaker)
}

func TestTTSState_OffsetClampsNegative(t *testing.T) {
	s := newTTSState()
	s.setOffset("aya", -3)
	off, ok := s.offset("aya")
	require.True(t, ok)
	assert.Equal(t, 0, off)
}

func TestTTSState_OffsetMissing(t *testing.T) {
	s := newTTSState()
	_, ok := s.offset("nobody")
	assert.False(t, ok)
}

func TestTTSState_AllowNotifyThrottles(t *testing.T) {
	s := newTTSState()
	base := time.Now()
	interval := 50 * time.Millisecond

	assert.True(t, s.allowNotify(base, interval))
	assert.False(t, s.allowNotify(base.Add(10*time.Millisecond), interval))
	assert.True(t, s.allowNotify(base.Add(50*time.Millisecond), interval))
	assert.False(t, s.allowNotify(base.Add(99*time.Millisecond), interval))
	assert.True(t, s.allowNotify(base.Add(100*time.Millisecond), interval))
}

// TestEngine_ExternalRevealOverridesClock pins the scene mid-line and walks
// reported boundaries through it: reveal follows offset plus lookahead, and
// turning sync off falls back to the clock.
func TestEngine_ExternalRevealOverridesClock(t *testing.T) {
	e := newTestEngine(Config{})
	defer e.Stop()

	require.NoError(t, e.Play(helloScene()))
	seekPaused(e, time.Second)

	e.SetTTSDrivenMode(true)
	// No boundary reported yet, so the clock still rules.
	clock := e.RevealedText("aya")
	assert.GreaterOrEqual(t, len(clock), 5)
	assert.LessOrEqual(t, len(clock), 6)

	e.SetTTSCharPosition("aya", 3)
	assert.Equal(t, "Hello", e.RevealedText("aya"))

	e.SetTTSCharPosition("aya", 9)
	assert.Equal(t, "Hello world", e.RevealedText("aya"))

	e.SetTTSCharPosition("aya", 50)
	assert.Equal(t, "Hello world", e.RevealedText("aya"), "offsets clamp to content length")

	e.SetTTSCharPosition("aya", -5)
	assert.Equal(t, "He", e.RevealedText("aya"), "negative offsets clamp to zero")

	e.SetTTSDrivenMode(false)
	fallback := e.RevealedText("aya")
	assert.GreaterOrEqual(t, len(fallback), 5)
	assert.LessOrEqual(t, len(fallback), 6)
}

// TestEngine_ExternalRevealAppliesToCompletedTimelines keeps a finished line
// partial while the synthesizer is still behind on it.
func TestEngine_ExternalRevealAppliesToCompletedTimelines(t *testing.T) {
	e := newTestEngine(Config{})
	defer e.Stop()

	require.NoError(t, e.Play(helloScene()))
	seekPaused(e, 2500*time.Millisecond)

	require.True(t, e.CurrentStates()["aya"].IsComplete)
	assert.Equal(t, "Hello world", e.RevealedText("aya"))

	e.SetTTSDrivenMode(true)
	e.SetTTSCharPosition("aya", 3)
	assert.Equal(t, "Hello", e.RevealedText("aya"),
		"a reported boundary overrides the full reveal of a finished line")
}

func TestEngine_SpeakerPointerDrivesTalkingFlag(t *testing.T) {
	e := newTestEngine(Config{})
	defer e.Stop()

	require.NoError(t, e.Play(helloScene()))
	seekPaused(e, time.Second)

	e.SetTTSDrivenMode(true)
	assert.False(t, e.CurrentStates()["aya"].IsTalking,
		"without a current speaker nobody talks in external sync")

	e.SetTTSCurrentSpeaker("aya")
	assert.True(t, e.CurrentStates()["aya"].IsTalking)

	e.SetTTSCurrentSpeaker("momo")
	states := e.CurrentStates()
	assert.True(t, states["momo"].IsTalking)
	assert.False(t, states["aya"].IsTalking)

	e.ClearTTSPositions()
	assert.False(t, e.CurrentStates()["momo"].IsTalking)
}

func TestEngine_TTSUpdatesWhileIdleAreStoredSilently(t *testing.T) {
	e := newTestEngine(Config{})

	var calls atomic.Int32
	e.Subscribe(func(Snapshot) { calls.Add(1) })

	e.SetTTSDrivenMode(true)
	e.SetTTSCharPosition("aya", 7)
	e.SetTTSCurrentSpeaker("aya")

	assert.Equal(t, int32(0), calls.Load(), "idle TTS updates must not notify")

	e.mu.RLock()
	off, ok := e.tts.offsets["aya"]
	speaker := e.tts.speaker
	e.mu.RUnlock()
	require.True(t, ok)
	assert.Equal(t, 7, off)
	assert.Equal(t, "aya", speaker)
}

// TestEngine_BoundaryNotificationsThrottled uses an effectively disabled
// tick loop so every notification in the count comes from a TTS update.
func TestEngine_BoundaryNotificationsThrottled(t *testing.T) {
	e := newTestEngine(Config{
		TickInterval:           time.Hour,
		ExternalNotifyInterval: 50 * time.Millisecond,
	})
	defer e.Stop()

	var calls atomic.Int32
	e.Subscribe(func(Snapshot) { calls.Add(1) })

	require.NoError(t, e.Play(helloScene()))
	require.Equal(t, int32(1), calls.Load())

	e.SetTTSDrivenMode(true)
	assert.Equal(t, int32(2), calls.Load(), "mode changes notify immediately")

	e.SetTTSCharPosition("aya", 1)
	e.SetTTSCharPosition("aya", 2)
	assert.Equal(t, int32(3), calls.Load(), "back-to-back boundaries coalesce")

	time.Sleep(60 * time.Millisecond)
	e.SetTTSCharPosition("aya", 3)
	assert.Equal(t, int32(4), calls.Load())

	e.SetTTSCurrentSpeaker("aya")
	e.SetTTSCurrentSpeaker("")
	assert.Equal(t, int32(6), calls.Load(), "speaker changes are not throttled")
}

// TestEngine_SpeakerClearUnblocksPendingStop drives the one path where a
// graceful stop outlives natural completion: the external speaker flag kept
// a character talking past the final tick.
func TestEngine_SpeakerClearUnblocksPendingStop(t *testing.T) {
	e := newTestEngine(Config{})
	defer e.Stop()

	e.SetTTSDrivenMode(true)
	require.NoError(t, e.Play(quickScene(100*time.Millisecond)))
	e.SetTTSCurrentSpeaker("aya")

	var fired atomic.Int32
	e.GracefulStop(func() { fired.Add(1) })
	require.Equal(t, int32(0), fired.Load())

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, StatusComplete, e.Status(),
		"audio still running holds the scene at complete")
	assert.Equal(t, int32(0), fired.Load())

	e.SetTTSCurrentSpeaker("")
	assert.Equal(t, int32(1), fired.Load())
	assert.Equal(t, StatusIdle, e.Status())
}

func TestEngine_SceneChangeClearsBoundaries(t *testing.T) {
	e := newTestEngine(Config{})
	defer e.Stop()

	e.SetTTSDrivenMode(true)
	require.NoError(t, e.Play(helloScene()))
	e.SetTTSCharPosition("aya", 5)
	e.SetTTSCurrentSpeaker("aya")

	require.NoError(t, e.Play(helloScene()))

	e.mu.RLock()
	_, ok := e.tts.offsets["aya"]
	speaker := e.tts.speaker
	mode := e.tts.mode
	e.mu.RUnlock()
	assert.False(t, ok, "a new scene must not inherit old boundaries")
	assert.Empty(t, speaker)
	assert.Equal(t, SyncExternalDriven, mode, "the sync mode itself is sticky")

	// Voice profiles survive scene changes too.
	e.SetCharacterVoiceProfiles(map[string]scene.VoiceProfile{"aya": {Pitch: 1.2}})
	require.NoError(t, e.Play(helloScene()))
	v, ok := e.CurrentVoice("aya")
	require.True(t, ok)
	assert.Equal(t, 1.2, v.Pitch)
}
