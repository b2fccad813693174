package playback

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func talkingResolved(text string) map[string]*resolved {
	return map[string]*resolved{
		"aya": {state: CharacterState{CharacterID: "aya", IsTalking: true, RevealedText: text}},
	}
}

func armedSoundState() soundState {
	s := newSoundState()
	s.handler = func(TalkingSound) {}
	return s
}

func TestSoundState_FiresOnRevealGrowth(t *testing.T) {
	s := armedSoundState()
	base := time.Now()
	gap := 65 * time.Millisecond

	cues := s.collect(base, talkingResolved("Hel"), gap)
	require.Len(t, cues, 1)
	assert.Equal(t, "aya", cues[0].CharacterID)
	assert.Equal(t, 0.7, cues[0].Volume)

	// Same reveal again: nothing new to voice.
	assert.Empty(t, s.collect(base.Add(100*time.Millisecond), talkingResolved("Hel"), gap))

	assert.Len(t, s.collect(base.Add(200*time.Millisecond), talkingResolved("Hello"), gap), 1)
}

func TestSoundState_MinGapSpacesCues(t *testing.T) {
	s := armedSoundState()
	base := time.Now()
	gap := 65 * time.Millisecond

	require.Len(t, s.collect(base, talkingResolved("He"), gap), 1)
	assert.Empty(t, s.collect(base.Add(10*time.Millisecond), talkingResolved("Hell"), gap))
	assert.Len(t, s.collect(base.Add(70*time.Millisecond), talkingResolved("Hello"), gap), 1)
}

// TestSoundState_SkipsWhitespaceAndPunctuation checks that silent runes
// produce no cue but do not block the next speakable one.
func TestSoundState_SkipsWhitespaceAndPunctuation(t *testing.T) {
	s := armedSoundState()
	base := time.Now()
	gap := 65 * time.Millisecond

	require.Len(t, s.collect(base, talkingResolved("Hello"), gap), 1)
	assert.Empty(t, s.collect(base.Add(100*time.Millisecond), talkingResolved("Hello "), gap))
	assert.Empty(t, s.collect(base.Add(200*time.Millisecond), talkingResolved("Hello, "), gap))
	assert.Len(t, s.collect(base.Add(300*time.Millisecond), talkingResolved("Hello, w"), gap), 1)
}

func TestSoundState_CountsRunesNotBytes(t *testing.T) {
	s := armedSoundState()
	base := time.Now()
	gap := 65 * time.Millisecond

	require.Len(t, s.collect(base, talkingResolved("こ"), gap), 1)
	assert.Len(t, s.collect(base.Add(100*time.Millisecond), talkingResolved("こん"), gap), 1)
}

func TestSoundState_SilentPaths(t *testing.T) {
	base := time.Now()
	gap := 65 * time.Millisecond

	noHandler := newSoundState()
	assert.Nil(t, noHandler.collect(base, talkingResolved("Hi"), gap))

	disabled := armedSoundState()
	disabled.enabled = false
	assert.Nil(t, disabled.collect(base, talkingResolved("Hi"), gap))

	quiet := armedSoundState()
	states := map[string]*resolved{
		"aya": {state: CharacterState{CharacterID: "aya", RevealedText: "Hi"}},
	}
	assert.Empty(t, quiet.collect(base, states, gap), "non-talking characters never cue")
}

func TestSoundState_ResetClearsMarkers(t *testing.T) {
	s := armedSoundState()
	base := time.Now()
	gap := 65 * time.Millisecond

	require.Len(t, s.collect(base, talkingResolved("Hello"), gap), 1)
	s.reset()
	assert.Len(t, s.collect(base.Add(time.Millisecond), talkingResolved("Hello"), gap), 1,
		"after a reset the same reveal counts as fresh growth")
}

func TestEngine_TalkingSoundCuesDuringPlayback(t *testing.T) {
	e := newTestEngine(Config{})
	defer e.Stop()

	var mu sync.Mutex
	var cues []TalkingSound
	e.SetTalkingSoundHandler(func(c TalkingSound) {
		mu.Lock()
		cues = append(cues, c)
		mu.Unlock()
	})

	require.NoError(t, e.Play(quickScene(200*time.Millisecond)))
	time.Sleep(350 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, len(cues), 2, "a 200ms utterance should cue at least twice")
	for _, c := range cues {
		assert.Equal(t, "aya", c.CharacterID)
		assert.Equal(t, 0.7, c.Volume)
	}
}

func TestEngine_TalkingSoundsCanBeDisabled(t *testing.T) {
	e := newTestEngine(Config{})
	defer e.Stop()

	var mu sync.Mutex
	count := 0
	e.SetTalkingSoundHandler(func(TalkingSound) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	e.SetTalkingSoundsEnabled(false)

	require.NoError(t, e.Play(quickScene(150*time.Millisecond)))
	time.Sleep(250 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, count)
}

func TestEngine_TalkingSoundsVolume(t *testing.T) {
	e := newTestEngine(Config{})
	defer e.Stop()

	e.SetTalkingSoundsVolume(1.5)
	e.mu.RLock()
	assert.Equal(t, 1.0, e.sounds.volume)
	e.mu.RUnlock()

	e.SetTalkingSoundsVolume(-0.2)
	e.mu.RLock()
	assert.Equal(t, 0.0, e.sounds.volume)
	e.mu.RUnlock()

	e.SetTalkingSoundsVolume(0.3)

	var mu sync.Mutex
	var cues []TalkingSound
	e.SetTalkingSoundHandler(func(c TalkingSound) {
		mu.Lock()
		cues = append(cues, c)
		mu.Unlock()
	})

	require.NoError(t, e.Play(quickScene(150*time.Millisecond)))
	time.Sleep(250 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, cues)
	for _, c := range cues {
		assert.Equal(t, 0.3, c.Volume)
	}
}
