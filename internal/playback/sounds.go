package playback

import (
	"time"
	"unicode"
	"unicode/utf8"
)

// soundState drives percussive talking cues off revealed-text growth. A cue
// fires when a talking character's reveal has grown since their previous
// cue, at least minGap has passed for that character, and the newest
// revealed rune is speakable. Tying cues to text progress instead of a fixed
// interval keeps scene setup silent.
type soundState struct {
	enabled  bool
	volume   float64
	handler  func(TalkingSound)
	lastFire map[string]time.Time
	lastLen  map[string]int
}

func newSoundState() soundState {
	return soundState{
		enabled:  true,
		volume:   0.7,
		lastFire: make(map[string]time.Time),
		lastLen:  make(map[string]int),
	}
}

func (s *soundState) reset() {
	s.lastFire = make(map[string]time.Time)
	s.lastLen = make(map[string]int)
}

// collect returns the cues due at now for the given resolution. Marker
// state advances only for characters that actually fire, so a rune skipped
// for punctuation fires as soon as a letter follows it.
func (s *soundState) collect(now time.Time, states map[string]*resolved, minGap time.Duration) []TalkingSound {
	if !s.enabled || s.handler == nil {
		return nil
	}

	var cues []TalkingSound
	for id, r := range states {
		if !r.state.IsTalking {
			continue
		}
		n := utf8.RuneCountInString(r.state.RevealedText)
		if n <= s.lastLen[id] {
			continue
		}
		if last, ok := s.lastFire[id]; ok && now.Sub(last) < minGap {
			continue
		}
		newest, _ := utf8.DecodeLastRuneInString(r.state.RevealedText)
		if newest == utf8.RuneError || unicode.IsSpace(newest) || unicode.IsPunct(newest) {
			continue
		}
		cues = append(cues, TalkingSound{CharacterID: id, Volume: s.volume})
		s.lastFire[id] = now
		s.lastLen[id] = n
	}
	return cues
}
