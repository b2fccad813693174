package playback

import (
	"time"

	"github.com/Robertoarce/wakatto-sub005/internal/scene"
)

// resolved carries one character's resolution for the current instant,
// including fields served by getters but absent from the public snapshot.
type resolved struct {
	state      CharacterState
	fullText   string
	actionText string
	voice      scene.VoiceProfile
	hasVoice   bool
}

// resolveLocked recomputes per-character states for the given elapsed time
// and rebuilds the shared snapshot. Memoized: within memoEpsilon of the last
// elapsed time, same status, no input changes since, the previous snapshot
// is kept untouched. Callers hold the write lock.
func (e *Engine) resolveLocked(elapsed time.Duration) {
	if !e.dirty && e.lastElapsed >= 0 && e.status == e.lastStatus {
		delta := elapsed - e.lastElapsed
		if delta > -memoEpsilon && delta < memoEpsilon {
			return
		}
	}

	states := make(map[string]*resolved)
	if e.index != nil {
		for id := range e.index.byCharacter {
			states[id] = e.resolveSpeakerLocked(id, elapsed)
		}
	}
	if e.scn != nil {
		for id, segs := range e.scn.NonSpeakers {
			if _, ok := states[id]; ok {
				continue
			}
			states[id] = e.resolveNonSpeakerLocked(id, segs, elapsed)
		}
	}

	snap := Snapshot{
		Status:  e.status,
		Elapsed: elapsed,
		States:  make(map[string]CharacterState, len(states)),
	}
	for id, r := range states {
		snap.States[id] = r.state
	}

	e.resolved = states
	e.snapshot = snap
	e.lastElapsed = elapsed
	e.lastStatus = e.status
	e.dirty = false
}

func (e *Engine) resolveSpeakerLocked(id string, elapsed time.Duration) *resolved {
	active, completed, upcoming := e.index.timelinesAt(id, elapsed)

	switch {
	case active != nil:
		return e.resolveActiveLocked(id, active, elapsed)
	case completed != nil:
		return e.resolveCompletedLocked(id, completed)
	default:
		r := &resolved{
			state: CharacterState{
				CharacterID: id,
				Animation:   scene.AnimationIdle,
			},
		}
		if upcoming != nil {
			r.fullText = upcoming.Content
		}
		r.voice, r.hasVoice = e.voiceFor(id, nil)
		return r
	}
}

func (e *Engine) resolveActiveLocked(id string, t *scene.CharacterTimeline, elapsed time.Duration) *resolved {
	offset := elapsed - t.StartDelay
	seg, _ := segmentAt(t.Segments, offset)

	r := &resolved{fullText: t.Content, actionText: seg.ActionText}
	r.state = CharacterState{
		CharacterID:  id,
		Animation:    seg.Animation,
		IsTalking:    seg.IsTalking,
		IsActive:     true,
		RevealedText: e.revealLocked(t, offset),
	}
	if r.state.Animation == "" {
		r.state.Animation = scene.AnimationIdle
	}
	if seg.Complementary != nil {
		r.state.Complementary = *seg.Complementary
	}
	if e.tts.external() {
		r.state.IsTalking = e.tts.speaker == id
	}
	r.voice, r.hasVoice = e.voiceFor(id, seg.Voice)
	return r
}

// resolveCompletedLocked freezes a character on its finished line: full
// reveal, final pose, and a post-speech expression that stays stable until
// the next play.
func (e *Engine) resolveCompletedLocked(id string, t *scene.CharacterTimeline) *resolved {
	last := &t.Segments[len(t.Segments)-1]

	r := &resolved{fullText: t.Content}
	r.state = CharacterState{
		CharacterID:   id,
		Animation:     last.Animation,
		RevealedText:  e.completedRevealLocked(t),
		IsComplete:    true,
		Complementary: e.postSpeechLocked(id, t),
	}
	if r.state.Animation == "" {
		r.state.Animation = scene.AnimationIdle
	}
	if e.tts.external() {
		r.state.IsTalking = e.tts.speaker == id
	}
	r.voice, r.hasVoice = e.voiceFor(id, nil)
	return r
}

func (e *Engine) resolveNonSpeakerLocked(id string, segs []scene.AnimationSegment, elapsed time.Duration) *resolved {
	r := &resolved{}
	r.state = CharacterState{CharacterID: id, Animation: scene.AnimationIdle}
	r.voice, r.hasVoice = e.voiceFor(id, nil)
	if len(segs) == 0 {
		return r
	}

	seg, _ := segmentAt(segs, elapsed)
	if seg.Animation != "" {
		r.state.Animation = seg.Animation
	}
	if seg.Complementary != nil {
		r.state.Complementary = *seg.Complementary
	}
	r.actionText = seg.ActionText
	if e.tts.external() {
		r.state.IsTalking = e.tts.speaker == id
	}
	return r
}

// revealLocked computes a character's revealed text at the given offset into
// the active timeline. A reported speech boundary takes precedence over the
// clock when external sync is on.
func (e *Engine) revealLocked(t *scene.CharacterTimeline, offset time.Duration) string {
	runes := e.index.runes[t]
	if len(runes) == 0 {
		return ""
	}
	if e.tts.external() {
		if off, ok := e.tts.offset(t.CharacterID); ok {
			return string(runes[:boundaryReveal(off, e.cfg.RevealLookahead, len(runes))])
		}
	}
	n := clockRevealCount(t.Segments, offset)
	if n > len(runes) {
		n = len(runes)
	}
	return string(runes[:n])
}

func (e *Engine) completedRevealLocked(t *scene.CharacterTimeline) string {
	runes := e.index.runes[t]
	if e.tts.external() {
		if off, ok := e.tts.offset(t.CharacterID); ok {
			return string(runes[:boundaryReveal(off, e.cfg.RevealLookahead, len(runes))])
		}
	}
	return t.Content
}

// clockRevealCount walks segments up to offset, carrying the highest fully
// revealed index forward, then interpolates linearly inside the segment the
// offset falls in.
func clockRevealCount(segs []scene.AnimationSegment, offset time.Duration) int {
	count := 0
	var start time.Duration
	for i := range segs {
		seg := &segs[i]
		end := start + seg.Duration
		if offset >= end {
			if seg.TextReveal != nil && seg.TextReveal.End > count {
				count = seg.TextReveal.End
			}
			start = end
			continue
		}
		if seg.TextReveal != nil {
			progress := float64(offset-start) / float64(seg.Duration)
			n := seg.TextReveal.Start + int(float64(seg.TextReveal.Len())*progress)
			if n > seg.TextReveal.End {
				n = seg.TextReveal.End
			}
			if n > count {
				count = n
			}
		}
		break
	}
	return count
}

// boundaryReveal clamps a boundary offset plus lookahead to content length.
func boundaryReveal(offset, lookahead, contentLen int) int {
	n := offset + lookahead
	if n < 0 {
		n = 0
	}
	if n > contentLen {
		n = contentLen
	}
	return n
}

// segmentAt returns the segment containing the offset by cumulative
// duration. Offsets past the end land on the final segment.
func segmentAt(segs []scene.AnimationSegment, offset time.Duration) (*scene.AnimationSegment, time.Duration) {
	var start time.Duration
	for i := range segs {
		end := start + segs[i].Duration
		if offset < end {
			return &segs[i], start
		}
		start = end
	}
	lastStart := start - segs[len(segs)-1].Duration
	return &segs[len(segs)-1], lastStart
}

// voiceFor merges a character's base voice profile with a segment override.
func (e *Engine) voiceFor(id string, override *scene.VoiceProfile) (scene.VoiceProfile, bool) {
	base, ok := e.profiles[id]
	if override != nil {
		return base.Merge(*override), true
	}
	return base, ok
}

func (e *Engine) anyTalkingLocked() bool {
	for _, r := range e.resolved {
		if r.state.IsTalking {
			return true
		}
	}
	return false
}
