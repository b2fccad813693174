package playback

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Robertoarce/wakatto-sub005/internal/scene"
)

// Engine plays one scene at a time. A ticker goroutine resolves states and
// notifies subscribers roughly once per frame while playing; every public
// method is safe for concurrent use. Callers own their engine instances;
// there is no package-level singleton.
type Engine struct {
	cfg Config
	log zerolog.Logger

	mu        sync.RWMutex
	status    Status
	scn       *scene.Scene
	index     *timelineIndex
	startTime time.Time
	pausedAt  time.Duration

	resolved    map[string]*resolved
	snapshot    Snapshot
	lastElapsed time.Duration
	lastStatus  Status
	dirty       bool

	expressions map[string]cachedExpression
	rng         *rand.Rand

	tts      ttsState
	sounds   soundState
	profiles map[string]scene.VoiceProfile

	subs *subscriberList

	pendingStop   bool
	stopCallbacks []func()

	stopCh chan struct{}
}

// New creates an idle engine. Zero config fields take defaults.
func New(cfg Config, log zerolog.Logger) *Engine {
	def := DefaultConfig()
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = def.TickInterval
	}
	if cfg.ExternalNotifyInterval <= 0 {
		cfg.ExternalNotifyInterval = def.ExternalNotifyInterval
	}
	if cfg.RevealLookahead <= 0 {
		cfg.RevealLookahead = def.RevealLookahead
	}
	if cfg.SoundMinGap <= 0 {
		cfg.SoundMinGap = def.SoundMinGap
	}
	if cfg.MaxSubscribers <= 0 {
		cfg.MaxSubscribers = def.MaxSubscribers
	}

	return &Engine{
		cfg:         cfg,
		log:         log,
		status:      StatusIdle,
		snapshot:    Snapshot{Status: StatusIdle, States: map[string]CharacterState{}},
		lastElapsed: -1,
		lastStatus:  StatusIdle,
		expressions: make(map[string]cachedExpression),
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		tts:         newTTSState(),
		sounds:      newSoundState(),
		subs:        newSubscriberList(cfg.MaxSubscribers, log),
	}
}

// Play validates the scene and starts playback from zero, replacing any
// in-flight playback. The new scene is resolved before Play returns, so
// previously visible states are never flushed to an empty frame.
func (e *Engine) Play(s *scene.Scene) error {
	if s == nil {
		return fmt.Errorf("nil scene")
	}
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid scene: %w", err)
	}

	e.mu.Lock()
	e.stopLoopLocked()
	dropped := len(e.stopCallbacks)
	e.pendingStop = false
	e.stopCallbacks = nil

	e.scn = s
	e.index = buildIndex(s)
	e.status = StatusPlaying
	e.startTime = time.Now()
	e.pausedAt = 0
	e.expressions = make(map[string]cachedExpression)
	e.tts.clear()
	e.sounds.reset()
	e.lastElapsed = -1
	e.dirty = true
	e.resolveLocked(0)
	snap := e.snapshot
	e.startLoopLocked()
	e.mu.Unlock()

	if dropped > 0 {
		e.log.Warn().Int("callbacks", dropped).Msg("pending graceful stop superseded by new play")
	}
	e.log.Info().
		Int("timelines", len(s.Timelines)).
		Int("characters", len(snap.States)).
		Dur("sceneDuration", s.Duration).
		Msg("scene playback started")
	e.subs.deliver(snap)
	return nil
}

// Pause freezes the clock at the current offset. No-op unless playing.
func (e *Engine) Pause() {
	e.mu.Lock()
	if e.status != StatusPlaying {
		e.mu.Unlock()
		return
	}
	e.pausedAt = e.clampElapsedLocked(time.Since(e.startTime))
	e.status = StatusPaused
	e.stopLoopLocked()
	e.resolveLocked(e.pausedAt)
	snap := e.snapshot
	e.mu.Unlock()

	e.log.Debug().Dur("elapsed", snap.Elapsed).Msg("playback paused")
	e.subs.deliver(snap)
}

// Resume continues from the paused offset as if no time had passed. No-op
// unless paused.
func (e *Engine) Resume() {
	e.mu.Lock()
	if e.status != StatusPaused {
		e.mu.Unlock()
		return
	}
	e.startTime = time.Now().Add(-e.pausedAt)
	e.status = StatusPlaying
	e.resolveLocked(e.pausedAt)
	snap := e.snapshot
	e.startLoopLocked()
	e.mu.Unlock()

	e.log.Debug().Dur("elapsed", snap.Elapsed).Msg("playback resumed")
	e.subs.deliver(snap)
}

// Stop forces idle from any state, clears every scene-scoped cache, and
// fires any pending graceful-stop callbacks. Calling it repeatedly is
// idempotent.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.status == StatusIdle {
		e.mu.Unlock()
		return
	}
	callbacks := e.stopLocked()
	snap := e.snapshot
	e.mu.Unlock()

	e.log.Info().Msg("playback stopped")
	e.subs.deliver(snap)
	for _, cb := range callbacks {
		cb()
	}
}

// GracefulStop stops as soon as no character is mid-utterance. While
// someone is talking the request stays pending and is re-checked every
// tick; onComplete fires exactly once, after the engine reaches idle. When
// not playing, the stop happens synchronously. A nil onComplete is allowed.
func (e *Engine) GracefulStop(onComplete func()) {
	e.mu.Lock()
	if onComplete != nil {
		e.stopCallbacks = append(e.stopCallbacks, onComplete)
	}

	if e.status == StatusPlaying {
		e.pendingStop = true
		e.resolveLocked(e.clampElapsedLocked(time.Since(e.startTime)))
		if e.anyTalkingLocked() {
			pending := len(e.stopCallbacks)
			e.mu.Unlock()
			e.log.Debug().Int("pending", pending).Msg("graceful stop deferred until utterance ends")
			return
		}
	}

	wasIdle := e.status == StatusIdle
	callbacks := e.stopLocked()
	snap := e.snapshot
	e.mu.Unlock()

	if !wasIdle {
		e.log.Info().Msg("graceful stop completed")
		e.subs.deliver(snap)
	}
	for _, cb := range callbacks {
		cb()
	}
}

// stopLocked moves the engine to idle and clears scene-scoped state,
// returning the graceful-stop callbacks that are now due.
func (e *Engine) stopLocked() []func() {
	e.stopLoopLocked()
	e.status = StatusIdle
	e.scn = nil
	e.index = nil
	e.startTime = time.Time{}
	e.pausedAt = 0
	e.resolved = nil
	e.snapshot = Snapshot{Status: StatusIdle, States: map[string]CharacterState{}}
	e.lastElapsed = -1
	e.lastStatus = StatusIdle
	e.dirty = false
	e.expressions = make(map[string]cachedExpression)
	e.tts.clear()
	e.sounds.reset()

	callbacks := e.stopCallbacks
	e.pendingStop = false
	e.stopCallbacks = nil
	return callbacks
}

// tick advances the clock, resolves states, emits talking sounds, completes
// a pending graceful stop, and notifies subscribers.
func (e *Engine) tick() {
	e.mu.Lock()
	if e.status != StatusPlaying {
		e.mu.Unlock()
		return
	}

	now := time.Now()
	elapsed := now.Sub(e.startTime)
	finished := false
	if elapsed >= e.scn.Duration {
		elapsed = e.scn.Duration
		e.status = StatusComplete
		e.stopLoopLocked()
		finished = true
	}
	e.resolveLocked(elapsed)

	cues := e.sounds.collect(now, e.resolved, e.cfg.SoundMinGap)
	handler := e.sounds.handler

	notifications := []Snapshot{e.snapshot}
	var callbacks []func()
	stopped := false
	if e.pendingStop && !e.anyTalkingLocked() {
		callbacks = e.stopLocked()
		notifications = append(notifications, e.snapshot)
		stopped = true
	}
	e.mu.Unlock()

	if finished {
		e.log.Info().Dur("elapsed", elapsed).Msg("scene playback complete")
	}
	if stopped {
		e.log.Info().Msg("graceful stop completed")
	}
	for _, cue := range cues {
		handler(cue)
	}
	for _, snap := range notifications {
		e.subs.deliver(snap)
	}
	for _, cb := range callbacks {
		cb()
	}
}

// Status returns the playback lifecycle state.
func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}

// ElapsedTime returns the playback clock position: live while playing,
// frozen while paused, the scene duration when complete, zero when idle.
func (e *Engine) ElapsedTime() time.Duration {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.elapsedLocked()
}

// SceneDuration returns the loaded scene's total span, or zero when idle.
func (e *Engine) SceneDuration() time.Duration {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.scn == nil {
		return 0
	}
	return e.scn.Duration
}

// HasScene reports whether a scene is loaded (playing, paused, or complete).
func (e *Engine) HasScene() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.scn != nil
}

// CurrentStates resolves and returns the state mapping for the current
// instant. The map is shared with notification snapshots; callers must not
// modify it.
func (e *Engine) CurrentStates() map[string]CharacterState {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.scn != nil {
		e.resolveLocked(e.elapsedLocked())
	}
	return e.snapshot.States
}

// RevealedText returns how much of the character's current line is visible.
func (e *Engine) RevealedText(characterID string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if r := e.resolveCharacterLocked(characterID); r != nil {
		return r.state.RevealedText
	}
	return ""
}

// FullText returns the character's current line in full: the active
// timeline's content, else the last finished one's, else the next one's.
func (e *Engine) FullText(characterID string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if r := e.resolveCharacterLocked(characterID); r != nil {
		return r.fullText
	}
	return ""
}

// ActionText returns the comic-style caption of the character's active
// segment, or the empty string.
func (e *Engine) ActionText(characterID string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if r := e.resolveCharacterLocked(characterID); r != nil {
		return r.actionText
	}
	return ""
}

// CurrentVoice returns the character's base voice profile merged with the
// active segment's override. ok is false when the character has neither.
func (e *Engine) CurrentVoice(characterID string) (scene.VoiceProfile, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if r := e.resolveCharacterLocked(characterID); r != nil {
		return r.voice, r.hasVoice
	}
	return scene.VoiceProfile{}, false
}

func (e *Engine) resolveCharacterLocked(id string) *resolved {
	if e.scn == nil {
		return nil
	}
	e.resolveLocked(e.elapsedLocked())
	return e.resolved[id]
}

// Subscribe registers a snapshot callback and returns its unsubscribe
// function. Beyond the configured cap the oldest subscriber is evicted.
func (e *Engine) Subscribe(fn func(Snapshot)) func() {
	return e.subs.add(fn)
}

// ClearCallbacks drops every subscriber.
func (e *Engine) ClearCallbacks() {
	e.subs.clear()
}

// SubscriberCount returns the number of registered subscribers.
func (e *Engine) SubscriberCount() int {
	return e.subs.count()
}

// SetTTSDrivenMode toggles external speech-boundary sync. Disabling clears
// all reported offsets and the current speaker.
func (e *Engine) SetTTSDrivenMode(enabled bool) {
	e.mu.Lock()
	e.tts.setMode(enabled)
	e.dirty = true
	snaps, callbacks, stopped := e.externalChangeLocked(false)
	e.mu.Unlock()
	e.deliverExternal(snaps, callbacks, stopped)
}

// SetTTSCharPosition records the synthesizer's progress through a
// character's line as a rune offset. While playing this may trigger an
// immediate notification, throttled to one per ExternalNotifyInterval.
func (e *Engine) SetTTSCharPosition(characterID string, offset int) {
	e.mu.Lock()
	e.tts.setOffset(characterID, offset)
	e.dirty = true
	snaps, callbacks, stopped := e.externalChangeLocked(true)
	e.mu.Unlock()
	e.deliverExternal(snaps, callbacks, stopped)
}

// SetTTSCurrentSpeaker marks the one character whose audio is playing right
// now; the empty string clears it. While external sync is on this pointer
// alone decides the talking flag.
func (e *Engine) SetTTSCurrentSpeaker(characterID string) {
	e.mu.Lock()
	e.tts.speaker = characterID
	e.dirty = true
	snaps, callbacks, stopped := e.externalChangeLocked(false)
	e.mu.Unlock()
	e.deliverExternal(snaps, callbacks, stopped)
}

// ClearTTSPositions drops all reported offsets and the current speaker,
// typically once synthesis for the scene has finished.
func (e *Engine) ClearTTSPositions() {
	e.mu.Lock()
	e.tts.clear()
	e.dirty = true
	snaps, callbacks, stopped := e.externalChangeLocked(false)
	e.mu.Unlock()
	e.deliverExternal(snaps, callbacks, stopped)
}

// externalChangeLocked re-resolves after a TTS-side change and decides
// which notifications and pending-stop callbacks are due. Boundary-offset
// updates are throttled; mode and speaker changes notify immediately.
// Changes while not playing are stored but stay silent, except that a
// pending stop blocked only by the speaker pointer may complete.
func (e *Engine) externalChangeLocked(throttled bool) ([]Snapshot, []func(), bool) {
	if e.status != StatusPlaying && !(e.status == StatusComplete && e.pendingStop) {
		return nil, nil, false
	}

	notify := e.status == StatusPlaying
	if notify && throttled && !e.tts.allowNotify(time.Now(), e.cfg.ExternalNotifyInterval) {
		notify = false
	}
	e.resolveLocked(e.elapsedLocked())

	var snaps []Snapshot
	if notify {
		snaps = append(snaps, e.snapshot)
	}
	var callbacks []func()
	stopped := false
	if e.pendingStop && !e.anyTalkingLocked() {
		callbacks = e.stopLocked()
		snaps = append(snaps, e.snapshot)
		stopped = true
	}
	return snaps, callbacks, stopped
}

func (e *Engine) deliverExternal(snaps []Snapshot, callbacks []func(), stopped bool) {
	if stopped {
		e.log.Info().Msg("graceful stop completed")
	}
	for _, snap := range snaps {
		e.subs.deliver(snap)
	}
	for _, cb := range callbacks {
		cb()
	}
}

// SetCharacterVoiceProfiles replaces the base voice profiles that segment
// overrides merge onto.
func (e *Engine) SetCharacterVoiceProfiles(profiles map[string]scene.VoiceProfile) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.profiles = make(map[string]scene.VoiceProfile, len(profiles))
	for id, p := range profiles {
		e.profiles[id] = p
	}
	e.dirty = true
}

// SetTalkingSoundsEnabled toggles talking-sound cues.
func (e *Engine) SetTalkingSoundsEnabled(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sounds.enabled = enabled
}

// SetTalkingSoundsVolume sets cue volume, clamped to [0, 1].
func (e *Engine) SetTalkingSoundsVolume(volume float64) {
	if volume < 0 {
		volume = 0
	}
	if volume > 1 {
		volume = 1
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sounds.volume = volume
}

// SetTalkingSoundHandler registers the cue sink. Cues arrive from the tick
// goroutine; a nil handler disables cues.
func (e *Engine) SetTalkingSoundHandler(fn func(TalkingSound)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sounds.handler = fn
}

// Reset stops playback and returns the engine to its just-created state:
// subscribers, sound handler, voice profiles, and sync mode included.
func (e *Engine) Reset() {
	e.Stop()
	e.mu.Lock()
	e.tts = newTTSState()
	e.sounds = newSoundState()
	e.profiles = nil
	e.mu.Unlock()
	e.subs.clear()
}

func (e *Engine) elapsedLocked() time.Duration {
	switch e.status {
	case StatusPlaying:
		return e.clampElapsedLocked(time.Since(e.startTime))
	case StatusPaused:
		return e.pausedAt
	case StatusComplete:
		return e.scn.Duration
	default:
		return 0
	}
}

func (e *Engine) clampElapsedLocked(elapsed time.Duration) time.Duration {
	if e.scn != nil && elapsed > e.scn.Duration {
		return e.scn.Duration
	}
	return elapsed
}

func (e *Engine) startLoopLocked() {
	ch := make(chan struct{})
	e.stopCh = ch
	go e.run(ch)
}

func (e *Engine) stopLoopLocked() {
	if e.stopCh != nil {
		close(e.stopCh)
		e.stopCh = nil
	}
}

// run drives ticks until its stop channel closes. One loop exists per
// playing span: Play and Resume start one, Pause, Stop, and completion end
// it.
func (e *Engine) run(stop <-chan struct{}) {
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			e.tick()
		}
	}
}
