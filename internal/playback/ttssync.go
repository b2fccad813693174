package playback

import "time"

// ttsState tracks external speech-boundary sync: the reported rune offset
// per character, the single character currently backed by audio, and the
// throttle stamp for boundary-triggered notifications.
type ttsState struct {
	mode       SyncMode
	offsets    map[string]int
	speaker    string
	lastNotify time.Time
}

func newTTSState() ttsState {
	return ttsState{mode: SyncClockDriven, offsets: make(map[string]int)}
}

func (t *ttsState) external() bool {
	return t.mode == SyncExternalDriven
}

func (t *ttsState) setMode(enabled bool) {
	if enabled {
		t.mode = SyncExternalDriven
		return
	}
	t.mode = SyncClockDriven
	t.clear()
}

func (t *ttsState) setOffset(id string, offset int) {
	if offset < 0 {
		offset = 0
	}
	t.offsets[id] = offset
}

func (t *ttsState) offset(id string) (int, bool) {
	off, ok := t.offsets[id]
	return off, ok
}

// clear drops all reported offsets and the current speaker.
func (t *ttsState) clear() {
	t.offsets = make(map[string]int)
	t.speaker = ""
}

// allowNotify reports whether a boundary-triggered notification may fire
// now, at most once per interval, stamping the throttle when it may.
func (t *ttsState) allowNotify(now time.Time, interval time.Duration) bool {
	if !t.lastNotify.IsZero() && now.Sub(t.lastNotify) < interval {
		return false
	}
	t.lastNotify = now
	return true
}
