// Package playback implements the animated scene playback engine: a tick
// loop that resolves, for every character in a scene, the presentation state
// that should be visible right now.
package playback

import (
	"time"

	"github.com/Robertoarce/wakatto-sub005/internal/scene"
)

// Status represents the playback lifecycle state
type Status string

const (
	StatusIdle     Status = "idle"
	StatusPlaying  Status = "playing"
	StatusPaused   Status = "paused"
	StatusComplete Status = "complete"
)

// SyncMode selects what drives text reveal
type SyncMode string

const (
	// SyncClockDriven reveals text by interpolating segment progress.
	SyncClockDriven SyncMode = "clock"
	// SyncExternalDriven reveals text from reported speech boundaries.
	SyncExternalDriven SyncMode = "external"
)

// CharacterState is the resolved presentation state for one character at one
// instant. Snapshots hand the same value to every subscriber; treat it as
// read-only.
type CharacterState struct {
	CharacterID   string              `json:"characterId"`
	Animation     scene.Animation     `json:"animation"`
	Complementary scene.Complementary `json:"complementary"`
	IsTalking     bool                `json:"isTalking"`
	RevealedText  string              `json:"revealedText"`
	IsActive      bool                `json:"isActive"`
	IsComplete    bool                `json:"isComplete"`
}

// Snapshot is delivered to subscribers once per tick and on significant
// external events. The States map is shared across subscribers and must not
// be modified.
type Snapshot struct {
	Status  Status
	Elapsed time.Duration
	States  map[string]CharacterState
}

// TalkingSound is a percussive cue emitted while revealed text grows.
type TalkingSound struct {
	CharacterID string  `json:"characterId"`
	Volume      float64 `json:"volume"`
}

// Config tunes engine timing. Zero fields fall back to defaults in New.
type Config struct {
	// TickInterval is the resolution/notification period while playing.
	TickInterval time.Duration
	// ExternalNotifyInterval throttles notifications triggered by TTS
	// boundary updates, independent of the tick rate.
	ExternalNotifyInterval time.Duration
	// RevealLookahead is how many runes past a reported boundary offset are
	// revealed, hiding synthesis jitter.
	RevealLookahead int
	// SoundMinGap is the minimum spacing between talking sounds for one
	// character.
	SoundMinGap time.Duration
	// MaxSubscribers caps the notification bus; the oldest subscriber is
	// evicted beyond it.
	MaxSubscribers int
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		TickInterval:           16 * time.Millisecond,
		ExternalNotifyInterval: 50 * time.Millisecond,
		RevealLookahead:        2,
		SoundMinGap:            65 * time.Millisecond,
		MaxSubscribers:         10,
	}
}

// memoEpsilon is the elapsed-time delta below which resolution reuses the
// previous snapshot.
const memoEpsilon = time.Millisecond
