// Package scene defines the immutable scene model consumed by the playback engine.
package scene

import (
	"time"
)

// Animation names a pose or gesture. The set is open; renderers map unknown
// names to their closest clip.
type Animation string

const (
	AnimationIdle  Animation = "idle"
	AnimationTalk  Animation = "talk"
	AnimationNod   Animation = "nod"
	AnimationWave  Animation = "wave"
	AnimationThink Animation = "think"
	AnimationLaugh Animation = "laugh"
	AnimationPoint Animation = "point"
	AnimationLean  Animation = "lean"
)

// LookDirection represents gaze direction
type LookDirection string

const (
	LookCenter LookDirection = "center"
	LookLeft   LookDirection = "left"
	LookRight  LookDirection = "right"
	LookUp     LookDirection = "up"
	LookDown   LookDirection = "down"
)

// EyeState represents eye animation state
type EyeState string

const (
	EyeOpen   EyeState = "open"
	EyeClosed EyeState = "closed"
	EyeHalf   EyeState = "half"
	EyeWide   EyeState = "wide"
	EyeSquint EyeState = "squint"
)

// MouthState represents the mouth pose outside of lip-sync
type MouthState string

const (
	MouthNeutral MouthState = "neutral"
	MouthSmile   MouthState = "smile"
	MouthOpen    MouthState = "open"
	MouthFrown   MouthState = "frown"
	MouthPressed MouthState = "pressed"
)

// Effect represents an overlay visual effect
type Effect string

const (
	EffectNone      Effect = "none"
	EffectBlush     Effect = "blush"
	EffectSparkle   Effect = "sparkle"
	EffectSweatdrop Effect = "sweatdrop"
	EffectShadow    Effect = "shadow"
)

// BlinkRate represents how often the eyes blink
type BlinkRate string

const (
	BlinkNormal BlinkRate = "normal"
	BlinkSlow   BlinkRate = "slow"
	BlinkFast   BlinkRate = "fast"
	BlinkNone   BlinkRate = "none"
)

// Complementary carries visual attributes applied independently of the main
// animation. Zero-valued fields mean "unset"; the renderer keeps its current
// value for those.
type Complementary struct {
	Look   LookDirection `json:"lookDirection,omitempty"`
	Eyes   EyeState      `json:"eyeState,omitempty"`
	Mouth  MouthState    `json:"mouthState,omitempty"`
	Effect Effect        `json:"effect,omitempty"`
	Speed  float64       `json:"speed,omitempty"`
	Blink  BlinkRate     `json:"blinkRate,omitempty"`
}

// IsZero reports whether no attribute is set.
func (c Complementary) IsZero() bool {
	return c == Complementary{}
}

// VoiceProfile holds synthesis hints for a character's voice. Zero-valued
// fields mean "no hint".
type VoiceProfile struct {
	Pitch float64 `json:"pitch,omitempty"`
	Pace  float64 `json:"pace,omitempty"`
	Tone  string  `json:"tone,omitempty"`
}

// Merge returns the profile with non-zero fields of override applied on top.
func (v VoiceProfile) Merge(override VoiceProfile) VoiceProfile {
	out := v
	if override.Pitch != 0 {
		out.Pitch = override.Pitch
	}
	if override.Pace != 0 {
		out.Pace = override.Pace
	}
	if override.Tone != "" {
		out.Tone = override.Tone
	}
	return out
}

// IsZero reports whether the profile carries no hints.
func (v VoiceProfile) IsZero() bool {
	return v == VoiceProfile{}
}

// TextReveal is a half-open rune range [Start, End) into a timeline's
// content, revealed linearly across its segment's duration.
type TextReveal struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of runes the range reveals.
func (r TextReveal) Len() int {
	return r.End - r.Start
}

// AnimationSegment is a fixed-duration slice of a timeline with one pose and
// optional text reveal, caption, voice override, and complementary visuals.
type AnimationSegment struct {
	Duration      time.Duration
	Animation     Animation
	IsTalking     bool
	TextReveal    *TextReveal
	ActionText    string
	Voice         *VoiceProfile
	Complementary *Complementary
}

// CharacterTimeline is one character's ordered run of animation segments
// within a scene. Segment durations sum exactly to TotalDuration.
type CharacterTimeline struct {
	CharacterID   string
	StartDelay    time.Duration
	TotalDuration time.Duration
	Content       string
	Segments      []AnimationSegment
}

// End returns the scene offset at which the timeline finishes.
func (t *CharacterTimeline) End() time.Duration {
	return t.StartDelay + t.TotalDuration
}

// Scene is one immutable unit of playback: every character's timelines plus
// idle behavior for characters that never speak. The engine treats it as
// read-only for the lifetime of a play.
type Scene struct {
	Timelines   []CharacterTimeline
	Duration    time.Duration
	NonSpeakers map[string][]AnimationSegment
}
