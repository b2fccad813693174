package scene

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Scene files carry durations as millisecond integers. A timeline's total
// duration is derived from its segments, so files cannot state a
// contradictory total.

type sceneFile struct {
	DurationMS  int64                    `yaml:"duration_ms"`
	Timelines   []timelineFile           `yaml:"timelines"`
	NonSpeakers map[string][]segmentFile `yaml:"non_speakers,omitempty"`
}

type timelineFile struct {
	Character    string        `yaml:"character"`
	StartDelayMS int64         `yaml:"start_delay_ms"`
	Content      string        `yaml:"content,omitempty"`
	Segments     []segmentFile `yaml:"segments"`
}

type segmentFile struct {
	DurationMS    int64              `yaml:"duration_ms"`
	Animation     string             `yaml:"animation,omitempty"`
	Talking       bool               `yaml:"talking,omitempty"`
	Reveal        *revealFile        `yaml:"reveal,omitempty"`
	ActionText    string             `yaml:"action_text,omitempty"`
	Voice         *voiceFile         `yaml:"voice,omitempty"`
	Complementary *complementaryFile `yaml:"complementary,omitempty"`
}

type revealFile struct {
	Start int `yaml:"start"`
	End   int `yaml:"end"`
}

type voiceFile struct {
	Pitch float64 `yaml:"pitch,omitempty"`
	Pace  float64 `yaml:"pace,omitempty"`
	Tone  string  `yaml:"tone,omitempty"`
}

type complementaryFile struct {
	Look   string  `yaml:"look,omitempty"`
	Eyes   string  `yaml:"eyes,omitempty"`
	Mouth  string  `yaml:"mouth,omitempty"`
	Effect string  `yaml:"effect,omitempty"`
	Speed  float64 `yaml:"speed,omitempty"`
	Blink  string  `yaml:"blink,omitempty"`
}

// Load reads and validates a scene from a YAML file.
func Load(path string) (*Scene, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[1:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scene file: %w", err)
	}

	return LoadYAML(data)
}

// LoadYAML parses and validates scene YAML data.
func LoadYAML(data []byte) (*Scene, error) {
	var sf sceneFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("failed to parse scene YAML: %w", err)
	}

	s := &Scene{
		Duration: time.Duration(sf.DurationMS) * time.Millisecond,
	}
	for _, tf := range sf.Timelines {
		t := CharacterTimeline{
			CharacterID: tf.Character,
			StartDelay:  time.Duration(tf.StartDelayMS) * time.Millisecond,
			Content:     tf.Content,
		}
		for _, seg := range tf.Segments {
			converted := seg.toSegment()
			t.Segments = append(t.Segments, converted)
			t.TotalDuration += converted.Duration
		}
		s.Timelines = append(s.Timelines, t)
	}
	if len(sf.NonSpeakers) > 0 {
		s.NonSpeakers = make(map[string][]AnimationSegment, len(sf.NonSpeakers))
		for id, segs := range sf.NonSpeakers {
			for _, seg := range segs {
				s.NonSpeakers[id] = append(s.NonSpeakers[id], seg.toSegment())
			}
		}
	}

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scene: %w", err)
	}
	return s, nil
}

// Save writes a scene to a YAML file, creating parent directories as needed.
func Save(s *Scene, path string) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid scene: %w", err)
	}

	sf := sceneFile{DurationMS: s.Duration.Milliseconds()}
	for i := range s.Timelines {
		t := &s.Timelines[i]
		tf := timelineFile{
			Character:    t.CharacterID,
			StartDelayMS: t.StartDelay.Milliseconds(),
			Content:      t.Content,
		}
		for _, seg := range t.Segments {
			tf.Segments = append(tf.Segments, toSegmentFile(seg))
		}
		sf.Timelines = append(sf.Timelines, tf)
	}
	if len(s.NonSpeakers) > 0 {
		sf.NonSpeakers = make(map[string][]segmentFile, len(s.NonSpeakers))
		for id, segs := range s.NonSpeakers {
			for _, seg := range segs {
				sf.NonSpeakers[id] = append(sf.NonSpeakers[id], toSegmentFile(seg))
			}
		}
	}

	data, err := yaml.Marshal(&sf)
	if err != nil {
		return fmt.Errorf("failed to marshal scene: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write scene file: %w", err)
	}
	return nil
}

func (sf segmentFile) toSegment() AnimationSegment {
	seg := AnimationSegment{
		Duration:   time.Duration(sf.DurationMS) * time.Millisecond,
		Animation:  Animation(sf.Animation),
		IsTalking:  sf.Talking,
		ActionText: sf.ActionText,
	}
	if seg.Animation == "" {
		seg.Animation = AnimationIdle
	}
	if sf.Reveal != nil {
		seg.TextReveal = &TextReveal{Start: sf.Reveal.Start, End: sf.Reveal.End}
	}
	if sf.Voice != nil {
		seg.Voice = &VoiceProfile{Pitch: sf.Voice.Pitch, Pace: sf.Voice.Pace, Tone: sf.Voice.Tone}
	}
	if sf.Complementary != nil {
		seg.Complementary = &Complementary{
			Look:   LookDirection(sf.Complementary.Look),
			Eyes:   EyeState(sf.Complementary.Eyes),
			Mouth:  MouthState(sf.Complementary.Mouth),
			Effect: Effect(sf.Complementary.Effect),
			Speed:  sf.Complementary.Speed,
			Blink:  BlinkRate(sf.Complementary.Blink),
		}
	}
	return seg
}

func toSegmentFile(seg AnimationSegment) segmentFile {
	sf := segmentFile{
		DurationMS: seg.Duration.Milliseconds(),
		Animation:  string(seg.Animation),
		Talking:    seg.IsTalking,
		ActionText: seg.ActionText,
	}
	if seg.TextReveal != nil {
		sf.Reveal = &revealFile{Start: seg.TextReveal.Start, End: seg.TextReveal.End}
	}
	if seg.Voice != nil {
		sf.Voice = &voiceFile{Pitch: seg.Voice.Pitch, Pace: seg.Voice.Pace, Tone: seg.Voice.Tone}
	}
	if seg.Complementary != nil {
		sf.Complementary = &complementaryFile{
			Look:   string(seg.Complementary.Look),
			Eyes:   string(seg.Complementary.Eyes),
			Mouth:  string(seg.Complementary.Mouth),
			Effect: string(seg.Complementary.Effect),
			Speed:  seg.Complementary.Speed,
			Blink:  string(seg.Complementary.Blink),
		}
	}
	return sf
}
