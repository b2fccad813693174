package scene

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoSpeakerScene() *Scene {
	return &Scene{
		Duration: 3000 * time.Millisecond,
		Timelines: []CharacterTimeline{
			{
				CharacterID:   "aya",
				StartDelay:    0,
				TotalDuration: 2000 * time.Millisecond,
				Content:       "Hello world",
				Segments: []AnimationSegment{
					{
						Duration:   2000 * time.Millisecond,
						Animation:  AnimationTalk,
						IsTalking:  true,
						TextReveal: &TextReveal{Start: 0, End: 11},
					},
				},
			},
			{
				CharacterID:   "ren",
				StartDelay:    2000 * time.Millisecond,
				TotalDuration: 1000 * time.Millisecond,
				Content:       "Hi!",
				Segments: []AnimationSegment{
					{
						Duration:   1000 * time.Millisecond,
						Animation:  AnimationWave,
						IsTalking:  true,
						TextReveal: &TextReveal{Start: 0, End: 3},
					},
				},
			},
		},
		NonSpeakers: map[string][]AnimationSegment{
			"momo": {
				{Duration: 3000 * time.Millisecond, Animation: AnimationIdle},
			},
		},
	}
}

func TestSceneValidate_Valid(t *testing.T) {
	require.NoError(t, twoSpeakerScene().Validate())
}

func TestSceneValidate_EmptySceneIsValid(t *testing.T) {
	s := &Scene{Duration: 500 * time.Millisecond}
	assert.NoError(t, s.Validate())

	zero := &Scene{}
	assert.NoError(t, zero.Validate())
}

func TestSceneValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Scene)
		wantErr string
	}{
		{
			name:    "negative scene duration",
			mutate:  func(s *Scene) { s.Duration = -time.Second },
			wantErr: "negative",
		},
		{
			name: "timeline beyond scene end",
			mutate: func(s *Scene) {
				s.Timelines[1].StartDelay = 2500 * time.Millisecond
			},
			wantErr: "beyond scene duration",
		},
		{
			name: "empty character id",
			mutate: func(s *Scene) {
				s.Timelines[0].CharacterID = ""
			},
			wantErr: "empty character id",
		},
		{
			name: "negative start delay",
			mutate: func(s *Scene) {
				s.Timelines[0].StartDelay = -time.Millisecond
			},
			wantErr: "negative",
		},
		{
			name: "no segments",
			mutate: func(s *Scene) {
				s.Timelines[0].Segments = nil
			},
			wantErr: "no segments",
		},
		{
			name: "zero-duration segment",
			mutate: func(s *Scene) {
				s.Timelines[0].Segments[0].Duration = 0
				s.Timelines[0].TotalDuration = 0
			},
			wantErr: "want > 0",
		},
		{
			name: "segment sum mismatch",
			mutate: func(s *Scene) {
				s.Timelines[0].TotalDuration = 1500 * time.Millisecond
			},
			wantErr: "sum to",
		},
		{
			name: "reveal range beyond content",
			mutate: func(s *Scene) {
				s.Timelines[0].Segments[0].TextReveal = &TextReveal{Start: 0, End: 50}
			},
			wantErr: "reveal range",
		},
		{
			name: "reveal range inverted",
			mutate: func(s *Scene) {
				s.Timelines[0].Segments[0].TextReveal = &TextReveal{Start: 5, End: 2}
			},
			wantErr: "reveal range",
		},
		{
			name: "same character overlap",
			mutate: func(s *Scene) {
				s.Timelines[1].CharacterID = "aya"
				s.Timelines[1].StartDelay = 1000 * time.Millisecond
			},
			wantErr: "overlap",
		},
		{
			name: "non-speaker zero-duration segment",
			mutate: func(s *Scene) {
				s.NonSpeakers["momo"][0].Duration = 0
			},
			wantErr: "non-speaker",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := twoSpeakerScene()
			tt.mutate(s)
			err := s.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSceneValidate_RuneRangesCountRunes(t *testing.T) {
	s := &Scene{
		Duration: time.Second,
		Timelines: []CharacterTimeline{
			{
				CharacterID:   "aya",
				TotalDuration: time.Second,
				Content:       "こんにちは", // 5 runes, 15 bytes
				Segments: []AnimationSegment{
					{
						Duration:   time.Second,
						IsTalking:  true,
						TextReveal: &TextReveal{Start: 0, End: 5},
					},
				},
			},
		},
	}
	assert.NoError(t, s.Validate())

	s.Timelines[0].Segments[0].TextReveal.End = 6
	assert.Error(t, s.Validate())
}

func TestTimelineEnd(t *testing.T) {
	tl := &CharacterTimeline{
		StartDelay:    500 * time.Millisecond,
		TotalDuration: 2 * time.Second,
	}
	assert.Equal(t, 2500*time.Millisecond, tl.End())
}

func TestVoiceProfileMerge(t *testing.T) {
	base := VoiceProfile{Pitch: 1.0, Pace: 1.0, Tone: "warm"}

	merged := base.Merge(VoiceProfile{Pitch: 1.3})
	assert.Equal(t, VoiceProfile{Pitch: 1.3, Pace: 1.0, Tone: "warm"}, merged)

	merged = base.Merge(VoiceProfile{Tone: "sharp", Pace: 0.8})
	assert.Equal(t, VoiceProfile{Pitch: 1.0, Pace: 0.8, Tone: "sharp"}, merged)

	assert.Equal(t, base, base.Merge(VoiceProfile{}))
}

func TestComplementaryIsZero(t *testing.T) {
	assert.True(t, Complementary{}.IsZero())
	assert.False(t, Complementary{Look: LookLeft}.IsZero())
	assert.False(t, Complementary{Speed: 1.5}.IsZero())
}

func TestTextRevealLen(t *testing.T) {
	assert.Equal(t, 11, TextReveal{Start: 0, End: 11}.Len())
	assert.Equal(t, 4, TextReveal{Start: 3, End: 7}.Len())
}
