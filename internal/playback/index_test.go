package playback

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Robertoarce/wakatto-sub005/internal/scene"
)

// multiLineScene gives aya two lines with a gap between them, authored out
// of order to exercise the sort.
func multiLineScene() *scene.Scene {
	return &scene.Scene{
		Duration: 6 * time.Second,
		Timelines: []scene.CharacterTimeline{
			{
				CharacterID:   "aya",
				StartDelay:    3 * time.Second,
				TotalDuration: time.Second,
				Content:       "Second line",
				Segments:      []scene.AnimationSegment{{Duration: time.Second, Animation: scene.AnimationTalk}},
			},
			{
				CharacterID:   "aya",
				StartDelay:    0,
				TotalDuration: time.Second,
				Content:       "First line",
				Segments:      []scene.AnimationSegment{{Duration: time.Second, Animation: scene.AnimationTalk}},
			},
		},
	}
}

func TestBuildIndex_SortsAndPrecomputesRunes(t *testing.T) {
	s := multiLineScene()
	idx := buildIndex(s)

	list := idx.byCharacter["aya"]
	require.Len(t, list, 2)
	assert.Equal(t, "First line", list[0].Content)
	assert.Equal(t, "Second line", list[1].Content)

	assert.Equal(t, []rune("First line"), idx.runes[list[0]])

	unicode := &scene.Scene{
		Duration: time.Second,
		Timelines: []scene.CharacterTimeline{{
			CharacterID:   "momo",
			TotalDuration: time.Second,
			Content:       "こんにちは",
			Segments:      []scene.AnimationSegment{{Duration: time.Second}},
		}},
	}
	uidx := buildIndex(unicode)
	assert.Len(t, uidx.runes[uidx.byCharacter["momo"][0]], 5)
}

func TestTimelinesAt_Phases(t *testing.T) {
	idx := buildIndex(multiLineScene())

	tests := []struct {
		name                              string
		elapsed                           time.Duration
		wantActive, wantCompleted, wantUp string
	}{
		{"first line active", 500 * time.Millisecond, "First line", "", ""},
		{"gap between lines", 2 * time.Second, "", "First line", "Second line"},
		{"second line active", 3500 * time.Millisecond, "Second line", "First line", ""},
		{"both behind us", 5 * time.Second, "", "Second line", ""},
	}

	content := func(tl *scene.CharacterTimeline) string {
		if tl == nil {
			return ""
		}
		return tl.Content
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			active, completed, upcoming := idx.timelinesAt("aya", tt.elapsed)
			assert.Equal(t, tt.wantActive, content(active))
			assert.Equal(t, tt.wantCompleted, content(completed))
			assert.Equal(t, tt.wantUp, content(upcoming))
		})
	}
}

func TestTimelinesAt_Boundaries(t *testing.T) {
	idx := buildIndex(multiLineScene())

	// The end instant of a timeline already counts as completed.
	active, completed, _ := idx.timelinesAt("aya", time.Second)
	assert.Nil(t, active)
	require.NotNil(t, completed)
	assert.Equal(t, "First line", completed.Content)

	// The start instant counts as active.
	active, _, _ = idx.timelinesAt("aya", 3*time.Second)
	require.NotNil(t, active)
	assert.Equal(t, "Second line", active.Content)
}

func TestTimelinesAt_UnknownCharacter(t *testing.T) {
	idx := buildIndex(multiLineScene())
	active, completed, upcoming := idx.timelinesAt("nobody", time.Second)
	assert.Nil(t, active)
	assert.Nil(t, completed)
	assert.Nil(t, upcoming)
}
