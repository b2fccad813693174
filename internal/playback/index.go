package playback

import (
	"sort"
	"time"

	"github.com/Robertoarce/wakatto-sub005/internal/scene"
)

// timelineIndex caches a scene's timelines grouped by character and sorted
// by start delay, plus each timeline's content as runes for reveal math.
// Built once per Play and discarded with the scene.
type timelineIndex struct {
	byCharacter map[string][]*scene.CharacterTimeline
	runes       map[*scene.CharacterTimeline][]rune
}

func buildIndex(s *scene.Scene) *timelineIndex {
	idx := &timelineIndex{
		byCharacter: make(map[string][]*scene.CharacterTimeline),
		runes:       make(map[*scene.CharacterTimeline][]rune),
	}
	for i := range s.Timelines {
		t := &s.Timelines[i]
		idx.byCharacter[t.CharacterID] = append(idx.byCharacter[t.CharacterID], t)
		idx.runes[t] = []rune(t.Content)
	}
	for _, list := range idx.byCharacter {
		sort.SliceStable(list, func(a, b int) bool {
			return list[a].StartDelay < list[b].StartDelay
		})
	}
	return idx
}

// timelinesAt splits a character's sorted timelines at the given elapsed
// time: the active one (interval contains elapsed), the most recently
// completed one, and the next not-yet-started one.
func (idx *timelineIndex) timelinesAt(id string, elapsed time.Duration) (active, completed, upcoming *scene.CharacterTimeline) {
	for _, t := range idx.byCharacter[id] {
		switch {
		case elapsed < t.StartDelay:
			if upcoming == nil {
				upcoming = t
			}
		case elapsed < t.End():
			active = t
		default:
			// Sorted ascending, so the last one seen here is the most recent.
			completed = t
		}
	}
	return active, completed, upcoming
}
