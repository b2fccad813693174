package scene

import (
	"fmt"
	"sort"
	"time"
	"unicode/utf8"
)

// Validate checks the structural invariants of a scene. An empty scene (no
// timelines, no non-speakers) is valid; a malformed timeline is a
// construction error and the scene must not be played.
func (s *Scene) Validate() error {
	if s.Duration < 0 {
		return fmt.Errorf("scene duration %v is negative", s.Duration)
	}

	for i := range s.Timelines {
		t := &s.Timelines[i]
		if err := t.validate(); err != nil {
			return fmt.Errorf("timeline %d: %w", i, err)
		}
		if t.End() > s.Duration {
			return fmt.Errorf("timeline %d (%s): ends at %v, beyond scene duration %v",
				i, t.CharacterID, t.End(), s.Duration)
		}
	}

	if err := s.checkOverlaps(); err != nil {
		return err
	}

	for id, segs := range s.NonSpeakers {
		if id == "" {
			return fmt.Errorf("non-speaker entry with empty character id")
		}
		for j, seg := range segs {
			if seg.Duration <= 0 {
				return fmt.Errorf("non-speaker %s: segment %d has duration %v, want > 0",
					id, j, seg.Duration)
			}
		}
	}

	return nil
}

func (t *CharacterTimeline) validate() error {
	if t.CharacterID == "" {
		return fmt.Errorf("empty character id")
	}
	if t.StartDelay < 0 {
		return fmt.Errorf("%s: start delay %v is negative", t.CharacterID, t.StartDelay)
	}
	if len(t.Segments) == 0 {
		return fmt.Errorf("%s: no segments", t.CharacterID)
	}

	contentLen := utf8.RuneCountInString(t.Content)
	var sum time.Duration
	for j, seg := range t.Segments {
		if seg.Duration <= 0 {
			return fmt.Errorf("%s: segment %d has duration %v, want > 0",
				t.CharacterID, j, seg.Duration)
		}
		sum += seg.Duration
		if r := seg.TextReveal; r != nil {
			if r.Start < 0 || r.End < r.Start || r.End > contentLen {
				return fmt.Errorf("%s: segment %d reveal range [%d,%d) outside content of %d runes",
					t.CharacterID, j, r.Start, r.End, contentLen)
			}
		}
	}
	if sum != t.TotalDuration {
		return fmt.Errorf("%s: segment durations sum to %v, want %v",
			t.CharacterID, sum, t.TotalDuration)
	}
	return nil
}

// checkOverlaps rejects scenes where two timelines of the same character
// occupy overlapping time windows. The engine would otherwise have to pick
// one arbitrarily.
func (s *Scene) checkOverlaps() error {
	byCharacter := make(map[string][]*CharacterTimeline)
	for i := range s.Timelines {
		t := &s.Timelines[i]
		byCharacter[t.CharacterID] = append(byCharacter[t.CharacterID], t)
	}

	for id, list := range byCharacter {
		sort.Slice(list, func(a, b int) bool {
			return list[a].StartDelay < list[b].StartDelay
		})
		for i := 1; i < len(list); i++ {
			prev, next := list[i-1], list[i]
			if prev.End() > next.StartDelay {
				return fmt.Errorf("character %s: timelines overlap (%v-%v and %v-%v)",
					id, prev.StartDelay, prev.End(), next.StartDelay, next.End())
			}
		}
	}
	return nil
}
