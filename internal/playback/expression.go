package playback

import (
	"math/rand"

	"github.com/Robertoarce/wakatto-sub005/internal/scene"
)

// Post-speech expressions keep a character's face alive after their line
// ends. One is drawn per completed timeline and cached so repeated
// resolution during the idle window returns the identical expression
// instead of flickering between ticks.

type weightedExpression struct {
	name   string
	weight int
	expr   scene.Complementary
}

var postSpeechExpressions = []weightedExpression{
	{"neutral", 4, scene.Complementary{Eyes: scene.EyeOpen, Mouth: scene.MouthNeutral}},
	{"smile", 3, scene.Complementary{Eyes: scene.EyeOpen, Mouth: scene.MouthSmile}},
	{"blink", 2, scene.Complementary{Eyes: scene.EyeHalf, Blink: scene.BlinkFast}},
	{"curious", 1, scene.Complementary{Eyes: scene.EyeWide, Look: scene.LookUp}},
	{"glance", 2, scene.Complementary{Eyes: scene.EyeOpen, Look: scene.LookLeft}},
}

// pickPostSpeech draws one expression by cumulative weight.
func pickPostSpeech(rng *rand.Rand) scene.Complementary {
	total := 0
	for _, w := range postSpeechExpressions {
		total += w.weight
	}
	roll := rng.Intn(total)
	for _, w := range postSpeechExpressions {
		roll -= w.weight
		if roll < 0 {
			return w.expr
		}
	}
	return postSpeechExpressions[0].expr
}

// cachedExpression pins the expression chosen for one completed timeline.
type cachedExpression struct {
	timeline *scene.CharacterTimeline
	expr     scene.Complementary
}

// postSpeechLocked returns the character's cached post-speech expression,
// drawing a fresh one the first time this timeline resolves as completed.
func (e *Engine) postSpeechLocked(id string, t *scene.CharacterTimeline) scene.Complementary {
	if c, ok := e.expressions[id]; ok && c.timeline == t {
		return c.expr
	}
	expr := pickPostSpeech(e.rng)
	e.expressions[id] = cachedExpression{timeline: t, expr: expr}
	return expr
}
