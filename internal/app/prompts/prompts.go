// Package prompts supplies the creative-prompt strategy behind the
// core.PromptSource contract.
package prompts

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

var subjects = []string{
	"a lighthouse keeper",
	"a city of glass towers",
	"a caravan of traders",
	"a tidal wave frozen mid-crash",
	"an abandoned observatory",
	"a flock of mechanical birds",
	"a garden growing on a rooftop",
	"a slow river of molten gold",
	"an old tram crossing a bridge",
	"a whale drifting between clouds",
}

var settings = []string{
	"at the edge of a neon desert",
	"under an aurora-lit sky",
	"deep inside a bamboo forest",
	"on a rain-soaked boulevard",
	"above a sea of fog",
	"inside a hollowed-out mountain",
	"along a shoreline of black sand",
	"in the ruins of a coastal town",
}

var styles = []string{
	"shot on 35mm film",
	"soft volumetric light",
	"hand-painted watercolor look",
	"long exposure, rich contrast",
	"golden hour haze",
	"slow dolly shot, shallow depth of field",
}

// Generator produces templated scene prompts from curated word lists.
type Generator struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewGenerator builds a generator; seed 0 means time-seeded.
func NewGenerator(seed int64) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{rnd: rand.New(rand.NewSource(seed))}
}

func (g *Generator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return fmt.Sprintf("%s %s, %s",
		subjects[g.rnd.Intn(len(subjects))],
		settings[g.rnd.Intn(len(settings))],
		styles[g.rnd.Intn(len(styles))],
	)
}
