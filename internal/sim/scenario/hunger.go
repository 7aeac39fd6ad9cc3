package scenario

import (
	"agentsim.ai/internal/sim/behavior"
	"agentsim.ai/internal/sim/generator"
)

const (
	HungerSet      = "needs"
	HungerProperty = "hunger"
	HungerEat      = "eat"
)

func init() {
	register(Scenario{
		Name:        "hunger",
		Description: "hunger rises each tick and agents eat once it passes a threshold",
		New:         newHunger,
	})
}

func newHunger(settings generator.Settings) generator.Generator {
	rate := settings.Get("rate", 0.1)
	threshold := settings.Get("threshold", 0.7)
	relief := settings.Get("relief", 0.5)
	return generator.Funcs{
		Agent: func(names *behavior.Names) (*behavior.Agent, error) {
			idx := names.Issued()
			a := behavior.NewAgent(names.Next())
			set := behavior.NewAttributeSet(HungerSet)
			err := set.AddProperty(behavior.NewProperty(HungerProperty, float64(idx%10)*0.07, true,
				func(_ behavior.View, _ *behavior.AttributeSet, cur float64) float64 {
					return clamp01(cur + rate)
				}))
			if err != nil {
				return nil, err
			}
			err = set.AddPostEvent(behavior.NewEvent(HungerEat, true,
				func(_ behavior.View, s *behavior.AttributeSet) bool {
					v, _ := s.Value(HungerProperty)
					return v > threshold
				},
				func(_ behavior.View, s *behavior.AttributeSet) {
					v, _ := s.Value(HungerProperty)
					s.SetValue(HungerProperty, clamp01(v-relief))
				}))
			if err != nil {
				return nil, err
			}
			return a, a.AddSet(set)
		},
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
