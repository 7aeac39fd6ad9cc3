package scenario

import (
	"agentsim.ai/internal/sim/behavior"
	"agentsim.ai/internal/sim/generator"
	"agentsim.ai/internal/sim/results"
)

const (
	CensusSet        = "census"
	CensusActive     = "active"
	CensusCrowd      = "crowd"
	CensusPopulation = "population"
	CensusQuiet      = "quiet"
)

func init() {
	register(Scenario{
		Name:        "census",
		Description: "agents switch on in turns and count active neighbours through filters",
		New:         newCensus,
		Reducers:    map[string]results.Reducer{CensusCrowd: results.Max},
	})
}

func isActive(a *behavior.Agent) bool {
	v, _ := a.Value(CensusSet, CensusActive)
	return v > 0
}

func newCensus(settings generator.Settings) generator.Generator {
	period := int(settings.Get("period", 3))
	if period < 1 {
		period = 1
	}
	return generator.Funcs{
		Agent: func(names *behavior.Names) (*behavior.Agent, error) {
			idx := int(names.Issued())
			a := behavior.NewAgent(names.Next())
			set := behavior.NewAttributeSet(CensusSet)
			err := set.AddProperty(behavior.NewProperty(CensusActive, 0, true,
				func(v behavior.View, _ *behavior.AttributeSet, _ float64) float64 {
					if (v.Clock().TicksSinceStart+idx)%period == 0 {
						return 1
					}
					return 0
				}))
			if err != nil {
				return nil, err
			}
			err = set.AddProperty(behavior.NewProperty(CensusCrowd, 0, true,
				func(v behavior.View, _ *behavior.AttributeSet, _ float64) float64 {
					return float64(len(v.Filter(CensusActive, isActive)))
				}))
			if err != nil {
				return nil, err
			}
			err = set.AddPostEvent(behavior.NewEvent(CensusQuiet, true,
				func(_ behavior.View, s *behavior.AttributeSet) bool {
					v, _ := s.Value(CensusCrowd)
					return v == 0
				}, nil))
			if err != nil {
				return nil, err
			}
			return a, a.AddSet(set)
		},
		Environment: func(generator.Settings) (*behavior.Environment, error) {
			env := behavior.NewEnvironment("environment")
			set := behavior.NewAttributeSet(CensusSet)
			err := set.AddProperty(behavior.NewProperty(CensusPopulation, 0, true,
				func(v behavior.View, _ *behavior.AttributeSet, _ float64) float64 {
					return float64(len(v.Filter("all", nil)))
				}))
			if err != nil {
				return nil, err
			}
			return env, env.AddSet(set)
		},
	}
}
