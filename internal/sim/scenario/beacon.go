package scenario

import (
	"agentsim.ai/internal/sim/behavior"
	"agentsim.ai/internal/sim/generator"
)

const (
	BeaconSet    = "beacon"
	BeaconSignal = "signal"
	BeaconSeen   = "seen"
)

func init() {
	register(Scenario{
		Name:        "beacon",
		Description: "the environment counts up and every agent copies the count",
		New:         newBeacon,
	})
}

func newBeacon(settings generator.Settings) generator.Generator {
	step := settings.Get("step", 1)
	return generator.Funcs{
		Agent: func(names *behavior.Names) (*behavior.Agent, error) {
			a := behavior.NewAgent(names.Next())
			set := behavior.NewAttributeSet(BeaconSet)
			err := set.AddProperty(behavior.NewProperty(BeaconSeen, 0, true,
				func(v behavior.View, _ *behavior.AttributeSet, cur float64) float64 {
					env := v.Environment()
					if env == nil {
						return cur
					}
					signal, ok := env.Value(BeaconSet, BeaconSignal)
					if !ok {
						return cur
					}
					return signal
				}))
			if err != nil {
				return nil, err
			}
			return a, a.AddSet(set)
		},
		Environment: func(generator.Settings) (*behavior.Environment, error) {
			env := behavior.NewEnvironment("environment")
			set := behavior.NewAttributeSet(BeaconSet)
			err := set.AddProperty(behavior.NewProperty(BeaconSignal, 0, true,
				func(_ behavior.View, _ *behavior.AttributeSet, cur float64) float64 {
					return cur + step
				}))
			if err != nil {
				return nil, err
			}
			return env, env.AddSet(set)
		},
	}
}
