package catalog

import (
	"fmt"

	"github.com/udisondev/gas/internal/ability"
	"github.com/udisondev/gas/internal/effect"
	"github.com/udisondev/gas/internal/gas"
)

type (
	ScalerFactory          func(p *Params) (effect.Scaler, error)
	TaskFactory            func(p *Params) (ability.Task, error)
	AttributeWorkerFactory func(p *Params) (gas.AttributeWorker, error)
	EffectWorkerFactory    func(p *Params) (effect.Worker, error)
	ImpactWorkerFactory    func(p *Params) (effect.ImpactWorker, error)
)

// Factory registries map an authored type name to its constructor.
// Populated by init(); register custom types before loading a catalog.
var (
	scalers          = map[string]ScalerFactory{}
	tasks            = map[string]TaskFactory{}
	attributeWorkers = map[string]AttributeWorkerFactory{}
	effectWorkers    = map[string]EffectWorkerFactory{}
	impactWorkers    = map[string]ImpactWorkerFactory{}
)

func RegisterScaler(name string, f ScalerFactory)                   { scalers[name] = f }
func RegisterTask(name string, f TaskFactory)                       { tasks[name] = f }
func RegisterAttributeWorker(name string, f AttributeWorkerFactory) { attributeWorkers[name] = f }
func RegisterEffectWorker(name string, f EffectWorkerFactory)       { effectWorkers[name] = f }
func RegisterImpactWorker(name string, f ImpactWorkerFactory)       { impactWorkers[name] = f }

// create looks up name and runs its factory, folding in parameter errors.
func create[T any, F ~func(*Params) (T, error)](registry map[string]F, kind, name string, p *Params) (T, error) {
	var zero T
	factory, ok := registry[name]
	if !ok {
		return zero, fmt.Errorf("%s: %w: %s %q", p.owner, ErrUnknownType, kind, name)
	}
	v, err := factory(p)
	if err != nil {
		return zero, fmt.Errorf("%s: %s %s: %w", p.owner, kind, name, err)
	}
	if err := p.Err(); err != nil {
		return zero, err
	}
	return v, nil
}

func init() {
	RegisterScaler("Constant", func(p *Params) (effect.Scaler, error) {
		return effect.ConstantScaler(p.Float("value", 0)), nil
	})
	RegisterScaler("Linear", func(p *Params) (effect.Scaler, error) {
		return effect.LinearScaler{Base: p.Float("base", 0), PerLevel: p.Float("per_level", 0)}, nil
	})
	RegisterScaler("Table", func(p *Params) (effect.Scaler, error) {
		return effect.TableScaler{Values: p.Floats("values")}, nil
	})
	RegisterScaler("Lua", func(p *Params) (effect.Scaler, error) {
		s, err := effect.NewLuaScaler(p.String("formula", ""))
		if err != nil {
			return nil, err
		}
		return s, nil
	})

	RegisterTask("Wait", func(p *Params) (ability.Task, error) {
		return ability.WaitTask{Ticks: p.Int("ticks", 1)}, nil
	})
	RegisterTask("Delay", func(p *Params) (ability.Task, error) {
		return ability.DelayTask{Seconds: p.Float("seconds", 0)}, nil
	})
	RegisterTask("Channel", func(p *Params) (ability.Task, error) {
		t := ability.ChannelTask{Seconds: p.Float("seconds", 0), Interval: p.Float("interval", 0)}
		if p.Has("pulse") {
			t.Pulse = p.Effect("pulse")
		}
		return t, nil
	})
	RegisterTask("TargetSelf", func(*Params) (ability.Task, error) {
		return ability.TargetTask{Targeter: ability.SelfTargeter{}}, nil
	})
	RegisterTask("ApplyEffect", func(p *Params) (ability.Task, error) {
		return ability.ApplyEffectTask{Effect: p.Effect("effect"), ToSelf: p.Bool("to_self", false)}, nil
	})

	RegisterAttributeWorker("Clamp", func(*Params) (gas.AttributeWorker, error) {
		return gas.ClampWorker{}, nil
	})
	RegisterAttributeWorker("Scale", func(p *Params) (gas.AttributeWorker, error) {
		f, err := workerFilter(p)
		if err != nil {
			return nil, err
		}
		return gas.ScaleWorker{
			WorkerFilter: f,
			Paired:       p.OptionalAttribute("paired"),
			Priority:     p.Priority("priority"),
		}, nil
	})
	RegisterAttributeWorker("Threshold", func(p *Params) (gas.AttributeWorker, error) {
		return gas.ThresholdWorker{
			Attribute: p.Attribute("attribute"),
			Threshold: p.Float("threshold", 0),
			Effect:    p.Effect("effect"),
		}, nil
	})

	RegisterEffectWorker("ApplyEffect", func(p *Params) (effect.Worker, error) {
		return effect.ApplyEffectWorker{
			Effect:   p.Effect("effect"),
			On:       p.Trigger("on"),
			ToSource: p.Bool("to_source", false),
			Priority: p.Priority("priority"),
		}, nil
	})
	RegisterEffectWorker("RemoveEffects", func(p *Params) (effect.Worker, error) {
		t := p.Tag("tag")
		if t.IsZero() {
			return nil, fmt.Errorf("%w: remove effects worker without tag", effect.ErrDataIntegrity)
		}
		return effect.RemoveEffectsWorker{Tag: t, On: p.Trigger("on"), Priority: p.Priority("priority")}, nil
	})

	RegisterImpactWorker("Lifesteal", func(p *Params) (effect.ImpactWorker, error) {
		return effect.LifestealWorker{
			ImpactType: p.Tag("impact_type"),
			Attribute:  p.Attribute("attribute"),
			Ratio:      p.Float("ratio", 0),
		}, nil
	})
}

// workerFilter reads the common attribute worker filter parameters.
func workerFilter(p *Params) (gas.WorkerFilter, error) {
	target, err := gas.ParseTargetFilter(p.String("target", ""))
	if err != nil {
		return gas.WorkerFilter{}, err
	}
	sign, err := gas.ParseSignPolicy(p.String("sign", ""))
	if err != nil {
		return gas.WorkerFilter{}, err
	}
	return gas.WorkerFilter{
		Attributes:              p.Attributes("attributes"),
		ContextTags:             p.Tags("context_tags"),
		RequireAllContextTags:   p.Bool("require_all_context_tags", false),
		ExcludeSelfModification: p.Bool("exclude_self", false),
		Target:                  target,
		ExclusiveTarget:         p.Bool("exclusive", false),
		Sign:                    sign,
		ImpactTypes:             p.Tags("impact_types"),
	}, nil
}
