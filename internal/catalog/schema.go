package catalog

import "gopkg.in/yaml.v3"

// Document is the YAML layout of a catalog file.
type Document struct {
	Tags       []string       `yaml:"tags"`
	Attributes []AttributeDoc `yaml:"attributes"`
	Effects    []EffectDoc    `yaml:"effects"`
	Abilities  []AbilityDoc   `yaml:"abilities"`
	Archetypes []ArchetypeDoc `yaml:"archetypes"`
}

type AttributeDoc struct {
	Name     string  `yaml:"name"`
	Overflow string  `yaml:"overflow"`
	Floor    float64 `yaml:"floor"`
	Ceil     float64 `yaml:"ceil"`
}

// TypedDoc names a registered factory and its parameters.
type TypedDoc struct {
	Type   string            `yaml:"type"`
	Params map[string]string `yaml:"params"`
}

type ModifierDoc struct {
	Type        string  `yaml:"type"` // Attribute or Stacks
	Attribute   string  `yaml:"attribute"`
	From        string  `yaml:"from"`
	Component   string  `yaml:"component"`
	Operation   string  `yaml:"operation"`
	Coefficient float64 `yaml:"coefficient"`
}

type MagnitudeDoc struct {
	// Value is shorthand for a Constant scaler.
	Value       *float64          `yaml:"value"`
	Scaler      string            `yaml:"scaler"`
	Params      map[string]string `yaml:"params"`
	Coefficient float64           `yaml:"coefficient"`
	Dynamic     bool              `yaml:"dynamic"`
	Modifiers   []ModifierDoc     `yaml:"modifiers"`
}

type RequirementDoc struct {
	Op       string           `yaml:"op"`
	Tags     []string         `yaml:"tags"`
	Children []RequirementDoc `yaml:"children"`
}

type RequirementsDoc struct {
	Application *RequirementDoc `yaml:"application"`
	Ongoing     *RequirementDoc `yaml:"ongoing"`
	Removal     *RequirementDoc `yaml:"removal"`
}

type EffectTagsDoc struct {
	Asset   string   `yaml:"asset"`
	Context []string `yaml:"context"`
	Granted []string `yaml:"granted"`
}

type ContainedDoc struct {
	Effect  string `yaml:"effect"`
	Trigger string `yaml:"trigger"`
}

type ImpactDoc struct {
	Attribute        string         `yaml:"attribute"`
	Operation        string         `yaml:"operation"`
	Target           string         `yaml:"target"`
	Magnitude        *MagnitudeDoc  `yaml:"magnitude"`
	Affiliation      string         `yaml:"affiliation"`
	ImpactType       string         `yaml:"impact_type"`
	ReApplication    string         `yaml:"reapplication"`
	ReverseOnRemoval bool           `yaml:"reverse_on_removal"`
	Contained        []ContainedDoc `yaml:"contained"`
}

type TicksDoc struct {
	Mode     string        `yaml:"mode"`
	Value    *MagnitudeDoc `yaml:"value"`
	Rounding string        `yaml:"rounding"`
}

type DurationDoc struct {
	Policy               string        `yaml:"policy"`
	Duration             *MagnitudeDoc `yaml:"duration"`
	Stacking             string        `yaml:"stacking"`
	Ticks                TicksDoc      `yaml:"ticks"`
	TickOnApplication    bool          `yaml:"tick_on_application"`
	ShareTicks           bool          `yaml:"share_ticks"`
	MaxStacks            int           `yaml:"max_stacks"`
	StacksPerApplication int           `yaml:"stacks_per_application"`
}

type EffectDoc struct {
	Name               string          `yaml:"name"`
	Description        string          `yaml:"description"`
	Icon               string          `yaml:"icon"`
	Tags               EffectTagsDoc   `yaml:"tags"`
	Impact             ImpactDoc       `yaml:"impact"`
	Duration           DurationDoc     `yaml:"duration"`
	Workers            []TypedDoc      `yaml:"workers"`
	SourceRequirements RequirementsDoc `yaml:"source_requirements"`
	TargetRequirements RequirementsDoc `yaml:"target_requirements"`
}

type AbilityTagsDoc struct {
	Asset                   string          `yaml:"asset"`
	ActivationRequired      *RequirementDoc `yaml:"activation_required"`
	ActivationBlocked       []string        `yaml:"activation_blocked"`
	GrantedWhileActive      []string        `yaml:"granted_while_active"`
	CancelAbilitiesWithTags []string        `yaml:"cancel_abilities_with_tags"`
}

type StageDoc struct {
	Name              string     `yaml:"name"`
	Policy            string     `yaml:"policy"`
	Tasks             []TypedDoc `yaml:"tasks"`
	ApplyUsageEffects bool       `yaml:"apply_usage_effects"`
}

type AbilityDoc struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Tags        AbilityTagsDoc `yaml:"tags"`
	Stages      []StageDoc     `yaml:"stages"`
	Cost        string         `yaml:"cost"`
	Cooldown    string         `yaml:"cooldown"`
	MinLevel    int            `yaml:"min_level"`
	MaxLevel    int            `yaml:"max_level"`
}

type WorkerBindingDoc struct {
	Phase  string            `yaml:"phase"`
	Type   string            `yaml:"type"`
	Params map[string]string `yaml:"params"`
}

type GrantDoc struct {
	Ability string `yaml:"ability"`
	Level   int    `yaml:"level"`
}

// ValueDoc is either a bare number (current and base) or a mapping with
// current and an optional base.
type ValueDoc struct {
	Current float64  `yaml:"current"`
	Base    *float64 `yaml:"base"`
}

func (v *ValueDoc) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var f float64
		if err := node.Decode(&f); err != nil {
			return err
		}
		*v = ValueDoc{Current: f}
		return nil
	}
	type plain ValueDoc
	return node.Decode((*plain)(v))
}

type ArchetypeDoc struct {
	Name          string              `yaml:"name"`
	Level         int                 `yaml:"level"`
	Affiliation   string              `yaml:"affiliation"`
	Tags          []string            `yaml:"tags"`
	Attributes    map[string]ValueDoc `yaml:"attributes"`
	Workers       []WorkerBindingDoc  `yaml:"workers"`
	ImpactWorkers []TypedDoc          `yaml:"impact_workers"`
	Abilities     []GrantDoc          `yaml:"abilities"`
	NoClamp       bool                `yaml:"no_clamp"`
}
