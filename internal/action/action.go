package action

import (
	"context"
	"fmt"
	"strings"
)

// Priority orders deferred actions. Larger values run first.
type Priority int

// Reserved bands, highest first. The zero Priority is not a band; worker
// fields leave it unset to mean Normal.
const (
	Critical  Priority = 70 // interrupts, death
	High      Priority = 60
	Normal    Priority = 50
	Low       Priority = 40
	TagWorker Priority = 30
	Analysis  Priority = 20
	Cleanup   Priority = 10
)

func (p Priority) String() string {
	switch p {
	case Cleanup:
		return "cleanup"
	case Analysis:
		return "analysis"
	case TagWorker:
		return "tag_worker"
	case Low:
		return "low"
	case Normal:
		return "normal"
	case High:
		return "high"
	case Critical:
		return "critical"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// ParsePriority parses a band name. Empty means Normal.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "normal":
		return Normal, nil
	case "critical":
		return Critical, nil
	case "high":
		return High, nil
	case "low":
		return Low, nil
	case "tag_worker", "tagworker":
		return TagWorker, nil
	case "analysis":
		return Analysis, nil
	case "cleanup":
		return Cleanup, nil
	default:
		return Normal, fmt.Errorf("unknown action priority %q", s)
	}
}

// RootAction is one deferred mutation. Implementations are immutable once
// constructed.
type RootAction interface {
	Priority() Priority
	// IsValid is checked at dequeue time; invalid actions are skipped.
	IsValid() bool
	Description() string
	Execute(ctx context.Context) error
}

// Action is a RootAction assembled from functions.
type Action struct {
	priority    Priority
	description string
	valid       func() bool
	execute     func(ctx context.Context) error
}

// New builds an Action. valid may be nil, meaning always valid.
func New(priority Priority, description string, execute func(ctx context.Context) error, valid func() bool) Action {
	return Action{
		priority:    priority,
		description: description,
		valid:       valid,
		execute:     execute,
	}
}

func (a Action) Priority() Priority  { return a.priority }
func (a Action) Description() string { return a.description }

func (a Action) IsValid() bool {
	if a.execute == nil {
		return false
	}
	return a.valid == nil || a.valid()
}

func (a Action) Execute(ctx context.Context) error {
	if a.execute == nil {
		return nil
	}
	return a.execute(ctx)
}
