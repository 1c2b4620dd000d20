package ability

// Resolution is a stage policy's verdict on the current task set.
type Resolution int8

const (
	// Pending keeps waiting.
	Pending Resolution = iota
	// Complete ends the stage, cancelling tasks still running.
	Complete
	// Advance moves the ability to the next stage while the current one
	// keeps running as a maintained stage.
	Advance
)

func (r Resolution) String() string {
	switch r {
	case Pending:
		return "Pending"
	case Complete:
		return "Complete"
	case Advance:
		return "Advance"
	default:
		return "Unknown"
	}
}

// StageStatus is a snapshot of one stage's tasks.
type StageStatus struct {
	Done        []bool
	Maintaining []bool
	Finished    int
	Maintained  int
}

// Total returns the number of tasks in the stage.
func (s StageStatus) Total() int { return len(s.Done) }

// StagePolicy decides when a stage is over.
type StagePolicy interface {
	Name() string
	Resolve(s StageStatus) Resolution
}

// PolicyFunc adapts a function to StagePolicy.
type PolicyFunc struct {
	Label string
	Fn    func(s StageStatus) Resolution
}

func (p PolicyFunc) Name() string                     { return p.Label }
func (p PolicyFunc) Resolve(s StageStatus) Resolution { return p.Fn(s) }

var (
	// All waits for every task.
	All StagePolicy = PolicyFunc{Label: "All", Fn: resolveAll}
	// Any completes on the first finished task and cancels the rest.
	Any StagePolicy = PolicyFunc{Label: "Any", Fn: resolveAny}
	// First completes when the first authored task finishes.
	First StagePolicy = PolicyFunc{Label: "First", Fn: resolveFirst}
)

func resolveAll(s StageStatus) Resolution {
	switch {
	case s.Finished >= s.Total():
		return Complete
	case s.Maintained > 0 && s.Finished+s.Maintained >= s.Total():
		return Advance
	default:
		return Pending
	}
}

func resolveAny(s StageStatus) Resolution {
	switch {
	case s.Finished > 0 || s.Total() == 0:
		return Complete
	case s.Maintained > 0:
		return Advance
	default:
		return Pending
	}
}

func resolveFirst(s StageStatus) Resolution {
	switch {
	case s.Total() == 0 || s.Done[0]:
		return Complete
	case s.Maintaining[0]:
		return Advance
	default:
		return Pending
	}
}

// PolicyByName returns a stock policy. An empty name selects All.
func PolicyByName(name string) (StagePolicy, bool) {
	switch name {
	case "", "All", "all":
		return All, true
	case "Any", "any":
		return Any, true
	case "First", "first":
		return First, true
	default:
		return nil, false
	}
}
