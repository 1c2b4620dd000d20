package ability

// Injection is a command delivered to a running activation from outside.
// stage is the current stage, or an empty stage when none is running.
type Injection interface {
	Inject(p *Proxy, stage *Stage) bool
}

// InjectionFunc adapts a function to Injection.
type InjectionFunc func(p *Proxy, stage *Stage) bool

func (f InjectionFunc) Inject(p *Proxy, stage *Stage) bool { return f(p, stage) }

// CancelInjection cancels the activation.
type CancelInjection struct{}

func (CancelInjection) Inject(p *Proxy, _ *Stage) bool {
	if p.Completed() {
		return false
	}
	p.Cancel()
	return true
}

// SkipStageInjection ends the current stage and moves on.
type SkipStageInjection struct{}

func (SkipStageInjection) Inject(p *Proxy, stage *Stage) bool {
	if len(stage.Tasks) == 0 {
		return false
	}
	return p.SkipStage()
}
