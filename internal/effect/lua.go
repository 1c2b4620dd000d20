package effect

import (
	"fmt"
	"strings"
	"sync"

	"github.com/Shopify/go-lua"
)

const luaFormulaGlobal = "__formula"

// LuaScaler evaluates an authored Lua formula with the global `level` set.
// Source may be a bare expression ("12 + level * 3") or a chunk that returns
// a number.
type LuaScaler struct {
	source string

	mu    sync.Mutex
	state *lua.State
}

// NewLuaScaler compiles source once. Compilation errors surface here, at
// load time, rather than during a tick.
func NewLuaScaler(source string) (*LuaScaler, error) {
	src := strings.TrimSpace(source)
	if src == "" {
		return nil, fmt.Errorf("%w: empty lua formula", ErrDataIntegrity)
	}

	l := lua.NewState()
	lua.OpenLibraries(l)
	// Expressions compile once prefixed with return; anything else is a chunk.
	if err := lua.LoadString(l, "return "+src); err != nil {
		l.Pop(1)
		if err := lua.LoadString(l, src); err != nil {
			return nil, fmt.Errorf("%w: compiling lua formula %q: %v", ErrDataIntegrity, source, err)
		}
	}
	l.SetGlobal(luaFormulaGlobal)

	return &LuaScaler{source: source, state: l}, nil
}

// Source returns the formula as authored.
func (s *LuaScaler) Source() string { return s.source }

func (s *LuaScaler) Evaluate(level int) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l := s.state
	l.PushInteger(level)
	l.SetGlobal("level")
	l.Global(luaFormulaGlobal)
	if err := l.ProtectedCall(0, 1, 0); err != nil {
		l.Pop(1)
		return 0, fmt.Errorf("running lua formula %q: %w", s.source, err)
	}
	v, ok := l.ToNumber(-1)
	l.Pop(1)
	if !ok {
		return 0, fmt.Errorf("%w: lua formula %q did not return a number", ErrDataIntegrity, s.source)
	}
	return v, nil
}
