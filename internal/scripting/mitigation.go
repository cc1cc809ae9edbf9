package scripting

import (
	"fmt"
	"math"
	"os"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/cory-johannsen/idlebattle/internal/game/combat"
)

// ReductionFunc is the global a mitigation script must define:
// reduction(defense, level, kind) returning a fraction.
const ReductionFunc = "reduction"

// LuaMitigation is a combat.Mitigation backed by a script.
//
// LuaMitigation is safe for concurrent use; calls are serialized on one VM.
type LuaMitigation struct {
	mu        sync.Mutex
	L         *lua.LState
	fn        *lua.LFunction
	name      string
	instLimit int
	logger    *zap.Logger
}

// LoadMitigation reads the script at path and compiles it into a LuaMitigation.
//
// Precondition: path must be a readable Lua file; logger may be nil.
// Postcondition: Returns a ready strategy or an error naming the script.
func LoadMitigation(path string, instLimit int, logger *zap.Logger) (*LuaMitigation, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scripting: reading mitigation script %q: %w", path, err)
	}
	return NewMitigation(path, string(src), instLimit, logger)
}

// NewMitigation compiles src, run under the instruction limit, and resolves
// its reduction global.
//
// Precondition: name identifies src in errors and logs; instLimit >= 0, 0
// uses DefaultInstructionLimit.
// Postcondition: Returns an error if src fails to load or defines no
// reduction function.
func NewMitigation(name, src string, instLimit int, logger *zap.Logger) (*LuaMitigation, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	L := NewSandboxedState()
	disarm := Limit(L, instLimit)
	err := L.DoString(src)
	disarm()
	if err != nil {
		L.Close()
		return nil, fmt.Errorf("scripting: loading %q: %w", name, err)
	}
	fn, ok := L.GetGlobal(ReductionFunc).(*lua.LFunction)
	if !ok {
		L.Close()
		return nil, fmt.Errorf("scripting: %q does not define function %s", name, ReductionFunc)
	}
	logger.Info("mitigation script loaded", zap.String("script", name))
	return &LuaMitigation{L: L, fn: fn, name: name, instLimit: instLimit, logger: logger}, nil
}

// Reduction implements combat.Mitigation.
//
// Postcondition: Returns the script's result, or an error when the script
// raises, exceeds its instruction limit, or returns a non-finite number or
// a non-number.
func (m *LuaMitigation) Reduction(defense float64, level int, kind combat.DamageType) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.L == nil {
		return 0, fmt.Errorf("scripting: %q is closed", m.name)
	}

	disarm := Limit(m.L, m.instLimit)
	err := m.L.CallByParam(lua.P{
		Fn:      m.fn,
		NRet:    1,
		Protect: true,
	}, lua.LNumber(defense), lua.LNumber(level), lua.LString(kind))
	disarm()
	if err != nil {
		m.logger.Warn("scripting: Lua runtime error",
			zap.String("script", m.name),
			zap.Float64("defense", defense),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		return 0, fmt.Errorf("scripting: %s in %q: %w", ReductionFunc, m.name, err)
	}

	ret := m.L.Get(-1)
	m.L.Pop(1)
	n, ok := ret.(lua.LNumber)
	if !ok {
		return 0, fmt.Errorf("scripting: %s in %q returned %s, want number", ReductionFunc, m.name, ret.Type())
	}
	r := float64(n)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0, fmt.Errorf("scripting: %s in %q returned %v", ReductionFunc, m.name, r)
	}
	return r, nil
}

// Name returns the script name the strategy was built from.
func (m *LuaMitigation) Name() string { return m.name }

// Close releases the VM. Reduction fails afterwards.
func (m *LuaMitigation) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.L != nil {
		m.L.Close()
		m.L = nil
	}
}
