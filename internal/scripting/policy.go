package scripting

import "github.com/voxelnet/server/internal/rpc"

// Policy lets the is_authorized hook override another gate. The hook gets
// (peer, kind name, base decision) and returns a bool, or nil to keep the
// base decision.
type Policy struct {
	base   rpc.Gate
	engine *Engine
}

func NewPolicy(base rpc.Gate, engine *Engine) *Policy {
	return &Policy{base: base, engine: engine}
}

func (p *Policy) IsAuthorized(peer uint64, kind rpc.Kind) bool {
	fallback := p.base.IsAuthorized(peer, kind)
	if !p.engine.HasHook(HookIsAuthorized) {
		return fallback
	}
	if allowed, ok := p.engine.IsAuthorized(peer, kind.String(), fallback); ok {
		return allowed
	}
	return fallback
}
