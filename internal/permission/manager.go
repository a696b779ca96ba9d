// Package permission decides which peers may run world-mutating requests.
package permission

import (
	"errors"
	"sync"

	"github.com/voxelnet/server/internal/rpc"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var ErrElevationDisabled = errors.New("elevation disabled")

// Manager holds per-peer grants. Non-mutating kinds are always allowed;
// mutating kinds need an explicit grant. Safe for concurrent use.
type Manager struct {
	mu     sync.RWMutex
	grants map[uint64]map[rpc.Kind]bool

	defaults []rpc.Kind
	hash     []byte

	log *zap.Logger
}

// NewManager creates a manager. Peers receive defaults on Connect;
// elevationHash is a bcrypt hash, empty to disable Elevate.
func NewManager(defaults []rpc.Kind, elevationHash string, log *zap.Logger) *Manager {
	m := &Manager{
		grants:   make(map[uint64]map[rpc.Kind]bool),
		defaults: append([]rpc.Kind(nil), defaults...),
		log:      log,
	}
	if elevationHash != "" {
		m.hash = []byte(elevationHash)
	}
	return m
}

func (m *Manager) IsAuthorized(peer uint64, kind rpc.Kind) bool {
	if !kind.Mutating() {
		return true
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.grants[peer][kind]
}

// Connect applies the default grants to a new peer.
func (m *Manager) Connect(peer uint64) {
	if len(m.defaults) == 0 {
		return
	}
	m.Grant(peer, m.defaults...)
}

func (m *Manager) Grant(peer uint64, kinds ...rpc.Kind) {
	m.mu.Lock()
	g, ok := m.grants[peer]
	if !ok {
		g = make(map[rpc.Kind]bool, len(kinds))
		m.grants[peer] = g
	}
	for _, k := range kinds {
		g[k] = true
	}
	m.mu.Unlock()
}

func (m *Manager) Revoke(peer uint64, kinds ...rpc.Kind) {
	m.mu.Lock()
	if g, ok := m.grants[peer]; ok {
		for _, k := range kinds {
			delete(g, k)
		}
	}
	m.mu.Unlock()
}

// GrantAll grants every mutating kind.
func (m *Manager) GrantAll(peer uint64) {
	m.Grant(peer, rpc.MutatingKinds()...)
}

// Drop forgets a disconnected peer.
func (m *Manager) Drop(peer uint64) {
	m.mu.Lock()
	delete(m.grants, peer)
	m.mu.Unlock()
}

// Grants returns the kinds peer holds.
func (m *Manager) Grants(peer uint64) []rpc.Kind {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []rpc.Kind
	for _, k := range rpc.MutatingKinds() {
		if m.grants[peer][k] {
			out = append(out, k)
		}
	}
	return out
}

// Elevate grants everything if secret matches the configured hash.
func (m *Manager) Elevate(peer uint64, secret string) (bool, error) {
	if m.hash == nil {
		return false, ErrElevationDisabled
	}
	if err := bcrypt.CompareHashAndPassword(m.hash, []byte(secret)); err != nil {
		m.log.Warn("提權密碼錯誤", zap.Uint64("peer", peer))
		return false, nil
	}
	m.GrantAll(peer)
	m.log.Info("連線已提權", zap.Uint64("peer", peer))
	return true, nil
}

// HashSecret produces the bcrypt hash to put in config.
func HashSecret(secret string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// ParseKinds resolves config kind names.
func ParseKinds(names []string) ([]rpc.Kind, error) {
	out := make([]rpc.Kind, 0, len(names))
	for _, n := range names {
		if n == "all" {
			out = append(out, rpc.MutatingKinds()...)
			continue
		}
		k, err := rpc.ParseKind(n)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, nil
}
