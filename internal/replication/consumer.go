package replication

import (
	"errors"
	"time"

	"github.com/voxelnet/server/internal/core/ecs"
	"github.com/voxelnet/server/internal/net/packet"
	"go.uber.org/zap"
)

// diffLogLimit caps how many topology differences one mismatch logs.
const diffLogLimit = 8

// ConsumerConfig wires a Consumer to the rest of the observer.
type ConsumerConfig struct {
	// Defaults attaches the components every replicated entity starts with.
	Defaults func(e *ecs.Entity)
	// RequestResync asks the authority for a full snapshot.
	RequestResync func()
	// ResyncCooldown allows another request when a snapshot never arrives.
	// Zero waits forever.
	ResyncCooldown time.Duration
}

// Consumer applies deltas from the authority to a local store and keeps a
// shadow topology built only from those deltas. When the live tree and the
// shadow disagree it asks for a full snapshot. Simulation-thread only.
type Consumer struct {
	store  *ecs.Store
	reg    *ecs.Registry
	shadow *Topology
	cfg    ConsumerConfig
	now    func() time.Time

	awaitingFull bool
	requestedAt  time.Time
	resyncs      int
	applied      uint64

	log *zap.Logger
}

func NewConsumer(store *ecs.Store, reg *ecs.Registry, cfg ConsumerConfig, log *zap.Logger) *Consumer {
	return &Consumer{
		store:  store,
		reg:    reg,
		shadow: NewTopology(),
		cfg:    cfg,
		now:    time.Now,
		log:    log,
	}
}

// SetClock replaces the time source used for the resync cooldown.
func (c *Consumer) SetClock(now func() time.Time) { c.now = now }

func (c *Consumer) Shadow() *Topology { return c.shadow }

// Resyncs returns how many full snapshots this consumer has requested.
func (c *Consumer) Resyncs() int { return c.resyncs }

// AwaitingFull reports whether a requested snapshot is still outstanding.
func (c *Consumer) AwaitingFull() bool { return c.awaitingFull }

// Applied returns the number of deltas applied so far.
func (c *Consumer) Applied() uint64 { return c.applied }

// Handle is the packet handler for the sync channel.
func (c *Consumer) Handle(_ uint64, payload []byte) error {
	d, err := DecodeDelta(payload)
	if err != nil {
		return err
	}
	c.ApplyDelta(d)
	return nil
}

// ApplyDelta applies every section of d in order, then checks the live tree
// against the shadow.
func (c *Consumer) ApplyDelta(d *Delta) {
	if d.Full {
		c.pruneForSnapshot(d)
		c.shadow.Reset()
	}

	deleting := make(map[ecs.NetworkID]bool, len(d.Deletes))
	for _, id := range d.Deletes {
		deleting[id] = true
	}
	for _, s := range d.Spawns {
		c.spawn(s, deleting)
	}
	for _, id := range d.Deletes {
		c.delete(id)
	}

	if d.Full {
		c.reconcileEdges(d.AddChildren)
	}
	// An add that would close a cycle until a later remove-child runs
	// (a parent/child swap within one tick) is retried after the removes.
	var retry []Edge
	for _, e := range d.AddChildren {
		c.shadow.AddEdge(e.Parent, e.Child)
		err := c.store.AddChild(e.Parent, e.Child)
		if errors.Is(err, ecs.ErrInvalidRelation) {
			retry = append(retry, e)
			continue
		}
		if err != nil {
			c.logEdgeFailure(e, err)
		}
	}
	for _, e := range d.RemoveChildren {
		c.shadow.RemoveEdge(e.Parent, e.Child)
		_ = c.store.RemoveChild(e.Parent, e.Child)
	}
	for _, e := range retry {
		if err := c.store.AddChild(e.Parent, e.Child); err != nil {
			c.logEdgeFailure(e, err)
		}
	}

	for _, ref := range d.AddComponents {
		c.addComponent(ref)
	}
	for _, ref := range d.RemoveComponents {
		ent, ok := c.replica(ref.ID)
		if !ok {
			continue
		}
		_ = c.store.RemoveComponent(ent, ref.Type)
	}
	for _, rec := range d.Dirty {
		c.applyDirty(rec)
	}
	if d.Full {
		c.pruneComponents(d)
	}

	c.applied++
	if d.Full {
		if c.awaitingFull {
			c.log.Info("完整同步已套用", zap.Int("entities", len(d.Spawns)))
		}
		c.awaitingFull = false
	}
	c.verify()
}

// replica looks up a replicated entity. Local authoritative entities are
// never touched by the authority's deltas.
func (c *Consumer) replica(id ecs.NetworkID) (*ecs.Entity, bool) {
	e, ok := c.store.Get(id)
	if !ok {
		c.log.Debug("同步引用未知實體", zap.Uint32("id", uint32(id)))
		return nil, false
	}
	if e.IsAuthoritative() {
		c.log.Warn("同步試圖修改本地實體", zap.Uint32("id", uint32(id)), zap.String("name", e.Name()))
		return nil, false
	}
	return e, true
}

func (c *Consumer) spawn(s Spawn, deleting map[ecs.NetworkID]bool) {
	name := ecs.CanonicalName(s.Name)
	c.shadow.AddNode(s.ID, name)

	if old, ok := c.store.Get(s.ID); ok {
		if old.Name() == name && !old.IsAuthoritative() {
			return
		}
		if old.IsAuthoritative() {
			c.log.Warn("同步 id 與本地實體衝突", zap.Uint32("id", uint32(s.ID)), zap.String("name", name))
			return
		}
		// same id under a new name
		_ = c.store.Unregister(s.ID)
	}
	if other, ok := c.store.GetByName(name); ok {
		if other.IsAuthoritative() || !deleting[other.ID()] {
			c.log.Warn("同步名稱衝突",
				zap.String("name", name),
				zap.Uint32("id", uint32(s.ID)),
				zap.Uint32("existing", uint32(other.ID())),
			)
			return
		}
		// the old holder of this name is deleted later in this delta
		_ = c.store.Unregister(other.ID())
	}

	e := ecs.NewEntity(name, false)
	e.AssignNetworkID(s.ID)
	if c.cfg.Defaults != nil {
		c.cfg.Defaults(e)
	}
	if _, err := c.store.Register(e); err != nil {
		c.log.Warn("註冊同步實體失敗", zap.String("name", name), zap.Error(err))
	}
}

func (c *Consumer) delete(id ecs.NetworkID) {
	c.shadow.RemoveNode(id)
	e, ok := c.store.Get(id)
	if !ok {
		c.log.Debug("刪除未知實體", zap.Uint32("id", uint32(id)))
		return
	}
	if e.IsAuthoritative() {
		return
	}
	_ = c.store.Unregister(id)
}

func (c *Consumer) addComponent(ref ComponentRef) {
	e, ok := c.replica(ref.ID)
	if !ok {
		return
	}
	if _, ok := e.Component(ref.Type); ok {
		return
	}
	if _, err := c.store.AddComponentByTypeName(e, c.reg, ref.Type); err != nil && !errors.Is(err, ecs.ErrDuplicateComponent) {
		c.log.Debug("同步加入元件失敗", zap.String("type", ref.Type), zap.Error(err))
	}
}

func (c *Consumer) applyDirty(rec DirtyRecord) {
	e, ok := c.replica(rec.ID)
	if !ok {
		return
	}
	comp, ok := e.Component(rec.Type)
	if !ok {
		var err error
		comp, err = c.store.AddComponentByTypeName(e, c.reg, rec.Type)
		if err != nil {
			return
		}
	}
	if err := comp.Deserialize(packet.NewReader(rec.Payload)); err != nil {
		c.log.Warn("元件反序列化失敗",
			zap.String("entity", e.Name()),
			zap.String("type", rec.Type),
			zap.Error(err),
		)
	}
	comp.ClearDirty()
}

// pruneForSnapshot drops replicated entities the snapshot no longer has,
// and those whose id now carries a different name.
func (c *Consumer) pruneForSnapshot(d *Delta) {
	want := make(map[ecs.NetworkID]string, len(d.Spawns))
	for _, s := range d.Spawns {
		want[s.ID] = ecs.CanonicalName(s.Name)
	}
	pruned := 0
	for _, e := range ecs.Filter(c.store, ecs.Replicated) {
		if name, ok := want[e.ID()]; ok && name == e.Name() {
			continue
		}
		_ = c.store.Unregister(e.ID())
		pruned++
	}
	if pruned > 0 {
		c.log.Info("完整同步移除過期實體", zap.Int("count", pruned))
	}
}

// pruneComponents removes replica components a full snapshot carries no
// state for. A full snapshot lists every component of every entity as a
// dirty record, so anything else was removed on the authority.
func (c *Consumer) pruneComponents(d *Delta) {
	type key struct {
		id  ecs.NetworkID
		typ string
	}
	keep := make(map[key]bool, len(d.Dirty))
	for _, rec := range d.Dirty {
		keep[key{rec.ID, rec.Type}] = true
	}
	pruned := 0
	for _, e := range ecs.Filter(c.store, ecs.Replicated) {
		for _, comp := range e.Components() {
			if keep[key{e.ID(), comp.TypeName()}] {
				continue
			}
			if err := c.store.RemoveComponent(e, comp.TypeName()); err == nil {
				pruned++
			}
		}
	}
	if pruned > 0 {
		c.log.Info("完整同步移除過期元件", zap.Int("count", pruned))
	}
}

func (c *Consumer) logEdgeFailure(e Edge, err error) {
	c.log.Debug("同步加入子實體失敗",
		zap.Uint32("parent", uint32(e.Parent)),
		zap.Uint32("child", uint32(e.Child)),
		zap.Error(err),
	)
}

// reconcileEdges detaches replicated children whose live parent differs
// from the snapshot before the snapshot's edges are applied.
func (c *Consumer) reconcileEdges(edges []Edge) {
	parentOf := make(map[ecs.NetworkID]ecs.NetworkID, len(edges))
	for _, e := range edges {
		parentOf[e.Child] = e.Parent
	}
	for _, e := range ecs.Filter(c.store, ecs.Replicated) {
		if p := e.Parent(); p != 0 && parentOf[e.ID()] != p {
			_ = c.store.RemoveChild(p, e.ID())
		}
	}
}

func (c *Consumer) verify() {
	if c.awaitingFull {
		if c.cfg.ResyncCooldown <= 0 || c.now().Sub(c.requestedAt) < c.cfg.ResyncCooldown {
			return
		}
		c.log.Warn("完整同步逾時, 重新請求", zap.Duration("cooldown", c.cfg.ResyncCooldown))
		c.awaitingFull = false
	}

	live := FromStore(c.store, ecs.Replicated)
	if live.Equal(c.shadow) {
		return
	}
	c.log.Warn("拓撲不一致, 請求完整同步",
		zap.Int("live", live.Len()),
		zap.Int("shadow", c.shadow.Len()),
		zap.Uint64("live_hash", live.Fingerprint()),
		zap.Uint64("shadow_hash", c.shadow.Fingerprint()),
		zap.Strings("diff", c.shadow.Diff(live, diffLogLimit)),
	)
	c.shadow.Reset()
	c.awaitingFull = true
	c.requestedAt = c.now()
	c.resyncs++
	if c.cfg.RequestResync != nil {
		c.cfg.RequestResync()
	}
}
