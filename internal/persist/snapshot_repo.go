package persist

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// EntityRow is one persisted entity with its serialized components in
// attach order.
type EntityRow struct {
	ID         uint32
	Name       string
	ParentID   uint32
	Components []ComponentRow
}

type ComponentRow struct {
	Type    string
	Payload []byte
}

// Snapshot is the whole authoritative world at one point in time.
// LastID is the highest id ever handed out, including destroyed entities.
type Snapshot struct {
	Entities []EntityRow
	LastID   uint32
}

const metaLastID = "last_id"

type SnapshotRepo struct {
	db *DB
}

func NewSnapshotRepo(db *DB) *SnapshotRepo {
	return &SnapshotRepo{db: db}
}

// Save replaces the stored world with snap in one transaction.
func (r *SnapshotRepo) Save(ctx context.Context, snap *Snapshot) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("snapshot begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM entities`); err != nil {
		return fmt.Errorf("snapshot clear: %w", err)
	}

	ents := make([][]any, 0, len(snap.Entities))
	var comps [][]any
	for _, e := range snap.Entities {
		ents = append(ents, []any{int64(e.ID), e.Name, int64(e.ParentID)})
		for i, c := range e.Components {
			comps = append(comps, []any{int64(e.ID), c.Type, int32(i), c.Payload})
		}
	}
	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"entities"},
		[]string{"id", "name", "parent_id"},
		pgx.CopyFromRows(ents),
	); err != nil {
		return fmt.Errorf("snapshot entities: %w", err)
	}
	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"entity_components"},
		[]string{"entity_id", "type_name", "seq", "payload"},
		pgx.CopyFromRows(comps),
	); err != nil {
		return fmt.Errorf("snapshot components: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO world_meta (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = GREATEST(world_meta.value, EXCLUDED.value)`,
		metaLastID, int64(snap.LastID),
	); err != nil {
		return fmt.Errorf("snapshot meta: %w", err)
	}

	return tx.Commit(ctx)
}

// Load reads the stored world ordered by id. An empty database yields an
// empty snapshot.
func (r *SnapshotRepo) Load(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{}

	rows, err := r.db.Pool.Query(ctx, `SELECT id, name, parent_id FROM entities ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("load entities: %w", err)
	}
	index := make(map[uint32]int)
	for rows.Next() {
		var id, parent int64
		var name string
		if err := rows.Scan(&id, &name, &parent); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		index[uint32(id)] = len(snap.Entities)
		snap.Entities = append(snap.Entities, EntityRow{ID: uint32(id), Name: name, ParentID: uint32(parent)})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load entities: %w", err)
	}

	rows, err = r.db.Pool.Query(ctx,
		`SELECT entity_id, type_name, payload FROM entity_components ORDER BY entity_id, seq`)
	if err != nil {
		return nil, fmt.Errorf("load components: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var c ComponentRow
		if err := rows.Scan(&id, &c.Type, &c.Payload); err != nil {
			return nil, fmt.Errorf("scan component: %w", err)
		}
		if i, ok := index[uint32(id)]; ok {
			snap.Entities[i].Components = append(snap.Entities[i].Components, c)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load components: %w", err)
	}

	var last int64
	err = r.db.Pool.QueryRow(ctx, `SELECT value FROM world_meta WHERE key = $1`, metaLastID).Scan(&last)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("load meta: %w", err)
	default:
		snap.LastID = uint32(last)
	}
	return snap, nil
}
