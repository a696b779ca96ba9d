package component

import (
	"github.com/voxelnet/server/internal/core/ecs"
	"github.com/voxelnet/server/internal/net/packet"
)

const TypeLabel = "Label"

// Label is free display text shown above an entity.
type Label struct {
	ecs.DirtyFlag

	Text string
}

func (l *Label) TypeName() string { return TypeLabel }

func (l *Label) Serialize(w *packet.Writer) {
	w.WriteString(l.Text)
}

func (l *Label) Deserialize(r *packet.Reader) error {
	text := r.ReadString()
	if err := r.Err(); err != nil {
		return err
	}
	l.Text = text
	return nil
}

func (l *Label) SetText(s string) {
	if s != l.Text {
		l.Text = s
		l.MarkDirty()
	}
}
