// Package encoders renders execution context state for diagnostic sinks.
// The substrate exposes enough state to serialize; nothing here defines a
// wire form for transporting contexts between processes.
package encoders

import (
	"fmt"
	"io"

	"github.com/ugorji/go/codec"
	"github.com/weisbartb/opctx"
)

// Snapshot is a point-in-time view of one execution context.
type Snapshot struct {
	ID            string   `codec:"id"`
	Name          string   `codec:"name"`
	Relation      string   `codec:"relation"`
	StartNanos    int64    `codec:"startNanos"`
	DeadlineNanos int64    `codec:"deadlineNanos"`
	Closed        bool     `codec:"closed"`
	Attachments   []string `codec:"attachments,omitempty"`
	ParentID      string   `codec:"parentId,omitempty"`
}

// Capture snapshots ctx. Attachment tags are rendered with %v; they are
// opaque to the substrate.
func Capture(ctx *opctx.Context) Snapshot {
	s := Snapshot{
		ID:            ctx.ID(),
		Name:          ctx.Name(),
		Relation:      ctx.Relation().String(),
		StartNanos:    ctx.StartNanos(),
		DeadlineNanos: ctx.DeadlineNanos(),
		Closed:        ctx.Closed(),
	}
	if parent := ctx.Parent(); parent != nil {
		s.ParentID = parent.ID()
	}
	for _, tag := range ctx.Attachments() {
		s.Attachments = append(s.Attachments, fmt.Sprintf("%v", tag))
	}
	return s
}

var jsonHandle codec.JsonHandle

// EncodeJSON writes the snapshot of ctx to w as JSON.
func EncodeJSON(w io.Writer, ctx *opctx.Context) error {
	return codec.NewEncoder(w, &jsonHandle).Encode(Capture(ctx))
}
