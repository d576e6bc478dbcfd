package types

import (
	"time"

	"github.com/scanloom/scanloom/pkg/math3"
)

// Annotation is a threaded comment anchored to a world-space point on a scan.
type Annotation struct {
	ID     string         `json:"id"`      // Unique identifier (UUID)
	ScanID string         `json:"scan_id"` // Scan this annotation belongs to
	Type   AnnotationType `json:"type"`    // pin, comment, or markup

	// Position is the world-space anchor point.
	Position math3.Vector3 `json:"position"`

	Content string           `json:"content"`
	Status  AnnotationStatus `json:"status"`

	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`

	// Replies is the ordered discussion thread.
	Replies []Reply `json:"replies,omitempty"`
}

// Clone returns a deep copy of the annotation, including its reply thread.
func (a *Annotation) Clone() *Annotation {
	c := *a
	c.Replies = make([]Reply, len(a.Replies))
	copy(c.Replies, a.Replies)
	return &c
}

// Reply is a single message in an annotation's discussion thread.
type Reply struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}
