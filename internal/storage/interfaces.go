// Package storage provides composable persistence interfaces for Scanloom
// scene entities. The interfaces are small and per-kind so backends can be
// implemented independently; SceneStore composes them for callers that need
// the full set.
package storage

import (
	"context"
	"errors"

	"github.com/scanloom/scanloom/pkg/math3"
	"github.com/scanloom/scanloom/pkg/types"
)

var (
	// ErrNotFound indicates that the requested entity was not found.
	ErrNotFound = errors.New("entity not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")
)

// MeasurementStore persists distance and area measurements.
type MeasurementStore interface {
	// CreateMeasurement inserts a measurement under its own ID.
	CreateMeasurement(ctx context.Context, m *types.Measurement) error

	// GetMeasurement retrieves a measurement by ID.
	// Returns ErrNotFound if it doesn't exist.
	GetMeasurement(ctx context.Context, id string) (*types.Measurement, error)

	// ListMeasurements retrieves all measurements for a scan, ordered by
	// creation time.
	ListMeasurements(ctx context.Context, scanID string) ([]*types.Measurement, error)

	// UpdateMeasurement replaces an existing measurement.
	// Returns ErrNotFound if it doesn't exist.
	UpdateMeasurement(ctx context.Context, m *types.Measurement) error

	// DeleteMeasurement removes a measurement by ID.
	// Returns ErrNotFound if it doesn't exist.
	DeleteMeasurement(ctx context.Context, id string) error
}

// AnnotationStore persists annotations and their reply threads.
type AnnotationStore interface {
	// CreateAnnotation inserts an annotation (without replies) under its own ID.
	CreateAnnotation(ctx context.Context, a *types.Annotation) error

	// GetAnnotation retrieves an annotation with its full reply thread.
	// Returns ErrNotFound if it doesn't exist.
	GetAnnotation(ctx context.Context, id string) (*types.Annotation, error)

	// ListAnnotations retrieves all annotations for a scan with their reply
	// threads, ordered by creation time.
	ListAnnotations(ctx context.Context, scanID string) ([]*types.Annotation, error)

	// UpdateAnnotation replaces an annotation's own fields and resyncs its
	// reply thread to match the given entity.
	// Returns ErrNotFound if it doesn't exist.
	UpdateAnnotation(ctx context.Context, a *types.Annotation) error

	// DeleteAnnotation removes an annotation and its replies.
	// Returns ErrNotFound if it doesn't exist.
	DeleteAnnotation(ctx context.Context, id string) error

	// NearestAnnotations returns up to limit annotations on the scan closest
	// to the given world-space point, nearest first. Backends without a
	// spatial index may compute this client-side.
	NearestAnnotations(ctx context.Context, scanID string, p math3.Vector3, limit int) ([]*types.Annotation, error)
}

// SavedViewStore persists bookmarked camera poses.
type SavedViewStore interface {
	// CreateSavedView inserts a saved view under its own ID.
	CreateSavedView(ctx context.Context, v *types.SavedView) error

	// GetSavedView retrieves a saved view by ID.
	// Returns ErrNotFound if it doesn't exist.
	GetSavedView(ctx context.Context, id string) (*types.SavedView, error)

	// ListSavedViews retrieves all saved views for a scan in sort order.
	ListSavedViews(ctx context.Context, scanID string) ([]*types.SavedView, error)

	// UpdateSavedView replaces an existing saved view.
	// Returns ErrNotFound if it doesn't exist.
	UpdateSavedView(ctx context.Context, v *types.SavedView) error

	// DeleteSavedView removes a saved view by ID.
	// Returns ErrNotFound if it doesn't exist.
	DeleteSavedView(ctx context.Context, id string) error
}

// SceneStore is the full persistence surface for one backing database.
type SceneStore interface {
	MeasurementStore
	AnnotationStore
	SavedViewStore

	// Close releases any resources held by the store.
	Close() error
}
