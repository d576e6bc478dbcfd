package picking

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/scanloom/scanloom/pkg/math3"
	"github.com/scanloom/scanloom/pkg/types"
)

// recordingCaster returns a fixed hit and records the object it was asked
// to cast against.
type recordingCaster struct {
	hit      Hit
	miss     bool
	objectID string
}

func (c *recordingCaster) CastRay(cam types.Camera, screen ScreenPoint, objectID string) (Hit, bool) {
	c.objectID = objectID
	if c.miss {
		return Hit{}, false
	}
	return c.hit, true
}

func TestPickMissesWithoutScan(t *testing.T) {
	caster := &recordingCaster{hit: Hit{Point: math3.Vec3(1, 2, 3)}}
	p := NewPicker(caster)

	_, ok := p.Pick(types.Camera{}, ScreenPoint{})
	assert.False(t, ok)
	assert.False(t, p.ScanLoaded())
}

func TestPickTargetsLoadedScan(t *testing.T) {
	caster := &recordingCaster{hit: Hit{Point: math3.Vec3(1, 2, 3)}}
	p := NewPicker(caster)
	p.SetScan("scan-42")

	got, ok := p.Pick(types.Camera{}, ScreenPoint{X: 0.5, Y: -0.5})
	assert.True(t, ok)
	assert.Equal(t, math3.Vec3(1, 2, 3), got)
	assert.Equal(t, "scan-42", caster.objectID)
}

func TestPickReportsMiss(t *testing.T) {
	caster := &recordingCaster{miss: true}
	p := NewPicker(caster)
	p.SetScan("scan-42")

	_, ok := p.Pick(types.Camera{}, ScreenPoint{})
	assert.False(t, ok)
}

func TestPickAnyCastsAgainstScene(t *testing.T) {
	caster := &recordingCaster{hit: Hit{Point: math3.Vec3(0, 1, 0)}, objectID: "sentinel"}
	p := NewPicker(caster)

	got, ok := p.PickAny(types.Camera{}, ScreenPoint{})
	assert.True(t, ok)
	assert.Equal(t, math3.Vec3(0, 1, 0), got)
	assert.Equal(t, "", caster.objectID)
}
