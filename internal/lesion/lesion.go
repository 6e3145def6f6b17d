package lesion

import (
	"fmt"
	"math"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r3"

	"vesselflow/internal/centerline"
	"vesselflow/internal/services"
)

// PointID identifies one placed measurement point.
type PointID string

// Sample is one centerline sample: a position along the vessel and the
// vessel radius measured there.
type Sample struct {
	Position r3.Vec
	RadiusMm float64
}

// Point is an operator-placed measurement along a centerline. RadiusMm and
// ArcLength are derived from the nearest centerline samples at placement.
type Point struct {
	ID       PointID
	JobID    centerline.JobID
	Position r3.Vec
	RadiusMm float64
	// ArcLength is the distance along the centerline polyline, in mm, of
	// the placed point's projection.
	ArcLength float64
}

// Set holds the lesion points of one session's analysis phase.
type Set struct {
	points []Point
	byID   map[PointID]int
}

// NewSet builds an empty lesion point set.
func NewSet() *Set {
	return &Set{byID: make(map[PointID]int)}
}

// Place records a measurement point against the given centerline samples.
// The radius is interpolated between the two nearest samples; the arc-length
// parameter comes from projecting the position onto the polyline.
func (s *Set) Place(jobID centerline.JobID, samples []Sample, position r3.Vec) (Point, error) {
	if len(samples) == 0 {
		return Point{}, services.Wrap(services.ErrValidation, "analysis", "place lesion point",
			"centerline has no samples", nil)
	}

	radius, arc := project(samples, position)
	point := Point{
		ID:        PointID(uuid.NewString()),
		JobID:     jobID,
		Position:  position,
		RadiusMm:  radius,
		ArcLength: arc,
	}
	s.byID[point.ID] = len(s.points)
	s.points = append(s.points, point)
	return point, nil
}

// Remove deletes a placed point. Unknown IDs are a no-op.
func (s *Set) Remove(id PointID) {
	idx, ok := s.byID[id]
	if !ok {
		return
	}
	s.points = append(s.points[:idx], s.points[idx+1:]...)
	delete(s.byID, id)
	for i := idx; i < len(s.points); i++ {
		s.byID[s.points[i].ID] = i
	}
}

// Clear drops every point. Used on phase restart and session reset.
func (s *Set) Clear() {
	s.points = nil
	s.byID = make(map[PointID]int)
}

// Count reports the number of placed points.
func (s *Set) Count() int {
	return len(s.points)
}

// Points returns a snapshot in placement order.
func (s *Set) Points() []Point {
	out := make([]Point, len(s.points))
	copy(out, s.points)
	return out
}

// StenosisRatio returns the percent diameter reduction of the lesion point
// relative to the reference point.
func StenosisRatio(reference, lesion Point) (float64, error) {
	if reference.RadiusMm <= 0 {
		return 0, services.Wrap(services.ErrValidation, "analysis", "stenosis ratio",
			fmt.Sprintf("reference radius %.2f mm is not positive", reference.RadiusMm), nil)
	}
	return (1 - lesion.RadiusMm/reference.RadiusMm) * 100, nil
}

// project finds the closest point on the sample polyline and returns the
// interpolated radius and cumulative arc length there. A single-sample
// centerline degrades to that sample's values.
func project(samples []Sample, position r3.Vec) (radiusMm, arcLength float64) {
	if len(samples) == 1 {
		return samples[0].RadiusMm, 0
	}

	cumulative := make([]float64, len(samples))
	for i := 1; i < len(samples); i++ {
		cumulative[i] = cumulative[i-1] + r3.Norm(r3.Sub(samples[i].Position, samples[i-1].Position))
	}

	best := math.Inf(1)
	for i := 0; i+1 < len(samples); i++ {
		a, b := samples[i], samples[i+1]
		seg := r3.Sub(b.Position, a.Position)
		segLen2 := r3.Dot(seg, seg)
		t := 0.0
		if segLen2 > 0 {
			t = r3.Dot(r3.Sub(position, a.Position), seg) / segLen2
			t = math.Max(0, math.Min(1, t))
		}
		closest := r3.Add(a.Position, r3.Scale(t, seg))
		dist := r3.Norm(r3.Sub(position, closest))
		if dist < best {
			best = dist
			radiusMm = a.RadiusMm + t*(b.RadiusMm-a.RadiusMm)
			arcLength = cumulative[i] + t*(cumulative[i+1]-cumulative[i])
		}
	}
	return radiusMm, arcLength
}
