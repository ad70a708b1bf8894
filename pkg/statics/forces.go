package statics

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/matzehuels/linkage/pkg/errors"
	"github.com/matzehuels/linkage/pkg/geom"
	"github.com/matzehuels/linkage/pkg/model"
	"github.com/matzehuels/linkage/pkg/residual"
)

// external is the assembled external load state of a pose.
type external struct {
	// f is the external force vector laid out like the position vector.
	f []float64
	// applied sums direct force components per point. Couples from torques
	// are not included.
	applied map[int]r2.Vec
}

func validateLoads(m *model.Model) error {
	for i, ld := range m.Loads {
		for _, v := range []struct {
			field string
			val   float64
		}{
			{"fx", ld.FX}, {"fy", ld.FY}, {"mz", ld.MZ},
			{"k", ld.K}, {"theta0", ld.Theta0}, {"load", ld.Preload},
		} {
			if math.IsNaN(v.val) || math.IsInf(v.val, 0) {
				return errors.New(errors.ErrCodeInvalidModel, "load %d: %s must be finite", i, v.field)
			}
		}
	}
	return nil
}

// resolveLoad returns the force and moment a load applies at its point in
// pose q. Springs read the current offset to their reference point.
func resolveLoad(ld *model.Load, lay *residual.Layout, q []float64) (f r2.Vec, mz float64) {
	at := func(id int) (r2.Vec, bool) {
		s, ok := lay.Slot(id)
		if !ok {
			return r2.Vec{}, false
		}
		return r2.Vec{X: q[2*s], Y: q[2*s+1]}, true
	}

	switch ld.Type {
	case model.LoadSpring:
		p, ok1 := at(ld.PID)
		ref, ok2 := at(ld.RefPID)
		if !ok1 || !ok2 {
			return r2.Vec{}, 0
		}
		d := r2.Sub(ref, p)
		f = r2.Scale(ld.K, d)
		if math.Abs(d.X)+math.Abs(d.Y) > geom.Degenerate && ld.Preload != 0 {
			f = r2.Add(f, r2.Scale(ld.Preload/r2.Norm(d), d))
		}
		return f, 0

	case model.LoadTorsionSpring:
		p, ok1 := at(ld.PID)
		ref, ok2 := at(ld.RefPID)
		if !ok1 || !ok2 {
			return r2.Vec{}, 0
		}
		d := r2.Sub(ref, p)
		if math.Abs(d.X)+math.Abs(d.Y) < geom.Degenerate {
			return r2.Vec{}, 0
		}
		return r2.Vec{}, ld.K*geom.WrapAngle(math.Atan2(d.Y, d.X)-ld.Theta0) + ld.Preload

	default:
		return r2.Vec{X: ld.FX, Y: ld.FY}, ld.MZ
	}
}

// torqueNeighbour picks the point a torque at pid is coupled through: the
// farthest non-ref link neighbour, else the farthest rigid-edge neighbour.
func torqueNeighbour(m *model.Model, lay *residual.Layout, pid int, q []float64) (int, bool) {
	var neigh []int
	other := func(i, j int) {
		switch {
		case i == pid:
			if _, ok := lay.Slot(j); ok {
				neigh = append(neigh, j)
			}
		case j == pid:
			if _, ok := lay.Slot(i); ok {
				neigh = append(neigh, i)
			}
		}
	}
	for _, l := range m.SortedLinks() {
		if !l.Ref {
			other(l.I, l.J)
		}
	}
	if len(neigh) == 0 {
		for _, e := range m.RigidEdges() {
			other(e.I, e.J)
		}
	}
	if len(neigh) == 0 {
		return 0, false
	}

	s, _ := lay.Slot(pid)
	best, bestR2 := 0, -1.0
	for _, nb := range neigh {
		t, _ := lay.Slot(nb)
		dx, dy := q[2*t]-q[2*s], q[2*t+1]-q[2*s+1]
		if r := dx*dx + dy*dy; r > bestR2 {
			best, bestR2 = nb, r
		}
	}
	return best, true
}

// externalForces assembles f_ext for pose q. Every torque becomes a force
// couple F = (mz/r²)(−ry, rx) applied at the neighbour with −F at the point;
// torques on points without a neighbour are dropped.
func externalForces(m *model.Model, lay *residual.Layout, q []float64) external {
	ext := external{f: make([]float64, len(q)), applied: make(map[int]r2.Vec)}
	torque := make(map[int]float64)

	for i := range m.Loads {
		ld := &m.Loads[i]
		s, ok := lay.Slot(ld.PID)
		if !ok {
			continue
		}
		f, mz := resolveLoad(ld, lay, q)
		ext.f[2*s] += f.X
		ext.f[2*s+1] += f.Y
		if f.X != 0 || f.Y != 0 {
			ext.applied[ld.PID] = r2.Add(ext.applied[ld.PID], f)
		}
		if mz != 0 {
			torque[ld.PID] += mz
		}
	}

	for _, pid := range lay.IDs() {
		mz := torque[pid]
		if math.Abs(mz) < geom.Degenerate {
			continue
		}
		nb, ok := torqueNeighbour(m, lay, pid, q)
		if !ok {
			continue
		}
		s, _ := lay.Slot(pid)
		t, _ := lay.Slot(nb)
		rx, ry := q[2*t]-q[2*s], q[2*t+1]-q[2*s+1]
		r2n := rx*rx + ry*ry
		if r2n < geom.Degenerate {
			continue
		}
		fx, fy := -ry*mz/r2n, rx*mz/r2n
		ext.f[2*t] += fx
		ext.f[2*t+1] += fy
		ext.f[2*s] -= fx
		ext.f[2*s+1] -= fy
	}
	return ext
}
