package model

import "slices"

// RemovePoint deletes point id and everything that references it: links,
// angles, coincidences, point-lines, point-splines, splines containing the
// point, bodies containing it, loads (by PID or RefPID), measures, load
// measures, drivers and outputs. It reports whether the point existed.
func (m *Model) RemovePoint(id int) bool {
	if _, ok := m.Points[id]; !ok {
		return false
	}
	delete(m.Points, id)

	for lid, l := range m.Links {
		if l.I == id || l.J == id {
			delete(m.Links, lid)
		}
	}
	for aid, a := range m.Angles {
		if a.I == id || a.J == id || a.K == id {
			delete(m.Angles, aid)
		}
	}
	for cid, c := range m.Coincides {
		if c.A == id || c.B == id {
			delete(m.Coincides, cid)
		}
	}
	for plid, pl := range m.PointLines {
		if pl.P == id || pl.I == id || pl.J == id {
			m.RemovePointLine(plid)
		}
	}
	for psid, ps := range m.PointSplines {
		if ps.P == id {
			delete(m.PointSplines, psid)
		}
	}
	for sid, s := range m.Splines {
		if slices.Contains(s.Points, id) {
			m.RemoveSpline(sid)
		}
	}
	for bid, b := range m.Bodies {
		if slices.Contains(b.Members, id) {
			delete(m.Bodies, bid)
		}
	}

	m.Loads = slices.DeleteFunc(m.Loads, func(l Load) bool {
		return l.PID == id || l.RefPID == id
	})
	m.Measures = slices.DeleteFunc(m.Measures, func(ms Measure) bool {
		switch ms.Type {
		case MeasureAngle:
			return ms.Pivot == id || ms.Tip == id
		case MeasureJoint:
			return ms.I == id || ms.J == id || ms.K == id
		}
		return false
	})
	m.LoadMeasures = slices.DeleteFunc(m.LoadMeasures, func(lm LoadMeasure) bool {
		return lm.PID == id
	})
	m.Drivers = slices.DeleteFunc(m.Drivers, func(d Driver) bool {
		return d.Type == DriverAngle && (d.Pivot == id || d.Tip == id)
	})
	m.Outputs = slices.DeleteFunc(m.Outputs, func(o Output) bool {
		return o.Pivot == id || o.Tip == id
	})
	return true
}

// RemovePointLine deletes a point-line together with translation drivers and
// translation measures that use it.
func (m *Model) RemovePointLine(id int) bool {
	if _, ok := m.PointLines[id]; !ok {
		return false
	}
	delete(m.PointLines, id)
	m.Drivers = slices.DeleteFunc(m.Drivers, func(d Driver) bool {
		return d.Type == DriverTranslation && d.PLID == id
	})
	m.Measures = slices.DeleteFunc(m.Measures, func(ms Measure) bool {
		return ms.Type == MeasureTranslation && ms.PLID == id
	})
	return true
}

// RemoveSpline deletes a spline and the point-splines bound to it.
func (m *Model) RemoveSpline(id int) bool {
	if _, ok := m.Splines[id]; !ok {
		return false
	}
	delete(m.Splines, id)
	for psid, ps := range m.PointSplines {
		if ps.Spline == id {
			delete(m.PointSplines, psid)
		}
	}
	return true
}

// RemoveConstraint deletes a typed constraint by kind and id.
func (m *Model) RemoveConstraint(kind Kind, id int) bool {
	switch kind {
	case KindLink:
		_, ok := m.Links[id]
		delete(m.Links, id)
		return ok
	case KindAngle:
		_, ok := m.Angles[id]
		delete(m.Angles, id)
		return ok
	case KindCoincide:
		_, ok := m.Coincides[id]
		delete(m.Coincides, id)
		return ok
	case KindPointLine:
		return m.RemovePointLine(id)
	case KindPointSpline:
		_, ok := m.PointSplines[id]
		delete(m.PointSplines, id)
		return ok
	}
	return false
}
