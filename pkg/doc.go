// Package pkg provides the libraries behind the linkage mechanism solver.
//
// # Overview
//
// Linkage computes consistent point positions for planar mechanism sketches,
// drives them through a range of motion and derives quasi-static joint loads.
// The pkg directory is organized into four areas:
//
//  1. Model - [model] (points, constraints, drivers, loads, JSON schema) and
//     [expr] (parameter and signal expressions)
//  2. Solvers - [geom], [constraint], [solver] (iterative projection),
//     [residual], [accurate] (least squares), [dof] (structural analysis),
//     [statics] (joint reactions)
//  3. Motion - [kinematics] (drivers with relative zero) and [sweep]
//  4. Infrastructure - [pipeline], [cache], [runstore], [config], [errors],
//     [observability], [buildinfo]
//
// # Data Flow
//
//	project JSON
//	     ↓
//	[model] ReadJSON (legacy split, parameters)
//	     ↓
//	[solver] Projection / [accurate] Solve
//	     ↓
//	[dof] Analyze   [statics] Compute   [sweep] Run
//	     ↓
//	report, PNG plot, saved run
//
// # Quick Start
//
//	m, err := model.ImportJSON("fourbar.json")
//	if err != nil {
//	    return err
//	}
//	solver.Projection(m)
//
//	res, err := sweep.Run(ctx, m, sweep.Options{End: 360, Step: 5})
//	if err != nil {
//	    return err
//	}
//	fmt.Println(res.Summary.SuccessRate)
//
// The [pipeline] package wraps these calls with caching and run storage and is
// what the CLI and HTTP API use.
package pkg
