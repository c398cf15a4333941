// Package solver implements the fixed-step particle solver.
//
// Each call to [Solver.Update] runs Config.SubSteps sub-steps of:
//
//   - grid rebuild: every particle strictly inside a one-unit border band is
//     bucketed by floor(position) (serial);
//   - collision resolution: the grid columns are cut into slices and swept in
//     two barrier-joined phases, even slices then odd slices, each phase a
//     single [workpool.Pool.Dispatch];
//   - integration: a damped trapezoidal Verlet step for every particle,
//     followed by clamping into the world box (one Dispatch).
//
// # Race Freedom
//
// Two particles can only interact when they sit in the same or adjacent grid
// cells, hence in the same or adjacent columns. Slices are at least two
// columns wide, so slices running concurrently within one phase are separated
// by at least one column belonging to the other phase and never read or
// write the same particle. No locks or atomics guard particle data; ordering
// between phases comes entirely from Dispatch blocking the caller.
//
// # Models
//
// [ModelPositional] pushes overlapping particles apart symmetrically and
// ignores mass. [ModelMomentum] additionally exchanges velocities with the
// elastic collision formulas, minus Config.EnergyLoss, and reflects
// boundary hits. Both are applied as forces on the next integration step
// rather than immediate position changes.
//
// # Example
//
//	pool := workpool.New(0)
//	defer pool.Close()
//	s, _ := solver.New(solver.DefaultConfig(), pool)
//	s.Create(r2.Vec{X: 150, Y: 20})
//	_ = s.Update(1.0 / 60)
package solver
