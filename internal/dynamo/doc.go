// Package dynamo provides core primitives shared by plants, integrators and
// controllers:
//
//   - [State] and [Control]: per-stage vectors
//   - [System]: continuous-time plant (dX/dt = f(X, u, t))
//   - [Integrator]: one-step discretisation of a [System]
//   - [Controller]: feedback law evaluated once per sampling instant
//   - [Metric] and [Observer]: closed-loop instrumentation
//
// # Example
//
//	dyn := physics.NewPendulum()
//	integ := integrators.NewRK4()
//	x1 := integ.Step(dyn, x0, u, 0, 0.05)
//
// Nothing in this package holds global state.
package dynamo
