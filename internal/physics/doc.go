// Package physics provides the plants the controller is exercised against.
//
// Continuous plants implement [dynamo.System]:
//
//   - [Pendulum]: torque-driven damped pendulum
//   - [CartPole]: pole balanced on a cart
//   - [SpringMass]: forced damped oscillator
//   - [DoubleIntegrator]: force on a free mass
//
// [Discretize] turns any of them into a discrete-time model with
// finite-difference Jacobians for the solver; [Linear] is an exact
// discrete-time linear plant.
//
//	model := physics.Discretize(physics.NewPendulum(), integrators.NewRK4(), 0.05)
//	adapter := solver.NewGaussNewton(model, solver.DefaultOptions())
package physics
