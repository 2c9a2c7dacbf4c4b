// Package control provides feedback controllers for the closed-loop
// simulator. Every controller implements [dynamo.Controller]:
//
//   - [MPC]: one real-time iteration of nonlinear MPC per sample
//   - [LQR]: static state feedback, gains from [DesignLQR]
//   - [PID]: single-channel baseline
//   - [None]: constant feed-forward, no feedback
//
// # Usage
//
//	ctrl, err := rti.New(dims, solver.NewGaussNewton(model, opts))
//	if err != nil {
//		return err
//	}
//	if err := ctrl.Load(problem); err != nil {
//		return err
//	}
//	mpc := control.NewMPC(ctrl)
//	u := mpc.Compute(x, t)
package control
