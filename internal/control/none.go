package control

import "github.com/san-kum/rtimpc/internal/dynamo"

// None applies a fixed control every sample, zero unless a feed-forward is
// given. It shows how the plant drifts without feedback.
type None struct {
	u dynamo.Control
}

func NewNone(feedForward dynamo.Control) *None {
	return &None{u: feedForward.Clone()}
}

func (n *None) Compute(x dynamo.State, t float64) dynamo.Control {
	return n.u.Clone()
}
