package viz

import (
	"math"

	"github.com/san-kum/rtimpc/internal/dynamo"
)

// pixelsPerMetre scales positions of the translating plants.
const pixelsPerMetre = 20

// drawPlant renders x for the named plant. ref, when long enough, is drawn
// as a faint marker at the setpoint.
func drawPlant(c *Canvas, plant string, x, ref dynamo.State) {
	c.Clear()
	switch plant {
	case "pendulum":
		drawPendulum(c, x, ref)
	case "cartpole":
		drawCartPole(c, x, ref)
	case "spring_mass":
		drawSpring(c, x, ref)
	case "double_integrator":
		drawSlider(c, x, ref)
	default:
		drawBars(c, x)
	}
}

func drawPendulum(c *Canvas, x, ref dynamo.State) {
	if len(x) < 2 {
		return
	}
	w, h := c.Dots()
	cx, cy := w/2, 8
	length := float64(h) * 0.75
	tip := func(theta float64) (int, int) {
		return cx + int(length*math.Sin(theta)), cy + int(length*math.Cos(theta))
	}

	if len(ref) > 0 {
		rx, ry := tip(ref[0])
		c.Set(rx, ry)
	}
	bx, by := tip(x[0])
	c.Set(cx, cy)
	c.DrawLine(cx, cy, bx, by)
	c.FillRect(bx, by, 1, 1)
}

func drawCartPole(c *Canvas, x, ref dynamo.State) {
	if len(x) < 4 {
		return
	}
	w, h := c.Dots()
	ground := h - 12
	cart := w/2 + int(x[0]*pixelsPerMetre)
	c.DrawLine(0, ground+4, w, ground+4)
	if len(ref) > 0 {
		c.Set(w/2+int(ref[0]*pixelsPerMetre), ground+5)
	}
	c.FillRect(cart, ground+2, 6, 2)

	pole := float64(h) * 0.6
	px, py := cart+int(pole*math.Sin(x[2])), ground-int(pole*math.Cos(x[2]))
	c.DrawLine(cart, ground, px, py)
}

func drawSpring(c *Canvas, x, ref dynamo.State) {
	if len(x) < 1 {
		return
	}
	_, h := c.Dots()
	cy := h / 2
	wall := 20
	c.DrawLine(wall, cy-10, wall, cy+10)
	mass := wall + 40 + int(x[0]*pixelsPerMetre)
	if len(ref) > 0 {
		c.Set(wall+40+int(ref[0]*pixelsPerMetre), cy+6)
	}
	c.FillRect(mass, cy, 4, 4)

	const coils, amp = 10, 6
	step := float64(mass-wall-4) / coils
	prevX, prevY := wall, cy
	for i := 1; i <= coils; i++ {
		currX, currY := wall+int(float64(i)*step), cy+amp
		if i%2 == 0 {
			currY = cy - amp
		}
		c.DrawLine(prevX, prevY, currX, currY)
		prevX, prevY = currX, currY
	}
	c.DrawLine(prevX, prevY, mass-4, cy)
}

func drawSlider(c *Canvas, x, ref dynamo.State) {
	if len(x) < 1 {
		return
	}
	w, h := c.Dots()
	cy := h / 2
	c.DrawLine(0, cy+4, w, cy+4)
	target := w / 2
	if len(ref) > 0 {
		target += int(ref[0] * pixelsPerMetre)
	}
	c.DrawLine(target, cy+2, target, cy+8)
	c.FillRect(w/2+int(x[0]*pixelsPerMetre), cy, 3, 3)
}

// drawBars shows each state channel as a horizontal bar around the centre.
func drawBars(c *Canvas, x dynamo.State) {
	w, h := c.Dots()
	if len(x) == 0 {
		return
	}
	gap := h / (len(x) + 1)
	for i, v := range x {
		y := gap * (i + 1)
		end := w/2 + int(math.Max(-1, math.Min(1, v/10))*float64(w/2-1))
		c.DrawLine(w/2, y, end, y)
	}
}
