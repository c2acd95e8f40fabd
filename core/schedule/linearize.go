package schedule

import (
	"fmt"

	"github.com/kilianp07/bhkw/core/model"
)

// Line is the affine coupling Q = Slope·Power + Intercept·Online between the
// electrical load and a dependent quantity (fuel or heat).
type Line struct {
	Slope     float64
	Intercept float64
}

// At returns the dependent quantity at the given load and commitment.
func (l Line) At(power, online float64) float64 {
	return l.Slope*power + l.Intercept*online
}

// Linearize returns the line through (PowerMin, qMin) and (PowerMax, qMax).
func Linearize(env model.Envelope, qMin, qMax float64) (Line, error) {
	width := env.PowerMax - env.PowerMin
	if width <= 0 {
		return Line{}, fmt.Errorf("%w: zero-width power range [%g, %g]", model.ErrInvalidEnvelope, env.PowerMin, env.PowerMax)
	}
	a := (qMax - qMin) / width
	return Line{Slope: a, Intercept: qMax - a*env.PowerMax}, nil
}
