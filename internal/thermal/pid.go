package thermal

import "time"

// pidController holds the integral/derivative history for one zone. It
// is owned exclusively by the Service and replaced wholesale when the
// control mode changes.
type pidController struct {
	strategy  Strategy
	integral  float64
	prevError float64
	primed    bool
	last      time.Time
}

func newPID(s Strategy) *pidController {
	return &pidController{strategy: s}
}

// Update computes the bounded actuator output for one sample. dt is the
// wall-clock time since the previous sample; on the first sample the
// integral does not advance and the derivative term is zero.
func (c *pidController) Update(setpoint, measured float64, now time.Time) float64 {
	s := c.strategy
	err := setpoint - measured

	var dt float64
	if c.primed {
		dt = now.Sub(c.last).Seconds()
	}

	p := s.Kp * err

	if dt > 0 {
		c.integral += err * dt
		// Anti-windup: bound the integral so the I term alone cannot
		// exceed half the output span.
		if s.Ki != 0 {
			limit := (s.MaxOutput - s.MinOutput) / (2 * abs(s.Ki))
			if c.integral > limit {
				c.integral = limit
			} else if c.integral < -limit {
				c.integral = -limit
			}
		}
	}
	i := s.Ki * c.integral

	var d float64
	if dt > 0 {
		d = s.Kd * (err - c.prevError) / dt
	}

	c.prevError = err
	c.last = now
	c.primed = true

	output := p + i + d
	if output < s.MinOutput {
		output = s.MinOutput
	} else if output > s.MaxOutput {
		output = s.MaxOutput
	}

	return output
}

// strategies returns the built-in gain/bound presets per control mode.
func strategies() map[ControlMode]Strategy {
	return map[ControlMode]Strategy{
		ModeSetpoint: {
			Deadband:  0.5,
			Kp:        -2.0,
			Ki:        -0.10,
			Kd:        -0.5,
			MinOutput: 0,
			MaxOutput: 100,
		},
		ModeDeltaT: {
			Deadband:  1.0,
			Kp:        -3.0,
			Ki:        -0.20,
			Kd:        -1.0,
			MinOutput: 0,
			MaxOutput: 100,
		},
		ModeEconomy: {
			Deadband:  2.0,
			Kp:        -1.2,
			Ki:        -0.05,
			Kd:        -0.3,
			MinOutput: 0,
			MaxOutput: 70,
		},
		ModePerformance: {
			Deadband:  0.2,
			Kp:        -4.0,
			Ki:        -0.30,
			Kd:        -1.5,
			MinOutput: 20,
			MaxOutput: 100,
		},
	}
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}

	return x
}
