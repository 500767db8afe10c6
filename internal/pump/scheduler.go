package pump

import (
	"context"
	"fmt"
	"time"

	"github.com/ostvolt/coolantctl/internal/errors"
	"github.com/ostvolt/coolantctl/internal/logger"
)

const clockLayout = "15:04"

// SetSchedule registers an on/off window for a pump.
func (c *Controller) SetSchedule(s Schedule) error {
	errFactory := errors.New()

	if c.pump(s.PumpID) == nil {
		return errFactory.WithData(errors.ErrPumpNotFound, s.PumpID)
	}
	if _, err := time.Parse(clockLayout, s.StartTime); err != nil {
		return errFactory.WithData(errors.ErrInvalidConfig, fmt.Sprintf("bad start time %q", s.StartTime))
	}
	if _, err := time.Parse(clockLayout, s.StopTime); err != nil {
		return errFactory.WithData(errors.ErrInvalidConfig, fmt.Sprintf("bad stop time %q", s.StopTime))
	}
	if s.TargetSpeed < 0 || s.TargetSpeed > 100 {
		return errFactory.WithData(errors.ErrSpeedOutOfRange, s.TargetSpeed)
	}
	if len(s.Days) == 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, "schedule needs at least one weekday")
	}

	c.mu.Lock()
	c.schedules[s.PumpID] = append(c.schedules[s.PumpID], s)
	c.mu.Unlock()

	logger.Info().
		Str("pump_id", s.PumpID).
		Str("start_time", s.StartTime).
		Str("stop_time", s.StopTime).
		Float64("target_speed", s.TargetSpeed).
		Msg("Pump schedule registered")

	return nil
}

// Schedules returns the registered schedules for a pump.
func (c *Controller) Schedules(pumpID string) []Schedule {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return append([]Schedule(nil), c.schedules[pumpID]...)
}

// RunScheduler evaluates schedules once per interval until the context
// is cancelled. An interval of zero defaults to one minute.
func (c *Controller) RunScheduler(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Debug().Dur("interval", interval).Msg("Pump scheduler started")

	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("Pump scheduler stopped")
			return
		case <-ticker.C:
			c.applySchedules(c.now())
		}
	}
}

// applySchedules matches the formatted clock exactly: a tick missed
// across a boundary skips that day's transition instead of catching up.
func (c *Controller) applySchedules(now time.Time) {
	c.mu.RLock()
	var due []Schedule
	for _, list := range c.schedules {
		due = append(due, list...)
	}
	c.mu.RUnlock()

	hhmm := now.Format(clockLayout)
	weekday := now.Weekday()

	for _, s := range due {
		if !s.Enabled || !scheduleOnDay(s, weekday) {
			continue
		}

		ps := c.pump(s.PumpID)
		if ps == nil {
			continue
		}

		status := ps.snapshot()
		if status.Mode != ModeScheduled || status.State == StateMaintenance {
			continue
		}

		switch hhmm {
		case s.StartTime:
			if c.Start(s.PumpID, "scheduled start") && s.TargetSpeed > 0 {
				c.SetSpeed(s.PumpID, s.TargetSpeed)
			}
		case s.StopTime:
			c.Stop(s.PumpID, "scheduled stop")
		}
	}
}

func scheduleOnDay(s Schedule, day time.Weekday) bool {
	for _, d := range s.Days {
		if d == day {
			return true
		}
	}

	return false
}
