package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ostvolt/coolantctl/internal/config"
	"github.com/ostvolt/coolantctl/internal/coolant"
	"github.com/ostvolt/coolantctl/internal/logger"
	"github.com/ostvolt/coolantctl/internal/mqtt"
	"github.com/ostvolt/coolantctl/internal/notify"
	"github.com/ostvolt/coolantctl/internal/pidfile"
	"github.com/ostvolt/coolantctl/internal/pump"
	"github.com/ostvolt/coolantctl/internal/telemetry"
	"github.com/ostvolt/coolantctl/internal/thermal"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.LogLevel, logger.IsService()); err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.Debug().Msg("Config loaded")

	if err := pidfile.Write(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to write PID file")
	}
	defer pidfile.Remove()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	if err := run(ctx, cfg); err != nil {
		logger.Error().Err(err).Msg("Daemon exited with error")
	}
	logger.Info().Msg("Exiting...")
}

func run(ctx context.Context, cfg *config.Config) error {
	dispatcher := notify.NewDispatcher()
	monitor := coolant.New(dispatcher)
	pumps := pump.NewController(pump.Options{Events: dispatcher})

	svc, err := thermal.New(monitor, pumps, dispatcher, thermal.Options{
		ControlInterval: time.Duration(cfg.ControlInterval) * time.Second,
		Monitor:         cfg.Monitor,
		InitialMode:     thermal.ControlMode(cfg.ControlMode),
	})
	if err != nil {
		return err
	}

	// Pump faults surface as zone actuator alerts.
	dispatcher.SubscribePump(svc)

	systemIDs, err := registerSystems(cfg, monitor, pumps, svc)
	if err != nil {
		return err
	}
	logger.Info().
		Int("systems", len(systemIDs)).
		Str("control_mode", cfg.ControlMode).
		Bool("monitor", cfg.Monitor).
		Msg("Cooling systems registered")

	if cfg.MQTTBroker != "" {
		clientID := cfg.MQTTClientID
		if clientID == "" {
			clientID = "coolantctl"
		}
		client, err := mqtt.NewRealClient(cfg.MQTTBroker, clientID)
		if err != nil {
			return err
		}
		defer client.Close()

		bridge := mqtt.NewBridge(client, monitor, svc, mqtt.BridgeOptions{TopicPrefix: cfg.MQTTTopicPrefix})
		if err := bridge.SubscribeInbound(); err != nil {
			return err
		}
		dispatcher.SubscribePump(bridge)
		dispatcher.SubscribeCoolant(bridge)
		dispatcher.SubscribeZone(bridge)
		dispatcher.SubscribeEmergency(bridge)
		go bridge.Run(ctx)

		logger.Info().Str("broker", cfg.MQTTBroker).Msg("MQTT bridge connected")
	}

	var repo telemetry.Repository = telemetry.NopRepository{}
	if cfg.Telemetry {
		sqlRepo, err := telemetry.NewRepository(telemetry.Config{DBPath: cfg.TelemetryDB})
		if err != nil {
			return err
		}
		defer sqlRepo.Close()
		repo = sqlRepo

		logger.Info().Str("database", cfg.TelemetryDB).Msg("Telemetry recording enabled")
	}
	collector := telemetry.NewCollector(repo, monitor, svc, pumps, systemIDs)
	go collector.Run(ctx, time.Duration(cfg.ControlInterval)*time.Second)

	go pumps.RunScheduler(ctx, time.Duration(cfg.SchedulerInterval)*time.Second)

	svc.Run(ctx)

	return nil
}

func registerSystems(cfg *config.Config, monitor coolant.Monitor, pumps *pump.Controller, svc *thermal.Service) ([]string, error) {
	systemIDs := make([]string, 0, len(cfg.Systems))

	for _, sys := range cfg.Systems {
		systemIDs = append(systemIDs, sys.ID)

		if sys.Thresholds != nil {
			monitor.SetThresholds(sys.ID, mergeThresholds(*sys.Thresholds))
		}

		for _, p := range sys.Pumps {
			if err := pumps.Register(pump.Config{
				ID:                  p.ID,
				SystemID:            sys.ID,
				MaxRPM:              p.MaxRPM,
				RatedPower:          p.RatedPower,
				MinSpeedPercent:     p.MinSpeed,
				MaxSpeedPercent:     p.MaxSpeed,
				OptimalSpeedPercent: p.OptimalSpeed,
				StartupDelay:        time.Duration(p.StartupDelay * float64(time.Second)),
				ShutdownDelay:       time.Duration(p.ShutdownDelay * float64(time.Second)),
				Redundant:           p.Redundant,
				PrimaryPumpID:       p.PrimaryPump,
			}); err != nil {
				return nil, err
			}

			if p.Schedule != nil {
				days, err := p.Schedule.Weekdays()
				if err != nil {
					return nil, err
				}
				if err := pumps.SetSchedule(pump.Schedule{
					PumpID:      p.ID,
					StartTime:   p.Schedule.Start,
					StopTime:    p.Schedule.Stop,
					TargetSpeed: p.Schedule.TargetSpeed,
					Days:        days,
					Enabled:     p.Schedule.Enabled,
				}); err != nil {
					return nil, err
				}
			}
		}

		for _, z := range sys.Zones {
			actuators := make([]thermal.Actuator, 0, len(z.Actuators))
			for _, a := range z.Actuators {
				actuators = append(actuators, thermal.Actuator{
					ID:     a.ID,
					Type:   thermal.ActuatorType(a.Type),
					PumpID: a.Pump,
				})
			}
			if err := svc.RegisterZone(thermal.Zone{
				ID:                z.ID,
				SystemID:          sys.ID,
				TargetTemperature: z.Target,
				MinTemperature:    z.Min,
				MaxTemperature:    z.Max,
				Priority:          z.Priority,
				Actuators:         actuators,
			}); err != nil {
				return nil, err
			}
		}
	}

	return systemIDs, nil
}

// mergeThresholds overlays the configured limits on the defaults; zero
// fields keep their built-in values.
func mergeThresholds(t config.Thresholds) coolant.Thresholds {
	merged := coolant.DefaultThresholds()

	overlay := func(dst *float64, v float64) {
		if v != 0 {
			*dst = v
		}
	}
	overlay(&merged.InletWarning, t.InletWarning)
	overlay(&merged.InletCritical, t.InletCritical)
	overlay(&merged.OutletWarning, t.OutletWarning)
	overlay(&merged.OutletCritical, t.OutletCritical)
	overlay(&merged.FlowWarning, t.FlowWarning)
	overlay(&merged.FlowCritical, t.FlowCritical)
	overlay(&merged.PressureWarning, t.PressureWarning)
	overlay(&merged.PressureCritical, t.PressureCritical)
	overlay(&merged.LevelWarning, t.LevelWarning)
	overlay(&merged.LevelCritical, t.LevelCritical)
	overlay(&merged.DeltaTDegraded, t.DeltaTDegraded)

	return merged
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}
