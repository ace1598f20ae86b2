package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kurnia-dev/smartenergy/config"
	"github.com/kurnia-dev/smartenergy/infra/logger"
	"github.com/kurnia-dev/smartenergy/infra/mqtt"
)

var (
	simTopic    string
	simInterval time.Duration
	simWatts    float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Publish fake telemetry for a device topic",
	RunE:  runSimulate,
}

func init() {
	simulateCmd.Flags().StringVarP(&simTopic, "topic", "t", "", "telemetry topic to publish on")
	simulateCmd.Flags().DurationVarP(&simInterval, "interval", "i", 5*time.Second, "publish interval")
	simulateCmd.Flags().Float64VarP(&simWatts, "watts", "w", 150, "baseline power draw")
	_ = simulateCmd.MarkFlagRequired("topic")
	rootCmd.AddCommand(simulateCmd)
}

type simReading struct {
	Volt   float64 `json:"volt"`
	Ampere float64 `json:"ampere"`
	Watt   float64 `json:"watt"`
	Energy float64 `json:"energy"`
}

// runSimulate publishes a random-walk meter feed until interrupted. The
// energy counter is cumulative, matching what a real meter reports.
func runSimulate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	mqttCfg := cfg.MQTT
	mqttCfg.ClientID = fmt.Sprintf("simulate-%d", time.Now().UnixNano())

	conn, err := mqtt.Connect(mqttCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	defer conn.Close()

	log := logger.New("simulate")
	watts := simWatts
	var energy float64
	ticker := time.NewTicker(simInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			watts += (rand.Float64() - 0.5) * simWatts * 0.1
			if watts < 0 {
				watts = 0
			}
			energy += watts * simInterval.Hours() / 1000
			r := simReading{
				Volt:   220 + (rand.Float64()-0.5)*4,
				Ampere: watts / 220,
				Watt:   watts,
				Energy: energy,
			}
			payload, err := json.Marshal(r)
			if err != nil {
				return err
			}
			if err := conn.Publish(simTopic, payload); err != nil {
				log.Errorf("publish: %v", err)
				continue
			}
			log.Debugf("published %.1fW to %s", watts, simTopic)
		}
	}
}
