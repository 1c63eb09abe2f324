package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/d21d3q/sma2mqtt/internal/config"
	"github.com/d21d3q/sma2mqtt/internal/listener"
	"github.com/d21d3q/sma2mqtt/internal/mqtt"
	"github.com/d21d3q/sma2mqtt/pkg/speedwire"
)

var (
	rootCmd = &cobra.Command{
		Use:   "sma2mqtt",
		Short: "Bridge SMA Speedwire energy-meter telemetry to MQTT",
		Long: "sma2mqtt joins the Speedwire multicast group, decodes Energy Meter " +
			"datagrams, and republishes scaled readings to an MQTT broker with " +
			"Home Assistant discovery.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context())
		},
	}

	configPath string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to sma2mqtt.yaml")
}

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logrus.Fatal(err)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logrus.SetLevel(level)
	} else {
		logrus.WithField("log_level", cfg.LogLevel).Warn("unknown log level, keeping info")
	}

	pub := mqtt.New(cfg.MQTT, logrus.WithField("component", "mqtt"))
	if err := pub.Start(ctx); err != nil {
		return err
	}

	lis, err := listener.New(cfg.Multicast.Group, cfg.Multicast.Port, cfg.Multicast.Interface)
	if err != nil {
		return err
	}

	log := logrus.WithField("component", "bridge")
	log.WithFields(logrus.Fields{
		"group": cfg.Multicast.Group,
		"port":  cfg.Multicast.Port,
	}).Info("listening for Speedwire datagrams")

	// Publishing runs on its own goroutine behind a small buffer so a
	// slow broker never stalls datagram reception. In-flight publishes
	// survive shutdown until the drain below finishes.
	pubCtx := context.WithoutCancel(ctx)
	frames := make(chan speedwire.Result, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for res := range frames {
			serial := res.SerialString()
			if pub.MarkSeen(res.Serial) {
				pub.PublishDiscovery(pubCtx, serial, res.Readings)
			}
			pub.PublishReadings(pubCtx, serial, res.Readings)
		}
	}()

	runErr := lis.Run(ctx, func(datagram []byte) {
		res, err := speedwire.Decode(datagram)
		if err != nil {
			// Mixed-traffic networks carry foreign multicast; one bad
			// frame never ends the loop.
			log.WithError(err).Debug("discarding datagram")
			return
		}
		if res.KeepAlive || len(res.Readings) == 0 {
			return
		}
		select {
		case frames <- res:
		default:
			log.Warn("publish queue full, dropping frame")
		}
	})

	close(frames)
	<-done

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pub.Stop(stopCtx); err != nil {
		log.WithError(err).Warn("broker disconnect failed")
	}
	return runErr
}
