package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/d21d3q/sma2mqtt/internal/records"
	"github.com/d21d3q/sma2mqtt/pkg/speedwire"
)

var (
	rootCmd = &cobra.Command{
		Use:   "sma2mqtt-analyze [hex]",
		Short: "Decode Speedwire energy-meter frames",
		Long:  "sma2mqtt-analyze decodes captured Speedwire frames offline using the sma2mqtt decoder.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if len(args) == 0 {
				return runInteractive()
			}
			return runAnalyze(args[0])
		},
	}

	dumpRecords bool
)

func init() {
	rootCmd.PersistentFlags().BoolVar(&dumpRecords, "records", false, "dump raw OBIS records alongside the readings")
}

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if err := rootCmd.Execute(); err != nil {
		logrus.Fatal(err)
	}
}

func runInteractive() error {
	scanner := bufio.NewScanner(os.Stdin)
	logrus.Info("analyze mode. Paste a hex frame and press Enter (Ctrl+D to exit).")
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := runAnalyze(line); err != nil {
			logrus.WithError(err).Error("failed to decode frame")
		}
	}
	return scanner.Err()
}

func runAnalyze(hex string) error {
	result, err := speedwire.DecodeHex(hex, speedwire.Options{})
	if err != nil {
		return err
	}
	fmt.Println(result.String())
	if dumpRecords {
		for _, rec := range result.Records {
			raw := any(rec.Value)
			if rec.Type == records.TypeCounter {
				raw = rec.Counter
			}
			fmt.Printf("channel=%d index=%d type=%d tariff=%d raw=%d\n",
				rec.Channel, rec.Index, rec.Type, rec.Tariff, raw)
		}
	}
	return nil
}
