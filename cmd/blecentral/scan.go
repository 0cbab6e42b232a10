package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/blecentral/internal/config"
	"github.com/srg/blecentral/internal/device"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for BLE devices",
	Long: `Scan for Bluetooth Low Energy devices in the vicinity and print the
peripheral registry once the scan ends.

The scan stops after --duration or on Ctrl+C, whichever comes first.`,
	RunE: runScan,
}

var (
	scanDuration        time.Duration
	scanFormat          string
	scanServices        []string
	scanAllowDuplicates bool
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 10*time.Second, "Scan duration (0 for indefinite)")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "table", "Output format (table, json)")
	scanCmd.Flags().StringSliceVarP(&scanServices, "services", "s", nil, "Filter by service UUIDs")
	scanCmd.Flags().BoolVar(&scanAllowDuplicates, "allow-duplicates", false, "Report repeated advertisements")
}

// applyScanFlags overrides configuration with explicitly given scan flags
func applyScanFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("duration") {
		cfg.Scan.Duration = scanDuration
	}
	if flags.Changed("format") {
		cfg.Output.Format = scanFormat
	}
	if flags.Changed("services") {
		cfg.Scan.Services = scanServices
	}
	if flags.Changed("allow-duplicates") {
		cfg.Scan.AllowDuplicates = scanAllowDuplicates
	}
}

// prepare loads configuration, applies flags and validates the result
func prepare(cmd *cobra.Command, applyFlags func(*cobra.Command, *config.Config)) (*config.Config, *logrus.Logger, device.ScanFilter, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, device.ScanFilter{}, err
	}
	applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, nil, device.ScanFilter{}, err
	}

	logger, err := configureLogger(cmd, "verbose", cfg)
	if err != nil {
		return nil, nil, device.ScanFilter{}, err
	}

	filter, err := cfg.ScanFilter()
	if err != nil {
		return nil, nil, device.ScanFilter{}, fmt.Errorf("invalid service UUID: %w", err)
	}
	return cfg, logger, filter, nil
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, logger, filter, err := prepare(cmd, applyScanFlags)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess, err := newSession(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := sess.manager.StartScan(ctx, filter); err != nil {
		return err
	}

	var progress *ProgressPrinter
	if isTerminal(cmd.ErrOrStderr()) {
		progress = NewProgressPrinter(cmd.ErrOrStderr(), "Scanning for BLE devices", cfg.Scan.Duration, sess.manager.PeripheralCount)
		progress.Start()
	}

	waitScan(ctx, cfg.Scan.Duration, sess.driver.Done())
	if progress != nil {
		progress.Stop()
	}

	if err := stopScan(sess); err != nil {
		return err
	}

	peripherals := sess.manager.Peripherals()
	sortPeripherals(peripherals)

	switch cfg.Output.Format {
	case "json":
		return displayPeripheralsJSON(cmd.OutOrStdout(), peripherals)
	default:
		return displayPeripheralsTable(cmd.OutOrStdout(), peripherals)
	}
}

// waitScan blocks until the duration elapses, ctx is done or the scan ends
// on its own. Zero duration waits for the other two.
func waitScan(ctx context.Context, duration time.Duration, scanDone <-chan struct{}) {
	var timeout <-chan time.Time
	if duration > 0 {
		timer := time.NewTimer(duration)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-timeout:
	case <-ctx.Done():
	case <-scanDone:
	}
}

// stopScan stops the driver, bounded by shutdownTimeout
func stopScan(sess *session) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return sess.manager.StopScan(ctx)
}
