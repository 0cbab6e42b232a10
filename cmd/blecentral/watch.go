package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/blecentral/internal/central"
	"github.com/srg/blecentral/internal/config"
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream BLE discovery events",
	Long: `Scan for Bluetooth Low Energy devices and print every event as it is
emitted: device discovered or updated, followed by its manufacturer data,
service data and advertised services.

Runs until Ctrl+C unless --duration is given.`,
	RunE: runWatch,
}

var (
	watchDuration        time.Duration
	watchServices        []string
	watchAllowDuplicates bool
	watchColor           string
)

func init() {
	watchCmd.Flags().DurationVarP(&watchDuration, "duration", "d", 0, "Watch duration (0 for indefinite)")
	watchCmd.Flags().StringSliceVarP(&watchServices, "services", "s", nil, "Filter by service UUIDs")
	watchCmd.Flags().BoolVar(&watchAllowDuplicates, "allow-duplicates", true, "Report repeated advertisements")
	watchCmd.Flags().StringVar(&watchColor, "color", "auto", "Colorize event kinds (auto, always, never)")
}

// applyWatchFlags overrides configuration with watch flags. Unlike scan,
// watch runs indefinitely and reports duplicates unless told otherwise.
func applyWatchFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	cfg.Scan.Duration = watchDuration
	cfg.Scan.AllowDuplicates = watchAllowDuplicates
	if flags.Changed("services") {
		cfg.Scan.Services = watchServices
	}
	if flags.Changed("color") {
		cfg.Output.Color = watchColor
	}
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, logger, filter, err := prepare(cmd, applyWatchFlags)
	if err != nil {
		return err
	}

	cmd.SilenceUsage = true

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess, err := newSession(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer sess.Close()

	// Subscribe before scanning so the first discoveries are not missed
	sub := sess.manager.Subscribe()
	defer sub.Close()

	if err := sess.manager.StartScan(ctx, filter); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	printer := newEventPrinter(out, useColor(cfg.Output.Color, out))

	var timeout <-chan time.Time
	if cfg.Scan.Duration > 0 {
		timer := time.NewTimer(cfg.Scan.Duration)
		defer timer.Stop()
		timeout = timer.C
	}

	events := 0
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-timeout:
			break loop
		case <-sess.driver.Done():
			break loop
		case ev, ok := <-sub.C():
			if !ok {
				break loop
			}
			if err := printer.Print(ev); err != nil {
				return err
			}
			events++
		}
	}

	if err := stopScan(sess); err != nil {
		return err
	}

	// Events published before the scan stopped are still buffered
	n, err := drainEvents(sub, printer)
	events += n
	if err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"events":      events,
		"peripherals": sess.manager.PeripheralCount(),
		"dropped":     sub.Dropped(),
	}).Info("Watch finished")
	fmt.Fprintf(cmd.ErrOrStderr(), "%d events, %d devices\n", events, sess.manager.PeripheralCount())
	return nil
}

// drainEvents prints whatever is buffered without waiting for more
func drainEvents(sub *central.Subscription, printer *eventPrinter) (int, error) {
	n := 0
	for {
		select {
		case ev, ok := <-sub.C():
			if !ok {
				return n, nil
			}
			if err := printer.Print(ev); err != nil {
				return n, err
			}
			n++
		default:
			return n, nil
		}
	}
}
