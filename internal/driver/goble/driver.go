// Package goble drives a platform Bluetooth adapter through go-ble and
// reports every advertisement it receives to the event bridge.
package goble

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blecentral/internal/device"
	"github.com/srg/blecentral/internal/groutine"
)

// Reporter receives sightings. *central.Manager implements it.
type Reporter interface {
	ReportSighting(s device.Sighting) (device.Peripheral, error)
}

// ScanningDevice represents a BLE device capable of scanning for advertisements
type ScanningDevice interface {
	Scan(ctx context.Context, allowDup bool, handler func(Advertisement)) error
}

// bleScanningDevice wraps ble.Device to implement ScanningDevice
type bleScanningDevice struct {
	dev ble.Device
}

// Scan adapts a handler expecting an Advertisement to the one expecting ble.Advertisement
func (s *bleScanningDevice) Scan(ctx context.Context, allowDup bool, handler func(Advertisement)) error {
	return s.dev.Scan(ctx, allowDup, func(adv ble.Advertisement) {
		handler(adv)
	})
}

// DeviceFactory opens the platform adapter.
// This is a variable so that it can be overridden in tests.
var DeviceFactory = func() (ScanningDevice, error) {
	dev, err := newPlatformDevice()
	if err != nil {
		return nil, device.NormalizeError(err)
	}
	return &bleScanningDevice{dev: dev}, nil
}

// Options configures a Driver
type Options struct {
	// AllowDuplicates reports repeated advertisements from the same device.
	AllowDuplicates bool
}

// Driver implements central.Driver on top of go-ble.
type Driver struct {
	reporter Reporter
	opts     Options
	logger   *logrus.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    <-chan struct{}
	scanErr error
}

// NewDriver creates a driver reporting to reporter
func NewDriver(reporter Reporter, logger *logrus.Logger, opts *Options) *Driver {
	if logger == nil {
		logger = logrus.New()
	}
	if opts == nil {
		opts = &Options{}
	}
	return &Driver{
		reporter: reporter,
		opts:     *opts,
		logger:   logger,
	}
}

// SetReporter sets the sighting destination. Call before StartScan.
func (d *Driver) SetReporter(r Reporter) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reporter = r
}

// Info describes the driver
func (d *Driver) Info() string {
	return "go-ble"
}

// StartScan opens the adapter and scans in the background until StopScan.
// Only advertisements matching filter are reported.
func (d *Driver) StartScan(ctx context.Context, filter device.ScanFilter) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cancel != nil {
		select {
		case <-d.done:
			// StopScan gave up waiting and the scan has ended since
			d.cancel()
			d.cancel, d.done = nil, nil
		default:
			return device.ErrAlreadyScanning
		}
	}
	if d.reporter == nil {
		return errors.New("no sighting reporter configured")
	}

	dev, err := DeviceFactory()
	if err != nil {
		return fmt.Errorf("failed to create BLE device: %w", err)
	}

	scanCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	reporter := d.reporter
	d.cancel = cancel
	d.scanErr = nil

	d.done = groutine.Go(scanCtx, "ble-scan", func(ctx context.Context) {
		err := dev.Scan(ctx, d.opts.AllowDuplicates, func(adv Advertisement) {
			d.handleAdvertisement(reporter, filter, adv)
		})
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			err = device.NormalizeError(err)
			d.logger.WithError(err).WithField("goroutine", groutine.GetName(ctx)).Error("BLE scan failed")

			d.mu.Lock()
			d.scanErr = err
			d.mu.Unlock()
		}
	})

	return nil
}

// handleAdvertisement reports one advertisement, applying the scan filter
func (d *Driver) handleAdvertisement(reporter Reporter, filter device.ScanFilter, adv Advertisement) {
	s := ToSighting(adv)
	if !filter.Matches(s.Advertisement.Services) {
		return
	}

	if _, err := reporter.ReportSighting(s); err != nil {
		d.logger.WithError(err).WithField("address", s.Address).Debug("Sighting rejected")
	}
}

// StopScan cancels the running scan and waits for it to finish or for ctx
// to expire. Returns the scan failure, if the scan ended with one. When ctx
// expires first the scan keeps winding down and StartScan succeeds again
// once it has.
func (d *Driver) StopScan(ctx context.Context) error {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.mu.Unlock()

	if cancel == nil {
		return device.ErrNotScanning
	}

	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancel = nil
	d.done = nil
	return d.scanErr
}

// Done returns a channel closed when the current scan ends, or nil when idle
func (d *Driver) Done() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.done
}

// Err returns the failure the last scan ended with
func (d *Driver) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.scanErr
}
