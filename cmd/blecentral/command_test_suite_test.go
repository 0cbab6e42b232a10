package main

import (
	"bytes"
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/srg/blecentral/internal/driver/goble"
	"github.com/srg/blecentral/internal/mqttbridge"
	"github.com/srg/blecentral/internal/testutils"
	"github.com/stretchr/testify/suite"
)

// Test device addresses for consistent mock device identification
const (
	TestDeviceAddress1 = "00:00:00:00:00:01"
	TestDeviceAddress2 = "00:00:00:00:00:02"
)

// replayDevice reports its advertisements once, then scans until cancelled
type replayDevice struct {
	ads     []*testutils.MockAdvertisement
	scanErr error
}

func (d *replayDevice) Scan(ctx context.Context, _ bool, handler func(goble.Advertisement)) error {
	for _, adv := range d.ads {
		handler(adv)
	}
	if d.scanErr != nil {
		return d.scanErr
	}
	<-ctx.Done()
	return ctx.Err()
}

// recordingPublisher stands in for the MQTT client
type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	closed bool
}

func (p *recordingPublisher) Publish(topic string, _ []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	return nil
}

func (p *recordingPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// CommandTestSuite runs commands against a replaying fake adapter.
type CommandTestSuite struct {
	suite.Suite

	device          *replayDevice
	originalFactory func() (goble.ScanningDevice, error)
	originalMQTT    func(mqttbridge.Config, *logrus.Logger) (mqttbridge.Publisher, func() error, error)
}

func (s *CommandTestSuite) SetupTest() {
	s.device = &replayDevice{
		ads: testutils.NewAdvertisementArrayBuilder().
			WithNewAdvertisement().
			WithName("Heart Monitor").
			WithAddress(TestDeviceAddress1).
			WithRSSI(-48).
			WithTxPower(4).
			WithServices("180D").
			WithManufacturerData([]byte{0x4C, 0x00, 0x02, 0x15}).
			Build().
			WithNewAdvertisement().
			WithName("Battery Tag").
			WithAddress(TestDeviceAddress2).
			WithRSSI(-71).
			WithServices("180F").
			WithServiceData("180F", []byte{0x64}).
			Build().
			Build(),
	}

	s.originalFactory = goble.DeviceFactory
	goble.DeviceFactory = func() (goble.ScanningDevice, error) {
		return s.device, nil
	}
	s.originalMQTT = connectMQTT

	resetFlags(rootCmd)
}

func (s *CommandTestSuite) TearDownTest() {
	goble.DeviceFactory = s.originalFactory
	connectMQTT = s.originalMQTT
}

// ExecuteCommand runs the root command with args, returns stdout, stderr and error.
func (s *CommandTestSuite) ExecuteCommand(args ...string) (string, string, error) {
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

// resetFlags restores every flag of cmd and its subcommands to its default
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}
