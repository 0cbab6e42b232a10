package central_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blecentral/internal/central"
	"github.com/srg/blecentral/internal/device"
	"github.com/srg/blecentral/internal/metrics"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type mockDriver struct {
	mock.Mock
}

func (d *mockDriver) StartScan(ctx context.Context, filter device.ScanFilter) error {
	return d.Called(ctx, filter).Error(0)
}

func (d *mockDriver) StopScan(ctx context.Context) error {
	return d.Called(ctx).Error(0)
}

func (d *mockDriver) Info() string {
	return "mock adapter"
}

type ManagerTestSuite struct {
	suite.Suite

	logger  *logrus.Logger
	driver  *mockDriver
	manager *central.Manager
}

func (s *ManagerTestSuite) SetupTest() {
	s.logger = logrus.New()
	s.logger.SetLevel(logrus.DebugLevel)
	s.driver = &mockDriver{}
	s.manager = central.NewManager(s.driver, s.logger, &central.Options{
		EventBufferSize: 64,
		Metrics:         metrics.New(),
	})
}

func (s *ManagerTestSuite) TearDownTest() {
	s.manager.Close()
	s.driver.AssertExpectations(s.T())
}

const widgetAddr = "AA:BB:CC:DD:EE:FF"

func sighting(addr, name string) device.Sighting {
	return device.Sighting{
		Address:       addr,
		Advertisement: &device.Advertisement{LocalName: &name},
	}
}

func mustID(addr string) device.PeripheralID {
	id, err := device.ParsePeripheralID(addr)
	if err != nil {
		panic(err)
	}
	return id
}

// drain reads everything currently buffered without blocking
func drain(sub *central.Subscription) []device.Event {
	var out []device.Event
	for {
		select {
		case ev, ok := <-sub.C():
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func kinds(events []device.Event) []device.EventKind {
	out := make([]device.EventKind, len(events))
	for i, ev := range events {
		out[i] = ev.Kind
	}
	return out
}

var (
	discoveredSequence = []device.EventKind{
		device.EventDeviceDiscovered,
		device.EventManufacturerData,
		device.EventServiceData,
		device.EventServices,
	}
	updatedSequence = []device.EventKind{
		device.EventDeviceUpdated,
		device.EventManufacturerData,
		device.EventServiceData,
		device.EventServices,
	}
)

func (s *ManagerTestSuite) TestReportSighting_WidgetScenario() {
	// GOAL: Verify first and repeated sightings of one identity
	//
	// TEST SCENARIO: "Widget" sighting → Discovered + 3 advertisements → "Widget2" sighting → Updated + 3 advertisements, name replaced

	sub := s.manager.Subscribe()
	id := mustID(widgetAddr)

	p, err := s.manager.ReportSighting(sighting(widgetAddr, "Widget"))
	s.Require().NoError(err)
	s.Equal(id, p.ID)
	s.Equal("Widget", p.Properties.Name())

	events := drain(sub)
	s.Equal(discoveredSequence, kinds(events))
	for _, ev := range events {
		s.Equal(id, ev.ID)
	}
	s.Empty(events[1].ManufacturerData)
	s.Empty(events[2].ServiceData)
	s.Empty(events[3].Services)

	stored, err := s.manager.Peripheral(id)
	s.Require().NoError(err)
	s.Equal("Widget", stored.Properties.Name())

	_, err = s.manager.ReportSighting(sighting(widgetAddr, "Widget2"))
	s.Require().NoError(err)

	s.Equal(updatedSequence, kinds(drain(sub)), "known identity MUST NOT be discovered again")

	stored, err = s.manager.Peripheral(id)
	s.Require().NoError(err)
	s.Equal("Widget2", stored.Properties.Name(), "old name MUST NOT be retained")
	s.Len(s.manager.Peripherals(), 1)
}

func (s *ManagerTestSuite) TestReportSighting_AdvertisementPayloads() {
	sub := s.manager.Subscribe()

	_, err := s.manager.ReportSighting(device.Sighting{
		Address: widgetAddr,
		Advertisement: &device.Advertisement{
			ManufacturerData: map[int][]byte{0x004c: {0x02, 0x15}},
			ServiceData:      map[string][]byte{"180f": {85}},
			Services:         []string{"180F", "180D"},
		},
	})
	s.Require().NoError(err)

	events := drain(sub)
	s.Require().Len(events, 4)
	s.Equal(map[uint16][]byte{0x004c: {0x02, 0x15}}, events[1].ManufacturerData)
	s.Equal(map[string][]byte{"180f": {85}}, events[2].ServiceData)
	s.Equal([]string{"180d", "180f"}, events[3].Services)
}

func (s *ManagerTestSuite) TestReportSighting_ReplacesNotMerges() {
	_, err := s.manager.ReportSighting(device.Sighting{
		Address: widgetAddr,
		Advertisement: &device.Advertisement{
			LocalName: strPtr("Widget"),
			Services:  []string{"180d"},
		},
	})
	s.Require().NoError(err)

	_, err = s.manager.ReportSighting(device.Sighting{
		Address:       widgetAddr,
		Advertisement: &device.Advertisement{ManufacturerData: map[int][]byte{1: {1}}},
	})
	s.Require().NoError(err)

	p, err := s.manager.Peripheral(mustID(widgetAddr))
	s.Require().NoError(err)
	s.Nil(p.Properties.LocalName)
	s.Empty(p.Properties.Services)
	s.Equal(map[uint16][]byte{1: {1}}, p.Properties.ManufacturerData)
}

func (s *ManagerTestSuite) TestReportSighting_Failures() {
	tests := []struct {
		name      string
		sighting  device.Sighting
		expectErr error
		prepare   func()
	}{
		{
			name:      "empty address",
			sighting:  sighting("", "Widget"),
			expectErr: &device.AddressParseError{},
		},
		{
			name:      "garbage address",
			sighting:  sighting("definitely not an address", "Widget"),
			expectErr: &device.AddressParseError{},
		},
		{
			name:      "unknown identity without properties",
			sighting:  device.Sighting{Address: "11:22:33:44:55:66"},
			expectErr: device.ErrDeviceNotFound,
		},
		{
			name:      "known identity without properties",
			sighting:  device.Sighting{Address: widgetAddr},
			expectErr: device.ErrDeviceNotFound,
			prepare: func() {
				_, err := s.manager.ReportSighting(sighting(widgetAddr, "Widget"))
				s.Require().NoError(err)
			},
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			if tt.prepare != nil {
				tt.prepare()
			}
			before := s.manager.Peripherals()
			sub := s.manager.Subscribe()
			defer sub.Close()

			_, err := s.manager.ReportSighting(tt.sighting)

			s.ErrorIs(err, tt.expectErr)
			s.ElementsMatch(before, s.manager.Peripherals(), "failed sighting MUST NOT change the registry")
			s.Empty(drain(sub), "failed sighting MUST NOT publish events")
		})
	}
}

func (s *ManagerTestSuite) TestReportSighting_BareResightingKeepsRecord() {
	_, err := s.manager.ReportSighting(sighting(widgetAddr, "Widget"))
	s.Require().NoError(err)

	_, err = s.manager.ReportSighting(device.Sighting{Address: widgetAddr})
	s.ErrorIs(err, device.ErrDeviceNotFound)

	p, err := s.manager.Peripheral(mustID(widgetAddr))
	s.Require().NoError(err)
	s.Equal("Widget", p.Properties.Name(), "rejected sighting MUST NOT clear properties")
}

func (s *ManagerTestSuite) TestSubscribe_OnlyLaterEvents() {
	early := s.manager.Subscribe()

	for i := 0; i < 3; i++ {
		_, err := s.manager.ReportSighting(sighting(fmt.Sprintf("00:00:00:00:00:%02X", i), "dev"))
		s.Require().NoError(err)
	}

	late := s.manager.Subscribe()

	earlyEvents := drain(early)
	s.Len(earlyEvents, 12)
	for i := 0; i < 3; i++ {
		s.Equal(discoveredSequence, kinds(earlyEvents[i*4:i*4+4]), "events MUST arrive in publication order")
		s.Equal(mustID(fmt.Sprintf("00:00:00:00:00:%02X", i)), earlyEvents[i*4].ID)
	}
	s.Empty(drain(late), "late subscriber MUST NOT see earlier events")
}

func (s *ManagerTestSuite) TestSubscribe_DroppingOneSubscriberDoesNotAffectOthers() {
	a := s.manager.Subscribe()
	b := s.manager.Subscribe()
	s.Equal(2, s.manager.SubscriberCount())
	a.Close()
	s.Equal(1, s.manager.SubscriberCount())

	_, err := s.manager.ReportSighting(sighting(widgetAddr, "Widget"))
	s.Require().NoError(err)

	s.Len(drain(b), 4)
}

func (s *ManagerTestSuite) TestListAfterDistinctSightings() {
	const k = 10
	for i := 0; i < k; i++ {
		addr := fmt.Sprintf("10:00:00:00:00:%02X", i)
		_, err := s.manager.ReportSighting(sighting(addr, "first"))
		s.Require().NoError(err)
		_, err = s.manager.ReportSighting(sighting(addr, fmt.Sprintf("latest-%d", i)))
		s.Require().NoError(err)
	}

	list := s.manager.Peripherals()
	s.Len(list, k)
	s.Equal(k, s.manager.PeripheralCount())
	for _, p := range list {
		s.Equal(fmt.Sprintf("latest-%d", p.ID.Address[5]), p.Properties.Name())
	}
}

func (s *ManagerTestSuite) TestAddPeripheral() {
	sub := s.manager.Subscribe()
	id := mustID(widgetAddr)

	p := s.manager.AddPeripheral(id)
	s.Equal(id, p.ID)
	s.Nil(p.Properties)
	s.Empty(drain(sub), "AddPeripheral MUST NOT emit events")

	again := s.manager.AddPeripheral(id)
	s.Equal(p, again)
	s.Len(s.manager.Peripherals(), 1)

	_, err := s.manager.ReportSighting(sighting(widgetAddr, "Widget"))
	s.Require().NoError(err)
	s.Equal(updatedSequence, kinds(drain(sub)), "identity added out of band MUST be reported as updated")
}

func (s *ManagerTestSuite) TestPeripheral_Unknown() {
	_, err := s.manager.Peripheral(mustID(widgetAddr))
	s.ErrorIs(err, device.ErrDeviceNotFound)
}

func (s *ManagerTestSuite) TestRemovePeripheral() {
	_, err := s.manager.ReportSighting(sighting(widgetAddr, "Widget"))
	s.Require().NoError(err)

	s.NoError(s.manager.RemovePeripheral(mustID(widgetAddr)))
	s.Empty(s.manager.Peripherals())
	s.ErrorIs(s.manager.RemovePeripheral(mustID(widgetAddr)), device.ErrDeviceNotFound)

	sub := s.manager.Subscribe()
	_, err = s.manager.ReportSighting(sighting(widgetAddr, "Widget"))
	s.Require().NoError(err)
	s.Equal(discoveredSequence, kinds(drain(sub)), "removed identity MUST be discovered again")
}

func (s *ManagerTestSuite) TestEmit() {
	sub := s.manager.Subscribe()
	id := mustID(widgetAddr)

	s.manager.Emit(device.DeviceConnected(id))
	s.manager.Emit(device.DeviceDisconnected(id))
	s.manager.Emit(device.DeviceLost(id))

	s.Equal([]device.EventKind{
		device.EventDeviceConnected,
		device.EventDeviceDisconnected,
		device.EventDeviceLost,
	}, kinds(drain(sub)))
	s.Empty(s.manager.Peripherals(), "lifecycle events MUST NOT touch the registry")
}

func (s *ManagerTestSuite) TestScanCommandsAreForwarded() {
	filter, err := device.NewScanFilter("180d")
	s.Require().NoError(err)
	ctx := context.Background()

	s.Run("success is surfaced", func() {
		s.driver.On("StartScan", ctx, filter).Return(nil).Once()
		s.driver.On("StopScan", ctx).Return(nil).Once()

		s.NoError(s.manager.StartScan(ctx, filter))
		s.NoError(s.manager.StopScan(ctx))
	})

	s.Run("failure is surfaced unchanged", func() {
		cause := errors.New("adapter busy")
		s.driver.On("StartScan", ctx, filter).Return(cause).Once()
		s.driver.On("StopScan", ctx).Return(device.ErrBluetoothOff).Once()

		err := s.manager.StartScan(ctx, filter)
		s.ErrorIs(err, cause)
		s.True(device.IsExternal(err))

		err = s.manager.StopScan(ctx)
		s.ErrorIs(err, device.ErrBluetoothOff)
		s.True(device.IsExternal(err))
	})
}

func (s *ManagerTestSuite) TestWithoutDriver() {
	m := central.NewManager(nil, nil, nil)
	defer m.Close()

	err := m.StartScan(context.Background(), device.ScanFilter{})
	s.True(device.IsExternal(err))
	s.True(device.IsExternal(m.StopScan(context.Background())))
	s.Equal("unknown", m.AdapterInfo())
	s.Equal("mock adapter", s.manager.AdapterInfo())
}

func (s *ManagerTestSuite) TestClose() {
	sub := s.manager.Subscribe()
	_, err := s.manager.ReportSighting(sighting(widgetAddr, "Widget"))
	s.Require().NoError(err)

	s.manager.Close()

	s.Len(drain(sub), 4, "buffered events MUST remain readable")
	_, ok := <-sub.C()
	s.False(ok, "subscriber reads MUST fail cleanly after close")

	_, err = s.manager.ReportSighting(sighting(widgetAddr, "Widget2"))
	s.NoError(err, "registry MUST keep working after close")
	s.Len(s.manager.Peripherals(), 1)
}

func (s *ManagerTestSuite) TestConcurrentSightings() {
	// GOAL: Verify ReportSighting is safe from uncoordinated goroutines
	//
	// TEST SCENARIO: 16 goroutines × 50 sightings over 8 identities → exactly 8 Discovered, the rest Updated

	m := central.NewManager(nil, s.logger, &central.Options{EventBufferSize: 16 * 50 * 4})
	defer m.Close()
	sub := m.Subscribe()

	const (
		workers    = 16
		perWorker  = 50
		identities = 8
	)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			<-start
			for i := 0; i < perWorker; i++ {
				addr := fmt.Sprintf("20:00:00:00:00:%02X", (w+i)%identities)
				if _, err := m.ReportSighting(sighting(addr, "dev")); err != nil {
					s.Fail("unexpected sighting failure", err.Error())
				}
			}
		}(w)
	}

	done := make(chan struct{})
	go func() {
		close(start)
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		s.FailNow("concurrent sightings did not complete")
	}

	counts := map[device.EventKind]int{}
	events := drain(sub)
	for i, ev := range events {
		counts[ev.Kind]++
		if ev.Kind == device.EventDeviceDiscovered || ev.Kind == device.EventDeviceUpdated {
			s.Require().LessOrEqual(i+3, len(events)-1)
			s.Equal([]device.EventKind{device.EventManufacturerData, device.EventServiceData, device.EventServices},
				kinds(events[i+1:i+4]), "advertisements MUST directly follow their sighting event")
		}
	}

	discovered := map[device.PeripheralID]bool{}
	for _, ev := range events {
		switch ev.Kind {
		case device.EventDeviceDiscovered:
			discovered[ev.ID] = true
		case device.EventDeviceUpdated:
			s.True(discovered[ev.ID], "%s updated before it was discovered", ev.ID)
		}
	}

	s.Equal(identities, counts[device.EventDeviceDiscovered], "each identity MUST be discovered exactly once")
	s.Equal(workers*perWorker-identities, counts[device.EventDeviceUpdated])
	s.Equal(workers*perWorker, counts[device.EventServices])
	s.Len(m.Peripherals(), identities)
}

// blockingHook parks the first "Discovered new device" entry until released
type blockingHook struct {
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (h *blockingHook) Levels() []logrus.Level { return []logrus.Level{logrus.InfoLevel} }

func (h *blockingHook) Fire(e *logrus.Entry) error {
	if e.Message != "Discovered new device" {
		return nil
	}
	h.once.Do(func() {
		close(h.entered)
		<-h.release
	})
	return nil
}

func (s *ManagerTestSuite) TestReSightingWhileDiscoveryInFlight() {
	// GOAL: Verify a re-sighting racing the first sighting never reaches subscribers before DeviceDiscovered
	//
	// TEST SCENARIO: first sighting stalls after registry update → second sighting of same address → Discovered batch first, then Updated batch

	hook := &blockingHook{entered: make(chan struct{}), release: make(chan struct{})}
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.AddHook(hook)

	m := central.NewManager(nil, logger, nil)
	defer m.Close()
	sub := m.Subscribe()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := m.ReportSighting(sighting(widgetAddr, "first"))
		s.NoError(err)
	}()

	select {
	case <-hook.entered:
	case <-time.After(5 * time.Second):
		s.FailNow("first sighting never logged its discovery")
	}

	second := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(second)
		_, err := m.ReportSighting(sighting(widgetAddr, "second"))
		s.NoError(err)
	}()

	select {
	case <-second:
	case <-time.After(time.Second):
	}
	close(hook.release)
	wg.Wait()

	events := drain(sub)
	s.Require().Len(events, 8)
	s.Equal([]device.EventKind{
		device.EventDeviceDiscovered, device.EventManufacturerData, device.EventServiceData, device.EventServices,
		device.EventDeviceUpdated, device.EventManufacturerData, device.EventServiceData, device.EventServices,
	}, kinds(events))

	p, err := m.Peripheral(mustID(widgetAddr))
	s.Require().NoError(err)
	s.Equal("second", p.Name(), "registry MUST hold the last published sighting")
}

func strPtr(s string) *string { return &s }

func TestManagerTestSuite(t *testing.T) {
	suite.Run(t, new(ManagerTestSuite))
}
