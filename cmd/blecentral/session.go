package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blecentral/internal/central"
	"github.com/srg/blecentral/internal/config"
	"github.com/srg/blecentral/internal/driver/goble"
	"github.com/srg/blecentral/internal/groutine"
	"github.com/srg/blecentral/internal/metrics"
	"github.com/srg/blecentral/internal/mqttbridge"
)

const shutdownTimeout = 5 * time.Second

// session wires the manager to the go-ble driver and the optional
// metrics endpoint and MQTT forwarder.
type session struct {
	cfg     *config.Config
	logger  *logrus.Logger
	manager *central.Manager
	driver  *goble.Driver

	metricsSrv *http.Server
	fwdCancel  context.CancelFunc
	fwdDone    <-chan struct{}
}

// connectMQTT is a variable so that tests can run without a broker
var connectMQTT = func(cfg mqttbridge.Config, logger *logrus.Logger) (mqttbridge.Publisher, func() error, error) {
	client, err := mqttbridge.Connect(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return client, client.Close, nil
}

func newSession(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*session, error) {
	var m *metrics.Metrics
	if cfg.Metrics.Addr != "" {
		m = metrics.New()
	}

	drv := goble.NewDriver(nil, logger, &goble.Options{AllowDuplicates: cfg.Scan.AllowDuplicates})
	manager := central.NewManager(drv, logger, &central.Options{
		EventBufferSize: cfg.Events.BufferSize,
		Metrics:         m,
	})
	drv.SetReporter(manager)

	s := &session{
		cfg:     cfg,
		logger:  logger,
		manager: manager,
		driver:  drv,
	}

	if m != nil {
		s.startMetrics(m)
	}

	if cfg.MQTT.Enabled() {
		if err := s.startForwarder(ctx); err != nil {
			s.Close()
			return nil, err
		}
	}

	return s, nil
}

func (s *session) startMetrics(m *metrics.Metrics) {
	mux := http.NewServeMux()
	mux.Handle(s.cfg.Metrics.Path, m.Handler())

	s.metricsSrv = &http.Server{
		Addr:              s.cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	srv := s.metricsSrv
	groutine.Go(context.Background(), "metrics-http", func(context.Context) {
		s.logger.WithField("addr", srv.Addr).Info("Serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.WithError(err).Error("Metrics server failed")
		}
	})
}

func (s *session) startForwarder(ctx context.Context) error {
	bridgeCfg := s.cfg.MQTT.BridgeConfig()
	publisher, closeFn, err := connectMQTT(bridgeCfg, s.logger)
	if err != nil {
		return err
	}

	fwd := mqttbridge.NewForwarder(publisher, bridgeCfg.TopicPrefix, s.logger)
	sub := s.manager.Subscribe()
	fwdCtx, cancel := context.WithCancel(ctx)
	s.fwdCancel = cancel
	s.fwdDone = groutine.Go(fwdCtx, "mqtt-forwarder", func(ctx context.Context) {
		n, err := fwd.Run(ctx, sub)
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.WithError(err).Warn("MQTT forwarder stopped")
		}
		if closeErr := closeFn(); closeErr != nil {
			s.logger.WithError(closeErr).Debug("MQTT close failed")
		}
		s.logger.WithField("published", n).Debug("MQTT forwarder finished")
	})

	return nil
}

// Close stops the forwarder, the metrics server and the event stream.
// The scan must already be stopped.
func (s *session) Close() {
	s.logger.WithFields(logrus.Fields{
		"peripherals": s.manager.PeripheralCount(),
		"subscribers": s.manager.SubscriberCount(),
	}).Debug("Closing session")
	s.manager.Close()

	if s.fwdCancel != nil {
		select {
		case <-s.fwdDone:
		case <-time.After(shutdownTimeout):
			s.logger.Warn("MQTT forwarder did not finish in time")
		}
		s.fwdCancel()
	}

	if s.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = s.metricsSrv.Shutdown(ctx)
	}
}
