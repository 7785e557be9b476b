// Package service runs the operational HTTP endpoints of op-explorer: health
// checks and Prometheus metrics.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-explorer/metrics"
)

type Config struct {
	Log log.Logger
	// HealthzAddr and MetricsAddr are host:port pairs. Empty disables the
	// server.
	HealthzAddr string
	MetricsAddr string
	Check       func() error
}

type Service struct {
	log         log.Logger
	healthzAddr string
	metricsAddr string

	Healthz *HealthzServer
	Metrics *MetricsServer
}

func New(cfg Config) *Service {
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	logger := cfg.Log.New("component", "service")
	return &Service{
		log:         logger,
		healthzAddr: cfg.HealthzAddr,
		metricsAddr: cfg.MetricsAddr,
		Healthz:     &HealthzServer{Log: logger, Check: cfg.Check},
		Metrics:     &MetricsServer{Log: logger},
	}
}

func (s *Service) Start(ctx context.Context) error {
	s.log.Info("service starting")

	if s.healthzAddr != "" {
		if err := s.Healthz.Start(s.healthzAddr); err != nil {
			metrics.RecordErrorDetails("healthz", err)
			return fmt.Errorf("starting healthz server: %w", err)
		}
		s.log.Info("started healthz server", "addr", s.Healthz.Addr())
	}

	if s.metricsAddr != "" {
		if err := s.Metrics.Start(s.metricsAddr); err != nil {
			metrics.RecordErrorDetails("metrics", err)
			return errors.Join(fmt.Errorf("starting metrics server: %w", err), s.Healthz.Shutdown(ctx))
		}
		s.log.Info("started metrics server", "addr", s.Metrics.Addr())
	}

	s.log.Info("service started")
	return nil
}

func (s *Service) Shutdown(ctx context.Context) error {
	s.log.Info("service shutting down")
	err := errors.Join(s.Healthz.Shutdown(ctx), s.Metrics.Shutdown(ctx))
	s.log.Info("service stopped")
	return err
}
