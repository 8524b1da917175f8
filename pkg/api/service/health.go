package service

import (
	"context"
	"time"

	"github.com/mac-/configurine/pkg/log"
	"github.com/mac-/configurine/pkg/store"
)

const (
	HealthStatusOK          = "ok"
	HealthStatusUnavailable = "unavailable"
)

// StorePinger is the part of the store that health checks use.
type StorePinger interface {
	Ping(ctx context.Context) error
	State() store.State
}

// HealthReport is returned by GET /healthz.
type HealthReport struct {
	Status     string `json:"status"`
	Store      string `json:"store"`
	StoreError string `json:"storeError,omitempty"`
	CheckedAt  string `json:"checkedAt"`
}

// Healthy reports whether every check passed.
func (r *HealthReport) Healthy() bool { return r.Status == HealthStatusOK }

// HealthService reports store connectivity.
type HealthService struct {
	store   StorePinger
	timeout time.Duration
	clock   func() time.Time
	logger  log.Logger
}

func NewHealthService(st StorePinger, logger log.Logger) *HealthService {
	return &HealthService{
		store:   st,
		timeout: 2 * time.Second,
		clock:   time.Now,
		logger:  componentLogger(logger, "health-service"),
	}
}

// Check pings the store, connecting it if needed.
func (s *HealthService) Check(ctx context.Context) *HealthReport {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	report := &HealthReport{Status: HealthStatusOK, CheckedAt: s.clock().UTC().Format(time.RFC3339)}
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("Store health check failed", log.Err(err))
		report.Status = HealthStatusUnavailable
		report.StoreError = err.Error()
	}
	report.Store = s.store.State().String()
	return report
}
