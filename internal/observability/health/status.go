package health

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// HealthStatus represents the health status
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusDegraded  HealthStatus = "degraded"
	StatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheck defines a health check function
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) error
	Critical() bool
	Timeout() time.Duration
}

// HealthResult represents the result of a health check
type HealthResult struct {
	Status    HealthStatus  `json:"status"`
	Message   string        `json:"message,omitempty"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

// SystemStatus represents overall system health
type SystemStatus struct {
	OverallStatus  HealthStatus            `json:"overall_status"`
	CheckResults   map[string]HealthResult `json:"check_results"`
	CriticalIssues []string                `json:"critical_issues,omitempty"`
	Uptime         time.Duration           `json:"uptime"`
	StartTime      time.Time               `json:"start_time"`
}

// BasicHealthCheck wraps a function as a health check
type BasicHealthCheck struct {
	name      string
	checkFunc func(ctx context.Context) error
	critical  bool
	timeout   time.Duration
}

// NewBasicHealthCheck creates a health check. A zero timeout means 5s.
func NewBasicHealthCheck(name string, critical bool, timeout time.Duration, fn func(ctx context.Context) error) *BasicHealthCheck {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &BasicHealthCheck{name: name, checkFunc: fn, critical: critical, timeout: timeout}
}

func (c *BasicHealthCheck) Name() string                    { return c.name }
func (c *BasicHealthCheck) Critical() bool                  { return c.critical }
func (c *BasicHealthCheck) Timeout() time.Duration          { return c.timeout }
func (c *BasicHealthCheck) Check(ctx context.Context) error { return c.checkFunc(ctx) }

// HealthMonitor runs registered checks on demand
type HealthMonitor struct {
	logger    *logrus.Logger
	mu        sync.RWMutex
	checks    map[string]HealthCheck
	startTime time.Time
}

// NewHealthMonitor creates a new health monitor
func NewHealthMonitor(logger *logrus.Logger) *HealthMonitor {
	if logger == nil {
		logger = logrus.New()
	}
	return &HealthMonitor{
		logger:    logger,
		checks:    make(map[string]HealthCheck),
		startTime: time.Now(),
	}
}

// RegisterCheck registers a new health check
func (hm *HealthMonitor) RegisterCheck(check HealthCheck) {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	hm.checks[check.Name()] = check
	hm.logger.WithField("check", check.Name()).Debug("Registered health check")
}

// Check executes every registered check concurrently. A failing critical
// check makes the system unhealthy; any other failure degrades it.
func (hm *HealthMonitor) Check(ctx context.Context) *SystemStatus {
	hm.mu.RLock()
	checks := make([]HealthCheck, 0, len(hm.checks))
	for _, c := range hm.checks {
		checks = append(checks, c)
	}
	hm.mu.RUnlock()

	status := &SystemStatus{
		OverallStatus: StatusHealthy,
		CheckResults:  make(map[string]HealthResult, len(checks)),
		Uptime:        time.Since(hm.startTime),
		StartTime:     hm.startTime,
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, check := range checks {
		wg.Add(1)
		go func(check HealthCheck) {
			defer wg.Done()
			result := hm.executeCheck(ctx, check)

			mu.Lock()
			defer mu.Unlock()
			status.CheckResults[check.Name()] = result
			if result.Status == StatusHealthy {
				return
			}
			if check.Critical() {
				status.OverallStatus = StatusUnhealthy
				status.CriticalIssues = append(status.CriticalIssues, check.Name())
			} else if status.OverallStatus == StatusHealthy {
				status.OverallStatus = StatusDegraded
			}
		}(check)
	}
	wg.Wait()
	sort.Strings(status.CriticalIssues)
	return status
}

// executeCheck executes a single health check with its timeout
func (hm *HealthMonitor) executeCheck(ctx context.Context, check HealthCheck) HealthResult {
	ctx, cancel := context.WithTimeout(ctx, check.Timeout())
	defer cancel()

	start := time.Now()
	err := check.Check(ctx)
	result := HealthResult{
		Status:    StatusHealthy,
		Duration:  time.Since(start),
		Timestamp: start,
	}
	if err != nil {
		result.Status = StatusUnhealthy
		result.Message = err.Error()
		hm.logger.WithFields(logrus.Fields{
			"check":    check.Name(),
			"critical": check.Critical(),
			"error":    err,
		}).Warn("Health check failed")
	}
	return result
}

// String formats the status for logs
func (s *SystemStatus) String() string {
	return fmt.Sprintf("%s (%d checks, uptime %s)", s.OverallStatus, len(s.CheckResults), s.Uptime.Round(time.Second))
}
