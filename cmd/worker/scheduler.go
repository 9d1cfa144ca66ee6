package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/reviewqa/internal/app"
)

// Job is one scheduled pipeline run.
type Job struct {
	ID        string    `json:"id"`
	Schedule  string    `json:"schedule"`
	Pipeline  string    `json:"pipeline"`
	Force     bool      `json:"force"`
	CreatedAt time.Time `json:"created_at"`
}

// Scheduler turns cron schedules into queued jobs.
type Scheduler struct {
	logger   *logrus.Logger
	cron     *cron.Cron
	jobQueue chan *Job
	entries  map[string]cron.EntryID
	mu       sync.RWMutex
	running  bool
}

func NewScheduler(schedules []app.Schedule, queueSize int, logger *logrus.Logger) (*Scheduler, error) {
	if queueSize < 1 {
		queueSize = 1
	}
	s := &Scheduler{
		logger:   logger,
		cron:     cron.New(cron.WithLogger(cron.PrintfLogger(logger.WithField("component", "cron")))),
		jobQueue: make(chan *Job, queueSize),
		entries:  make(map[string]cron.EntryID, len(schedules)),
	}
	for _, sch := range schedules {
		if err := s.Add(sch); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Add registers a schedule. Names must be unique.
func (s *Scheduler) Add(sch app.Schedule) error {
	if sch.Name == "" {
		return fmt.Errorf("schedule name is required")
	}
	if sch.Pipeline == "" {
		return fmt.Errorf("schedule '%s' has no pipeline file", sch.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[sch.Name]; exists {
		return fmt.Errorf("duplicate schedule '%s'", sch.Name)
	}
	id, err := s.cron.AddFunc(sch.Cron, func() { s.Enqueue(sch) })
	if err != nil {
		return fmt.Errorf("invalid cron spec for schedule '%s': %w", sch.Name, err)
	}
	s.entries[sch.Name] = id
	s.logger.WithFields(logrus.Fields{
		"schedule": sch.Name,
		"cron":     sch.Cron,
		"pipeline": sch.Pipeline,
	}).Info("Schedule registered")
	return nil
}

// Enqueue queues a run of sch now. A full queue drops the run.
func (s *Scheduler) Enqueue(sch app.Schedule) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return false
	}

	job := &Job{
		ID:        uuid.New().String(),
		Schedule:  sch.Name,
		Pipeline:  sch.Pipeline,
		Force:     sch.Force,
		CreatedAt: time.Now().UTC(),
	}
	select {
	case s.jobQueue <- job:
		s.logger.WithFields(logrus.Fields{
			"job_id":   job.ID,
			"schedule": job.Schedule,
		}).Debug("Job queued")
		return true
	default:
		s.logger.WithField("schedule", sch.Name).Warn("Job queue is full, run skipped")
		return false
	}
}

// Start starts the cron loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	s.cron.Start()
	s.logger.WithField("schedules", len(s.entries)).Info("Scheduler started")
}

// Stop halts the cron loop, waits for in-flight enqueues and closes the queue.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	close(s.jobQueue)
	s.logger.Info("Scheduler stopped")
}

// Next returns the next activation time of a schedule.
func (s *Scheduler) Next(name string) (time.Time, bool) {
	s.mu.RLock()
	id, ok := s.entries[name]
	s.mu.RUnlock()
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(id).Next, true
}

func (s *Scheduler) GetJobQueue() <-chan *Job {
	return s.jobQueue
}
