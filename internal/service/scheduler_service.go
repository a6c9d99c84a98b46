package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/Barahlush/housekeeper-tg-bot/internal/config"
)

// jobTimeout bounds a single scheduled run.
const jobTimeout = 30 * time.Second

// ErrNoSchedule is returned when the digest has neither a daily time nor an
// interval configured.
var ErrNoSchedule = errors.New("digest schedule is not configured")

// SchedulerService wraps cron-based jobs.
type SchedulerService struct {
	cron *cron.Cron
	log  *logrus.Entry
}

func NewSchedulerService(loc *time.Location, log *logrus.Entry) *SchedulerService {
	return &SchedulerService{
		cron: cron.New(cron.WithLocation(loc), cron.WithSeconds()),
		log:  log.WithField("component", "scheduler"),
	}
}

// ScheduleDigest registers job according to cfg. DailyAt takes precedence
// over Interval.
func (s *SchedulerService) ScheduleDigest(cfg config.DigestConfig, job func(ctx context.Context) error) (cron.EntryID, error) {
	run := s.wrap("digest", job)
	switch {
	case strings.TrimSpace(cfg.DailyAt) != "":
		return s.ScheduleDaily(cfg.DailyAt, run)
	case cfg.Interval > 0:
		return s.ScheduleInterval(cfg.Interval, run)
	default:
		return 0, ErrNoSchedule
	}
}

// ScheduleDaily registers a daily job at the given HH:MM time string.
func (s *SchedulerService) ScheduleDaily(timeStr string, job func()) (cron.EntryID, error) {
	spec, err := buildDailySpec(timeStr)
	if err != nil {
		return 0, err
	}
	return s.cron.AddFunc(spec, job)
}

// ScheduleInterval registers a periodic job every given duration.
func (s *SchedulerService) ScheduleInterval(interval time.Duration, job func()) (cron.EntryID, error) {
	if interval <= 0 {
		return 0, fmt.Errorf("interval must be positive")
	}
	seconds := int(interval.Seconds())
	if seconds <= 0 {
		seconds = 1
	}
	return s.cron.AddFunc(fmt.Sprintf("@every %ds", seconds), job)
}

func (s *SchedulerService) Start() {
	s.cron.Start()
	s.log.WithField("entries", len(s.cron.Entries())).Info("scheduler started")
}

func (s *SchedulerService) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *SchedulerService) wrap(name string, job func(ctx context.Context) error) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()

		log := s.log.WithField("job", name)
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("job panicked: %v", r)
			}
		}()

		started := time.Now()
		if err := job(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).Error("job failed")
			return
		}
		log.WithField("took", time.Since(started)).Debug("job finished")
	}
}

func buildDailySpec(timeStr string) (string, error) {
	parts := strings.Split(strings.TrimSpace(timeStr), ":")
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid time %q, expected HH:MM", timeStr)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("invalid hour in %q", timeStr)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("invalid minute in %q", timeStr)
	}
	// second minute hour dom month dow
	return fmt.Sprintf("0 %d %d * * *", minute, hour), nil
}
