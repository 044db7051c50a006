package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/distcompute/internal/telemetry"
	"github.com/shaiso/distcompute/internal/tracker"
)

// Значения по умолчанию.
const (
	defaultPollInterval = 30 * time.Second
	byeTimeout          = 30 * time.Second
)

// Session: операции сессии трекера, которые использует Runner.
// Реализуется *tracker.Session.
type Session interface {
	NewJob(ctx context.Context) (*tracker.Job, error)
	CompleteJob(ctx context.Context, data any) error
	FlagInvalidData(ctx context.Context) error
	UpdateProgress(ctx context.Context, progress string) error
	Bye(ctx context.Context)
}

// ConnectFunc регистрирует нового воркера.
type ConnectFunc func(ctx context.Context) (Session, error)

// Config: конфигурация Runner.
type Config struct {
	// Connect вызывается при старте и после ErrWorkerTimedOut.
	Connect ConnectFunc

	Handler Handler

	// PollInterval: пауза после ErrZeroJob (default: 30s).
	PollInterval time.Duration

	// MaxJobs: остановиться после указанного числа выполненных задач (0: без ограничения).
	MaxJobs int

	Logger *slog.Logger
}

// Runner последовательно получает и выполняет задачи одной сессии.
//
// Цикл:
//   - NewJob; при ErrZeroJob ждёт PollInterval
//   - Handler.Handle
//   - CompleteJob, либо FlagInvalidData при ErrInvalidInput
//   - при ErrWorkerTimedOut регистрируется заново
//
// При выходе всегда вызывается Bye.
type Runner struct {
	connect      ConnectFunc
	handler      Handler
	pollInterval time.Duration
	maxJobs      int
	logger       *slog.Logger

	completed int
	flagged   int
}

// New создаёт Runner.
func New(cfg Config) *Runner {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	handler := cfg.Handler
	if handler == nil {
		handler = EchoHandler{}
	}

	return &Runner{
		connect:      cfg.Connect,
		handler:      handler,
		pollInterval: pollInterval,
		maxJobs:      cfg.MaxJobs,
		logger:       logger,
	}
}

// Run выполняет цикл до отмены ctx, достижения MaxJobs или фатальной ошибки.
// Отмена ctx не считается ошибкой.
func (r *Runner) Run(ctx context.Context) error {
	if r.connect == nil {
		return errors.New("runner: connect function is required")
	}

	r.logger = telemetry.WithRunID(r.logger, uuid.NewString())
	r.logger.Info("starting runner",
		"poll_interval", r.pollInterval,
		"max_jobs", r.maxJobs,
	)

	sess, err := r.connect(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("connect: %w", err)
	}
	defer func() { r.bye(sess) }()

	for {
		if ctx.Err() != nil {
			r.logger.Info("runner stopped", "completed", r.completed, "flagged", r.flagged)
			return nil
		}
		if r.maxJobs > 0 && r.completed >= r.maxJobs {
			r.logger.Info("max jobs reached", "completed", r.completed, "flagged", r.flagged)
			return nil
		}

		err := r.step(ctx, sess)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			// следующая итерация завершит цикл
		case errors.Is(err, tracker.ErrZeroJob):
			r.logger.Info("no jobs available, waiting", "delay", r.pollInterval)
			wait(ctx, r.pollInterval)
		case errors.Is(err, tracker.ErrWorkerTimedOut):
			r.logger.Warn("worker timed out on tracker, registering again", "error", err)
			r.bye(sess)
			sess, err = r.connect(ctx)
			if err != nil {
				sess = nil
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("reconnect: %w", err)
			}
		default:
			return err
		}
	}
}

// step получает одну задачу и доводит её до CompleteJob/FlagInvalidData.
func (r *Runner) step(ctx context.Context, sess Session) error {
	job, err := sess.NewJob(ctx)
	if err != nil {
		return fmt.Errorf("request job: %w", err)
	}

	logger := telemetry.WithJobID(r.logger, job.ID)
	jobCtx := telemetry.WithLogger(ctx, logger)

	logger.Info("job started", "structured", job.Structured())
	start := time.Now()

	result, err := r.handler.Handle(jobCtx, job, sess.UpdateProgress)
	switch {
	case errors.Is(err, ErrInvalidInput):
		logger.Warn("job input rejected, flagging", "error", err)
		if err := sess.FlagInvalidData(ctx); err != nil {
			return fmt.Errorf("flag job #%d: %w", job.ID, err)
		}
		r.flagged++
		return nil

	case err != nil:
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Error("job failed", "error", err)
		if perr := sess.UpdateProgress(ctx, "failed: "+err.Error()); perr != nil {
			logger.Debug("failure report not delivered", "error", perr)
		}
		return fmt.Errorf("%w: job #%d: %v", ErrJobFailed, job.ID, err)
	}

	if result == nil {
		result = ""
	}

	if err := sess.CompleteJob(ctx, result); err != nil {
		return fmt.Errorf("complete job #%d: %w", job.ID, err)
	}

	r.completed++
	logger.Info("job completed", "duration", time.Since(start))
	return nil
}

// bye отключает сессию; ctx вызывающего может быть уже отменён.
func (r *Runner) bye(sess Session) {
	if sess == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), byeTimeout)
	defer cancel()
	sess.Bye(ctx)
}

// Completed возвращает количество выполненных задач.
func (r *Runner) Completed() int { return r.completed }

// Flagged возвращает количество задач, помеченных как некорректные.
func (r *Runner) Flagged() int { return r.flagged }

// wait: context-aware ожидание.
func wait(ctx context.Context, d time.Duration) {
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}
