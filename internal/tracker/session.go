package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Endpoints трекера.
const (
	endpointNew             = "/api/new"
	endpointJobCount        = "/api/jobCount"
	endpointNewJob          = "/api/newJob"
	endpointCompleteJob     = "/api/completeJob"
	endpointUpdateProgress  = "/api/updateProgress"
	endpointValidateWorker  = "/api/validateWorker"
	endpointFlagInvalidData = "/api/flagInvalidData"
	endpointBye             = "/api/bye"
)

const (
	// DefaultNickname используется, если оператор не задал имя воркера.
	DefaultNickname = "anonymous"

	crashedProgress = "Crashed"
	closeTimeout    = 30 * time.Second
)

// State: состояние жизненного цикла сессии.
type State int

const (
	StateUnregistered State = iota
	StateRegistered
	StateJobAssigned
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateUnregistered:
		return "unregistered"
	case StateRegistered:
		return "registered"
	case StateJobAssigned:
		return "job_assigned"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Config: конфигурация сессии воркера.
type Config struct {
	// URL трекера (обязательно).
	URL string

	// Stage: человекочитаемое имя стадии, например "Mapping".
	// Серверу отправляется только первая буква в нижнем регистре.
	Stage string

	// Nickname воркера (default: "anonymous").
	Nickname string

	// Verbose поднимает сообщения жизненного цикла с DEBUG до INFO.
	Verbose bool

	HTTPClient *http.Client
	Timeout    time.Duration
	Retry      RetryPolicy

	Logger  *slog.Logger
	Metrics *Metrics
}

// Session: зарегистрированный воркер трекера.
//
// Session не потокобезопасна: для параллельной работы нужны отдельные сессии.
type Session struct {
	id        uuid.UUID
	transport *Transport
	stage     string
	nickname  string
	verbose   bool
	logger    *slog.Logger
	metrics   *Metrics

	token       string
	project     string
	displayName string
	stageName   string

	job    *Job
	closed bool
}

type registerResponse struct {
	Token       string `json:"token"`
	DisplayName string `json:"display_name"`
	Project     string `json:"project"`
	StageName   string `json:"stage_name"`
}

type newJobResponse struct {
	Data   string `json:"data"`
	Number int    `json:"number"`
}

type tokenRequest struct {
	Token string `json:"token"`
}

type completeJobRequest struct {
	Token string `json:"token"`
	Data  string `json:"data"`
}

type progressRequest struct {
	Token    string `json:"token"`
	Progress string `json:"progress"`
}

// StageFilter возвращает идентификатор стадии: первый символ имени в нижнем регистре.
func StageFilter(stage string) (string, error) {
	stage = strings.TrimSpace(stage)
	if stage == "" {
		return "", fmt.Errorf("%w: stage is required", ErrValidation)
	}

	r, _ := utf8.DecodeRuneInString(strings.ToLower(stage))
	return string(r), nil
}

// Connect регистрирует воркера в трекере и возвращает готовую сессию.
//
// При любой ошибке регистрации соединения освобождаются и сессия не возвращается.
func Connect(ctx context.Context, cfg Config) (*Session, error) {
	stage, err := StageFilter(cfg.Stage)
	if err != nil {
		return nil, err
	}

	nickname := cfg.Nickname
	if nickname == "" {
		nickname = DefaultNickname
	}

	id := uuid.New()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("session_id", id.String(), "stage", stage)

	transport, err := NewTransport(TransportConfig{
		BaseURL:    cfg.URL,
		HTTPClient: cfg.HTTPClient,
		Timeout:    cfg.Timeout,
		Retry:      cfg.Retry,
		RequestID:  id.String(),
		Logger:     logger,
		Metrics:    cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}

	s := &Session{
		id:        id,
		transport: transport,
		stage:     stage,
		nickname:  nickname,
		verbose:   cfg.Verbose,
		logger:    logger,
		metrics:   cfg.Metrics,
	}

	if err := s.register(ctx); err != nil {
		transport.Close()
		return nil, err
	}

	return s, nil
}

func (s *Session) register(ctx context.Context) error {
	s.lifecycle("connecting to tracker...", "url", s.transport.BaseURL())

	query := url.Values{}
	query.Set("nickname", s.nickname)
	query.Set("stage", s.stage)

	resp, err := s.transport.Send(ctx, http.MethodGet, endpointNew, query, nil)
	if err != nil {
		return err
	}
	if err := s.check(ctx, endpointNew, resp); err != nil {
		return err
	}

	var r registerResponse
	if err := json.Unmarshal([]byte(resp.Body), &r); err != nil {
		return fmt.Errorf("%w: decode registration: %v", ErrServer, err)
	}
	if r.Token == "" {
		return fmt.Errorf("%w: registration returned empty token", ErrServer)
	}

	s.token = r.Token
	s.project = r.Project
	s.displayName = r.DisplayName
	s.stageName = r.StageName

	s.logger = s.logger.With("project", s.project, "worker", s.displayName)
	s.transport.logger = s.logger

	s.lifecycle("connected to tracker server", "stage_name", s.stageName)
	s.lifecycle("worker progress available", "dashboard_url", s.DashboardURL())
	return nil
}

// JobCount возвращает количество оставшихся задач для стадии воркера.
func (s *Session) JobCount(ctx context.Context) (int, error) {
	if err := s.ensureOpen(); err != nil {
		return 0, err
	}

	query := url.Values{}
	query.Set("stage", s.stage)

	resp, err := s.transport.Send(ctx, http.MethodGet, endpointJobCount, query, nil)
	if err != nil {
		return 0, err
	}
	if err := s.check(ctx, endpointJobCount, resp); err != nil {
		return 0, err
	}

	count, err := strconv.Atoi(strings.TrimSpace(resp.Body))
	if err != nil {
		return 0, fmt.Errorf("%w: invalid job count %q", ErrServer, resp.Body)
	}

	s.lifecycle("jobs remaining", "count", count)
	return count, nil
}

// NewJob запрашивает новую задачу.
//
// Возвращает ErrJobAlreadyAssigned без обращения к серверу, если предыдущая
// задача ещё не завершена через CompleteJob или FlagInvalidData.
func (s *Session) NewJob(ctx context.Context) (*Job, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	if s.job != nil {
		return nil, fmt.Errorf("%w: job #%d is still in progress", ErrJobAlreadyAssigned, s.job.ID)
	}

	s.logger.Info("looking for new job...")

	resp, err := s.transport.Send(ctx, http.MethodPost, endpointNewJob, nil, tokenRequest{Token: s.token})
	if err != nil {
		return nil, err
	}
	if err := s.check(ctx, endpointNewJob, resp); err != nil {
		return nil, err
	}

	var r newJobResponse
	if err := json.Unmarshal([]byte(resp.Body), &r); err != nil {
		return nil, fmt.Errorf("%w: decode job: %v", ErrServer, err)
	}

	data, err := DecodePayload(r.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: job #%d: %v", ErrServer, r.Number, err)
	}

	s.job = &Job{ID: r.Number, Data: data, Raw: r.Data}
	s.metrics.observeJobReceived()
	s.lifecycle("received new job", "job_id", r.Number)

	return s.job, nil
}

// CompleteJob отмечает текущую задачу выполненной и отправляет результат.
//
// data кодируется через EncodePayload до любого сетевого вызова.
// Текущая задача сбрасывается сразу после отправки, до проверки ответа:
// при ошибке сервер может не зафиксировать завершение, источником истины
// остаётся сервер.
func (s *Session) CompleteJob(ctx context.Context, data any) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}

	encoded, err := EncodePayload(data)
	if err != nil {
		return err
	}

	resp, err := s.transport.Send(ctx, http.MethodPost, endpointCompleteJob, nil, completeJobRequest{
		Token: s.token,
		Data:  encoded,
	})
	jobID := s.clearJob()
	if err != nil {
		return err
	}
	if err := s.check(ctx, endpointCompleteJob, resp); err != nil {
		return err
	}

	s.metrics.observeJobCompleted()
	s.lifecycle("marked job as complete", "job_id", jobID)
	return nil
}

// FlagInvalidData помечает входные данные текущей задачи как некорректные.
// При повторных пометках сервер переоткрывает задачу для предыдущей стадии.
// Текущая задача сбрасывается независимо от ответа.
func (s *Session) FlagInvalidData(ctx context.Context) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}

	resp, err := s.transport.Send(ctx, http.MethodPost, endpointFlagInvalidData, nil, tokenRequest{Token: s.token})
	jobID := s.clearJob()
	if err != nil {
		return err
	}
	if err := s.check(ctx, endpointFlagInvalidData, resp); err != nil {
		return err
	}

	s.metrics.observeJobFlagged()
	s.lifecycle("flagged job data as invalid", "job_id", jobID)
	return nil
}

// UpdateProgress отправляет произвольную строку прогресса.
func (s *Session) UpdateProgress(ctx context.Context, progress string) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}

	resp, err := s.transport.Send(ctx, http.MethodPost, endpointUpdateProgress, nil, progressRequest{
		Token:    s.token,
		Progress: progress,
	})
	if err != nil {
		return err
	}
	if err := s.check(ctx, endpointUpdateProgress, resp); err != nil {
		return err
	}

	s.lifecycle("logged new progress data", "progress", progress)
	return nil
}

// IsAlive проверяет, что сервер всё ещё считает воркера активным.
func (s *Session) IsAlive(ctx context.Context) (bool, error) {
	if err := s.ensureOpen(); err != nil {
		return false, err
	}

	resp, err := s.transport.Send(ctx, http.MethodPost, endpointValidateWorker, nil, tokenRequest{Token: s.token})
	if err != nil {
		return false, err
	}
	if err := s.check(ctx, endpointValidateWorker, resp); err != nil {
		return false, err
	}

	return strings.Contains(resp.Body, "True"), nil
}

// Bye удаляет воркера с сервера, незавершённые задачи переоткрываются.
//
// Ответ сервера игнорируется: воркер мог уже истечь. Токен и текущая задача
// сбрасываются в любом случае. Повторный вызов ничего не делает.
func (s *Session) Bye(ctx context.Context) {
	if s.closed {
		return
	}

	if s.token != "" {
		resp, err := s.transport.Send(ctx, http.MethodPost, endpointBye, nil, tokenRequest{Token: s.token})
		if err != nil {
			s.logger.Debug("bye request not delivered", "error", err)
		} else {
			s.metrics.observeRequest(endpointBye, Classify(resp.StatusCode))
		}
	}

	s.token = ""
	s.job = nil
	s.closed = true
	s.transport.Close()

	s.lifecycle("closed worker")
}

// Close вызывает Bye с ограничением по времени. Всегда возвращает nil.
func (s *Session) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	s.Bye(ctx)
	return nil
}

// State возвращает текущее состояние жизненного цикла.
func (s *Session) State() State {
	switch {
	case s.closed:
		return StateDisconnected
	case s.token == "":
		return StateUnregistered
	case s.job != nil:
		return StateJobAssigned
	default:
		return StateRegistered
	}
}

// ID: локальный идентификатор сессии, отправляется как X-Request-ID.
func (s *Session) ID() uuid.UUID { return s.id }

// Token выданный сервером при регистрации; пустой после Bye.
func (s *Session) Token() string { return s.token }

func (s *Session) Stage() string       { return s.stage }
func (s *Session) Nickname() string    { return s.nickname }
func (s *Session) Project() string     { return s.project }
func (s *Session) DisplayName() string { return s.displayName }
func (s *Session) StageName() string   { return s.stageName }

// Job возвращает текущую задачу или nil.
func (s *Session) Job() *Job { return s.job }

// Logger возвращает логгер сессии с полями project/worker/stage.
func (s *Session) Logger() *slog.Logger { return s.logger }

// DashboardURL: страница прогресса воркера на трекере.
func (s *Session) DashboardURL() string {
	return fmt.Sprintf("%s/worker/%s/%s", s.transport.BaseURL(), strings.ToLower(s.stageName), s.displayName)
}

func (s *Session) ensureOpen() error {
	if s.closed {
		return ErrSessionClosed
	}
	return nil
}

func (s *Session) clearJob() int {
	id := 0
	if s.job != nil {
		id = s.job.ID
	}
	s.job = nil
	return id
}

// check классифицирует ответ. При ошибке делает одну попытку сообщить
// серверу статус "Crashed" и возвращает *StatusError.
func (s *Session) check(ctx context.Context, endpoint string, resp *Response) error {
	s.metrics.observeRequest(endpoint, Classify(resp.StatusCode))

	err := resp.Err()
	if err == nil {
		return nil
	}

	s.logger.Warn("tracker request failed",
		"endpoint", endpoint,
		"status", resp.StatusCode,
		"error", err,
	)
	s.reportCrash(ctx)
	return err
}

// reportCrash: best-effort, результат не проверяется.
func (s *Session) reportCrash(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	resp, err := s.transport.Send(ctx, http.MethodPost, endpointUpdateProgress, nil, progressRequest{
		Token:    s.token,
		Progress: crashedProgress,
	})
	if err != nil {
		s.logger.Debug("crash report not delivered", "error", err)
		return
	}
	s.metrics.observeRequest(endpointUpdateProgress, Classify(resp.StatusCode))
}

func (s *Session) lifecycle(msg string, args ...any) {
	if s.verbose {
		s.logger.Info(msg, args...)
		return
	}
	s.logger.Debug(msg, args...)
}
