package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/carteras/internal/database"
)

var (
	// ErrSessionNotFound is returned for an unknown or expired session id.
	ErrSessionNotFound = errors.New("import session not found")

	// ErrCommitInProgress is returned when a session already runs a commit
	// or phase and the request would change or restart it.
	ErrCommitInProgress = errors.New("commit already in progress")
)

// DefaultSessionTTL is how long an idle session is kept.
const DefaultSessionTTL = 2 * time.Hour

// ServiceConfig configures a Service. Zero fields take defaults.
type ServiceConfig struct {
	MaxConcurrentCommits int
	CommitWait           time.Duration
	SessionTTL           time.Duration
	Retry                RetryPolicy
	Stage                StageOptions
	Logger               *slog.Logger
}

// Service owns import sessions: staged workbooks awaiting review and the
// commits run against them.
type Service struct {
	store   database.Querier
	orch    *Orchestrator
	limiter *CommitLimiter
	ttl     time.Duration
	stage   StageOptions
	logger  *slog.Logger

	mu       sync.RWMutex
	sessions map[uuid.UUID]*session
}

// NewService creates a service over store.
func NewService(store database.Querier, cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryPolicy
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	return &Service{
		store:    store,
		orch:     NewOrchestrator(store, cfg.Retry, logger),
		limiter:  NewCommitLimiter(cfg.MaxConcurrentCommits, cfg.CommitWait),
		ttl:      cfg.SessionTTL,
		stage:    cfg.Stage,
		logger:   logger,
		sessions: make(map[uuid.UUID]*session),
	}
}

// Progress is one event of a running commit.
type Progress struct {
	SessionID string       `json:"session_id"`
	Percent   int          `json:"percent"`
	Label     string       `json:"label"`
	Running   bool         `json:"running"`
	Report    CommitReport `json:"report"`
	Error     string       `json:"error,omitempty"`
}

type session struct {
	id        uuid.UUID
	fileName  string
	createdAt time.Time

	mu        sync.Mutex
	wb        *StagedWorkbook
	state     *CommitState
	running   bool
	done      chan struct{} // closed when the current run ends
	progress  Progress
	listeners []chan Progress
	lastUsed  time.Time
}

// SessionView is a read-only copy of a session.
type SessionView struct {
	ID        uuid.UUID       `json:"id"`
	FileName  string          `json:"file_name"`
	CreatedAt time.Time       `json:"created_at"`
	Running   bool            `json:"running"`
	Workbook  *StagedWorkbook `json:"workbook"`
}

func (s *session) view() SessionView {
	return SessionView{
		ID:        s.id,
		FileName:  s.fileName,
		CreatedAt: s.createdAt,
		Running:   s.running,
		Workbook:  s.wb.Clone(),
	}
}

// CreateSession stages wb and registers a new session for it.
func (s *Service) CreateSession(ctx context.Context, wb *Workbook) (SessionView, error) {
	staged, err := StageWorkbook(wb, s.stage)
	if err != nil {
		return SessionView{}, err
	}

	now := time.Now()
	sess := &session{
		id:        uuid.New(),
		fileName:  staged.FileName,
		createdAt: now,
		wb:        staged,
		state:     NewCommitState(),
		lastUsed:  now,
	}
	sess.progress = Progress{SessionID: sess.id.String(), Label: "Staged"}

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "import session created",
		"session_id", sess.id,
		"file", staged.FileName,
		"sheets", len(staged.Sheets),
		"rows", staged.RowCount(),
	)
	return sess.view(), nil
}

func (s *Service) get(id uuid.UUID) (*session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess, nil
}

// Session returns the staged preview of a session.
func (s *Service) Session(id uuid.UUID) (SessionView, error) {
	sess, err := s.get(id)
	if err != nil {
		return SessionView{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.lastUsed = time.Now()
	return sess.view(), nil
}

// EditHeader applies patch to sheet index i and returns the re-staged sheet.
// Edits are refused while a commit runs.
func (s *Service) EditHeader(id uuid.UUID, i int, patch HeaderPatch) (StagedSheet, error) {
	sess, err := s.get(id)
	if err != nil {
		return StagedSheet{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.running {
		return StagedSheet{}, ErrCommitInProgress
	}
	if err := sess.wb.EditHeaderAt(i, patch.Apply, s.stage.now()); err != nil {
		return StagedSheet{}, err
	}
	sess.lastUsed = time.Now()
	return sess.wb.Clone().Sheets[i], nil
}

// StartCommit begins a full commit in the background. The run outlives the
// request: it uses a context detached from ctx's cancellation.
func (s *Service) StartCommit(ctx context.Context, id uuid.UUID) error {
	return s.start(ctx, id, func(runCtx context.Context, sess *session, progress ProgressFunc) error {
		_, err := s.orch.Commit(runCtx, sess.wb, sess.state, progress)
		return err
	})
}

// StartPhase re-runs one phase in the background.
func (s *Service) StartPhase(ctx context.Context, id uuid.UUID, p Phase) error {
	if p < 0 || p >= phaseCount {
		return fmt.Errorf("%w: %d", ErrUnknownPhase, int(p))
	}
	return s.start(ctx, id, func(runCtx context.Context, sess *session, progress ProgressFunc) error {
		_, err := s.orch.RunPhase(runCtx, sess.wb, sess.state, p, progress)
		return err
	})
}

type runFunc func(ctx context.Context, sess *session, progress ProgressFunc) error

func (s *Service) start(ctx context.Context, id uuid.UUID, fn runFunc) error {
	sess, err := s.get(id)
	if err != nil {
		return err
	}

	sess.mu.Lock()
	if sess.running {
		sess.mu.Unlock()
		return ErrCommitInProgress
	}
	sess.running = true
	sess.done = make(chan struct{})
	sess.mu.Unlock()

	if err := s.limiter.Acquire(ctx); err != nil {
		sess.mu.Lock()
		sess.running = false
		close(sess.done)
		sess.mu.Unlock()
		return err
	}

	runCtx := context.WithoutCancel(ctx)
	go s.execute(runCtx, sess, fn)
	return nil
}

// execute owns the session's workbook and state until it returns.
func (s *Service) execute(ctx context.Context, sess *session, fn runFunc) {
	defer s.limiter.Release()

	runID := uuid.New()
	s.recordRunStart(ctx, runID, sess)

	var runErr error
	func() {
		defer func() {
			if v := recover(); v != nil {
				s.logger.Error("panic in commit", "session_id", sess.id, "panic", v)
				runErr = fmt.Errorf("internal error: %v", v)
			}
		}()
		runErr = fn(ctx, sess, func(percent int, label string, snapshot CommitReport) {
			sess.publish(Progress{
				SessionID: sess.id.String(),
				Percent:   percent,
				Label:     label,
				Running:   true,
				Report:    snapshot,
			})
		})
	}()

	final := sess.state.Report.Snapshot()
	s.recordRunFinish(ctx, runID, final)

	last := Progress{
		SessionID: sess.id.String(),
		Percent:   100,
		Label:     progressDone,
		Report:    final,
	}
	if runErr != nil {
		last.Error = FormatUserError(runErr)
	}

	sess.mu.Lock()
	sess.running = false
	sess.lastUsed = time.Now()
	sess.mu.Unlock()
	sess.publish(last)
	sess.finish()
}

// publish stores p as the latest event and fans it out. A slow listener
// loses its oldest buffered event, never the newest.
func (s *session) publish(p Progress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = p
	for _, ch := range s.listeners {
		select {
		case ch <- p:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- p:
		default:
		}
	}
}

// finish closes the listeners and wakes Wait callers.
func (s *session) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.listeners {
		close(ch)
	}
	s.listeners = nil
	close(s.done)
}

func (s *Service) recordRunStart(ctx context.Context, runID uuid.UUID, sess *session) {
	err := s.store.InsertImportRun(ctx, database.InsertImportRunParams{
		ID:        pgtype.UUID{Bytes: runID, Valid: true},
		SessionID: sess.id.String(),
		FileName:  sess.fileName,
		StartedAt: time.Now(),
	})
	if err != nil {
		s.logger.Warn("record import run failed", "session_id", sess.id, "error", err)
	}
}

func (s *Service) recordRunFinish(ctx context.Context, runID uuid.UUID, report CommitReport) {
	err := s.store.FinishImportRun(ctx, database.FinishImportRunParams{
		ID:         pgtype.UUID{Bytes: runID, Valid: true},
		GlobalOK:   report.GlobalOK,
		ReportText: report.String(),
	})
	if err != nil {
		s.logger.Warn("finish import run failed", "run_id", runID, "error", err)
	}
}

// SubscribeProgress returns a channel of progress events. It first carries
// the latest event and is closed when the running commit ends, or at once
// when nothing runs. Call the returned func to unsubscribe early.
func (s *Service) SubscribeProgress(id uuid.UUID) (<-chan Progress, func(), error) {
	sess, err := s.get(id)
	if err != nil {
		return nil, nil, err
	}

	ch := make(chan Progress, 16)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	ch <- sess.progress
	if !sess.running {
		close(ch)
		return ch, func() {}, nil
	}
	sess.listeners = append(sess.listeners, ch)

	unsubscribe := func() {
		sess.mu.Lock()
		defer sess.mu.Unlock()
		for i, l := range sess.listeners {
			if l == ch {
				sess.listeners = append(sess.listeners[:i], sess.listeners[i+1:]...)
				close(ch)
				return
			}
		}
	}
	return ch, unsubscribe, nil
}

// Wait blocks until the session's current run ends or ctx is done.
func (s *Service) Wait(ctx context.Context, id uuid.UUID) error {
	sess, err := s.get(id)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	done := sess.done
	sess.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Report returns the latest report of the session and whether a run is
// still in flight.
func (s *Service) Report(id uuid.UUID) (CommitReport, bool, error) {
	sess, err := s.get(id)
	if err != nil {
		return CommitReport{}, false, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.progress.Report.Snapshot(), sess.running, nil
}

// DeleteSession discards an idle session.
func (s *Service) DeleteSession(id uuid.UUID) error {
	sess, err := s.get(id)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	running := sess.running
	sess.mu.Unlock()
	if running {
		return ErrCommitInProgress
	}

	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	return nil
}

// Ping checks that the store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// LimiterStatus reports commit slot usage.
func (s *Service) LimiterStatus() CommitLimiterStatus {
	return s.limiter.Status()
}

// Shutdown waits for running commits to finish.
func (s *Service) Shutdown(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}
