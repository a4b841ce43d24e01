// Package transfer runs media transfer tasks with bounded concurrency.
// Tasks are started in submission order; every provider call passes through
// the shared call gate first.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Conte777/TeleVault/config"
	"github.com/Conte777/TeleVault/internal/domain"
	"github.com/Conte777/TeleVault/internal/infrastructure/metrics"
	pkgerrors "github.com/Conte777/TeleVault/pkg/errors"
	"github.com/Conte777/TeleVault/pkg/format"
)

const subscriberBuffer = 16

// taskState is the orchestrator's record of one task
type taskState struct {
	task        domain.TransferTask
	spec        domain.TransferSpec
	cancel      context.CancelFunc
	finishOnce  sync.Once
	subscribers []chan domain.ProgressEvent
}

// Orchestrator implements domain.TaskOrchestrator
type Orchestrator struct {
	mu      sync.Mutex
	tasks   map[string]*taskState
	queue   []string
	running int
	closed  bool

	registry  domain.AccountRegistry
	gate      domain.CallGate
	publisher domain.EventPublisher
	archiver  domain.MediaArchiver
	sessions  domain.SessionStore

	maxConcurrent    int
	chunkSize        int
	progressInterval time.Duration
	retryAttempts    int
	downloadDir      string
	taskRetention    time.Duration

	logger  zerolog.Logger
	metrics *metrics.Metrics

	rootCtx  context.Context
	rootStop context.CancelFunc
	wake     chan struct{}
	wg       sync.WaitGroup
	loopDone chan struct{}
}

// New creates an orchestrator and starts its scheduler. The publisher,
// archiver and session store may be nil when those backends are disabled.
func New(
	registry domain.AccountRegistry,
	gate domain.CallGate,
	publisher domain.EventPublisher,
	archiver domain.MediaArchiver,
	sessions domain.SessionStore,
	cfg *config.TransferConfig,
	logger zerolog.Logger,
	m *metrics.Metrics,
) *Orchestrator {
	rootCtx, rootStop := context.WithCancel(context.Background())
	o := &Orchestrator{
		tasks:            make(map[string]*taskState),
		registry:         registry,
		gate:             gate,
		publisher:        publisher,
		archiver:         archiver,
		sessions:         sessions,
		maxConcurrent:    cfg.MaxConcurrent,
		chunkSize:        cfg.ChunkSize,
		progressInterval: cfg.ProgressInterval,
		retryAttempts:    cfg.RetryAttempts,
		downloadDir:      cfg.DownloadDir,
		taskRetention:    cfg.TaskRetention,
		logger:           logger.With().Str("component", "transfer_orchestrator").Logger(),
		metrics:          m,
		rootCtx:          rootCtx,
		rootStop:         rootStop,
		wake:             make(chan struct{}, 1),
		loopDone:         make(chan struct{}),
	}
	go o.schedule()
	return o
}

// Submit enqueues a transfer task and returns its ID. Tasks start in
// submission order as concurrency slots free up.
func (o *Orchestrator) Submit(spec domain.TransferSpec) (string, error) {
	if err := validateSpec(spec); err != nil {
		return "", err
	}

	taskID := uuid.New().String()
	state := &taskState{
		spec: spec,
		task: domain.TransferTask{
			TaskID:    taskID,
			UserID:    spec.UserID,
			AccountID: spec.AccountID,
			Direction: spec.Direction,
			Source:    spec.Source,
			DestPath:  spec.DestPath,
			Filename:  spec.Filename,
			Status:    domain.TaskStatusPending,
		},
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return "", domain.ErrOrchestratorClosed
	}
	o.tasks[taskID] = state
	o.queue = append(o.queue, taskID)
	queued := len(o.queue)
	o.mu.Unlock()

	o.metrics.TasksSubmitted.Inc()
	o.metrics.TasksQueued.Set(float64(queued))
	o.publishEvent(state)
	o.signal()

	o.logger.Info().
		Str("task_id", taskID).
		Str("direction", string(spec.Direction)).
		Int("queue_depth", queued).
		Msg("transfer task submitted")
	return taskID, nil
}

func validateSpec(spec domain.TransferSpec) error {
	switch spec.Direction {
	case domain.DirectionDownload:
		if spec.Source.Peer == "" || spec.Source.MessageID == 0 {
			return pkgerrors.NewValidationError("download requires a source peer and message id")
		}
	case domain.DirectionUpload:
		if spec.DestPath == "" {
			return pkgerrors.NewValidationError("upload requires a local file path")
		}
		if spec.Relay == nil || spec.Relay.Peer == "" {
			return pkgerrors.NewValidationError("upload requires a target peer")
		}
	default:
		return pkgerrors.NewValidationErrorf("unknown direction %q", spec.Direction)
	}
	if spec.UserID == 0 {
		return pkgerrors.NewValidationError("user id is required")
	}
	return nil
}

// Cancel stops a pending or running task. Finished tasks cannot be cancelled.
func (o *Orchestrator) Cancel(taskID string) error {
	o.mu.Lock()
	state, ok := o.tasks[taskID]
	if !ok {
		o.mu.Unlock()
		return domain.ErrTaskNotFound
	}

	switch state.task.Status {
	case domain.TaskStatusPending:
		for i, id := range o.queue {
			if id == taskID {
				o.queue = append(o.queue[:i], o.queue[i+1:]...)
				break
			}
		}
		o.metrics.TasksQueued.Set(float64(len(o.queue)))
		o.mu.Unlock()
		o.finish(state, domain.TaskStatusCancelled, nil)
		return nil

	case domain.TaskStatusRunning:
		cancel := state.cancel
		o.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		return nil

	default:
		o.mu.Unlock()
		return domain.ErrTaskNotCancellable
	}
}

// Task returns a snapshot of a task's current state
func (o *Orchestrator) Task(taskID string) (domain.TransferTask, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	state, ok := o.tasks[taskID]
	if !ok {
		return domain.TransferTask{}, domain.ErrTaskNotFound
	}
	return state.task, nil
}

// RunningCount returns the number of transfers currently executing
func (o *Orchestrator) RunningCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// QueuedCount returns the number of transfers waiting for a slot
func (o *Orchestrator) QueuedCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue)
}

// SubscribeProgress returns a channel of progress events for a task. The
// channel is closed when the task finishes; slow consumers miss events rather
// than blocking the transfer.
func (o *Orchestrator) SubscribeProgress(taskID string) (<-chan domain.ProgressEvent, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	state, ok := o.tasks[taskID]
	if !ok {
		return nil, domain.ErrTaskNotFound
	}

	ch := make(chan domain.ProgressEvent, subscriberBuffer)
	if state.task.Status == domain.TaskStatusCompleted ||
		state.task.Status == domain.TaskStatusFailed ||
		state.task.Status == domain.TaskStatusCancelled {
		close(ch)
		return ch, nil
	}
	state.subscribers = append(state.subscribers, ch)
	return ch, nil
}

// Shutdown stops accepting tasks, cancels running ones and waits for workers
// to exit or the context to expire
func (o *Orchestrator) Shutdown(ctx context.Context) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	pending := o.queue
	o.queue = nil
	o.mu.Unlock()

	for _, taskID := range pending {
		o.mu.Lock()
		state := o.tasks[taskID]
		o.mu.Unlock()
		if state != nil {
			o.finish(state, domain.TaskStatusCancelled, nil)
		}
	}
	o.metrics.TasksQueued.Set(0)

	o.rootStop()
	o.signal()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		o.logger.Warn().Msg("shutdown timeout, abandoning running transfers")
	}
	<-o.loopDone
}

func (o *Orchestrator) signal() {
	select {
	case o.wake <- struct{}{}:
	default:
	}
}

// schedule starts queued tasks in FIFO order whenever a slot is free
func (o *Orchestrator) schedule() {
	defer close(o.loopDone)
	for {
		select {
		case <-o.rootCtx.Done():
			return
		case <-o.wake:
		}

		for {
			o.mu.Lock()
			if o.closed || o.running >= o.maxConcurrent || len(o.queue) == 0 {
				o.mu.Unlock()
				break
			}
			taskID := o.queue[0]
			o.queue = o.queue[1:]
			state := o.tasks[taskID]

			taskCtx, cancel := context.WithCancel(o.rootCtx)
			state.cancel = cancel
			state.task.Status = domain.TaskStatusRunning
			state.task.StartedAt = time.Now()
			o.running++
			o.metrics.TasksRunning.Set(float64(o.running))
			o.metrics.TasksQueued.Set(float64(len(o.queue)))
			o.mu.Unlock()

			o.publishEvent(state)
			o.wg.Add(1)
			go o.run(taskCtx, state)
		}
	}
}

func (o *Orchestrator) run(ctx context.Context, state *taskState) {
	defer o.wg.Done()
	defer func() {
		o.mu.Lock()
		o.running--
		o.metrics.TasksRunning.Set(float64(o.running))
		o.mu.Unlock()
		o.signal()
	}()

	var err error
	switch state.spec.Direction {
	case domain.DirectionDownload:
		err = o.runDownload(ctx, state)
	case domain.DirectionUpload:
		err = o.runUpload(ctx, state)
	}

	switch {
	case err == nil:
		o.finish(state, domain.TaskStatusCompleted, nil)
		o.afterSuccess(state)
	case errors.Is(err, context.Canceled):
		o.finish(state, domain.TaskStatusCancelled, nil)
	default:
		if errors.Is(err, domain.ErrNeedsRelogin) {
			o.dropDeadAccount(state)
		}
		o.finish(state, domain.TaskStatusFailed, err)
	}
}

// dropDeadAccount tears down an account whose session the provider rejected:
// the live handle is deregistered and the stored session invalidated so a
// restore cannot resurrect it
func (o *Orchestrator) dropDeadAccount(state *taskState) {
	o.mu.Lock()
	userID := state.task.UserID
	accountID := state.task.AccountID
	o.mu.Unlock()
	if accountID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := o.registry.Deregister(ctx, userID, accountID); err != nil {
		o.logger.Warn().Err(err).Int64("user_id", userID).Msg("failed to deregister dead account")
	}
	if o.sessions != nil {
		if err := o.sessions.Invalidate(ctx, userID, accountID); err != nil {
			o.logger.Warn().Err(err).Int64("user_id", userID).Msg("failed to invalidate dead session")
		}
	}
	o.logger.Warn().
		Int64("user_id", userID).
		Str("task_id", state.task.TaskID).
		Msg("account session rejected by provider, relogin required")
}

// handle resolves the account transport for a task, falling back to the
// user's active account when the spec names none
func (o *Orchestrator) handle(state *taskState) (domain.Transport, error) {
	if state.spec.AccountID != "" {
		return o.registry.Get(state.spec.UserID, state.spec.AccountID)
	}
	accountID, transport, err := o.registry.GetActive(state.spec.UserID)
	if err != nil {
		return nil, err
	}
	o.mu.Lock()
	state.task.AccountID = accountID
	state.spec.AccountID = accountID
	o.mu.Unlock()
	return transport, nil
}

func (o *Orchestrator) runDownload(ctx context.Context, state *taskState) error {
	transport, err := o.handle(state)
	if err != nil {
		return err
	}

	info, err := gatedCall(o, ctx, func() (domain.MediaInfo, error) {
		return transport.ResolveMedia(ctx, state.spec.Source)
	})
	if err != nil {
		return fmt.Errorf("resolve media: %w", err)
	}

	filename := state.spec.Filename
	if filename == "" {
		filename = info.Filename
	}
	destPath := state.spec.DestPath
	if destPath == "" {
		destPath = filepath.Join(o.downloadDir, filename)
	}

	o.mu.Lock()
	state.task.Filename = filename
	state.task.DestPath = destPath
	state.task.BytesTotal = info.Size
	o.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("create download dir: %w", err)
	}
	file, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("create destination file: %w", err)
	}

	tracker := o.tracker(state, filename, info.Size)

	var done int64
	for done < info.Size {
		if err := ctx.Err(); err != nil {
			file.Close()
			os.Remove(destPath)
			return err
		}

		offset := done
		chunk, err := gatedCall(o, ctx, func() ([]byte, error) {
			return transport.DownloadChunk(ctx, state.spec.Source, offset, o.chunkSize)
		})
		if err != nil {
			file.Close()
			os.Remove(destPath)
			return fmt.Errorf("download chunk at %d: %w", done, err)
		}
		if len(chunk) == 0 {
			file.Close()
			os.Remove(destPath)
			return pkgerrors.NewInternalErrorf("empty chunk at offset %d of %d", done, info.Size)
		}

		if _, err := file.Write(chunk); err != nil {
			file.Close()
			os.Remove(destPath)
			return fmt.Errorf("write chunk: %w", err)
		}
		done += int64(len(chunk))
		o.recordProgress(state, done, tracker)
		o.metrics.TransferBytes.WithLabelValues(string(domain.DirectionDownload)).Add(float64(len(chunk)))
	}

	if err := file.Close(); err != nil {
		os.Remove(destPath)
		return fmt.Errorf("close destination file: %w", err)
	}
	tracker.Update(done)
	return nil
}

func (o *Orchestrator) runUpload(ctx context.Context, state *taskState) error {
	transport, err := o.handle(state)
	if err != nil {
		return err
	}

	file, err := os.Open(state.spec.DestPath)
	if err != nil {
		return fmt.Errorf("open source file: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat source file: %w", err)
	}
	size := stat.Size()

	filename := state.spec.Filename
	if filename == "" {
		filename = filepath.Base(state.spec.DestPath)
	}

	o.mu.Lock()
	state.task.Filename = filename
	state.task.BytesTotal = size
	o.mu.Unlock()

	uploadID, err := gatedCall(o, ctx, func() (int64, error) {
		return transport.BeginUpload(ctx, size)
	})
	if err != nil {
		return fmt.Errorf("begin upload: %w", err)
	}

	tracker := o.tracker(state, filename, size)
	peer := state.spec.Relay.Peer

	buf := make([]byte, o.chunkSize)
	var done int64
	var lastAction time.Time
	part := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, readErr := io.ReadFull(file, buf)
		if readErr == io.EOF {
			break
		}
		if readErr != nil && readErr != io.ErrUnexpectedEOF {
			return fmt.Errorf("read source file: %w", readErr)
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		partNum := part
		if err := gatedDo(o, ctx, func() error {
			return transport.UploadPart(ctx, uploadID, partNum, data)
		}); err != nil {
			return fmt.Errorf("upload part %d: %w", partNum, err)
		}

		done += int64(n)
		part++
		o.recordProgress(state, done, tracker)
		o.metrics.TransferBytes.WithLabelValues(string(domain.DirectionUpload)).Add(float64(n))

		// The typing action is a provider call like any other: it takes a
		// gate token and fires at most once per progress interval. A failure
		// is cosmetic and never fails the transfer.
		if size > 0 && time.Since(lastAction) >= o.progressInterval {
			lastAction = time.Now()
			percent := int(done * 100 / size)
			if err := o.gate.Acquire(ctx); err != nil {
				return err
			}
			if err := transport.SendChatAction(ctx, peer, percent); err != nil {
				o.logger.Debug().Err(err).Str("task_id", state.task.TaskID).Msg("chat action failed")
			}
		}

		if readErr == io.ErrUnexpectedEOF {
			break
		}
	}

	if err := gatedDo(o, ctx, func() error {
		return transport.FinishUpload(ctx, uploadID, part, peer, filename, state.spec.Relay.Caption, size)
	}); err != nil {
		return fmt.Errorf("finish upload: %w", err)
	}
	tracker.Update(done)
	return nil
}

// gatedCall runs one provider operation behind the shared gate with the
// retry policy: flood waits pause for the mandated duration and retry the
// same operation, transient errors retry with backoff up to the attempt
// bound, everything else fails immediately.
func gatedCall[T any](o *Orchestrator, ctx context.Context, op func() (T, error)) (T, error) {
	var zero T
	transientLeft := o.retryAttempts
	backoff := time.Second

	for {
		if err := o.gate.Acquire(ctx); err != nil {
			return zero, err
		}

		result, err := op()
		if err == nil {
			return result, nil
		}

		if retryAfter, ok := pkgerrors.RetryAfter(err); ok {
			o.metrics.FloodWaitsTotal.Inc()
			o.metrics.FloodWaitSeconds.Observe(retryAfter.Seconds())
			o.metrics.TransferRetries.Inc()
			o.logger.Warn().Dur("retry_after", retryAfter).Msg("flood wait, pausing transfer")
			select {
			case <-time.After(retryAfter):
				continue
			case <-ctx.Done():
				return zero, ctx.Err()
			}
		}

		if pkgerrors.IsRetryable(err) && transientLeft > 0 {
			transientLeft--
			o.metrics.TransferRetries.Inc()
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return zero, ctx.Err()
			}
			if backoff < 8*time.Second {
				backoff *= 2
			}
			continue
		}

		if pkgerrors.IsAuthLost(err) {
			return zero, fmt.Errorf("%w: %s", domain.ErrNeedsRelogin, err.Error())
		}
		return zero, err
	}
}

func gatedDo(o *Orchestrator, ctx context.Context, op func() error) error {
	_, err := gatedCall(o, ctx, func() (struct{}, error) {
		return struct{}{}, op()
	})
	return err
}

// tracker builds a progress tracker whose events fan out to subscribers
func (o *Orchestrator) tracker(state *taskState, filename string, total int64) *progressTracker {
	return newProgressTracker(state.task.TaskID, filename, total, o.progressInterval, func(ev domain.ProgressEvent) {
		o.mu.Lock()
		subs := make([]chan domain.ProgressEvent, len(state.subscribers))
		copy(subs, state.subscribers)
		o.mu.Unlock()

		for _, ch := range subs {
			select {
			case ch <- ev:
			default: // slow subscriber misses this event
			}
		}
	})
}

func (o *Orchestrator) recordProgress(state *taskState, done int64, tracker *progressTracker) {
	o.mu.Lock()
	if done > state.task.BytesDone {
		state.task.BytesDone = done
	}
	o.mu.Unlock()
	tracker.Update(done)
}

// finish moves a task to a terminal status exactly once: stamps completion,
// publishes the task event, closes subscriber channels and records metrics
func (o *Orchestrator) finish(state *taskState, status domain.TaskStatus, cause error) {
	state.finishOnce.Do(func() {
		o.mu.Lock()
		state.task.Status = status
		state.task.CompletedAt = time.Now()
		if cause != nil {
			state.task.Error = cause.Error()
		}
		subs := state.subscribers
		state.subscribers = nil
		started := state.task.StartedAt
		o.mu.Unlock()

		for _, ch := range subs {
			close(ch)
		}

		o.metrics.TasksFinished.WithLabelValues(string(status)).Inc()
		if status == domain.TaskStatusCompleted && !started.IsZero() {
			o.metrics.TransferDuration.Observe(time.Since(started).Seconds())
		}
		o.publishEvent(state)

		ev := o.logger.Info()
		if status == domain.TaskStatusFailed {
			ev = o.logger.Error().Err(cause)
		}
		elapsed := time.Since(started).Seconds()
		speed := 0.0
		if elapsed > 0 {
			speed = float64(state.task.BytesDone) / elapsed
		}
		ev.Str("task_id", state.task.TaskID).
			Str("status", string(status)).
			Str("transferred", format.Size(state.task.BytesDone)).
			Str("speed", format.Speed(speed)).
			Msg("transfer task finished")

		// Finished tasks stay queryable for the retention window, then
		// drop out of the index
		if o.taskRetention > 0 {
			time.AfterFunc(o.taskRetention, func() { o.evictTask(state.task.TaskID) })
		}
	})
}

// evictTask removes a finished task from the index. Running tasks are kept.
func (o *Orchestrator) evictTask(taskID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	state, ok := o.tasks[taskID]
	if !ok {
		return
	}
	switch state.task.Status {
	case domain.TaskStatusCompleted, domain.TaskStatusFailed, domain.TaskStatusCancelled:
		delete(o.tasks, taskID)
	}
}

// afterSuccess runs post-completion hooks: the chained relay upload and the
// archive copy. Both only ever run for a completed download.
func (o *Orchestrator) afterSuccess(state *taskState) {
	if state.spec.Direction != domain.DirectionDownload {
		return
	}

	o.mu.Lock()
	destPath := state.task.DestPath
	filename := state.task.Filename
	o.mu.Unlock()

	if o.archiver != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		location, err := o.archiver.Archive(ctx, state.task.TaskID, destPath, filename)
		cancel()
		if err != nil {
			o.logger.Warn().Str("task_id", state.task.TaskID).Err(err).Msg("archive copy failed")
		} else {
			o.logger.Info().Str("task_id", state.task.TaskID).Str("location", location).Msg("download archived")
		}
	}

	if state.spec.Relay != nil {
		chainedID, err := o.Submit(domain.TransferSpec{
			UserID:    state.spec.UserID,
			AccountID: state.spec.AccountID,
			Direction: domain.DirectionUpload,
			DestPath:  destPath,
			Filename:  filename,
			Relay:     state.spec.Relay,
		})
		if err != nil {
			o.logger.Warn().Str("task_id", state.task.TaskID).Err(err).Msg("chained upload not scheduled")
			return
		}
		o.mu.Lock()
		state.task.ChainedTaskID = chainedID
		o.mu.Unlock()
	}
}

func (o *Orchestrator) publishEvent(state *taskState) {
	if o.publisher == nil {
		return
	}
	o.mu.Lock()
	ev := domain.TaskEvent{
		TaskID:     state.task.TaskID,
		UserID:     state.task.UserID,
		AccountID:  state.task.AccountID,
		Direction:  state.task.Direction,
		Status:     state.task.Status,
		BytesDone:  state.task.BytesDone,
		BytesTotal: state.task.BytesTotal,
		Error:      state.task.Error,
		OccurredAt: time.Now(),
	}
	o.mu.Unlock()
	o.publisher.PublishTaskEvent(ev)
}

// Ensure Orchestrator implements domain.TaskOrchestrator interface
var _ domain.TaskOrchestrator = (*Orchestrator)(nil)
