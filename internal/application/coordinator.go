// Package application wires the visualization domain model to its external
// collaborators: a single cooperative operation queue, container-operation
// façades, and the ingestion/config loaders that populate a fresh state.
package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hydro-project/hydroscope/infrastructure/search"
	"github.com/hydro-project/hydroscope/internal/domain"
	"github.com/hydro-project/hydroscope/internal/ports"
)

// OperationClass is one of the coordinator's stable operation identifiers.
type OperationClass string

const (
	ClassLayout            OperationClass = "elk_layout"
	ClassRender            OperationClass = "render"
	ClassApplicationEvent  OperationClass = "application_event"
	ClassRenderConfigUpdate OperationClass = "render_config_update"
)

// EventKind further classifies an application_event operation for priority
// insertion and the per-kind status query.
type EventKind string

const (
	EventContainerExpand    EventKind = "container_expand"
	EventContainerCollapse  EventKind = "container_collapse"
	EventSearch             EventKind = "search"
	EventNavigate           EventKind = "navigate"
	EventLayoutConfigChange EventKind = "layout_config_change"
)

// Priority determines queue insertion order among pending operations.
// Within a priority tier, operations remain strict FIFO.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

func priorityForEventKind(kind EventKind) Priority {
	switch kind {
	case EventContainerExpand, EventContainerCollapse:
		return PriorityHigh
	case EventLayoutConfigChange:
		return PriorityLow
	default:
		return PriorityNormal
	}
}

// OperationFunc is a unit of work submitted to the coordinator. It produces
// a value or fails; it should observe ctx for cancellation on timeout.
type OperationFunc func(ctx context.Context) (any, error)

// EnqueueOptions configures an operation's timeout and retry policy.
type EnqueueOptions struct {
	Timeout    time.Duration
	MaxRetries int

	// RollbackFn, if set, is invoked by RecoverFromContainerOperationError
	// in rollback mode. Rollback is best-effort and operation-specific;
	// operations that cannot be undone should leave this nil.
	RollbackFn func(ctx context.Context) error
}

type operation struct {
	ID         string
	Class      OperationClass
	Kind       EventKind
	Priority   Priority
	Fn         OperationFunc
	Opts       EnqueueOptions
	RetryCount int
	EnqueuedAt time.Time
	doneCh     chan OperationResult
}

// OperationResult is the outcome of one completed (or finally failed)
// operation.
type OperationResult struct {
	ID             string
	Class          OperationClass
	Kind           EventKind
	Value          any
	Err            error
	StartedAt      time.Time
	FinishedAt     time.Time
	ProcessingTime time.Duration
}

// QueueStatus is the coordinator-wide snapshot returned by GetQueueStatus.
type QueueStatus struct {
	Pending               int
	Processing            int
	Completed             int
	Failed                int
	TotalProcessed        int
	CurrentOperation      string
	AverageProcessingTime time.Duration
	Errors                []string
}

// ClassStatus is a per-class (or per-event-kind) status slice of the queue.
type ClassStatus struct {
	Queued      int
	Processing  int
	LastCompleted *OperationResult
	LastFailed    *OperationResult
}

// RecoveryMode selects how RecoverFromContainerOperationError handles a
// failed container operation.
type RecoveryMode int

const (
	RecoveryRetry RecoveryMode = iota
	RecoveryRollback
	RecoverySkip
)

const processingTimeWindow = 100

// Coordinator is the single-threaded cooperative operation queue described
// by the spec: a FIFO queue with priority insertion, per-operation
// timeout/retry, per-class status, and a layout-then-render pipeline. A
// single background goroutine drains the queue; enqueuing from any
// goroutine is safe, but only ever one operation executes at a time (I7).
type Coordinator struct {
	mu sync.Mutex

	highQ, normalQ, lowQ []*operation
	processing           *operation
	failedOps             map[string]*operation

	completed []OperationResult
	failed    []OperationResult

	processingTimes []time.Duration
	errorsLog       []string

	nextID int64

	wakeCh  chan struct{}
	closeCh chan struct{}
	closed  bool

	metrics ports.MetricsCollector

	// layoutLimiter throttles how often back-to-back elk_layout operations
	// may invoke the external layout collaborator. Nil means unlimited.
	layoutLimiter *rate.Limiter

	// fuzzyMatcher, if set via SetFuzzyMatcher, provides a typo-tolerant
	// fallback for Search when the exact substring pass returns no results.
	fuzzyMatcher *search.FuzzyMatcher

	// labelFormatter, if set via SetAggregationLabelFormatter, renders a
	// human-readable Label for every aggregated edge after a container
	// operation changes which edges are aggregated.
	labelFormatter *search.AggregationLabelFormatter
}

// SetFuzzyMatcher installs a typo-tolerant fallback matcher used by Search
// whenever the exact substring pass returns no results. Passing nil
// disables fuzzy fallback.
func (c *Coordinator) SetFuzzyMatcher(m *search.FuzzyMatcher) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fuzzyMatcher = m
}

// SetAggregationLabelFormatter installs the formatter used to render
// Label on every aggregated edge after ExpandContainer, CollapseContainer,
// ExpandAllContainers, and CollapseAllContainers. Passing nil disables
// label rendering.
func (c *Coordinator) SetAggregationLabelFormatter(f *search.AggregationLabelFormatter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.labelFormatter = f
}

// refreshAggregationLabels re-renders every aggregated edge's Label against
// state's current visibility, if a label formatter is configured. It is a
// no-op otherwise.
func (c *Coordinator) refreshAggregationLabels(state *domain.VisualizationState) {
	c.mu.Lock()
	formatter := c.labelFormatter
	c.mu.Unlock()
	if formatter == nil {
		return
	}
	idx := state.ComputeVisibility()
	state.SetAggregatedEdgeLabels(search.FormatAggregatedEdgeLabels(idx, formatter))
}

// SetLayoutRateLimit throttles elk_layout dispatch to r operations per
// second with the given burst allowance. Passing r <= 0 disables limiting.
func (c *Coordinator) SetLayoutRateLimit(r rate.Limit, burst int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r <= 0 {
		c.layoutLimiter = nil
		return
	}
	c.layoutLimiter = rate.NewLimiter(r, burst)
}

// NewCoordinator starts a Coordinator with its single drain goroutine
// running in the background.
func NewCoordinator(metrics ports.MetricsCollector) *Coordinator {
	c := &Coordinator{
		failedOps: make(map[string]*operation),
		wakeCh:    make(chan struct{}, 1),
		closeCh:   make(chan struct{}),
		metrics:   metrics,
	}
	go c.loop()
	return c
}

// Close stops the drain goroutine. Pending and in-flight operations are
// abandoned.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	close(c.closeCh)
}

func (c *Coordinator) loop() {
	for {
		select {
		case <-c.closeCh:
			return
		case <-c.wakeCh:
			c.drainOnce()
		}
	}
}

// drainOnce processes the queue head-to-tail until empty. Because it runs
// only on the single loop goroutine, concurrent enqueue calls never start
// a second drain -- they append to a queue this same loop will pick up.
func (c *Coordinator) drainOnce() {
	for {
		op := c.popNext()
		if op == nil {
			return
		}
		c.execute(op)
	}
}

func (c *Coordinator) popNext() *operation {
	c.mu.Lock()
	defer c.mu.Unlock()
	var op *operation
	switch {
	case len(c.highQ) > 0:
		op, c.highQ = c.highQ[0], c.highQ[1:]
	case len(c.normalQ) > 0:
		op, c.normalQ = c.normalQ[0], c.normalQ[1:]
	case len(c.lowQ) > 0:
		op, c.lowQ = c.lowQ[0], c.lowQ[1:]
	default:
		return nil
	}
	c.processing = op
	return op
}

func (c *Coordinator) execute(op *operation) {
	startedAt := time.Now()

	ctx := context.Background()
	var cancel context.CancelFunc
	if op.Opts.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, op.Opts.Timeout)
	}

	if op.Class == ClassLayout {
		c.mu.Lock()
		limiter := c.layoutLimiter
		c.mu.Unlock()
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				if cancel != nil {
					cancel()
				}
				c.finish(op, startedAt, nil, fmt.Errorf("%s: %w", op.ID, ports.ErrTimeout))
				return
			}
		}
	}

	type outcome struct {
		val any
		err error
	}
	resultCh := make(chan outcome, 1)
	go func() {
		v, err := op.Fn(ctx)
		resultCh <- outcome{v, err}
	}()

	var val any
	var err error
	select {
	case r := <-resultCh:
		val, err = r.val, r.err
	case <-ctx.Done():
		err = fmt.Errorf("%s: %w", op.ID, ports.ErrTimeout)
	}
	if cancel != nil {
		cancel()
	}

	if err != nil && op.RetryCount < op.Opts.MaxRetries {
		op.RetryCount++
		time.Sleep(100 * time.Duration(op.RetryCount) * time.Millisecond)
		c.execute(op)
		return
	}

	c.finish(op, startedAt, val, err)
}

// finish records a completed-or-exhausted operation's result, updates
// statistics and metrics, and wakes its waiter. It is the single exit path
// from execute, shared by the normal completion flow and the layout
// rate-limiter's own timeout path.
func (c *Coordinator) finish(op *operation, startedAt time.Time, val any, err error) {
	finishedAt := time.Now()
	result := OperationResult{
		ID: op.ID, Class: op.Class, Kind: op.Kind,
		Value: val, Err: err,
		StartedAt: startedAt, FinishedAt: finishedAt,
		ProcessingTime: finishedAt.Sub(startedAt),
	}

	c.mu.Lock()
	c.processing = nil
	if err != nil {
		c.failed = append(c.failed, result)
		c.failedOps[op.ID] = op
		c.errorsLog = append(c.errorsLog, result.Err.Error())
	} else {
		c.completed = append(c.completed, result)
	}
	c.processingTimes = append(c.processingTimes, result.ProcessingTime)
	if len(c.processingTimes) > processingTimeWindow {
		c.processingTimes = c.processingTimes[len(c.processingTimes)-processingTimeWindow:]
	}
	c.mu.Unlock()

	if op.doneCh != nil {
		op.doneCh <- result
	}

	if c.metrics != nil {
		labels := map[string]string{"class": string(op.Class)}
		c.metrics.RecordLatency("operation_processing_time", result.ProcessingTime, labels)
		if err != nil {
			c.metrics.RecordCounter("operation_failed_total", 1, labels)
		} else {
			c.metrics.RecordCounter("operation_completed_total", 1, labels)
		}
	}
}

func (c *Coordinator) enqueue(class OperationClass, kind EventKind, priority Priority, fn OperationFunc, opts EnqueueOptions, await bool) (string, <-chan OperationResult) {
	c.mu.Lock()
	c.nextID++
	id := fmt.Sprintf("op_%d", c.nextID)
	op := &operation{
		ID: id, Class: class, Kind: kind, Priority: priority,
		Fn: fn, Opts: opts, EnqueuedAt: time.Now(),
	}
	var ch chan OperationResult
	if await {
		ch = make(chan OperationResult, 1)
		op.doneCh = ch
	}
	switch priority {
	case PriorityHigh:
		c.highQ = append(c.highQ, op)
	case PriorityLow:
		c.lowQ = append(c.lowQ, op)
	default:
		c.normalQ = append(c.normalQ, op)
	}
	c.mu.Unlock()

	select {
	case c.wakeCh <- struct{}{}:
	default:
	}
	return id, ch
}

// Enqueue submits a fire-and-forget operation and returns its monotone id
// (op_1, op_2, ...).
func (c *Coordinator) Enqueue(class OperationClass, fn OperationFunc, opts EnqueueOptions) string {
	id, _ := c.enqueue(class, "", PriorityNormal, fn, opts, false)
	return id
}

// EnqueueEvent submits an application_event operation of the given kind,
// using the kind's fixed priority (container_expand/collapse are high,
// layout_config_change is low, everything else normal).
func (c *Coordinator) EnqueueEvent(kind EventKind, fn OperationFunc, opts EnqueueOptions) string {
	id, _ := c.enqueue(ClassApplicationEvent, kind, priorityForEventKind(kind), fn, opts, false)
	return id
}

// EnqueueAndWait submits an operation and blocks until it completes,
// fails, or ctx is cancelled.
func (c *Coordinator) EnqueueAndWait(ctx context.Context, class OperationClass, kind EventKind, fn OperationFunc, opts EnqueueOptions) (OperationResult, error) {
	priority := PriorityNormal
	if class == ClassApplicationEvent {
		priority = priorityForEventKind(kind)
	}
	_, ch := c.enqueue(class, kind, priority, fn, opts, true)
	select {
	case result := <-ch:
		return result, result.Err
	case <-ctx.Done():
		return OperationResult{}, ctx.Err()
	}
}

// GetQueueStatus returns the coordinator-wide status snapshot.
func (c *Coordinator) GetQueueStatus() QueueStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	current := ""
	processing := 0
	if c.processing != nil {
		processing = 1
		current = c.processing.ID
	}
	return QueueStatus{
		Pending:               len(c.highQ) + len(c.normalQ) + len(c.lowQ),
		Processing:            processing,
		Completed:             len(c.completed),
		Failed:                len(c.failed),
		TotalProcessed:        len(c.completed) + len(c.failed),
		CurrentOperation:      current,
		AverageProcessingTime: averageDuration(c.processingTimes),
		Errors:                append([]string(nil), c.errorsLog...),
	}
}

func averageDuration(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range durations {
		total += d
	}
	return total / time.Duration(len(durations))
}

// GetClassStatus returns the status of one operation class across the
// whole queue and history.
func (c *Coordinator) GetClassStatus(class OperationClass) ClassStatus {
	return c.statusFor(func(op *operation) bool { return op.Class == class },
		func(r OperationResult) bool { return r.Class == class })
}

// GetContainerOperationStatus filters to the container_expand and
// container_collapse application-event kinds only.
func (c *Coordinator) GetContainerOperationStatus() ClassStatus {
	isContainerOp := func(kind EventKind) bool {
		return kind == EventContainerExpand || kind == EventContainerCollapse
	}
	return c.statusFor(
		func(op *operation) bool { return op.Class == ClassApplicationEvent && isContainerOp(op.Kind) },
		func(r OperationResult) bool { return r.Class == ClassApplicationEvent && isContainerOp(r.Kind) },
	)
}

func (c *Coordinator) statusFor(matchOp func(*operation) bool, matchResult func(OperationResult) bool) ClassStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	var status ClassStatus
	for _, q := range [][]*operation{c.highQ, c.normalQ, c.lowQ} {
		for _, op := range q {
			if matchOp(op) {
				status.Queued++
			}
		}
	}
	if c.processing != nil && matchOp(c.processing) {
		status.Processing = 1
	}
	for i := len(c.completed) - 1; i >= 0; i-- {
		if matchResult(c.completed[i]) {
			r := c.completed[i]
			status.LastCompleted = &r
			break
		}
	}
	for i := len(c.failed) - 1; i >= 0; i-- {
		if matchResult(c.failed[i]) {
			r := c.failed[i]
			status.LastFailed = &r
			break
		}
	}
	return status
}

// Cancel removes a still-pending operation. It returns false for an
// in-flight or already-completed operation.
func (c *Coordinator) Cancel(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, q := range []*[]*operation{&c.highQ, &c.normalQ, &c.lowQ} {
		for i, op := range *q {
			if op.ID == id {
				*q = append((*q)[:i], (*q)[i+1:]...)
				return true
			}
		}
	}
	return false
}

// CancelApplicationEventsByType drops every still-pending application_event
// operation of the given kind. Passing "" cancels pending application
// events regardless of kind. Returns the number removed.
func (c *Coordinator) CancelApplicationEventsByType(kind EventKind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for _, q := range []*[]*operation{&c.highQ, &c.normalQ, &c.lowQ} {
		kept := (*q)[:0]
		for _, op := range *q {
			if op.Class == ClassApplicationEvent && (kind == "" || op.Kind == kind) {
				removed++
				continue
			}
			kept = append(kept, op)
		}
		*q = kept
	}
	return removed
}

// ClearQueue drops all pending operations. Statistics and completed/failed
// history are unaffected.
func (c *Coordinator) ClearQueue() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.highQ, c.normalQ, c.lowQ = nil, nil, nil
}

// ClearHistory drops completed/failed history and processing-time
// statistics.
func (c *Coordinator) ClearHistory() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.completed, c.failed = nil, nil
	c.processingTimes, c.errorsLog = nil, nil
}

// RecoverFromContainerOperationError implements the user-driven recovery
// path for a container operation that ended up in the failed list.
// Rollback is best-effort: an operation enqueued without a RollbackFn has
// nothing to undo and returns an error saying so.
func (c *Coordinator) RecoverFromContainerOperationError(ctx context.Context, id string, mode RecoveryMode) error {
	c.mu.Lock()
	op, ok := c.failedOps[id]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("no failed operation %s to recover", id)
	}

	switch mode {
	case RecoveryRetry:
		op.RetryCount = 0
		c.mu.Lock()
		delete(c.failedOps, id)
		switch op.Priority {
		case PriorityHigh:
			c.highQ = append(c.highQ, op)
		case PriorityLow:
			c.lowQ = append(c.lowQ, op)
		default:
			c.normalQ = append(c.normalQ, op)
		}
		c.mu.Unlock()
		select {
		case c.wakeCh <- struct{}{}:
		default:
		}
		return nil

	case RecoveryRollback:
		if op.Opts.RollbackFn == nil {
			return fmt.Errorf("operation %s has no rollback defined; nothing to undo", id)
		}
		err := op.Opts.RollbackFn(ctx)
		if err == nil {
			c.mu.Lock()
			delete(c.failedOps, id)
			c.mu.Unlock()
		}
		return err

	case RecoverySkip:
		c.mu.Lock()
		delete(c.failedOps, id)
		c.mu.Unlock()
		return nil

	default:
		return errors.New("unknown recovery mode")
	}
}

// executeLayoutAndRenderPipeline runs the layout-then-render chain as two
// sequential, awaited operations, advancing state.Phase through
// idle->laying_out->ready->rendering->displayed. A failure at either stage
// moves the state to PhaseError and returns the failing stage's error; the
// other stage is not attempted.
func (c *Coordinator) executeLayoutAndRenderPipeline(
	ctx context.Context,
	state *domain.VisualizationState,
	layout ports.LayoutEngine,
	renderer ports.Renderer,
	opts EnqueueOptions,
) (ports.RenderData, error) {
	state.SetLayoutPhase(domain.PhaseLayingOut)

	_, err := c.EnqueueAndWait(ctx, ClassLayout, "", func(ctx context.Context) (any, error) {
		return nil, layout.Layout(ctx, state)
	}, opts)
	if err != nil {
		state.SetLayoutPhase(domain.PhaseError)
		return ports.RenderData{}, fmt.Errorf("layout: %w", err)
	}
	state.IncrementLayoutCount()
	state.SetLayoutPhase(domain.PhaseReady)
	state.SetLayoutPhase(domain.PhaseRendering)

	result, err := c.EnqueueAndWait(ctx, ClassRender, "", func(ctx context.Context) (any, error) {
		return renderer.ToRenderData(ctx, state)
	}, opts)
	if err != nil {
		state.SetLayoutPhase(domain.PhaseError)
		return ports.RenderData{}, fmt.Errorf("render: %w", err)
	}
	state.SetLayoutPhase(domain.PhaseDisplayed)

	data, _ := result.Value.(ports.RenderData)
	return data, nil
}

// RunLayoutAndRender is the exported entry point for the layout-then-render
// pipeline described by the spec: it always runs layout before render, and
// never interleaves the two for the same state.
func (c *Coordinator) RunLayoutAndRender(ctx context.Context, state *domain.VisualizationState, layout ports.LayoutEngine, renderer ports.Renderer, opts EnqueueOptions) (ports.RenderData, error) {
	return c.executeLayoutAndRenderPipeline(ctx, state, layout, renderer, opts)
}
