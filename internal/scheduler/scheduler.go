package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/riverton-labs/sqlpilot/internal/abort"
	"github.com/riverton-labs/sqlpilot/internal/tool"
)

// Outcome is the UI's answer to an AwaitingConfirmation event (§6).
type Outcome string

const (
	OutcomeProceedOnce   Outcome = "proceed_once"
	OutcomeProceedAlways Outcome = "proceed_always"
	OutcomeCancel        Outcome = "cancel"
	OutcomeModify        Outcome = "modify"
)

// Confirmation is what HandleConfirmation receives.
type Confirmation struct {
	Outcome Outcome
	NewArgs json.RawMessage // set when Outcome == OutcomeModify
}

// Request is one tool call the model asked for.
type Request struct {
	RequestID string
	CallID    string
	Name      string
	Args      json.RawMessage
}

// Config bounds the scheduler's concurrency and default tool timeout.
type Config struct {
	Concurrency    int
	DefaultTimeout time.Duration
}

func (c Config) normalized() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = 30 * time.Second
	}
	return c
}

// UpdateFunc is called on every ToolCall state transition (advisory; the
// authoritative completion signal is CompleteFunc, §5).
type UpdateFunc func(all []ToolCall)

// CompleteFunc fires exactly once per batch, when every call in it has
// reached a terminal state.
type CompleteFunc func(batch []ToolCall)

// ConfirmFunc is invoked when a call enters awaiting_approval; it is the
// scheduler's only channel for surfacing AwaitingConfirmation upward
// (kept separate from UpdateFunc so the Client can react to it exactly
// once per call, instead of filtering every update).
type ConfirmFunc func(call ToolCall, details tool.ConfirmationDetails)

// Scheduler is the central per-session tool-call state machine (§4.4).
type Scheduler struct {
	registry *tool.Registry
	config   Config

	mu      sync.Mutex
	calls   map[string]*ToolCall
	trusted map[string]bool
	waiting map[string]chan Confirmation

	onUpdate   UpdateFunc
	onComplete CompleteFunc
	onConfirm  ConfirmFunc

	// exclusive serializes tools that declare !IsParallelSafe() against
	// every other call in the batch: they take the write lock, parallel-
	// safe calls take the read lock. sem additionally bounds the number
	// of concurrently-executing parallel-safe calls.
	exclusive sync.RWMutex
	sem       chan struct{}
}

// New builds a Scheduler bound to registry.
func New(registry *tool.Registry, config Config) *Scheduler {
	config = config.normalized()
	return &Scheduler{
		registry: registry,
		config:   config,
		calls:    make(map[string]*ToolCall),
		trusted:  make(map[string]bool),
		waiting:  make(map[string]chan Confirmation),
		sem:      make(chan struct{}, config.Concurrency),
	}
}

// SetCallbacks installs the scheduler's observers. Nil callbacks are
// replaced with no-ops.
func (s *Scheduler) SetCallbacks(onUpdate UpdateFunc, onComplete CompleteFunc, onConfirm ConfirmFunc) {
	if onUpdate == nil {
		onUpdate = func([]ToolCall) {}
	}
	if onComplete == nil {
		onComplete = func([]ToolCall) {}
	}
	if onConfirm == nil {
		onConfirm = func(ToolCall, tool.ConfirmationDetails) {}
	}
	s.onUpdate, s.onComplete, s.onConfirm = onUpdate, onComplete, onConfirm
}

// Schedule runs one batch of requests to completion and returns the final
// snapshot of every call, in request order. It blocks until every call in
// the batch reaches a terminal state (success, error, or cancelled),
// which may include waiting on HandleConfirmation from another goroutine.
// Cross-batch ordering is the caller's responsibility: do not call
// Schedule again for a new batch until this call returns (§4.4 "batch
// N+1 does not begin until batch N has reached an all-terminal state").
func (s *Scheduler) Schedule(ctx context.Context, requests []Request, sig *abort.Signal) ([]ToolCall, error) {
	if len(requests) == 0 {
		return nil, nil
	}
	if sig == nil {
		sig = abort.New()
	}

	s.mu.Lock()
	for _, r := range requests {
		s.calls[r.CallID] = &ToolCall{
			RequestID: r.RequestID,
			CallID:    r.CallID,
			Name:      r.Name,
			Args:      r.Args,
			Status:    StatusValidating,
		}
	}
	s.mu.Unlock()
	s.notifyUpdate()

	var wg sync.WaitGroup
	wg.Add(len(requests))
	for _, r := range requests {
		r := r
		go func() {
			defer wg.Done()
			s.runCall(ctx, r.CallID, sig)
		}()
	}
	wg.Wait()

	batch := make([]ToolCall, 0, len(requests))
	s.mu.Lock()
	for _, r := range requests {
		batch = append(batch, s.calls[r.CallID].snapshot())
	}
	s.mu.Unlock()

	s.onComplete(batch)
	return batch, nil
}

// HandleConfirmation resolves a call parked in awaiting_approval. It is a
// no-op if callID is not currently awaiting approval.
func (s *Scheduler) HandleConfirmation(callID string, c Confirmation) {
	s.mu.Lock()
	ch, ok := s.waiting[callID]
	if ok {
		delete(s.waiting, callID)
	}
	s.mu.Unlock()
	if ok {
		ch <- c
		close(ch)
	}
}

// CancelAll marks every non-terminal call in the scheduler cancelled. Used
// when the session AbortSignal fires.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	var toWake []chan Confirmation
	for _, c := range s.calls {
		if !c.Status.IsTerminal() {
			if c.Status == StatusAwaitingApproval {
				if ch, ok := s.waiting[c.CallID]; ok {
					toWake = append(toWake, ch)
					delete(s.waiting, c.CallID)
				}
			}
		}
	}
	s.mu.Unlock()
	for _, ch := range toWake {
		ch <- Confirmation{Outcome: OutcomeCancel}
		close(ch)
	}
}

func (s *Scheduler) runCall(parentCtx context.Context, callID string, sig *abort.Signal) {
	ctx, cancelSig := sig.Context(parentCtx)
	defer cancelSig()

	s.mu.Lock()
	call := s.calls[callID]
	s.mu.Unlock()

	t, ok := s.registry.Get(call.Name)
	if !ok {
		s.fail(call, fmt.Errorf("scheduler: unknown tool %q", call.Name))
		return
	}

	if err := t.Validate(call.Args); err != nil {
		s.fail(call, fmt.Errorf("scheduler: validation: %w", err))
		return
	}

	fp := Fingerprint(call.Name, call.Args, nil)
	s.mu.Lock()
	isTrusted := s.trusted[fp]
	s.mu.Unlock()

	args := call.Args
	if !isTrusted {
		details, err := t.ShouldConfirm(ctx, call.Args)
		if err != nil {
			s.fail(call, fmt.Errorf("scheduler: should_confirm: %w", err))
			return
		}
		if details != nil {
			s.setStatus(call, StatusAwaitingApproval)
			s.onConfirm(call.snapshot(), *details)

			ch := make(chan Confirmation, 1)
			s.mu.Lock()
			s.waiting[callID] = ch
			s.mu.Unlock()

			select {
			case resp := <-ch:
				switch resp.Outcome {
				case OutcomeCancel:
					s.cancel(call)
					return
				case OutcomeProceedAlways:
					s.mu.Lock()
					s.trusted[fp] = true
					s.mu.Unlock()
				case OutcomeModify:
					if len(resp.NewArgs) > 0 {
						args = resp.NewArgs
					}
				case OutcomeProceedOnce:
				}
			case <-ctx.Done():
				s.cancel(call)
				return
			}
		}
	}

	// A call that never needed (or has cleared) confirmation passes
	// through scheduled as an observable step before executing (§3): it
	// has been admitted to run but hasn't claimed an execution slot yet.
	if !s.setStatus(call, StatusScheduled) {
		// Already moved by a racing CancelAll between the approval gate
		// and here.
		return
	}
	if !s.setStatus(call, StatusExecuting) {
		return
	}

	release := s.acquireExecutionSlot(t.IsParallelSafe())
	defer release()

	execCtx := ctx
	if s.config.DefaultTimeout > 0 {
		var timeoutCancel context.CancelFunc
		execCtx, timeoutCancel = context.WithTimeout(execCtx, s.config.DefaultTimeout)
		defer timeoutCancel()
	}

	s.mu.Lock()
	call.StartedAt = time.Now()
	s.mu.Unlock()
	s.notifyUpdate()

	result, err := t.Execute(execCtx, args, nil)

	s.mu.Lock()
	call.FinishedAt = time.Now()
	s.mu.Unlock()

	if err != nil {
		s.fail(call, err)
		return
	}
	if result.Err != nil {
		s.failWithResult(call, result)
		return
	}
	s.succeed(call, result)
}

func (s *Scheduler) acquireExecutionSlot(parallelSafe bool) func() {
	if parallelSafe {
		s.sem <- struct{}{}
		s.exclusive.RLock()
		return func() {
			s.exclusive.RUnlock()
			<-s.sem
		}
	}
	s.exclusive.Lock()
	return func() {
		s.exclusive.Unlock()
	}
}

func (s *Scheduler) setStatus(call *ToolCall, next Status) bool {
	s.mu.Lock()
	ok := call.transition(next)
	s.mu.Unlock()
	if ok {
		s.notifyUpdate()
	}
	return ok
}

func (s *Scheduler) fail(call *ToolCall, err error) {
	s.mu.Lock()
	call.transition(StatusError)
	call.Err = err
	call.FinishedAt = time.Now()
	s.mu.Unlock()
	s.notifyUpdate()
}

func (s *Scheduler) failWithResult(call *ToolCall, result tool.Result) {
	s.mu.Lock()
	call.transition(StatusError)
	r := result
	call.Result = &r
	call.Err = result.Err
	call.FinishedAt = time.Now()
	s.mu.Unlock()
	s.notifyUpdate()
}

func (s *Scheduler) succeed(call *ToolCall, result tool.Result) {
	s.mu.Lock()
	call.transition(StatusSuccess)
	r := result
	call.Result = &r
	s.mu.Unlock()
	s.notifyUpdate()
}

func (s *Scheduler) cancel(call *ToolCall) {
	s.mu.Lock()
	call.transition(StatusCancelled)
	call.FinishedAt = time.Now()
	s.mu.Unlock()
	s.notifyUpdate()
}

func (s *Scheduler) notifyUpdate() {
	if s.onUpdate == nil {
		return
	}
	s.mu.Lock()
	all := make([]ToolCall, 0, len(s.calls))
	for _, c := range s.calls {
		all = append(all, c.snapshot())
	}
	s.mu.Unlock()
	s.onUpdate(all)
}
