package idempotency

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mbroton/notcli/internal/audit"
)

const (
	defaultPollInterval = 500 * time.Millisecond
	defaultPollDeadline = 15 * time.Second
)

// KeyConflictError reports an idempotency key collision: the key is held
// by a request with a different input hash. Never retried automatically.
type KeyConflictError struct {
	Key        string
	Command    string
	InputHash  string
	StoredHash string
}

func (e *KeyConflictError) Error() string {
	return fmt.Sprintf("idempotency key collision for %s: request hash %s, stored hash %s",
		e.Command, e.InputHash, e.StoredHash)
}

// InProgressError reports that another owner's reservation for the same
// key was still pending at the poll deadline. The caller may retry later.
type InProgressError struct {
	Key     string
	Command string
}

func (e *InProgressError) Error() string {
	return fmt.Sprintf("mutation %s is still in progress under the same idempotency key", e.Command)
}

// Unit is the mutating work a Pipeline run wraps. It returns the response
// payload to persist and the upstream ids the mutation touched.
type Unit func(ctx context.Context) (response json.RawMessage, targetIDs []string, err error)

// Result is the outcome of a pipeline run.
type Result struct {
	Response  json.RawMessage
	Replayed  bool
	Key       string
	RequestID string
}

// Pipeline wraps mutating operations with idempotency reservation,
// execution, completion or release, and audit notification.
type Pipeline struct {
	store *Store
	sink  *audit.Logger

	now          func() time.Time
	sleep        func(ctx context.Context, d time.Duration) error
	pollInterval time.Duration
	pollDeadline time.Duration
}

// NewPipeline builds a pipeline over the given store and audit sink.
func NewPipeline(store *Store, sink *audit.Logger) *Pipeline {
	return &Pipeline{
		store:        store,
		sink:         sink,
		now:          time.Now,
		sleep:        sleepCtx,
		pollInterval: defaultPollInterval,
		pollDeadline: defaultPollDeadline,
	}
}

// Run executes fn at most once for the derived idempotency key. Duplicate
// invocations replay the stored response; a concurrent owner is polled
// until it resolves or the deadline elapses.
func (p *Pipeline) Run(ctx context.Context, command string, shape any, fn Unit) (Result, error) {
	key, inputHash, err := DeriveKey(command, shape, p.now())
	if err != nil {
		return Result{}, err
	}
	requestID := uuid.NewString()

	decision, err := p.store.Reserve(ctx, key, command, inputHash)
	if err != nil {
		return Result{}, err
	}

	for decision.Outcome == OutcomePending {
		decision, err = p.awaitOwner(ctx, key, command, inputHash)
		if err != nil {
			return Result{}, err
		}
		if decision.Outcome == OutcomeExecute {
			// The owner released its reservation; claim it for ourselves.
			decision, err = p.store.Reserve(ctx, key, command, inputHash)
			if err != nil {
				return Result{}, err
			}
		}
	}

	switch decision.Outcome {
	case OutcomeReplay:
		// Replays still leave an audit trail; the mutation itself is not
		// re-executed.
		p.notify(command, requestID, key, nil, true)
		return Result{Response: decision.Response, Replayed: true, Key: key, RequestID: requestID}, nil

	case OutcomeConflict:
		return Result{}, &KeyConflictError{
			Key:        key,
			Command:    command,
			InputHash:  inputHash,
			StoredHash: decision.StoredHash,
		}

	case OutcomeExecute:
		response, targetIDs, execErr := fn(ctx)
		if execErr != nil {
			// Undo the reservation so a legitimate retry can re-execute.
			if relErr := p.store.Release(ctx, key, command, inputHash); relErr != nil {
				execErr = fmt.Errorf("%w (release reservation: %v)", execErr, relErr)
			}
			p.notify(command, requestID, key, targetIDs, false)
			return Result{}, execErr
		}

		if err := p.store.Complete(ctx, key, command, inputHash, response); err != nil {
			return Result{}, err
		}
		p.notify(command, requestID, key, targetIDs, true)
		return Result{Response: response, Key: key, RequestID: requestID}, nil

	default:
		return Result{}, fmt.Errorf("unexpected idempotency outcome %d", decision.Outcome)
	}
}

// awaitOwner polls the store while another invocation holds the pending
// reservation. Cooperative sleeps between polls, bounded by the deadline.
func (p *Pipeline) awaitOwner(ctx context.Context, key, command, inputHash string) (Decision, error) {
	deadline := p.now().Add(p.pollDeadline)
	for {
		if err := p.sleep(ctx, p.pollInterval); err != nil {
			return Decision{}, err
		}

		decision, err := p.store.Lookup(ctx, key, command, inputHash)
		if err != nil {
			return Decision{}, err
		}
		if decision.Outcome != OutcomePending {
			return decision, nil
		}
		if p.now().After(deadline) {
			return Decision{}, &InProgressError{Key: key, Command: command}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// notify emits an audit event. Audit failures never affect the command's
// outcome.
func (p *Pipeline) notify(command, requestID, key string, targetIDs []string, ok bool) {
	if p.sink == nil {
		return
	}
	_ = p.sink.Record(audit.Event{
		Command:        command,
		RequestID:      requestID,
		IdempotencyKey: key,
		TargetIDs:      targetIDs,
		OK:             ok,
	})
}
