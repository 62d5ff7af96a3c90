package gojob

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-bookings/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

const (
	JobIDDispatchNotifications = core.JobIDDispatchNotifications
	JobIDPruneLedger           = core.JobIDPruneLedger

	dedupDrop = "drop"
)

// RetryPolicy defines queue retry bounds to avoid unbounded retry loops.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// NormalizeAttempt enforces bounded retry behavior for a nack operation.
func (p RetryPolicy) NormalizeAttempt(opts core.JobNackOptions, attempt int) core.JobNackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.DeadLetter {
		out.Requeue = false
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		if p.DeadLetterOnMax || out.DeadLetter {
			out.DeadLetter = true
		}
	}
	if !out.Requeue && !out.DeadLetter {
		out.Requeue = true
	}
	return out
}

// DispatchNotificationsJob builds the message that drains the notification
// outbox. A non-positive batch size defers to the service configuration.
func DispatchNotificationsJob(batchSize int, idempotencyKey string) *core.JobExecutionMessage {
	params := map[string]any{}
	if batchSize > 0 {
		params["batch_size"] = batchSize
	}
	return &core.JobExecutionMessage{
		JobID:          JobIDDispatchNotifications,
		ScriptPath:     JobIDDispatchNotifications,
		Parameters:     params,
		IdempotencyKey: strings.TrimSpace(idempotencyKey),
		DedupPolicy:    dedupDrop,
	}
}

func PruneLedgerJob(idempotencyKey string) *core.JobExecutionMessage {
	return &core.JobExecutionMessage{
		JobID:          JobIDPruneLedger,
		ScriptPath:     JobIDPruneLedger,
		Parameters:     map[string]any{},
		IdempotencyKey: strings.TrimSpace(idempotencyKey),
		DedupPolicy:    dedupDrop,
	}
}

// ToExecutionMessage maps a booking job message to go-job.
func ToExecutionMessage(msg *core.JobExecutionMessage) *job.ExecutionMessage {
	if msg == nil {
		return nil
	}
	return &job.ExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		Parameters:     copyAnyMap(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    job.DeduplicationPolicy(strings.TrimSpace(msg.DedupPolicy)),
	}
}

// FromExecutionMessage maps a go-job message into the booking job contract.
func FromExecutionMessage(msg *job.ExecutionMessage) *core.JobExecutionMessage {
	if msg == nil {
		return nil
	}
	return &core.JobExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		Parameters:     copyAnyMap(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    strings.TrimSpace(string(msg.DedupPolicy)),
	}
}

func ToNackOptions(opts core.JobNackOptions) queue.NackOptions {
	return queue.NackOptions{
		Delay:      opts.Delay,
		Requeue:    opts.Requeue,
		DeadLetter: opts.DeadLetter,
		Reason:     opts.Reason,
	}
}

type EnqueuerAdapter struct {
	enqueuer queue.Enqueuer
}

func NewEnqueuerAdapter(enqueuer queue.Enqueuer) *EnqueuerAdapter {
	return &EnqueuerAdapter{enqueuer: enqueuer}
}

func (a *EnqueuerAdapter) Enqueue(ctx context.Context, msg *core.JobExecutionMessage) error {
	if a == nil || a.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	if msg == nil {
		return fmt.Errorf("gojob: execution message is required")
	}
	return a.enqueuer.Enqueue(ctx, ToExecutionMessage(msg))
}

type DeliveryAdapter struct {
	delivery queue.Delivery
	policy   RetryPolicy
}

func NewDeliveryAdapter(delivery queue.Delivery, policy RetryPolicy) *DeliveryAdapter {
	return &DeliveryAdapter{delivery: delivery, policy: policy}
}

func (d *DeliveryAdapter) Message() *core.JobExecutionMessage {
	if d == nil || d.delivery == nil {
		return nil
	}
	return FromExecutionMessage(d.delivery.Message())
}

func (d *DeliveryAdapter) Ack(ctx context.Context) error {
	if d == nil || d.delivery == nil {
		return fmt.Errorf("gojob: delivery is not configured")
	}
	return d.delivery.Ack(ctx)
}

func (d *DeliveryAdapter) Nack(ctx context.Context, opts core.JobNackOptions) error {
	return d.NackForAttempt(ctx, opts, 0)
}

func (d *DeliveryAdapter) NackForAttempt(ctx context.Context, opts core.JobNackOptions, attempt int) error {
	if d == nil || d.delivery == nil {
		return fmt.Errorf("gojob: delivery is not configured")
	}
	normalized := d.policy.NormalizeAttempt(opts, attempt)
	return d.delivery.Nack(ctx, ToNackOptions(normalized))
}

type DequeuerAdapter struct {
	dequeuer queue.Dequeuer
	policy   RetryPolicy
}

func NewDequeuerAdapter(dequeuer queue.Dequeuer, policy RetryPolicy) *DequeuerAdapter {
	return &DequeuerAdapter{dequeuer: dequeuer, policy: policy}
}

func (a *DequeuerAdapter) Dequeue(ctx context.Context) (core.JobDelivery, error) {
	if a == nil || a.dequeuer == nil {
		return nil, fmt.Errorf("gojob: dequeuer is not configured")
	}
	delivery, err := a.dequeuer.Dequeue(ctx)
	if err != nil {
		return nil, err
	}
	return NewDeliveryAdapter(delivery, a.policy), nil
}

// JobExecutor runs one housekeeping job. *core.Service satisfies it.
type JobExecutor interface {
	ExecuteJob(ctx context.Context, msg core.JobExecutionMessage) error
}

// Runner pulls booking jobs from a queue and executes them against the
// service, acking on success and nacking with the retry policy otherwise.
type Runner struct {
	Dequeuer   core.JobDequeuer
	Executor   JobExecutor
	Hook       core.JobWorkerHook
	Policy     RetryPolicy
	RetryDelay time.Duration
}

// RunOnce processes a single delivery. Unknown jobs are dead lettered.
func (r *Runner) RunOnce(ctx context.Context) error {
	if r == nil || r.Dequeuer == nil || r.Executor == nil {
		return fmt.Errorf("gojob: runner is not configured")
	}
	delivery, err := r.Dequeuer.Dequeue(ctx)
	if err != nil {
		return err
	}
	if delivery == nil {
		return nil
	}
	msg := delivery.Message()
	if msg == nil {
		return delivery.Nack(ctx, core.JobNackOptions{DeadLetter: true, Reason: "empty message"})
	}

	attempt := attemptOf(msg)
	event := core.JobWorkerEvent{Message: msg, Attempt: attempt, StartedAt: time.Now().UTC()}
	r.hookStart(ctx, event)

	execErr := r.Executor.ExecuteJob(ctx, *msg)
	event.Duration = time.Since(event.StartedAt)
	if execErr == nil {
		r.hookSuccess(ctx, event)
		return delivery.Ack(ctx)
	}

	event.Err = execErr
	opts := core.JobNackOptions{Requeue: true, Delay: r.RetryDelay, Reason: execErr.Error()}
	if core.IsBadInputError(execErr) {
		opts = core.JobNackOptions{DeadLetter: true, Reason: execErr.Error()}
	}
	if adapter, ok := delivery.(*DeliveryAdapter); ok {
		opts = adapter.policy.NormalizeAttempt(opts, attempt)
	} else {
		opts = r.Policy.NormalizeAttempt(opts, attempt)
	}
	if opts.Requeue {
		event.Delay = opts.Delay
		r.hookRetry(ctx, event)
	} else {
		r.hookFailure(ctx, event)
	}
	if nackErr := delivery.Nack(ctx, opts); nackErr != nil {
		return nackErr
	}
	return execErr
}

func (r *Runner) hookStart(ctx context.Context, event core.JobWorkerEvent) {
	if r.Hook != nil {
		r.Hook.OnStart(ctx, event)
	}
}

func (r *Runner) hookSuccess(ctx context.Context, event core.JobWorkerEvent) {
	if r.Hook != nil {
		r.Hook.OnSuccess(ctx, event)
	}
}

func (r *Runner) hookFailure(ctx context.Context, event core.JobWorkerEvent) {
	if r.Hook != nil {
		r.Hook.OnFailure(ctx, event)
	}
}

func (r *Runner) hookRetry(ctx context.Context, event core.JobWorkerEvent) {
	if r.Hook != nil {
		r.Hook.OnRetry(ctx, event)
	}
}

func attemptOf(msg *core.JobExecutionMessage) int {
	if msg == nil || len(msg.Parameters) == 0 {
		return 1
	}
	switch typed := msg.Parameters["attempt"].(type) {
	case int:
		if typed > 0 {
			return typed
		}
	case float64:
		if typed > 0 {
			return int(typed)
		}
	}
	return 1
}

type WorkerHookAdapter struct {
	hook core.JobWorkerHook
}

func NewWorkerHookAdapter(hook core.JobWorkerHook) *WorkerHookAdapter {
	return &WorkerHookAdapter{hook: hook}
}

func (a *WorkerHookAdapter) OnStart(ctx context.Context, event worker.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnStart(ctx, mapWorkerEvent(event))
}

func (a *WorkerHookAdapter) OnSuccess(ctx context.Context, event worker.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnSuccess(ctx, mapWorkerEvent(event))
}

func (a *WorkerHookAdapter) OnFailure(ctx context.Context, event worker.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnFailure(ctx, mapWorkerEvent(event))
}

func (a *WorkerHookAdapter) OnRetry(ctx context.Context, event worker.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnRetry(ctx, mapWorkerEvent(event))
}

func mapWorkerEvent(event worker.Event) core.JobWorkerEvent {
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	return core.JobWorkerEvent{
		Message:   FromExecutionMessage(message),
		Attempt:   event.Attempt,
		Delay:     event.Delay,
		Err:       event.Err,
		StartedAt: event.StartedAt,
		Duration:  event.Duration,
	}
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

var (
	_ core.JobEnqueuer = (*EnqueuerAdapter)(nil)
	_ core.JobDelivery = (*DeliveryAdapter)(nil)
	_ core.JobDequeuer = (*DequeuerAdapter)(nil)
	_ worker.Hook      = (*WorkerHookAdapter)(nil)
	_ JobExecutor      = (*core.Service)(nil)
)
