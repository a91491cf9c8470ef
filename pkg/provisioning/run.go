package provisioning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/courtlens/tenancy/pkg/logger"
	"github.com/courtlens/tenancy/pkg/queue"
	"github.com/courtlens/tenancy/pkg/statemachine"
	"github.com/courtlens/tenancy/pkg/tenant"
)

type runEvent string

const (
	eventStart    runEvent = "start"
	eventComplete runEvent = "complete"
	eventFail     runEvent = "fail"
)

var runStates = statemachine.NewDefinition[RunStatus, runEvent](RunPending).
	Transition(RunPending, eventStart, RunInitializing).
	Transition(RunPending, eventFail, RunFailed).
	Transition(RunInitializing, eventComplete, RunCompleted).
	Transition(RunInitializing, eventFail, RunFailed).
	Terminal(RunCompleted, RunFailed)

// ProvisionTenant is the queue payload of a provisioning job.
type ProvisionTenant struct {
	ProvisioningID uuid.UUID `json:"provisioning_id"`
	TenantID       uuid.UUID `json:"tenant_id"`
}

// Handler returns the queue handler that executes provisioning jobs.
func (s *Service) Handler() queue.Handler {
	return queue.NewTaskHandler(func(ctx context.Context, job ProvisionTenant) error {
		return s.Provision(ctx, job.ProvisioningID)
	})
}

func (s *Service) startProvisioning(ctx context.Context, t *tenant.Tenant) (*Record, error) {
	now := s.now().UTC()
	rec := &Record{
		ID:                    uuid.New(),
		TenantID:              t.ID,
		Status:                RunPending,
		Steps:                 s.plan.states(),
		StartedAt:             now,
		EstimatedCompletionAt: now.Add(s.cfg.Timeout),
		UpdatedAt:             now,
		Resources: ResourceTracking{
			Created: []string{},
			Failed:  []string{},
			Pending: s.plan.ids(),
		},
		Errors: []string{},
	}
	if err := s.records.CreateRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("provisioning: create record for tenant %s: %w", t.ID, err)
	}

	log := s.log.With(logger.TenantID(t.ID.String()), logger.ProvisioningID(rec.ID.String()))
	if s.enqueuer == nil {
		log.WarnContext(ctx, "no job queue configured, provisioning left pending")
		return rec, nil
	}

	_, err := s.enqueuer.Enqueue(ctx, ProvisionTenant{ProvisioningID: rec.ID, TenantID: t.ID},
		queue.WithQueue(s.cfg.Queue),
		queue.WithMaxRetries(0),
	)
	if err != nil {
		log.ErrorContext(ctx, "failed to enqueue provisioning", logger.Error(err))
		return rec, nil
	}
	log.InfoContext(ctx, "provisioning enqueued")
	return rec, nil
}

// Provision executes the provisioning run. Steps run in plan order; a
// failing step is retried until it has failed MaxRetries+1 times, which
// fails the run and leaves the tenant status unchanged. A run found in
// initializing was interrupted and restarts from the first step, which is
// safe because every setup operation is idempotent. Finished runs are not
// executed again.
func (s *Service) Provision(ctx context.Context, recordID uuid.UUID) error {
	rec, err := s.records.Record(ctx, recordID)
	if err != nil {
		return err
	}
	log := s.log.With(logger.TenantID(rec.TenantID.String()), logger.ProvisioningID(rec.ID.String()))

	machine := runStates.Restore(rec.Status)
	if runStates.IsTerminal(machine.Current()) {
		log.InfoContext(ctx, "provisioning already finished", slog.String("status", string(rec.Status)))
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	started := s.now()

	t, err := s.store.Get(ctx, rec.TenantID)
	if err != nil {
		return s.failRun(ctx, log, machine, rec, started, fmt.Errorf("load tenant: %w", err))
	}

	if machine.Current() == RunPending {
		if err := machine.Fire(ctx, eventStart); err != nil {
			return err
		}
	} else {
		log.WarnContext(ctx, "restarting interrupted provisioning")
		rec.Steps = s.plan.states()
		rec.Resources = ResourceTracking{Created: []string{}, Failed: []string{}, Pending: s.plan.ids()}
	}
	rec.Status = machine.Current()
	if err := s.saveRecord(ctx, rec); err != nil {
		return err
	}
	log.InfoContext(ctx, "provisioning started")

	exec := &executor{svc: s, tenant: t}
	for i := range rec.Steps {
		step := &rec.Steps[i]
		kind, ok := s.plan.Kind(step.ID)
		if !ok {
			return s.failRun(ctx, log, machine, rec, started, fmt.Errorf("%w: unknown step %q", ErrInvalidPlan, step.ID))
		}
		rec.CurrentStep = i
		if err := s.runStep(ctx, log, rec, step, kind, exec); err != nil {
			rec.markFailed(step.ID)
			return s.failRun(ctx, log, machine, rec, started, err)
		}
		rec.markCreated(step.ID)
		if err := s.saveRecord(ctx, rec); err != nil {
			return err
		}
	}

	if err := s.activate(ctx, log, t.ID); err != nil {
		return s.failRun(ctx, log, machine, rec, started, fmt.Errorf("activate tenant: %w", err))
	}

	if err := machine.Fire(ctx, eventComplete); err != nil {
		return err
	}
	completed := s.now().UTC()
	rec.Status = machine.Current()
	rec.CompletedAt = &completed
	if err := s.saveRecord(ctx, rec); err != nil {
		return err
	}

	d := s.now().Sub(started)
	s.metrics.RunFinished(RunCompleted, d)
	log.InfoContext(ctx, "provisioning completed", logger.Duration(d))
	return nil
}

// activate moves the tenant to active only while it is still pending
// setup. A status set by an admin during the run is kept.
func (s *Service) activate(ctx context.Context, log *slog.Logger, id uuid.UUID) error {
	current, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if current.Status != tenant.StatusPendingSetup {
		log.WarnContext(ctx, "tenant status changed during provisioning, not activating",
			slog.String("status", string(current.Status)),
		)
		return nil
	}

	active := tenant.StatusActive
	_, err = s.Update(ctx, id, Patch{Status: &active})
	return err
}

// runStep executes one step with retries, persisting every transition.
func (s *Service) runStep(ctx context.Context, log *slog.Logger, rec *Record, step *StepState, kind StepKind, exec *executor) error {
	log = log.With(logger.Step(step.ID))
	for {
		startedAt := s.now().UTC()
		step.Status = StepRunning
		step.StartedAt = &startedAt
		step.Error = ""
		if err := s.saveRecord(ctx, rec); err != nil {
			return err
		}

		err := kind.Accept(ctx, exec)
		step.Duration = s.now().Sub(startedAt)
		s.metrics.StepFinished(step.ID, err == nil, step.Duration)

		if err == nil {
			completedAt := s.now().UTC()
			step.Status = StepCompleted
			step.CompletedAt = &completedAt
			log.InfoContext(ctx, "provisioning step completed", logger.Duration(step.Duration))
			return nil
		}

		step.Status = StepFailed
		step.Error = err.Error()
		if step.RetryCount >= step.MaxRetries || ctx.Err() != nil {
			log.ErrorContext(ctx, "provisioning step failed", logger.RetryCount(step.RetryCount), logger.Error(err))
			return fmt.Errorf("%w: %s: %w", ErrStepFailed, step.ID, err)
		}

		step.RetryCount++
		log.WarnContext(ctx, "provisioning step failed, retrying", logger.RetryCount(step.RetryCount), logger.Error(err))
		if err := s.saveRecord(ctx, rec); err != nil {
			return err
		}
	}
}

func (s *Service) failRun(ctx context.Context, log *slog.Logger, machine *statemachine.Machine[RunStatus, runEvent], rec *Record, started time.Time, cause error) error {
	// The run context may already be done; the failure must still be recorded.
	ctx = context.WithoutCancel(ctx)

	if err := machine.Fire(ctx, eventFail); err != nil {
		return errors.Join(cause, err)
	}
	completed := s.now().UTC()
	rec.Status = machine.Current()
	rec.CompletedAt = &completed
	rec.Errors = append(rec.Errors, cause.Error())
	if err := s.saveRecord(ctx, rec); err != nil {
		return errors.Join(cause, err)
	}

	d := s.now().Sub(started)
	s.metrics.RunFinished(RunFailed, d)
	log.ErrorContext(ctx, "provisioning failed", logger.Error(cause), logger.Duration(d))
	return cause
}

func (s *Service) saveRecord(ctx context.Context, rec *Record) error {
	rec.UpdatedAt = s.now().UTC()
	if err := s.records.UpdateRecord(ctx, rec); err != nil {
		return fmt.Errorf("provisioning: save record %s: %w", rec.ID, err)
	}
	return nil
}
