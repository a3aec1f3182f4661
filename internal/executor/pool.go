package executor

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/trackd/internal/gates"
	"github.com/fyrsmithlabs/trackd/internal/item"
	"github.com/fyrsmithlabs/trackd/internal/routing"
)

const instrumentationName = "github.com/fyrsmithlabs/trackd/internal/executor"

// PoolConfig bounds the pool's parallelism and per-call budget.
type PoolConfig struct {
	// Deadline is the per-invocation response deadline. Calls that
	// exceed it are treated as failed.
	Deadline time.Duration

	// MaxParallel caps concurrent invocations within one advancement
	// attempt.
	MaxParallel int

	// RatePerSecond throttles invocation starts. Zero disables
	// throttling.
	RatePerSecond float64
}

// DefaultPoolConfig returns sensible defaults.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Deadline:    10 * time.Second,
		MaxParallel: 4,
	}
}

// Outcome is the joined result of one invocation.
type Outcome struct {
	Executor    routing.ExecutorID
	Requirement gates.MissingRequirement
	Response    *Response
	Err         error
}

// Pool invokes executors for planned assignments with bounded
// parallelism and a deterministic join order.
type Pool struct {
	config    PoolConfig
	directory *Directory
	limiter   *rate.Limiter
	logger    *zap.Logger

	tracer         trace.Tracer
	meter          metric.Meter
	invokeCounter  metric.Int64Counter
	invokeDuration metric.Float64Histogram
}

// NewPool creates an invocation pool over the given directory.
func NewPool(cfg PoolConfig, directory *Directory, logger *zap.Logger) *Pool {
	if directory == nil {
		directory = NewDirectory()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = DefaultPoolConfig().Deadline
	}
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = DefaultPoolConfig().MaxParallel
	}

	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.MaxParallel)
	}

	p := &Pool{
		config:    cfg,
		directory: directory,
		limiter:   limiter,
		logger:    logger,
		tracer:    otel.Tracer(instrumentationName),
		meter:     otel.Meter(instrumentationName),
	}
	p.initMetrics()
	return p
}

func (p *Pool) initMetrics() {
	var err error

	p.invokeCounter, err = p.meter.Int64Counter(
		"trackd.executor.invocations_total",
		metric.WithDescription("Total executor invocations labeled by executor id and status"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		p.logger.Warn("failed to create invocation counter", zap.Error(err))
	}

	p.invokeDuration, err = p.meter.Float64Histogram(
		"trackd.executor.invocation_duration_seconds",
		metric.WithDescription("Executor invocation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		p.logger.Warn("failed to create invocation histogram", zap.Error(err))
	}
}

// Invoke runs every planned invocation against a snapshot of the work
// item and joins the outcomes sorted by (executor id, requirement id).
// Individual failures and deadline overruns become failed outcomes, not
// an error from Invoke; only a cancelled parent context aborts the whole
// fan-out.
func (p *Pool) Invoke(ctx context.Context, assignment routing.Assignment, snapshot *item.WorkItem, correlationID string) ([]Outcome, error) {
	if len(assignment.Invocations) == 0 {
		return nil, nil
	}

	ctx, span := p.tracer.Start(ctx, "executor.invoke")
	defer span.End()
	span.SetAttributes(
		attribute.String("phase_owner", string(assignment.PhaseOwner)),
		attribute.Int("invocations", len(assignment.Invocations)),
		attribute.String("correlation_id", correlationID),
	)

	outcomes := make([]Outcome, len(assignment.Invocations))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.MaxParallel)

	for i, inv := range assignment.Invocations {
		g.Go(func() error {
			outcome := p.invokeOne(gctx, inv, snapshot, correlationID)
			mu.Lock()
			outcomes[i] = outcome
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Stable join order so GateResult.Missing is reproducible after
	// evidence application.
	sort.SliceStable(outcomes, func(i, j int) bool {
		if outcomes[i].Executor != outcomes[j].Executor {
			return outcomes[i].Executor < outcomes[j].Executor
		}
		return outcomes[i].Requirement.ID < outcomes[j].Requirement.ID
	})
	return outcomes, nil
}

func (p *Pool) invokeOne(ctx context.Context, inv routing.Invocation, snapshot *item.WorkItem, correlationID string) Outcome {
	outcome := Outcome{Executor: inv.Executor, Requirement: inv.Requirement}

	exec, ok := p.directory.Lookup(inv.Executor)
	if !ok {
		outcome.Err = &FailureError{
			Executor:    inv.Executor,
			Requirement: inv.Requirement.ID,
			Message:     "executor is registered but has no implementation",
		}
		return outcome
	}

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			outcome.Err = &FailureError{Executor: inv.Executor, Requirement: inv.Requirement.ID, Err: err}
			return outcome
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, p.config.Deadline)
	defer cancel()

	start := time.Now()
	resp, err := exec.Produce(callCtx, &Request{
		ExecutorID:    inv.Executor,
		Snapshot:      *snapshot,
		RequirementID: inv.Requirement.ID,
		CorrelationID: correlationID,
	})
	duration := time.Since(start)

	status := "error"
	switch {
	case err != nil:
		outcome.Err = &FailureError{Executor: inv.Executor, Requirement: inv.Requirement.ID, Err: err}
	case resp == nil:
		outcome.Err = &FailureError{Executor: inv.Executor, Requirement: inv.Requirement.ID, Message: "executor returned no response"}
	default:
		outcome.Response = resp
		status = string(resp.Status)
		if resp.Status != StatusSuccess {
			outcome.Err = &FailureError{Executor: inv.Executor, Requirement: inv.Requirement.ID, Message: resp.Message}
		}
	}

	if p.invokeCounter != nil {
		p.invokeCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("executor", string(inv.Executor)),
			attribute.String("status", status),
		))
	}
	if p.invokeDuration != nil {
		p.invokeDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
			attribute.String("executor", string(inv.Executor)),
		))
	}

	p.logger.Debug("executor invocation finished",
		zap.String("executor", string(inv.Executor)),
		zap.String("requirement", string(inv.Requirement.ID)),
		zap.String("status", status),
		zap.Duration("duration", duration),
	)
	return outcome
}

// Succeeded splits outcomes into successes and failures preserving join
// order.
func Succeeded(outcomes []Outcome) (ok []Outcome, failed []Outcome) {
	for _, o := range outcomes {
		if o.Err == nil && o.Response != nil && o.Response.Status == StatusSuccess {
			ok = append(ok, o)
		} else {
			failed = append(failed, o)
		}
	}
	return ok, failed
}
