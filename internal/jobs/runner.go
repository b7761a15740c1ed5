// Package jobs dispatches batch job requests to the catalog engines and
// reports their outcome. Scheduling and job status live with the caller.
package jobs

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/easycrawl/catalog-service/internal/consistency"
	"github.com/easycrawl/catalog-service/internal/matching"
	"github.com/easycrawl/catalog-service/internal/registry"
)

// Type names a batch job
type Type string

const (
	TypeMatch           Type = "match"
	TypeRetryUnmappable Type = "retry-unmappable"
	TypeConsistency     Type = "consistency"
	TypeCleanup         Type = "cleanup"
	TypeMineBrands      Type = "mine-brands"
	TypeRefreshRegistry Type = "refresh-registry"
)

// Types lists every job type
var Types = []Type{TypeMatch, TypeRetryUnmappable, TypeConsistency, TypeCleanup, TypeMineBrands, TypeRefreshRegistry}

// ParseType resolves a job type name
func ParseType(s string) (Type, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, t := range Types {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown job type %q", s)
}

// Request asks for one job run
type Request struct {
	Type Type `json:"type" jsonschema:"enum=match,enum=retry-unmappable,enum=consistency,enum=cleanup,enum=mine-brands,enum=refresh-registry"`
	// Parameters is job specific: a category substring for match, comma
	// separated flags for consistency and cleanup, a minimum occurrence
	// count for mine-brands.
	Parameters string `json:"parameters,omitempty"`
}

// Result describes a finished run
type Result struct {
	RunID      uuid.UUID         `json:"run_id"`
	Type       Type              `json:"type"`
	Parameters string            `json:"parameters,omitempty"`
	Summary    string            `json:"summary"`
	Counts     map[string]int    `json:"counts"`
	Errors     map[string]string `json:"errors,omitempty"`
	Error      string            `json:"error,omitempty"` // set when the run failed as a whole
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
}

// Deps are the engines a runner dispatches to
type Deps struct {
	Matcher     *matching.Engine
	Consistency *consistency.Engine
	Registry    *registry.Cache
	// Brands receives mined brand candidates, usually a registry.Writer
	Brands              matching.BrandSink
	MinBrandOccurrences int
}

// Runner executes jobs
type Runner struct {
	deps   Deps
	tracer trace.Tracer
	logger zerolog.Logger

	Now func() time.Time
}

// NewRunner creates a runner
func NewRunner(deps Deps, logger zerolog.Logger) *Runner {
	return &Runner{
		deps:   deps,
		tracer: otel.Tracer("github.com/easycrawl/catalog-service/internal/jobs"),
		logger: logger.With().Str("component", "jobs").Logger(),
		Now:    time.Now,
	}
}

// Run executes one job. The returned result is never nil; err reports a
// batch level failure and is also copied into Result.Error.
func (r *Runner) Run(ctx context.Context, jobType Type, parameters string) (*Result, error) {
	res := &Result{
		RunID:      uuid.New(),
		Type:       jobType,
		Parameters: parameters,
		Counts:     make(map[string]int),
		Errors:     make(map[string]string),
		StartedAt:  r.Now(),
	}

	ctx, span := r.tracer.Start(ctx, "job."+string(jobType), trace.WithAttributes(
		attribute.String("job.type", string(jobType)),
		attribute.String("job.run_id", res.RunID.String()),
		attribute.String("job.parameters", parameters),
	))
	defer span.End()

	log := r.logger.With().
		Str("run_id", res.RunID.String()).
		Str("job_type", string(jobType)).
		Str("parameters", parameters).
		Logger()
	log.Info().Msg("Job started")

	err := r.dispatch(ctx, jobType, parameters, res)
	res.FinishedAt = r.Now()

	span.SetAttributes(attribute.Int("job.errors", len(res.Errors)))
	if err != nil {
		res.Error = err.Error()
		if res.Summary == "" {
			res.Summary = "failed: " + err.Error()
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error().Err(err).Dur("duration", res.FinishedAt.Sub(res.StartedAt)).Msg("Job failed")
		return res, err
	}

	log.Info().
		Str("summary", res.Summary).
		Int("errors", len(res.Errors)).
		Dur("duration", res.FinishedAt.Sub(res.StartedAt)).
		Msg("Job finished")
	return res, nil
}

func (r *Runner) dispatch(ctx context.Context, jobType Type, parameters string, res *Result) error {
	switch jobType {
	case TypeMatch:
		if r.deps.Matcher == nil {
			return fmt.Errorf("matching engine not configured")
		}
		run, err := r.deps.Matcher.Run(ctx, matching.RunParams{Category: strings.TrimSpace(parameters)})
		fromRun(res, run)
		return err

	case TypeRetryUnmappable:
		if r.deps.Matcher == nil {
			return fmt.Errorf("matching engine not configured")
		}
		run, err := r.deps.Matcher.RetryUnmappable(ctx)
		fromRun(res, run)
		return err

	case TypeConsistency, TypeCleanup:
		if r.deps.Consistency == nil {
			return fmt.Errorf("consistency engine not configured")
		}
		parse := consistency.ParseConsistencyFlags
		if jobType == TypeCleanup {
			parse = consistency.ParseCleanupFlags
		}
		ops, err := parse(parameters)
		if err != nil {
			return err
		}
		reports, err := r.deps.Consistency.Run(ctx, string(jobType), ops)
		fromReports(res, reports)
		return err

	case TypeMineBrands:
		if r.deps.Matcher == nil {
			return fmt.Errorf("matching engine not configured")
		}
		minOcc := r.deps.MinBrandOccurrences
		if p := strings.TrimSpace(parameters); p != "" {
			n, err := strconv.Atoi(p)
			if err != nil || n <= 0 {
				return fmt.Errorf("invalid minimum occurrences %q", p)
			}
			minOcc = n
		}
		mined, err := r.deps.Matcher.MineBrands(ctx, r.deps.Brands, minOcc)
		if err != nil {
			return err
		}
		res.Counts["scanned"] = mined.Scanned
		res.Counts["candidates"] = len(mined.Candidates)
		res.Counts["added"] = mined.Added
		res.Summary = fmt.Sprintf("scanned %d brandless items: %d candidates, %d added", mined.Scanned, len(mined.Candidates), mined.Added)
		return nil

	case TypeRefreshRegistry:
		if r.deps.Registry == nil {
			return fmt.Errorf("registry cache not configured")
		}
		snap, err := r.deps.Registry.Refresh(ctx)
		if err != nil {
			return err
		}
		counts := snap.Counts()
		parts := make([]string, 0, len(counts))
		for typ, n := range counts {
			res.Counts[typ] = n
			parts = append(parts, fmt.Sprintf("%s=%d", typ, n))
		}
		sort.Strings(parts)
		res.Counts["version"] = int(snap.Version())
		res.Summary = fmt.Sprintf("registry version %d loaded (%s)", snap.Version(), strings.Join(parts, ", "))
		return nil

	default:
		return fmt.Errorf("unknown job type %q", jobType)
	}
}

func fromRun(res *Result, run *matching.RunResult) {
	if run == nil {
		return
	}
	res.Summary = run.Summary()
	res.Counts = run.Counts()
	for id, msg := range run.Errors {
		res.Errors["raw_item:"+strconv.FormatInt(id, 10)] = msg
	}
}

func fromReports(res *Result, reports []*consistency.Report) {
	summaries := make([]string, 0, len(reports))
	for _, rep := range reports {
		op := string(rep.Operation)
		summaries = append(summaries, rep.Summary())
		res.Counts[op+".scanned"] = rep.Scanned
		res.Counts[op+".updated"] = rep.Updated
		res.Counts[op+".errors"] = len(rep.Errors)
		if rep.Operation == consistency.OpSimilar || rep.Operation == consistency.OpDuplicates {
			res.Counts[op+".groups"] = rep.Groups
			res.Counts[op+".merged"] = rep.Merged
		}
		for id, msg := range rep.Errors {
			res.Errors[fmt.Sprintf("%s:product:%d", op, id)] = msg
		}
	}
	res.Summary = strings.Join(summaries, "; ")
}
