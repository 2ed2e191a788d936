package merger

import (
    "context"
    "fmt"
    "time"

    "github.com/google/uuid"
    "github.com/sirupsen/logrus"
    "golang.org/x/sync/errgroup"

    "cerberus-etl/internal/alerts"
    "cerberus-etl/internal/attribution"
    "cerberus-etl/internal/metrics"
    "cerberus-etl/internal/models"
    "cerberus-etl/internal/telemetry"
    "cerberus-etl/internal/transformer"
)

// Input is one batch of raw platform and CRM records. A nil or empty Leads
// slice skips attribution entirely.
type Input struct {
    Meta   []models.RawAdRecord
    Google []models.RawAdRecord
    Leads  []models.RawLeadRecord
}

type Result struct {
    BatchID    string
    Records    []models.UnifiedRecord
    Errors     []RecordError
    Summary    models.BatchSummary
    StartedAt  time.Time
    FinishedAt time.Time
}

// Batch converts the result into its stored form.
func (r *Result) Batch() models.Batch {
    errs := make([]string, 0, len(r.Errors))
    for _, err := range r.Errors {
        errs = append(errs, err.Error())
    }
    return models.Batch{
        ID:         r.BatchID,
        Records:    r.Records,
        Summary:    r.Summary,
        Errors:     errs,
        StartedAt:  r.StartedAt,
        FinishedAt: r.FinishedAt,
    }
}

type Options struct {
    // Workers bounds per-record parallelism; values below 1 mean sequential.
    Workers int
    // FailFast aborts the batch on the first malformed record instead of
    // skipping it.
    FailFast bool
}

// Merger sequences standardization, attribution and alert evaluation over a
// batch. It holds no per-batch state, so one Merger can serve concurrent batches.
type Merger struct {
    transformer *transformer.Transformer
    matcher     *attribution.Matcher
    calculator  *metrics.Calculator
    evaluator   *alerts.Evaluator
    opts        Options
    logger      *logrus.Logger
    metrics     *telemetry.Metrics
}

func New(transformer *transformer.Transformer, matcher *attribution.Matcher, calculator *metrics.Calculator,
         evaluator *alerts.Evaluator, opts Options, logger *logrus.Logger, metrics *telemetry.Metrics) *Merger {
    if opts.Workers < 1 {
        opts.Workers = 1
    }
    return &Merger{
        transformer: transformer,
        matcher:     matcher,
        calculator:  calculator,
        evaluator:   evaluator,
        opts:        opts,
        logger:      logger,
        metrics:     metrics,
    }
}

type adJob struct {
    platform models.Platform
    index    int
    raw      models.RawAdRecord
}

type match struct {
    leads   []models.Lead
    quality models.AttributionQuality
}

// Merge runs one batch. Output keeps input order: Meta records first, then
// Google records. Malformed records are skipped and reported in Result.Errors
// unless FailFast is set, in which case a *BatchError is returned.
func (m *Merger) Merge(ctx context.Context, in Input) (*Result, error) {
    result := &Result{
        BatchID:   uuid.NewString(),
        StartedAt: time.Now(),
    }
    log := m.logger.WithField("batch_id", result.BatchID)
    log.WithFields(logrus.Fields{
        "meta_records":   len(in.Meta),
        "google_records": len(in.Google),
        "leads":          len(in.Leads),
    }).Info("Starting merge batch")

    jobs := make([]adJob, 0, len(in.Meta)+len(in.Google))
    for i, raw := range in.Meta {
        jobs = append(jobs, adJob{platform: models.PlatformMeta, index: i, raw: raw})
    }
    for i, raw := range in.Google {
        jobs = append(jobs, adJob{platform: models.PlatformGoogle, index: i, raw: raw})
    }

    identify := func(i int) RecordError {
        job := jobs[i]
        return RecordError{
            Kind:      KindAd,
            Platform:  job.platform,
            Index:     job.index,
            UnifiedID: transformer.Identity(job.raw, job.platform),
        }
    }

    // Standardizing
    slots := make([]*models.UnifiedRecord, len(jobs))
    slotErrs := make([]*RecordError, len(jobs))
    err := m.runStage(ctx, log, StageStandardizing, len(jobs), identify, func(i int) {
        job := jobs[i]
        record, err := m.transformer.Standardize(job.raw, job.platform)
        if err != nil {
            recErr := identify(i)
            recErr.Err = err
            slotErrs[i] = &recErr
            return
        }
        // provisional, from platform-reported metrics
        record.ProvisionalFlags = m.evaluator.Evaluate(record)
        slots[i] = record
    })
    if err != nil {
        return nil, err
    }
    for _, recErr := range slotErrs {
        if recErr == nil {
            continue
        }
        if m.opts.FailFast {
            return nil, &BatchError{Stage: StageStandardizing, RecordError: *recErr}
        }
        m.reportError(log, *recErr)
        result.Errors = append(result.Errors, *recErr)
    }

    if len(in.Leads) > 0 {
        idx, err := m.buildIndex(ctx, log, in.Leads, result)
        if err != nil {
            return nil, err
        }

        matches := make([]match, len(slots))
        err = m.runStage(ctx, log, StageMatching, len(slots), identify, func(i int) {
            if slots[i] == nil {
                return
            }
            leads, quality := m.matcher.Match(slots[i], idx)
            matches[i] = match{leads: leads, quality: quality}
        })
        if err != nil {
            return nil, err
        }

        err = m.runStage(ctx, log, StageAggregating, len(slots), identify, func(i int) {
            if slots[i] == nil {
                return
            }
            aggregated := m.calculator.Aggregate(matches[i].leads)
            m.calculator.ApplyAttribution(slots[i], aggregated, matches[i].quality)
        })
        if err != nil {
            return nil, err
        }
    }

    err = m.runStage(ctx, log, StageEvaluating, len(slots), identify, func(i int) {
        if slots[i] != nil {
            m.evaluator.Apply(slots[i])
        }
    })
    if err != nil {
        return nil, err
    }

    result.Records = make([]models.UnifiedRecord, 0, len(slots))
    for _, record := range slots {
        if record == nil {
            continue
        }
        result.Records = append(result.Records, *record)
        m.metrics.IncrementRecordsMerged(string(record.Platform), string(record.AttributionQuality))
        for _, flag := range alerts.Raised(record.Flags) {
            m.metrics.IncrementAlert(flag)
        }
    }
    result.Summary = m.calculator.Summarize(result.Records, len(in.Leads))
    result.FinishedAt = time.Now()
    m.metrics.IncrementBatches()

    log.WithFields(logrus.Fields{
        "stage":              StageDone.String(),
        "records":            len(result.Records),
        "skipped":            len(result.Errors),
        "attributed_leads":   result.Summary.AttributedLeads,
        "zero_performance":   result.Summary.ZeroPerformanceAlerts,
        "funnel_mismatch":    result.Summary.FunnelMismatchAlerts,
        "top_performer":      result.Summary.TopPerformerAlerts,
        "duration_ms":        result.FinishedAt.Sub(result.StartedAt).Milliseconds(),
    }).Info("Merge batch completed")

    if issues := m.transformer.CommonIssues(result.Records); len(issues) > 0 {
        log.WithField("common_issues", issues).Warn("Data quality issues detected")
    }

    return result, nil
}

// buildIndex parses the CRM leads and indexes them. It runs to completion
// before any match starts.
func (m *Merger) buildIndex(ctx context.Context, log *logrus.Entry, raws []models.RawLeadRecord, result *Result) (*attribution.Index, error) {
    start := time.Now()
    log.WithField("stage", StageIndexBuilding.String()).Debug("Entering stage")

    leads := make([]models.Lead, 0, len(raws))
    for i, raw := range raws {
        if err := ctx.Err(); err != nil {
            return nil, err
        }
        lead, err := m.transformer.ParseLead(raw)
        if err != nil {
            recErr := RecordError{
                Kind:      KindLead,
                Index:     i,
                UnifiedID: transformer.LeadIdentity(raw),
                Err:       err,
            }
            if m.opts.FailFast {
                return nil, &BatchError{Stage: StageIndexBuilding, RecordError: recErr}
            }
            m.reportError(log, recErr)
            result.Errors = append(result.Errors, recErr)
            continue
        }
        leads = append(leads, lead)
    }

    idx := attribution.Build(leads)
    m.metrics.ObserveStage(StageIndexBuilding.String(), time.Since(start))

    stats := idx.Stats()
    log.WithFields(logrus.Fields{
        "stage":       StageIndexBuilding.String(),
        "leads":       stats.Leads,
        "exact_keys":  stats.ExactKeys,
        "exact_leads": stats.ExactLeads,
        "name_keys":   stats.NameKeys,
        "name_leads":  stats.NameLeads,
    }).Info("Attribution index built")

    return idx, nil
}

// runStage applies fn to every slot, fanning out over the configured workers.
// fn must only touch slot i. A panic in fn aborts the stage with a
// *BatchError carrying identify(i).
func (m *Merger) runStage(ctx context.Context, log *logrus.Entry, stage Stage, n int, identify func(i int) RecordError, fn func(i int)) error {
    start := time.Now()
    log.WithField("stage", stage.String()).Debug("Entering stage")

    g, gctx := errgroup.WithContext(ctx)
    g.SetLimit(m.opts.Workers)
    for i := 0; i < n; i++ {
        g.Go(func() (err error) {
            if err := gctx.Err(); err != nil {
                return err
            }
            defer func() {
                if r := recover(); r != nil {
                    recErr := identify(i)
                    recErr.Err = fmt.Errorf("%w: %v", ErrStagePanic, r)
                    log.WithFields(logrus.Fields{
                        "stage":      stage.String(),
                        "kind":       recErr.Kind,
                        "index":      recErr.Index,
                        "unified_id": recErr.UnifiedID,
                        "panic":      fmt.Sprint(r),
                    }).Error("Recovered panic in merge worker")
                    err = &BatchError{Stage: stage, RecordError: recErr}
                }
            }()
            fn(i)
            return nil
        })
    }
    if err := g.Wait(); err != nil {
        return err
    }
    if err := ctx.Err(); err != nil {
        return err
    }

    m.metrics.ObserveStage(stage.String(), time.Since(start))
    return nil
}

func (m *Merger) reportError(log *logrus.Entry, recErr RecordError) {
    m.metrics.IncrementRecordErrors(recErr.Kind)
    log.WithError(recErr.Err).WithFields(logrus.Fields{
        "kind":       recErr.Kind,
        "platform":   recErr.Platform,
        "index":      recErr.Index,
        "unified_id": recErr.UnifiedID,
    }).Warn("Skipping malformed record")
}
