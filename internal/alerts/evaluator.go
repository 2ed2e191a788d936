package alerts

import (
    "cerberus-etl/internal/models"
)

// Alert thresholds. Comparisons are exact; no tolerance is applied.
const (
    ZeroPerformanceSpend         = 50.0
    FunnelMismatchCTR            = 2.0
    FunnelMismatchConversionRate = 1.0
    TopPerformerConversions      = 5.0
    TopPerformerMaxCPL           = 10.0
)

// Flag names as reported in metrics and exports.
const (
    FlagZeroPerformance = "zero_performance"
    FlagFunnelMismatch  = "funnel_mismatch"
    FlagTopPerformer    = "top_performer"
)

type Evaluator struct{}

func NewEvaluator() *Evaluator {
    return &Evaluator{}
}

// Evaluate computes the alert flags from the record's current metrics.
func (e *Evaluator) Evaluate(record *models.UnifiedRecord) models.AlertFlags {
    return models.AlertFlags{
        // spend with nothing to show for it
        ZeroPerformance: record.Spend > ZeroPerformanceSpend && record.TotalConversions == 0,
        // people click but do not convert
        FunnelMismatch: record.CTR > FunnelMismatchCTR && record.ClickToConversionRate < FunnelMismatchConversionRate,
        // high-converting, low-cost ads
        TopPerformer: record.TotalConversions > TopPerformerConversions &&
            record.CostPerLead > 0 && record.CostPerLead < TopPerformerMaxCPL,
    }
}

// Apply stores the evaluated flags on the record and returns them.
func (e *Evaluator) Apply(record *models.UnifiedRecord) models.AlertFlags {
    record.Flags = e.Evaluate(record)
    return record.Flags
}

// Raised lists the names of the flags that are set.
func Raised(flags models.AlertFlags) []string {
    var raised []string
    if flags.ZeroPerformance {
        raised = append(raised, FlagZeroPerformance)
    }
    if flags.FunnelMismatch {
        raised = append(raised, FlagFunnelMismatch)
    }
    if flags.TopPerformer {
        raised = append(raised, FlagTopPerformer)
    }
    return raised
}
