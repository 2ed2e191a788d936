package metrics

import (
    "cerberus-etl/internal/models"
)

// Summarize builds the batch summary handed to alerting. suppliedLeads is the
// number of CRM leads offered to the batch and feeds the match rate.
func (c *Calculator) Summarize(records []models.UnifiedRecord, suppliedLeads int) models.BatchSummary {
    summary := models.BatchSummary{
        Platforms:            make(map[string]int),
        AttributionQualities: make(map[models.AttributionQuality]int),
        SuppliedLeads:        suppliedLeads,
    }
    if len(records) == 0 {
        return summary
    }

    var ctrSum, conversionRateSum, cplSum float64
    cplCount := 0

    for _, record := range records {
        summary.TotalRecords++
        summary.TotalSpend += record.Spend
        summary.TotalConversions += record.TotalConversions
        summary.Platforms[record.PlatformName]++
        summary.AttributionQualities[record.AttributionQuality]++
        summary.AttributedLeads += record.Attribution.LeadCount

        if record.Flags.ZeroPerformance {
            summary.ZeroPerformanceAlerts++
        }
        if record.Flags.FunnelMismatch {
            summary.FunnelMismatchAlerts++
        }
        if record.Flags.TopPerformer {
            summary.TopPerformerAlerts++
        }

        ctrSum += record.CTR
        conversionRateSum += record.ClickToConversionRate
        if record.CostPerLead > 0 {
            cplSum += record.CostPerLead
            cplCount++
        }
    }

    total := float64(summary.TotalRecords)
    summary.AvgCTR = c.safeDivide(ctrSum, total)
    summary.AvgConversionRate = c.safeDivide(conversionRateSum, total)
    summary.AvgCostPerLead = c.safeDivide(cplSum, float64(cplCount))
    summary.AttributionMatchRate = c.safeDivide(float64(summary.AttributedLeads), float64(suppliedLeads)) * 100

    summary.DateStart = records[0].DateStart
    summary.DateStop = records[0].DateStop

    return summary
}
