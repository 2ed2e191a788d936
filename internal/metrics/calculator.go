package metrics

import (
    "math"

    "cerberus-etl/internal/models"
)

// leadDateLength truncates an ISO-8601 timestamp to its date part.
const leadDateLength = 10

type Calculator struct{}

func NewCalculator() *Calculator {
    return &Calculator{}
}

// Aggregate folds the leads matched to one ad into attribution metrics.
func (c *Calculator) Aggregate(leads []models.Lead) models.AttributionMetrics {
    metrics := models.AttributionMetrics{LeadCount: len(leads)}
    if len(leads) == 0 {
        return metrics
    }

    metrics.LeadStatuses = models.NewStringSet()
    metrics.LeadSources = models.NewStringSet()
    for _, lead := range leads {
        if lead.IsConverted {
            metrics.ConvertedCount++
        }
        metrics.LeadStatuses.Add(lead.Status)
        metrics.LeadSources.Add(lead.Source)

        date := leadDate(lead.CreatedDate)
        if date == "" {
            continue
        }
        if metrics.FirstLeadDate == "" || date < metrics.FirstLeadDate {
            metrics.FirstLeadDate = date
        }
        if date > metrics.LastLeadDate {
            metrics.LastLeadDate = date
        }
    }

    metrics.ConversionRate = c.safeDivide(float64(metrics.ConvertedCount), float64(metrics.LeadCount)) * 100

    return metrics
}

func leadDate(createdDate string) string {
    if len(createdDate) > leadDateLength {
        return createdDate[:leadDateLength]
    }
    return createdDate
}

// ApplyAttribution writes the attribution outcome onto record. When leads were
// matched the CRM lead count replaces the platform-reported conversions and the
// cost metrics derived from it; otherwise platform metrics are left as they are.
func (c *Calculator) ApplyAttribution(record *models.UnifiedRecord, metrics models.AttributionMetrics, quality models.AttributionQuality) {
    record.Attribution = metrics
    record.HasAttributionData = metrics.HasAttributionData()

    if !record.HasAttributionData {
        record.AttributionQuality = models.NoAttribution
        return
    }
    record.AttributionQuality = quality

    leads := float64(metrics.LeadCount)
    record.TotalConversions = leads
    record.LeadConversions = leads
    record.CostPerLead = c.safeDivide(record.Spend, leads)
    record.CostPerConversion = c.safeDivide(record.Spend, record.TotalConversions)
    record.ClickToConversionRate = c.safeDivide(leads, float64(record.Clicks)) * 100
}

func (c *Calculator) safeDivide(numerator, denominator float64) float64 {
    if denominator == 0 {
        return 0
    }
    result := numerator / denominator
    if math.IsNaN(result) || math.IsInf(result, 0) {
        return 0
    }
    return result
}
