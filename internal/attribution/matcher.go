package attribution

import (
    "github.com/sirupsen/logrus"

    "cerberus-etl/internal/models"
    "cerberus-etl/internal/telemetry"
)

// Matcher finds the CRM leads belonging to a unified record.
type Matcher struct {
    logger  *logrus.Logger
    metrics *telemetry.Metrics
}

func NewMatcher(logger *logrus.Logger, metrics *telemetry.Metrics) *Matcher {
    return &Matcher{
        logger:  logger,
        metrics: metrics,
    }
}

// Match returns the leads attributed to record and the confidence tier of the
// match. It never mutates the record or the index.
func (m *Matcher) Match(record *models.UnifiedRecord, idx *Index) ([]models.Lead, models.AttributionQuality) {
    if record == nil || idx == nil {
        return nil, models.NoAttribution
    }

    switch record.Platform {
    case models.PlatformMeta:
        return m.matchByID(record, idx)
    case models.PlatformGoogle:
        return m.matchByName(record, idx)
    default:
        m.logger.WithFields(logrus.Fields{
            "platform":   record.Platform,
            "unified_id": record.UnifiedID,
        }).Debug("No attribution strategy for platform")
        return nil, models.NoAttribution
    }
}

// matchByID requires all three identifiers to equal a lead's trio exactly.
func (m *Matcher) matchByID(record *models.UnifiedRecord, idx *Index) ([]models.Lead, models.AttributionQuality) {
    key, ok := ExactKey(record.CampaignID, record.AdsetID, record.AdID)
    if !ok {
        return nil, models.NoAttribution
    }

    leads := idx.LookupExact(key)
    if len(leads) == 0 {
        return nil, models.NoAttribution
    }
    return leads, models.IDMatched
}

// matchByName tries the normalized campaign name, then falls back to
// substring containment against the sorted name keys.
func (m *Matcher) matchByName(record *models.UnifiedRecord, idx *Index) ([]models.Lead, models.AttributionQuality) {
    name := NameKey(record.CampaignName)
    if name == "" {
        return nil, models.NoAttribution
    }

    if leads := idx.LookupName(name); len(leads) > 0 {
        return leads, models.NameMatchedBestEffort
    }

    key, ok := idx.FindContainingName(name)
    if !ok {
        return nil, models.NoAttribution
    }

    m.metrics.IncrementSubstringFallback()
    m.logger.WithFields(logrus.Fields{
        "unified_id":  record.UnifiedID,
        "ad_campaign": record.CampaignName,
        "matched_key": key,
    }).Warn("Campaign name matched by substring, attribution may be ambiguous")

    return idx.LookupName(key), models.NameMatchedBestEffort
}
