package models

import (
    "errors"
    "time"
)

var ErrUnsupportedPlatform = errors.New("unsupported platform")

// Platform identifies the advertising platform a record came from.
type Platform string

const (
    // PlatformMeta carries per-ad identifiers into the CRM (exact-match platform).
    PlatformMeta   Platform = "meta"
    // PlatformGoogle only carries the campaign name into the CRM (name-match platform).
    PlatformGoogle Platform = "google"
)

// Platforms lists the known platforms in batch output order.
var Platforms = []Platform{PlatformMeta, PlatformGoogle}

func (p Platform) Valid() bool {
    switch p {
    case PlatformMeta, PlatformGoogle:
        return true
    }
    return false
}

// DisplayName is the human readable platform label used in reports.
func (p Platform) DisplayName() string {
    switch p {
    case PlatformMeta:
        return "Meta"
    case PlatformGoogle:
        return "Google Ads"
    }
    return string(p)
}

// AttributionQuality tags the confidence tier of a record's lead match.
type AttributionQuality string

const (
    IDMatched             AttributionQuality = "ID_Matched"
    NameMatchedBestEffort AttributionQuality = "Name_Matched_Best_Effort"
    NoAttribution         AttributionQuality = "No_Attribution"
)

// Raw boundary records as delivered by the upstream fetchers.
type RawAdRecord map[string]interface{}

type RawLeadRecord map[string]interface{}

// Data Quality Tracking Structures
type FieldQuality struct {
    IsValid       bool        `json:"is_valid"`
    Description   string      `json:"description"`
    OriginalValue interface{} `json:"original_value,omitempty"`
}

type RecordQuality struct {
    RecordID    string                  `json:"record_id"`
    IsValid     bool                    `json:"is_valid"`
    FieldErrors map[string]FieldQuality `json:"field_errors,omitempty"`
    ErrorCount  int                     `json:"error_count"`
}

// Lead is a parsed CRM lead.
type Lead struct {
    LeadID                 string `json:"lead_id"`
    Status                 string `json:"lead_status"`
    CreatedDate            string `json:"created_date"`
    IsConverted            bool   `json:"is_converted"`
    ConvertedOpportunityID string `json:"converted_opportunity_id,omitempty"`

    FirstName string `json:"first_name,omitempty"`
    LastName  string `json:"last_name,omitempty"`
    Email     string `json:"email,omitempty"`
    Company   string `json:"company,omitempty"`
    Source    string `json:"lead_source,omitempty"`

    // Exact-match attribution trio
    FBCampaignID string `json:"fb_campaign_id,omitempty"`
    FBAdsetID    string `json:"fb_adset_id,omitempty"`
    FBAdID       string `json:"fb_ad_id,omitempty"`

    // Name-match attribution
    UTMCampaign string `json:"utm_campaign,omitempty"`
    UTMSource   string `json:"utm_source,omitempty"`
    UTMMedium   string `json:"utm_medium,omitempty"`
    UTMTerm     string `json:"utm_term,omitempty"`
    UTMContent  string `json:"utm_content,omitempty"`
}

// AlertFlags are the rule-based alert outputs for one record.
type AlertFlags struct {
    ZeroPerformance bool `json:"zero_performance_flag"`
    FunnelMismatch  bool `json:"funnel_mismatch_flag"`
    TopPerformer    bool `json:"top_performer_flag"`
}

// AttributionMetrics is the fold of the leads matched to one ad.
type AttributionMetrics struct {
    LeadCount      int       `json:"sf_lead_count"`
    ConvertedCount int       `json:"sf_converted_count"`
    ConversionRate float64   `json:"sf_conversion_rate"`
    LeadStatuses   StringSet `json:"sf_lead_statuses"`
    LeadSources    StringSet `json:"sf_lead_sources"`
    FirstLeadDate  string    `json:"sf_first_lead_date"`
    LastLeadDate   string    `json:"sf_last_lead_date"`
}

// HasAttributionData reports whether any lead was matched.
func (m AttributionMetrics) HasAttributionData() bool {
    return m.LeadCount > 0
}

// UnifiedRecord is the canonical representation of one ad's performance and,
// once matched, its attributed CRM outcome.
type UnifiedRecord struct {
    // Platform Identification
    Platform     Platform `json:"platform_key"`
    PlatformName string   `json:"platform"`
    UnifiedID    string   `json:"unified_id"`

    // Unified Campaign Structure
    AccountID    string `json:"account_id"`
    CampaignID   string `json:"campaign_id"`
    CampaignName string `json:"campaign_name"`
    AdsetID      string `json:"adset_id"`
    AdsetName    string `json:"adset_name"`
    AdID         string `json:"ad_id"`
    AdName       string `json:"ad_name"`

    DateStart string `json:"date_start"`
    DateStop  string `json:"date_stop"`

    // Core Performance Metrics
    Spend        float64 `json:"spend"`
    Impressions  int     `json:"impressions"`
    Clicks       int     `json:"clicks"`
    UniqueClicks int     `json:"unique_clicks"`
    Reach        int     `json:"reach"`
    Frequency    float64 `json:"frequency"`

    CTR                      float64 `json:"ctr"`
    CostPerUniqueClick       float64 `json:"cost_per_unique_click"`
    CostPer1000PeopleReached float64 `json:"cost_per_1000_people_reached"`

    // Conversion Metrics
    TotalConversions      float64 `json:"total_conversions"`
    LeadConversions       float64 `json:"lead_conversions"`
    TotalConversionValue  float64 `json:"total_conversion_value"`
    CostPerConversion     float64 `json:"cost_per_conversion"`
    CostPerLead           float64 `json:"cost_per_lead"`
    ClickToConversionRate float64 `json:"click_to_conversion_rate"`

    Status          string `json:"status"`
    EffectiveStatus string `json:"effective_status"`

    // Attribution
    Attribution        AttributionMetrics `json:"attribution"`
    AttributionQuality AttributionQuality `json:"attribution_quality"`
    HasAttributionData bool               `json:"has_attribution_data"`

    // Flags computed from platform data only, before attribution.
    ProvisionalFlags AlertFlags `json:"provisional_flags"`
    Flags            AlertFlags `json:"flags"`

    Quality RecordQuality `json:"quality"`
}

// BatchSummary is the aggregate view of one merged batch.
type BatchSummary struct {
    TotalRecords     int            `json:"total_records"`
    TotalSpend       float64        `json:"total_spend"`
    TotalConversions float64        `json:"total_conversions"`
    Platforms        map[string]int `json:"platforms"`

    ZeroPerformanceAlerts int `json:"zero_performance_alerts"`
    FunnelMismatchAlerts  int `json:"funnel_mismatch_alerts"`
    TopPerformerAlerts    int `json:"top_performer_alerts"`

    AvgCTR            float64 `json:"avg_ctr"`
    AvgCostPerLead    float64 `json:"avg_cost_per_lead"`
    AvgConversionRate float64 `json:"avg_conversion_rate"`

    AttributionQualities map[AttributionQuality]int `json:"attribution_qualities"`
    AttributedLeads      int                        `json:"attributed_leads"`
    SuppliedLeads        int                        `json:"supplied_leads"`
    AttributionMatchRate float64                    `json:"attribution_match_rate"`

    DateStart string `json:"date_start"`
    DateStop  string `json:"date_stop"`
}

// API request/response structures
type MergeRequest struct {
    MetaRecords   []RawAdRecord   `json:"meta_records"`
    GoogleRecords []RawAdRecord   `json:"google_records"`
    Leads         []RawLeadRecord `json:"leads"`
}

type MergeResponse struct {
    Status      string       `json:"status"`
    BatchID     string       `json:"batch_id"`
    Records     int          `json:"records"`
    Skipped     int          `json:"skipped"`
    Errors      []string     `json:"errors,omitempty"`
    ProcessedAt string       `json:"processed_at"`
    Summary     BatchSummary `json:"summary"`
}

type MetricsResponse struct {
    Data    interface{} `json:"data"`
    Total   int         `json:"total"`
    Page    int         `json:"page"`
    Limit   int         `json:"limit"`
    HasMore bool        `json:"has_more"`
}

// Batch is a stored merge result.
type Batch struct {
    ID         string
    Records    []UnifiedRecord
    Summary    BatchSummary
    Errors     []string
    StartedAt  time.Time
    FinishedAt time.Time
}
