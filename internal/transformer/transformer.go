package transformer

import (
    "fmt"
    "sort"
    "strings"

    "cerberus-etl/internal/models"
)

type Transformer struct{}

func New() *Transformer {
    return &Transformer{}
}

// Standardize normalizes one raw platform record into a UnifiedRecord.
// Absent fields default to 0 or ""; present values of the wrong type fail
// with an error wrapping ErrMalformedRecord.
func (t *Transformer) Standardize(raw models.RawAdRecord, platform models.Platform) (*models.UnifiedRecord, error) {
    if !platform.Valid() {
        return nil, fmt.Errorf("standardize %q: %w", platform, models.ErrUnsupportedPlatform)
    }

    quality := models.RecordQuality{}
    r := newRecordReader(raw, &quality)

    record := &models.UnifiedRecord{
        Platform:     platform,
        PlatformName: platform.DisplayName(),

        AccountID:    r.str("account_id"),
        CampaignID:   r.str("campaign_id"),
        CampaignName: r.str("campaign_name"),
        AdsetID:      r.str("adset_id"),
        AdsetName:    r.str("adset_name"),
        AdID:         r.str("ad_id"),
        AdName:       r.str("ad_name"),

        DateStart: r.str("date_start"),
        DateStop:  r.str("date_stop"),

        Spend:        r.float("spend"),
        Impressions:  r.int("impressions"),
        Clicks:       r.int("clicks"),
        UniqueClicks: r.int("unique_clicks"),
        Reach:        r.int("reach"),
        Frequency:    r.float("frequency"),

        CTR:                      r.float("ctr"),
        CostPerUniqueClick:       r.float("cost_per_unique_click"),
        CostPer1000PeopleReached: r.float("cost_per_1000_people_reached"),

        TotalConversions:      r.float("total_conversions"),
        LeadConversions:       r.float("lead_conversions"),
        TotalConversionValue:  r.float("total_conversion_value"),
        CostPerConversion:     r.float("cost_per_conversion"),
        CostPerLead:           r.float("cost_per_lead"),
        ClickToConversionRate: r.float("click_to_conversion_rate"),

        Status:          r.str("status"),
        EffectiveStatus: r.str("effective_status"),

        AttributionQuality: models.NoAttribution,
        HasAttributionData: false,
    }
    if r.err != nil {
        return nil, fmt.Errorf("standardize %s record: %w", platform, r.err)
    }

    record.UnifiedID = UnifiedID(platform, record.CampaignID, record.AdsetID, record.AdID)
    t.checkAttributionKeys(record, &quality)

    quality.RecordID = record.UnifiedID
    quality.IsValid = quality.ErrorCount == 0
    record.Quality = quality

    return record, nil
}

// UnifiedID is the cross-platform identifier of an ad.
func UnifiedID(platform models.Platform, campaignID, adsetID, adID string) string {
    return strings.Join([]string{string(platform), campaignID, adsetID, adID}, "_")
}

// Identity is a best-effort unified id for diagnostics. Unlike Standardize it
// tolerates malformed identifier fields.
func Identity(raw models.RawAdRecord, platform models.Platform) string {
    return UnifiedID(platform, lenientString(raw["campaign_id"]), lenientString(raw["adset_id"]), lenientString(raw["ad_id"]))
}

// LeadIdentity is the best-effort lead id of a raw lead.
func LeadIdentity(raw models.RawLeadRecord) string {
    return lenientString(raw["lead_id"])
}

func lenientString(value interface{}) string {
    if s, ok := toString(value); ok {
        return s
    }
    return fmt.Sprint(value)
}

// checkAttributionKeys notes identity fields that make CRM attribution impossible.
func (t *Transformer) checkAttributionKeys(record *models.UnifiedRecord, quality *models.RecordQuality) {
    r := newRecordReader(nil, quality)

    switch record.Platform {
    case models.PlatformMeta:
        for field, value := range map[string]string{
            "campaign_id": record.CampaignID,
            "adset_id":    record.AdsetID,
            "ad_id":       record.AdID,
        } {
            if value == "" {
                r.note(field, fmt.Sprintf("Missing - %s is empty, ID attribution not possible", field), value)
            }
        }
    case models.PlatformGoogle:
        if record.CampaignName == "" {
            r.note("campaign_name", "Missing - campaign_name is empty, name attribution not possible", record.CampaignName)
        }
    }
}

// ParseLead converts a raw CRM lead into a typed Lead.
func (t *Transformer) ParseLead(raw models.RawLeadRecord) (models.Lead, error) {
    r := newRecordReader(raw, nil)

    lead := models.Lead{
        LeadID:                 r.str("lead_id"),
        Status:                 r.str("lead_status"),
        CreatedDate:            r.str("created_date"),
        IsConverted:            r.boolean("is_converted"),
        ConvertedOpportunityID: r.str("converted_opportunity_id"),

        FirstName: r.str("first_name"),
        LastName:  r.str("last_name"),
        Email:     r.str("email"),
        Company:   r.str("company"),
        Source:    r.str("lead_source"),

        FBCampaignID: r.str("fb_campaign_id"),
        FBAdsetID:    r.str("fb_adset_id"),
        FBAdID:       r.str("fb_ad_id"),

        UTMCampaign: r.str("utm_campaign"),
        UTMSource:   r.str("utm_source"),
        UTMMedium:   r.str("utm_medium"),
        UTMTerm:     r.str("utm_term"),
        UTMContent:  r.str("utm_content"),
    }
    if r.err != nil {
        return models.Lead{}, fmt.Errorf("parse lead: %w", r.err)
    }

    return lead, nil
}

// CommonIssues lists quality issues seen on more than one record, most frequent first.
func (t *Transformer) CommonIssues(records []models.UnifiedRecord) []string {
    issueCount := make(map[string]int)

    for _, record := range records {
        for _, fieldError := range record.Quality.FieldErrors {
            if !fieldError.IsValid {
                issueCount[fieldError.Description]++
            }
        }
    }

    var issues []string
    for issue, count := range issueCount {
        if count > 1 {
            issues = append(issues, issue)
        }
    }
    sort.Slice(issues, func(i, j int) bool {
        if issueCount[issues[i]] != issueCount[issues[j]] {
            return issueCount[issues[i]] > issueCount[issues[j]]
        }
        return issues[i] < issues[j]
    })

    commonIssues := make([]string, 0, len(issues))
    for _, issue := range issues {
        commonIssues = append(commonIssues, fmt.Sprintf("%s (occurs %d times)", issue, issueCount[issue]))
    }
    return commonIssues
}
