package export

import (
    "context"
    "crypto/hmac"
    "crypto/sha256"
    "encoding/csv"
    "encoding/hex"
    "encoding/json"
    "fmt"
    "io"
    "os"
    "path/filepath"
    "strconv"
    "time"

    "github.com/sirupsen/logrus"

    "cerberus-etl/internal/client"
    "cerberus-etl/internal/models"
)

const leadSetSeparator = "; "

type Exporter struct {
    secret     string
    httpClient *client.HTTPClient
    logger     *logrus.Logger
}

func NewExporter(secret string, httpClient *client.HTTPClient, logger *logrus.Logger) *Exporter {
    return &Exporter{
        secret:     secret,
        httpClient: httpClient,
        logger:     logger,
    }
}

type column struct {
    name  string
    value func(r *models.UnifiedRecord) string
}

func num(f float64) string  { return strconv.FormatFloat(f, 'f', -1, 64) }
func integer(i int) string  { return strconv.Itoa(i) }
func boolean(b bool) string { return strconv.FormatBool(b) }

var columns = []column{
    {"platform", func(r *models.UnifiedRecord) string { return r.PlatformName }},
    {"platform_key", func(r *models.UnifiedRecord) string { return string(r.Platform) }},
    {"unified_id", func(r *models.UnifiedRecord) string { return r.UnifiedID }},
    {"account_id", func(r *models.UnifiedRecord) string { return r.AccountID }},
    {"campaign_id", func(r *models.UnifiedRecord) string { return r.CampaignID }},
    {"campaign_name", func(r *models.UnifiedRecord) string { return r.CampaignName }},
    {"adset_id", func(r *models.UnifiedRecord) string { return r.AdsetID }},
    {"adset_name", func(r *models.UnifiedRecord) string { return r.AdsetName }},
    {"ad_id", func(r *models.UnifiedRecord) string { return r.AdID }},
    {"ad_name", func(r *models.UnifiedRecord) string { return r.AdName }},
    {"date_start", func(r *models.UnifiedRecord) string { return r.DateStart }},
    {"date_stop", func(r *models.UnifiedRecord) string { return r.DateStop }},
    {"spend", func(r *models.UnifiedRecord) string { return num(r.Spend) }},
    {"impressions", func(r *models.UnifiedRecord) string { return integer(r.Impressions) }},
    {"clicks", func(r *models.UnifiedRecord) string { return integer(r.Clicks) }},
    {"unique_clicks", func(r *models.UnifiedRecord) string { return integer(r.UniqueClicks) }},
    {"reach", func(r *models.UnifiedRecord) string { return integer(r.Reach) }},
    {"frequency", func(r *models.UnifiedRecord) string { return num(r.Frequency) }},
    {"ctr", func(r *models.UnifiedRecord) string { return num(r.CTR) }},
    {"cost_per_unique_click", func(r *models.UnifiedRecord) string { return num(r.CostPerUniqueClick) }},
    {"cost_per_1000_people_reached", func(r *models.UnifiedRecord) string { return num(r.CostPer1000PeopleReached) }},
    {"total_conversions", func(r *models.UnifiedRecord) string { return num(r.TotalConversions) }},
    {"lead_conversions", func(r *models.UnifiedRecord) string { return num(r.LeadConversions) }},
    {"total_conversion_value", func(r *models.UnifiedRecord) string { return num(r.TotalConversionValue) }},
    {"cost_per_conversion", func(r *models.UnifiedRecord) string { return num(r.CostPerConversion) }},
    {"cost_per_lead", func(r *models.UnifiedRecord) string { return num(r.CostPerLead) }},
    {"click_to_conversion_rate", func(r *models.UnifiedRecord) string { return num(r.ClickToConversionRate) }},
    {"status", func(r *models.UnifiedRecord) string { return r.Status }},
    {"effective_status", func(r *models.UnifiedRecord) string { return r.EffectiveStatus }},
    {"sf_lead_count", func(r *models.UnifiedRecord) string { return integer(r.Attribution.LeadCount) }},
    {"sf_converted_count", func(r *models.UnifiedRecord) string { return integer(r.Attribution.ConvertedCount) }},
    {"sf_conversion_rate", func(r *models.UnifiedRecord) string { return num(r.Attribution.ConversionRate) }},
    {"sf_lead_statuses", func(r *models.UnifiedRecord) string { return r.Attribution.LeadStatuses.Join(leadSetSeparator) }},
    {"sf_lead_sources", func(r *models.UnifiedRecord) string { return r.Attribution.LeadSources.Join(leadSetSeparator) }},
    {"sf_first_lead_date", func(r *models.UnifiedRecord) string { return r.Attribution.FirstLeadDate }},
    {"sf_last_lead_date", func(r *models.UnifiedRecord) string { return r.Attribution.LastLeadDate }},
    {"attribution_quality", func(r *models.UnifiedRecord) string { return string(r.AttributionQuality) }},
    {"has_salesforce_data", func(r *models.UnifiedRecord) string { return boolean(r.HasAttributionData) }},
    {"zero_performance_flag", func(r *models.UnifiedRecord) string { return boolean(r.Flags.ZeroPerformance) }},
    {"funnel_mismatch_flag", func(r *models.UnifiedRecord) string { return boolean(r.Flags.FunnelMismatch) }},
    {"top_performer_flag", func(r *models.UnifiedRecord) string { return boolean(r.Flags.TopPerformer) }},
}

// Header returns the CSV column names in output order.
func Header() []string {
    header := make([]string, len(columns))
    for i, col := range columns {
        header[i] = col.name
    }
    return header
}

func (e *Exporter) WriteCSV(w io.Writer, records []models.UnifiedRecord) error {
    writer := csv.NewWriter(w)

    if err := writer.Write(Header()); err != nil {
        return fmt.Errorf("failed to write csv header: %w", err)
    }

    row := make([]string, len(columns))
    for i := range records {
        for j, col := range columns {
            row[j] = col.value(&records[i])
        }
        if err := writer.Write(row); err != nil {
            return fmt.Errorf("failed to write csv row %d: %w", i, err)
        }
    }

    writer.Flush()
    return writer.Error()
}

// FileName is the export file name for the given reporting date.
func FileName(date time.Time) string {
    return fmt.Sprintf("cerberus_unified_data_%s.csv", date.Format("2006-01-02"))
}

// SaveCSV writes records to dir and returns the file path. A zero date means
// yesterday.
func (e *Exporter) SaveCSV(dir string, date time.Time, records []models.UnifiedRecord) (string, error) {
    if date.IsZero() {
        date = time.Now().AddDate(0, 0, -1)
    }
    path := filepath.Join(dir, FileName(date))

    f, err := os.Create(path)
    if err != nil {
        return "", fmt.Errorf("failed to create export file: %w", err)
    }

    if err := e.WriteCSV(f, records); err != nil {
        f.Close()
        return "", err
    }
    if err := f.Close(); err != nil {
        return "", fmt.Errorf("failed to close export file: %w", err)
    }

    e.logger.WithFields(logrus.Fields{
        "path":    path,
        "records": len(records),
    }).Info("Unified data saved")
    return path, nil
}

// ExportToSink posts every record to the sink with an HMAC signature header.
func (e *Exporter) ExportToSink(ctx context.Context, sinkURL string, records []models.UnifiedRecord) error {
    if len(records) == 0 {
        return fmt.Errorf("no records to export")
    }

    for _, record := range records {
        signature, err := e.createSignature(record)
        if err != nil {
            e.logger.WithError(err).Error("Failed to create signature")
            return fmt.Errorf("failed to create signature: %w", err)
        }

        if err := e.httpClient.PostExportData(ctx, sinkURL, record, signature); err != nil {
            e.logger.WithError(err).WithField("unified_id", record.UnifiedID).Error("Failed to export record")
            return fmt.Errorf("failed to export record %s: %w", record.UnifiedID, err)
        }

        e.logger.WithFields(logrus.Fields{
            "unified_id":          record.UnifiedID,
            "platform":            record.Platform,
            "attribution_quality": record.AttributionQuality,
        }).Debug("Exported record")
    }

    e.logger.WithField("records", len(records)).Info("Exported records to sink")
    return nil
}

func (e *Exporter) createSignature(data interface{}) (string, error) {
    jsonData, err := json.Marshal(data)
    if err != nil {
        return "", err
    }

    return Sign(e.secret, jsonData), nil
}

// Sign returns the X-Signature header value for payload.
func Sign(secret string, payload []byte) string {
    h := hmac.New(sha256.New, []byte(secret))
    h.Write(payload)
    return "sha256=" + hex.EncodeToString(h.Sum(nil))
}
