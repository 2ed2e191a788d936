package handlers

import (
    "context"
    "encoding/json"
    "errors"
    "io"
    "net/http"
    "strconv"
    "time"

    "github.com/gin-gonic/gin"
    "github.com/sirupsen/logrus"

    "cerberus-etl/internal/client"
    "cerberus-etl/internal/config"
    "cerberus-etl/internal/export"
    "cerberus-etl/internal/merger"
    "cerberus-etl/internal/models"
    "cerberus-etl/internal/storage"
)

type Handler struct {
    config     *config.Config
    httpClient *client.HTTPClient
    merger     *merger.Merger
    store      *storage.MemoryStore
    cache      storage.Cache
    exporter   *export.Exporter
    logger     *logrus.Logger
}

func New(cfg *config.Config, httpClient *client.HTTPClient, merger *merger.Merger,
         store *storage.MemoryStore, cache storage.Cache, exporter *export.Exporter,
         logger *logrus.Logger) *Handler {
    return &Handler{
        config:     cfg,
        httpClient: httpClient,
        merger:     merger,
        store:      store,
        cache:      cache,
        exporter:   exporter,
        logger:     logger,
    }
}

func (h *Handler) HealthCheck(c *gin.Context) {
    c.JSON(http.StatusOK, gin.H{
        "status":    "ok",
        "timestamp": time.Now().Format(time.RFC3339),
        "service":   "cerberus-etl",
    })
}

func (h *Handler) ReadinessCheck(c *gin.Context) {
    if h.store.HasData() {
        c.JSON(http.StatusOK, gin.H{
            "status":      "ready",
            "has_data":    true,
            "last_ingest": h.store.GetLastIngestTime().Format(time.RFC3339),
        })
    } else {
        c.JSON(http.StatusServiceUnavailable, gin.H{
            "status":   "not ready",
            "has_data": false,
            "message":  "No batch merged yet",
        })
    }
}

// Merge runs a batch over the records posted in the request body.
func (h *Handler) Merge(c *gin.Context) {
    var req models.MergeRequest
    if err := decodeMergeRequest(c.Request.Body, &req); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
        return
    }

    h.runMerge(c, merger.Input{
        Meta:   req.MetaRecords,
        Google: req.GoogleRecords,
        Leads:  req.Leads,
    })
}

// decodeMergeRequest keeps numbers as json.Number so numeric ids above 2^53
// reach the standardizer intact.
func decodeMergeRequest(body io.Reader, req *models.MergeRequest) error {
    if body == nil {
        return errors.New("empty request body")
    }
    decoder := json.NewDecoder(body)
    decoder.UseNumber()
    return decoder.Decode(req)
}

// IngestData fetches the configured platform and CRM endpoints and merges
// them. Endpoints left unset contribute no records.
func (h *Handler) IngestData(c *gin.Context) {
    ctx := c.Request.Context()
    var in merger.Input

    if h.config.MetaAPIURL == "" && h.config.GoogleAPIURL == "" {
        c.JSON(http.StatusBadRequest, gin.H{"error": "No ad platform endpoint configured"})
        return
    }

    h.logger.Info("Starting data ingestion")

    if h.config.MetaAPIURL != "" {
        records, err := h.httpClient.FetchAdRecords(ctx, models.PlatformMeta, h.config.MetaAPIURL)
        if err != nil {
            h.logger.WithError(err).Error("Failed to fetch Meta data")
            c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to fetch Meta data"})
            return
        }
        in.Meta = records
    }

    if h.config.GoogleAPIURL != "" {
        records, err := h.httpClient.FetchAdRecords(ctx, models.PlatformGoogle, h.config.GoogleAPIURL)
        if err != nil {
            h.logger.WithError(err).Error("Failed to fetch Google Ads data")
            c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to fetch Google Ads data"})
            return
        }
        in.Google = records
    }

    if h.config.CRMAPIURL != "" {
        leads, err := h.httpClient.FetchLeadRecords(ctx, h.config.CRMAPIURL)
        if err != nil {
            h.logger.WithError(err).Error("Failed to fetch CRM data")
            c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to fetch CRM data"})
            return
        }
        in.Leads = leads
    } else {
        h.logger.Warn("CRM endpoint not configured, skipping attribution")
    }

    h.runMerge(c, in)
}

func (h *Handler) runMerge(c *gin.Context, in merger.Input) {
    result, err := h.merger.Merge(c.Request.Context(), in)
    if err != nil {
        var batchErr *merger.BatchError
        if errors.As(err, &batchErr) {
            c.JSON(http.StatusUnprocessableEntity, gin.H{
                "error":      batchErr.Error(),
                "stage":      batchErr.Stage.String(),
                "kind":       batchErr.Kind,
                "index":      batchErr.Index,
                "unified_id": batchErr.UnifiedID,
            })
            return
        }
        h.logger.WithError(err).Error("Merge failed")
        c.JSON(http.StatusInternalServerError, gin.H{"error": "Merge failed"})
        return
    }

    batch := result.Batch()
    h.store.StoreBatch(batch)
    h.cacheSummary(c.Request.Context(), batch.Summary)

    c.JSON(http.StatusOK, models.MergeResponse{
        Status:      "success",
        BatchID:     batch.ID,
        Records:     len(batch.Records),
        Skipped:     len(batch.Errors),
        Errors:      batch.Errors,
        ProcessedAt: batch.FinishedAt.Format(time.RFC3339),
        Summary:     batch.Summary,
    })
}

func (h *Handler) cacheSummary(ctx context.Context, summary models.BatchSummary) {
    data, err := storage.MarshalCache(summary)
    if err != nil {
        h.logger.WithError(err).Warn("Failed to encode summary for cache")
        return
    }
    if err := h.cache.Set(ctx, storage.SummaryCacheKey, data, h.config.CacheTTL); err != nil {
        h.logger.WithError(err).Warn("Failed to cache summary")
    }
}

func (h *Handler) GetRecords(c *gin.Context) {
    platform := models.Platform(c.Query("platform"))
    quality := models.AttributionQuality(c.Query("attribution_quality"))
    limitStr := c.DefaultQuery("limit", "10")
    offsetStr := c.DefaultQuery("offset", "0")

    limit, err := strconv.Atoi(limitStr)
    if err != nil || limit < 1 {
        c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
        return
    }
    offset, err := strconv.Atoi(offsetStr)
    if err != nil || offset < 0 {
        c.JSON(http.StatusBadRequest, gin.H{"error": "offset must be a non-negative integer"})
        return
    }

    if platform != "" && !platform.Valid() {
        c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown platform: " + string(platform)})
        return
    }

    if !h.store.HasData() {
        c.JSON(http.StatusNotFound, gin.H{"error": "No data available. Please run a merge first."})
        return
    }

    records := h.store.GetRecords(platform, quality)

    // Apply pagination
    total := len(records)
    start := offset
    end := offset + limit

    if start > total {
        start = total
    }
    if end > total {
        end = total
    }

    c.JSON(http.StatusOK, models.MetricsResponse{
        Data:    records[start:end],
        Total:   total,
        Page:    offset/limit + 1,
        Limit:   limit,
        HasMore: end < total,
    })
}

// GetSummary serves the last batch summary, preferring the cache.
func (h *Handler) GetSummary(c *gin.Context) {
    ctx := c.Request.Context()

    if data, ok := h.cache.Get(ctx, storage.SummaryCacheKey); ok {
        var summary models.BatchSummary
        if err := storage.UnmarshalCache(data, &summary); err == nil {
            c.Header("X-Cache", "HIT")
            c.JSON(http.StatusOK, summary)
            return
        }
        h.logger.Warn("Discarding unreadable cached summary")
    }

    batch, ok := h.store.GetBatch()
    if !ok {
        c.JSON(http.StatusNotFound, gin.H{"error": "No data available. Please run a merge first."})
        return
    }

    h.cacheSummary(ctx, batch.Summary)
    c.Header("X-Cache", "MISS")
    c.JSON(http.StatusOK, batch.Summary)
}

// ExportData writes the last batch to a CSV file and, when a sink is
// configured, posts every record to it.
func (h *Handler) ExportData(c *gin.Context) {
    var date time.Time
    if dateStr := c.Query("date"); dateStr != "" {
        parsed, err := time.Parse("2006-01-02", dateStr)
        if err != nil {
            c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid date format, use YYYY-MM-DD"})
            return
        }
        date = parsed
    }

    batch, ok := h.store.GetBatch()
    if !ok || len(batch.Records) == 0 {
        c.JSON(http.StatusNotFound, gin.H{"error": "No records to export"})
        return
    }

    path, err := h.exporter.SaveCSV(h.config.ExportDir, date, batch.Records)
    if err != nil {
        h.logger.WithError(err).Error("Failed to save CSV export")
        c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save export file"})
        return
    }

    // Export to sink if URL is configured
    if h.config.SinkURL != "" {
        if err := h.exporter.ExportToSink(c.Request.Context(), h.config.SinkURL, batch.Records); err != nil {
            h.logger.WithError(err).Error("Failed to export to sink")
            c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to export data", "file": path})
            return
        }
    }

    c.JSON(http.StatusOK, gin.H{
        "status":        "success",
        "batch_id":      batch.ID,
        "file":          path,
        "records_count": len(batch.Records),
        "exported_at":   time.Now().Format(time.RFC3339),
        "sink_url":      h.config.SinkURL,
    })
}
