package handlers

import (
    "bytes"
    "context"
    "encoding/json"
    "io"
    "net/http"
    "net/http/httptest"
    "os"
    "sync/atomic"
    "testing"
    "time"

    "github.com/gin-gonic/gin"
    "github.com/prometheus/client_golang/prometheus"
    "github.com/sirupsen/logrus/hooks/test"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "cerberus-etl/internal/alerts"
    "cerberus-etl/internal/attribution"
    "cerberus-etl/internal/client"
    "cerberus-etl/internal/config"
    "cerberus-etl/internal/export"
    "cerberus-etl/internal/merger"
    "cerberus-etl/internal/metrics"
    "cerberus-etl/internal/models"
    "cerberus-etl/internal/storage"
    "cerberus-etl/internal/telemetry"
    "cerberus-etl/internal/transformer"
)

type testEnv struct {
    router *gin.Engine
    store  *storage.MemoryStore
    cache  *storage.MemoryCache
    cfg    *config.Config
}

func newTestEnv(t *testing.T, cfg *config.Config) *testEnv {
    t.Helper()
    gin.SetMode(gin.TestMode)

    if cfg.HTTPTimeout == 0 {
        cfg.HTTPTimeout = 5 * time.Second
    }
    if cfg.RetryAttempts == 0 {
        cfg.RetryAttempts = 1
    }
    if cfg.ExportDir == "" {
        cfg.ExportDir = t.TempDir()
    }
    if cfg.CacheTTL == 0 {
        cfg.CacheTTL = time.Minute
    }

    logger, _ := test.NewNullLogger()
    m := telemetry.New(prometheus.NewRegistry())
    httpClient := client.NewHTTPClient(cfg, logger)
    engine := merger.New(
        transformer.New(),
        attribution.NewMatcher(logger, m),
        metrics.NewCalculator(),
        alerts.NewEvaluator(),
        merger.Options{Workers: 2, FailFast: cfg.FailFast},
        logger,
        m,
    )
    store := storage.NewMemoryStore()
    cache := storage.NewMemoryCache()
    h := New(cfg, httpClient, engine, store, cache, export.NewExporter("secret", httpClient, logger), logger)

    router := gin.New()
    router.GET("/healthz", h.HealthCheck)
    router.GET("/readyz", h.ReadinessCheck)
    router.POST("/merge", h.Merge)
    router.POST("/ingest/run", h.IngestData)
    router.GET("/records", h.GetRecords)
    router.GET("/summary", h.GetSummary)
    router.POST("/export/run", h.ExportData)

    return &testEnv{router: router, store: store, cache: cache, cfg: cfg}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
    t.Helper()
    var reader io.Reader
    if body != nil {
        data, err := json.Marshal(body)
        require.NoError(t, err)
        reader = bytes.NewReader(data)
    }
    req := httptest.NewRequest(method, path, reader)
    req.Header.Set("Content-Type", "application/json")
    w := httptest.NewRecorder()
    e.router.ServeHTTP(w, req)
    return w
}

func sampleMergeRequest() models.MergeRequest {
    return models.MergeRequest{
        MetaRecords: []models.RawAdRecord{
            {"campaign_id": "C1", "adset_id": "A1", "ad_id": "D1", "campaign_name": "Spring Sale", "spend": 45.67, "clicks": 120},
            {"campaign_id": "C2", "adset_id": "A2", "ad_id": "D2", "campaign_name": "Winter", "spend": 10, "clicks": 5},
        },
        GoogleRecords: []models.RawAdRecord{
            {"campaign_id": "G1", "campaign_name": "Brand Search", "spend": 20, "clicks": 40},
        },
        Leads: []models.RawLeadRecord{
            {"lead_id": "lead_001", "fb_campaign_id": "C1", "fb_adset_id": "A1", "fb_ad_id": "D1", "is_converted": true},
            {"lead_id": "lead_002", "utm_campaign": "Brand Search", "lead_status": "Open"},
        },
    }
}

func TestHealthAndReadiness(t *testing.T) {
    env := newTestEnv(t, &config.Config{})

    w := env.do(t, http.MethodGet, "/healthz", nil)
    assert.Equal(t, http.StatusOK, w.Code)
    assert.Contains(t, w.Body.String(), `"service":"cerberus-etl"`)

    w = env.do(t, http.MethodGet, "/readyz", nil)
    assert.Equal(t, http.StatusServiceUnavailable, w.Code)

    w = env.do(t, http.MethodPost, "/merge", sampleMergeRequest())
    require.Equal(t, http.StatusOK, w.Code)

    w = env.do(t, http.MethodGet, "/readyz", nil)
    assert.Equal(t, http.StatusOK, w.Code)
}

func TestMergeEndpoint(t *testing.T) {
    env := newTestEnv(t, &config.Config{})

    w := env.do(t, http.MethodPost, "/merge", sampleMergeRequest())
    require.Equal(t, http.StatusOK, w.Code)

    var resp models.MergeResponse
    require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
    assert.Equal(t, "success", resp.Status)
    assert.NotEmpty(t, resp.BatchID)
    assert.Equal(t, 3, resp.Records)
    assert.Equal(t, 0, resp.Skipped)
    assert.Equal(t, 3, resp.Summary.TotalRecords)
    assert.Equal(t, 2, resp.Summary.AttributedLeads)

    batch, ok := env.store.GetBatch()
    require.True(t, ok)
    assert.Equal(t, resp.BatchID, batch.ID)

    _, cached := env.cache.Get(context.Background(), storage.SummaryCacheKey)
    assert.True(t, cached)
}

func TestMergeEndpointRejectsBadBody(t *testing.T) {
    env := newTestEnv(t, &config.Config{})

    req := httptest.NewRequest(http.MethodPost, "/merge", bytes.NewBufferString("{not json"))
    req.Header.Set("Content-Type", "application/json")
    w := httptest.NewRecorder()
    env.router.ServeHTTP(w, req)

    assert.Equal(t, http.StatusBadRequest, w.Code)
    assert.False(t, env.store.HasData())
}

func TestMergeEndpointSkipsMalformedRecords(t *testing.T) {
    env := newTestEnv(t, &config.Config{})

    req := sampleMergeRequest()
    req.MetaRecords = append(req.MetaRecords, models.RawAdRecord{"campaign_id": "C3", "spend": "lots"})

    w := env.do(t, http.MethodPost, "/merge", req)
    require.Equal(t, http.StatusOK, w.Code)

    var resp models.MergeResponse
    require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
    assert.Equal(t, 3, resp.Records)
    assert.Equal(t, 1, resp.Skipped)
    require.Len(t, resp.Errors, 1)
    assert.Contains(t, resp.Errors[0], "spend")
}

func TestMergeEndpointFailFast(t *testing.T) {
    env := newTestEnv(t, &config.Config{FailFast: true})

    req := sampleMergeRequest()
    req.MetaRecords = append(req.MetaRecords, models.RawAdRecord{"campaign_id": "C3", "spend": "lots"})

    w := env.do(t, http.MethodPost, "/merge", req)
    assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

    var body map[string]interface{}
    require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
    assert.Equal(t, "standardizing", body["stage"])
    assert.Equal(t, float64(2), body["index"])
    assert.False(t, env.store.HasData())
}

func TestMergeEndpointKeepsLargeNumericIDs(t *testing.T) {
    env := newTestEnv(t, &config.Config{})

    body := `{
        "meta_records": [
            {"campaign_id": 120210000000000001, "adset_id": 7, "ad_id": 9, "spend": 12.5},
            {"campaign_id": 120210000000000002, "adset_id": 7, "ad_id": 9, "spend": 3}
        ],
        "leads": [
            {"lead_id": "lead_001", "fb_campaign_id": 120210000000000001, "fb_adset_id": 7, "fb_ad_id": 9}
        ]
    }`
    req := httptest.NewRequest(http.MethodPost, "/merge", bytes.NewBufferString(body))
    req.Header.Set("Content-Type", "application/json")
    w := httptest.NewRecorder()
    env.router.ServeHTTP(w, req)
    require.Equal(t, http.StatusOK, w.Code)

    records := env.store.GetRecords(models.PlatformMeta, "")
    require.Len(t, records, 2)
    assert.Equal(t, "meta_120210000000000001_7_9", records[0].UnifiedID)
    assert.Equal(t, models.IDMatched, records[0].AttributionQuality)
    assert.Equal(t, 12.5, records[0].Spend)
    assert.Equal(t, "meta_120210000000000002_7_9", records[1].UnifiedID)
    assert.Equal(t, models.NoAttribution, records[1].AttributionQuality)
}

func TestGetRecords(t *testing.T) {
    env := newTestEnv(t, &config.Config{})

    w := env.do(t, http.MethodGet, "/records", nil)
    assert.Equal(t, http.StatusNotFound, w.Code)

    require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/merge", sampleMergeRequest()).Code)

    tests := []struct {
        name    string
        query   string
        code    int
        total   int
        count   int
        hasMore bool
    }{
        {"all", "", http.StatusOK, 3, 3, false},
        {"paged", "?limit=2", http.StatusOK, 3, 2, true},
        {"second page", "?limit=2&offset=2", http.StatusOK, 3, 1, false},
        {"offset past end", "?offset=10", http.StatusOK, 3, 0, false},
        {"platform", "?platform=meta", http.StatusOK, 2, 2, false},
        {"quality", "?attribution_quality=Name_Matched_Best_Effort", http.StatusOK, 1, 1, false},
        {"no attribution", "?platform=meta&attribution_quality=No_Attribution", http.StatusOK, 1, 1, false},
        {"unknown platform", "?platform=tiktok", http.StatusBadRequest, 0, 0, false},
        {"bad limit", "?limit=0", http.StatusBadRequest, 0, 0, false},
        {"bad offset", "?offset=-1", http.StatusBadRequest, 0, 0, false},
    }

    for _, tt := range tests {
        t.Run(tt.name, func(t *testing.T) {
            w := env.do(t, http.MethodGet, "/records"+tt.query, nil)
            require.Equal(t, tt.code, w.Code)
            if tt.code != http.StatusOK {
                return
            }

            var resp struct {
                Data    []models.UnifiedRecord `json:"data"`
                Total   int                    `json:"total"`
                HasMore bool                   `json:"has_more"`
            }
            require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
            assert.Equal(t, tt.total, resp.Total)
            assert.Len(t, resp.Data, tt.count)
            assert.Equal(t, tt.hasMore, resp.HasMore)
        })
    }
}

func TestGetSummaryUsesCache(t *testing.T) {
    env := newTestEnv(t, &config.Config{})

    w := env.do(t, http.MethodGet, "/summary", nil)
    assert.Equal(t, http.StatusNotFound, w.Code)

    require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/merge", sampleMergeRequest()).Code)

    w = env.do(t, http.MethodGet, "/summary", nil)
    require.Equal(t, http.StatusOK, w.Code)
    assert.Equal(t, "HIT", w.Header().Get("X-Cache"))

    var summary models.BatchSummary
    require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
    assert.Equal(t, 3, summary.TotalRecords)

    // a stale cache entry is replaced from the store
    require.NoError(t, env.cache.Set(context.Background(), storage.SummaryCacheKey, []byte("garbage"), time.Minute))
    w = env.do(t, http.MethodGet, "/summary", nil)
    require.Equal(t, http.StatusOK, w.Code)
    assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
}

func TestIngestData(t *testing.T) {
    mux := http.NewServeMux()
    mux.HandleFunc("/meta", func(w http.ResponseWriter, r *http.Request) {
        io.WriteString(w, `{"data": [{"campaign_id": 23456789012345678, "adset_id": "A1", "ad_id": "D1", "spend": "45.67"}]}`)
    })
    mux.HandleFunc("/google", func(w http.ResponseWriter, r *http.Request) {
        io.WriteString(w, `[{"campaign_id": "G1", "campaign_name": "Brand Search", "spend": 20}]`)
    })
    mux.HandleFunc("/crm", func(w http.ResponseWriter, r *http.Request) {
        io.WriteString(w, `{"totalSize": 1, "records": [{"lead_id": "lead_001", "fb_campaign_id": "23456789012345678", "fb_adset_id": "A1", "fb_ad_id": "D1"}]}`)
    })
    upstream := httptest.NewServer(mux)
    defer upstream.Close()

    env := newTestEnv(t, &config.Config{
        MetaAPIURL:   upstream.URL + "/meta",
        GoogleAPIURL: upstream.URL + "/google",
        CRMAPIURL:    upstream.URL + "/crm",
    })

    w := env.do(t, http.MethodPost, "/ingest/run", nil)
    require.Equal(t, http.StatusOK, w.Code)

    records := env.store.GetRecords(models.PlatformMeta, models.IDMatched)
    require.Len(t, records, 1)
    assert.Equal(t, "meta_23456789012345678_A1_D1", records[0].UnifiedID)
    assert.Len(t, env.store.GetRecords(models.PlatformGoogle, models.NoAttribution), 1)
}

func TestIngestDataErrors(t *testing.T) {
    env := newTestEnv(t, &config.Config{})
    assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/ingest/run", nil).Code)

    upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        w.WriteHeader(http.StatusUnauthorized)
    }))
    defer upstream.Close()

    env = newTestEnv(t, &config.Config{MetaAPIURL: upstream.URL})
    assert.Equal(t, http.StatusBadGateway, env.do(t, http.MethodPost, "/ingest/run", nil).Code)
    assert.False(t, env.store.HasData())
}

func TestExportData(t *testing.T) {
    var posts int32
    sink := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        body, err := io.ReadAll(r.Body)
        require.NoError(t, err)
        assert.Equal(t, export.Sign("secret", body), r.Header.Get("X-Signature"))
        atomic.AddInt32(&posts, 1)
        w.WriteHeader(http.StatusOK)
    }))
    defer sink.Close()

    env := newTestEnv(t, &config.Config{SinkURL: sink.URL})

    w := env.do(t, http.MethodPost, "/export/run", nil)
    assert.Equal(t, http.StatusNotFound, w.Code)

    require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/merge", sampleMergeRequest()).Code)

    w = env.do(t, http.MethodPost, "/export/run?date=bad", nil)
    assert.Equal(t, http.StatusBadRequest, w.Code)

    w = env.do(t, http.MethodPost, "/export/run?date=2025-01-21", nil)
    require.Equal(t, http.StatusOK, w.Code)
    assert.Equal(t, int32(3), atomic.LoadInt32(&posts))

    var body map[string]interface{}
    require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
    path, _ := body["file"].(string)
    assert.Contains(t, path, "cerberus_unified_data_2025-01-21.csv")

    _, err := os.Stat(path)
    assert.NoError(t, err)
}
