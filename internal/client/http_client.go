package client

import (
    "bytes"
    "context"
    "encoding/json"
    "fmt"
    "io"
    "net/http"
    "time"

    "github.com/sirupsen/logrus"

    "cerberus-etl/internal/config"
    "cerberus-etl/internal/models"
)

type HTTPClient struct {
    client        *http.Client
    retryAttempts int
    backoff       func(attempt int) time.Duration
    logger        *logrus.Logger
}

func NewHTTPClient(cfg *config.Config, logger *logrus.Logger) *HTTPClient {
    retryAttempts := cfg.RetryAttempts
    if retryAttempts < 1 {
        retryAttempts = 1
    }
    return &HTTPClient{
        client: &http.Client{
            Timeout: cfg.HTTPTimeout,
        },
        retryAttempts: retryAttempts,
        backoff: func(attempt int) time.Duration {
            return time.Duration(attempt*attempt) * time.Second
        },
        logger: logger,
    }
}

// recordEnvelope accepts the payload shapes of the upstream fetchers: a bare
// array, a Graph API style {"data": [...]} or a query style {"records": [...]}.
type recordEnvelope []map[string]interface{}

func (e *recordEnvelope) UnmarshalJSON(body []byte) error {
    body = bytes.TrimSpace(body)
    if len(body) > 0 && body[0] == '[' {
        return decodeNumbers(body, (*[]map[string]interface{})(e))
    }

    var wrapped struct {
        Data    []map[string]interface{} `json:"data"`
        Records []map[string]interface{} `json:"records"`
    }
    if err := decodeNumbers(body, &wrapped); err != nil {
        return err
    }
    if wrapped.Data != nil {
        *e = wrapped.Data
    } else {
        *e = wrapped.Records
    }
    return nil
}

// decodeNumbers keeps numbers as json.Number so identifiers do not lose precision.
func decodeNumbers(body []byte, target interface{}) error {
    decoder := json.NewDecoder(bytes.NewReader(body))
    decoder.UseNumber()
    return decoder.Decode(target)
}

func (c *HTTPClient) FetchAdRecords(ctx context.Context, platform models.Platform, url string) ([]models.RawAdRecord, error) {
    var envelope recordEnvelope

    if err := c.retryRequest(ctx, url, &envelope); err != nil {
        return nil, fmt.Errorf("failed to fetch %s ad data: %w", platform, err)
    }

    records := make([]models.RawAdRecord, 0, len(envelope))
    for _, raw := range envelope {
        records = append(records, models.RawAdRecord(raw))
    }

    c.logger.WithFields(logrus.Fields{
        "platform": platform,
        "records":  len(records),
    }).Info("Fetched ad data")
    return records, nil
}

func (c *HTTPClient) FetchLeadRecords(ctx context.Context, url string) ([]models.RawLeadRecord, error) {
    var envelope recordEnvelope

    if err := c.retryRequest(ctx, url, &envelope); err != nil {
        return nil, fmt.Errorf("failed to fetch CRM data: %w", err)
    }

    leads := make([]models.RawLeadRecord, 0, len(envelope))
    for _, raw := range envelope {
        leads = append(leads, models.RawLeadRecord(raw))
    }

    c.logger.WithField("records", len(leads)).Info("Fetched CRM data")
    return leads, nil
}

func (c *HTTPClient) PostExportData(ctx context.Context, url string, data interface{}, signature string) error {
    jsonData, err := json.Marshal(data)
    if err != nil {
        return fmt.Errorf("failed to marshal export data: %w", err)
    }

    return c.retryPostRequest(ctx, url, jsonData, signature)
}

func (c *HTTPClient) wait(ctx context.Context, attempt int) error {
    timer := time.NewTimer(c.backoff(attempt))
    defer timer.Stop()

    select {
    case <-ctx.Done():
        return ctx.Err()
    case <-timer.C:
        return nil
    }
}

func (c *HTTPClient) retryRequest(ctx context.Context, url string, target interface{}) error {
    var lastErr error

    for attempt := 0; attempt < c.retryAttempts; attempt++ {
        if attempt > 0 {
            c.logger.WithFields(logrus.Fields{
                "attempt": attempt + 1,
                "backoff": c.backoff(attempt),
                "url":     url,
            }).Warn("Retrying request after backoff")
            if err := c.wait(ctx, attempt); err != nil {
                return err
            }
        }

        req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
        if err != nil {
            return fmt.Errorf("failed to create request: %w", err)
        }
        req.Header.Set("Accept", "application/json")

        resp, err := c.client.Do(req)
        if err != nil {
            lastErr = err
            continue
        }

        if resp.StatusCode >= 500 {
            resp.Body.Close()
            lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
            continue
        }

        if resp.StatusCode >= 400 {
            resp.Body.Close()
            return fmt.Errorf("client error: %d", resp.StatusCode)
        }

        body, err := io.ReadAll(resp.Body)
        resp.Body.Close()

        if err != nil {
            lastErr = err
            continue
        }

        if err := json.Unmarshal(body, target); err != nil {
            return fmt.Errorf("failed to decode response: %w", err)
        }

        c.logger.WithFields(logrus.Fields{
            "attempt":     attempt + 1,
            "status_code": resp.StatusCode,
            "url":         url,
        }).Debug("Request successful")

        return nil
    }

    return fmt.Errorf("all retry attempts failed, last error: %w", lastErr)
}

func (c *HTTPClient) retryPostRequest(ctx context.Context, url string, body []byte, signature string) error {
    var lastErr error

    for attempt := 0; attempt < c.retryAttempts; attempt++ {
        if attempt > 0 {
            if err := c.wait(ctx, attempt); err != nil {
                return err
            }
        }

        // A request body can only be read once, so build a fresh request per attempt.
        req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
        if err != nil {
            return fmt.Errorf("failed to create export request: %w", err)
        }
        req.Header.Set("Content-Type", "application/json")
        req.Header.Set("X-Signature", signature)

        resp, err := c.client.Do(req)
        if err != nil {
            lastErr = err
            continue
        }

        resp.Body.Close()

        if resp.StatusCode >= 200 && resp.StatusCode < 300 {
            return nil
        }

        if resp.StatusCode >= 400 && resp.StatusCode < 500 {
            return fmt.Errorf("client error: %d", resp.StatusCode)
        }

        lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
    }

    return fmt.Errorf("export failed after retries: %w", lastErr)
}
