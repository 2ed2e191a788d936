package storage

import (
    "sync"
    "time"

    "cerberus-etl/internal/models"
)

// MemoryStore keeps the most recent merged batch.
type MemoryStore struct {
    mu         sync.RWMutex
    batch      *models.Batch
    lastIngest time.Time
}

func NewMemoryStore() *MemoryStore {
    return &MemoryStore{}
}

func (s *MemoryStore) StoreBatch(batch models.Batch) {
    s.mu.Lock()
    defer s.mu.Unlock()

    batch.Records = append([]models.UnifiedRecord(nil), batch.Records...)
    s.batch = &batch
    s.lastIngest = time.Now()
}

// GetBatch returns a copy of the stored batch.
func (s *MemoryStore) GetBatch() (models.Batch, bool) {
    s.mu.RLock()
    defer s.mu.RUnlock()

    if s.batch == nil {
        return models.Batch{}, false
    }
    batch := *s.batch
    batch.Records = append([]models.UnifiedRecord(nil), s.batch.Records...)
    batch.Errors = append([]string(nil), s.batch.Errors...)
    return batch, true
}

// GetRecords returns the stored records matching the optional platform and
// attribution quality filters.
func (s *MemoryStore) GetRecords(platform models.Platform, quality models.AttributionQuality) []models.UnifiedRecord {
    s.mu.RLock()
    defer s.mu.RUnlock()

    records := make([]models.UnifiedRecord, 0)
    if s.batch == nil {
        return records
    }
    for _, record := range s.batch.Records {
        if platform != "" && record.Platform != platform {
            continue
        }
        if quality != "" && record.AttributionQuality != quality {
            continue
        }
        records = append(records, record)
    }
    return records
}

func (s *MemoryStore) GetLastIngestTime() time.Time {
    s.mu.RLock()
    defer s.mu.RUnlock()
    return s.lastIngest
}

func (s *MemoryStore) HasData() bool {
    s.mu.RLock()
    defer s.mu.RUnlock()
    return s.batch != nil
}
