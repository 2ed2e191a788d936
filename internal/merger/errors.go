package merger

import (
    "errors"
    "fmt"

    "cerberus-etl/internal/models"
)

// ErrStagePanic marks a record whose processing panicked inside a stage worker.
var ErrStagePanic = errors.New("panic in stage worker")

const (
    KindAd   = "ad"
    KindLead = "lead"
)

// RecordError identifies an input record that could not be processed.
type RecordError struct {
    Kind      string
    Platform  models.Platform
    Index     int
    UnifiedID string
    Err       error
}

func (e RecordError) Error() string {
    if e.Kind == KindLead {
        return fmt.Sprintf("lead %d (%q): %v", e.Index, e.UnifiedID, e.Err)
    }
    return fmt.Sprintf("%s record %d (%s): %v", e.Platform, e.Index, e.UnifiedID, e.Err)
}

func (e RecordError) Unwrap() error {
    return e.Err
}

// BatchError aborts a batch. It carries the stage and the offending record.
type BatchError struct {
    Stage Stage
    RecordError
}

func (e *BatchError) Error() string {
    return fmt.Sprintf("merge aborted during %s: %s", e.Stage, e.RecordError.Error())
}

func (e *BatchError) Unwrap() error {
    return e.RecordError.Err
}
