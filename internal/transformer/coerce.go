package transformer

import (
    "encoding/json"
    "errors"
    "fmt"
    "math"
    "strconv"
    "strings"

    "cerberus-etl/internal/models"
)

// ErrMalformedRecord is returned when a present field holds a value of an
// incompatible type. Absent fields are defaulted and are not errors.
var ErrMalformedRecord = errors.New("malformed record")

type FieldError struct {
    Field  string
    Value  interface{}
    Reason string
}

func (e *FieldError) Error() string {
    return fmt.Sprintf("%s: field %q %s (got %T %v)", ErrMalformedRecord, e.Field, e.Reason, e.Value, e.Value)
}

func (e *FieldError) Unwrap() error {
    return ErrMalformedRecord
}

// recordReader pulls typed fields out of a raw record. The first coercion
// failure sticks in err; later reads return zero values.
type recordReader struct {
    raw     map[string]interface{}
    quality *models.RecordQuality
    err     error
}

func newRecordReader(raw map[string]interface{}, quality *models.RecordQuality) *recordReader {
    return &recordReader{raw: raw, quality: quality}
}

func (r *recordReader) fail(field string, value interface{}, reason string) {
    if r.err == nil {
        r.err = &FieldError{Field: field, Value: value, Reason: reason}
    }
}

func (r *recordReader) note(field, description string, original interface{}) {
    if r.quality == nil {
        return
    }
    if r.quality.FieldErrors == nil {
        r.quality.FieldErrors = make(map[string]models.FieldQuality)
    }
    r.quality.FieldErrors[field] = models.FieldQuality{
        IsValid:       false,
        Description:   description,
        OriginalValue: original,
    }
    r.quality.ErrorCount++
}

func (r *recordReader) str(field string) string {
    if r.err != nil {
        return ""
    }
    s, ok := toString(r.raw[field])
    if !ok {
        r.fail(field, r.raw[field], "is not a string")
        return ""
    }
    return s
}

// float reads a non-negative metric; negatives are clamped to 0.
func (r *recordReader) float(field string) float64 {
    if r.err != nil {
        return 0
    }
    v, ok := toFloat(r.raw[field])
    if !ok {
        r.fail(field, r.raw[field], "is not a number")
        return 0
    }
    if v < 0 {
        r.note(field, fmt.Sprintf("Invalid - %s cannot be negative, setting to 0", field), v)
        return 0
    }
    return v
}

func (r *recordReader) int(field string) int {
    if r.err != nil {
        return 0
    }
    v, ok := toInt(r.raw[field])
    if !ok {
        r.fail(field, r.raw[field], "is not an integer")
        return 0
    }
    if v < 0 {
        r.note(field, fmt.Sprintf("Invalid - %s cannot be negative, setting to 0", field), v)
        return 0
    }
    return v
}

func (r *recordReader) boolean(field string) bool {
    if r.err != nil {
        return false
    }
    v, ok := toBool(r.raw[field])
    if !ok {
        r.fail(field, r.raw[field], "is not a boolean")
        return false
    }
    return v
}

func toFloat(value interface{}) (float64, bool) {
    var f float64
    switch v := value.(type) {
    case nil:
        return 0, true
    case float64:
        f = v
    case float32:
        f = float64(v)
    case int:
        f = float64(v)
    case int8:
        f = float64(v)
    case int16:
        f = float64(v)
    case int32:
        f = float64(v)
    case int64:
        f = float64(v)
    case uint:
        f = float64(v)
    case uint8:
        f = float64(v)
    case uint16:
        f = float64(v)
    case uint32:
        f = float64(v)
    case uint64:
        f = float64(v)
    case json.Number:
        parsed, err := v.Float64()
        if err != nil {
            return 0, false
        }
        f = parsed
    case string:
        s := strings.TrimSpace(v)
        if s == "" {
            return 0, true
        }
        parsed, err := strconv.ParseFloat(s, 64)
        if err != nil {
            return 0, false
        }
        f = parsed
    default:
        return 0, false
    }
    if math.IsNaN(f) || math.IsInf(f, 0) {
        return 0, false
    }
    return f, true
}

// toInt truncates fractional values towards zero.
func toInt(value interface{}) (int, bool) {
    switch v := value.(type) {
    case int:
        return v, true
    case int64:
        return int(v), true
    case json.Number:
        if i, err := v.Int64(); err == nil {
            return int(i), true
        }
    case string:
        if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
            return i, true
        }
    }
    f, ok := toFloat(value)
    if !ok || math.Abs(f) > math.MaxInt64 {
        return 0, false
    }
    return int(math.Trunc(f)), true
}

func toString(value interface{}) (string, bool) {
    switch v := value.(type) {
    case nil:
        return "", true
    case string:
        return strings.TrimSpace(v), true
    case json.Number:
        return v.String(), true
    case float64:
        return formatNumber(v), true
    case float32:
        return formatNumber(float64(v)), true
    case int:
        return strconv.Itoa(v), true
    case int32:
        return strconv.FormatInt(int64(v), 10), true
    case int64:
        return strconv.FormatInt(v, 10), true
    case uint64:
        return strconv.FormatUint(v, 10), true
    }
    return "", false
}

// formatNumber renders numeric identifiers without exponent notation.
func formatNumber(f float64) string {
    if f == math.Trunc(f) && math.Abs(f) < 1e18 {
        return strconv.FormatInt(int64(f), 10)
    }
    return strconv.FormatFloat(f, 'f', -1, 64)
}

func toBool(value interface{}) (bool, bool) {
    switch v := value.(type) {
    case nil:
        return false, true
    case bool:
        return v, true
    case string:
        s := strings.TrimSpace(v)
        if s == "" {
            return false, true
        }
        b, err := strconv.ParseBool(s)
        return b, err == nil
    }
    f, ok := toFloat(value)
    if !ok {
        return false, false
    }
    switch f {
    case 0:
        return false, true
    case 1:
        return true, true
    }
    return false, false
}
