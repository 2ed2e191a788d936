package models

import (
    "encoding/json"
    "sort"
    "strings"
)

// StringSet is an unordered set of strings. It renders sorted.
type StringSet map[string]struct{}

func NewStringSet(values ...string) StringSet {
    s := make(StringSet, len(values))
    for _, v := range values {
        s.Add(v)
    }
    return s
}

// Add inserts v unless it is empty.
func (s StringSet) Add(v string) {
    if v == "" {
        return
    }
    s[v] = struct{}{}
}

func (s StringSet) Has(v string) bool {
    _, ok := s[v]
    return ok
}

func (s StringSet) Sorted() []string {
    out := make([]string, 0, len(s))
    for v := range s {
        out = append(out, v)
    }
    sort.Strings(out)
    return out
}

func (s StringSet) Join(sep string) string {
    return strings.Join(s.Sorted(), sep)
}

func (s StringSet) MarshalJSON() ([]byte, error) {
    return json.Marshal(s.Sorted())
}

func (s *StringSet) UnmarshalJSON(data []byte) error {
    var values []string
    if err := json.Unmarshal(data, &values); err != nil {
        return err
    }
    *s = NewStringSet(values...)
    return nil
}
