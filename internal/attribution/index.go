package attribution

import (
    "sort"
    "strings"

    "cerberus-etl/internal/models"
)

// Index holds the CRM leads partitioned by matching strategy. It is built
// once per batch and is read-only afterwards, so it can be shared between
// concurrent matches.
type Index struct {
    exact    map[string][]models.Lead
    names    map[string][]models.Lead
    nameKeys []string // sorted; scanned by the substring fallback
    leads    int
}

type IndexStats struct {
    Leads      int `json:"leads"`
    ExactKeys  int `json:"exact_keys"`
    ExactLeads int `json:"exact_leads"`
    NameKeys   int `json:"name_keys"`
    NameLeads  int `json:"name_leads"`
}

// Build indexes leads under every key they qualify for. Leads without a
// qualifying key are skipped.
func Build(leads []models.Lead) *Index {
    idx := &Index{
        exact: make(map[string][]models.Lead),
        names: make(map[string][]models.Lead),
        leads: len(leads),
    }

    for _, lead := range leads {
        if key, ok := ExactKey(lead.FBCampaignID, lead.FBAdsetID, lead.FBAdID); ok {
            idx.exact[key] = append(idx.exact[key], lead)
        }
        if key := NameKey(lead.UTMCampaign); key != "" {
            if _, seen := idx.names[key]; !seen {
                idx.nameKeys = append(idx.nameKeys, key)
            }
            idx.names[key] = append(idx.names[key], lead)
        }
    }
    sort.Strings(idx.nameKeys)

    return idx
}

// ExactKey joins the campaign/adset/ad trio as given. Partial keys never match.
func ExactKey(campaignID, adsetID, adID string) (string, bool) {
    if campaignID == "" || adsetID == "" || adID == "" {
        return "", false
    }
    return campaignID + "|" + adsetID + "|" + adID, true
}

// NameKey is the case and whitespace normalized campaign name.
func NameKey(campaignName string) string {
    return strings.ToLower(strings.TrimSpace(campaignName))
}

func (idx *Index) LookupExact(key string) []models.Lead {
    if idx == nil {
        return nil
    }
    return idx.exact[key]
}

func (idx *Index) LookupName(key string) []models.Lead {
    if idx == nil {
        return nil
    }
    return idx.names[key]
}

// FindContainingName returns the first name key, in ascending order, that
// contains name or is contained by it.
func (idx *Index) FindContainingName(name string) (string, bool) {
    if idx == nil || name == "" {
        return "", false
    }
    for _, key := range idx.nameKeys {
        if strings.Contains(key, name) || strings.Contains(name, key) {
            return key, true
        }
    }
    return "", false
}

func (idx *Index) Stats() IndexStats {
    if idx == nil {
        return IndexStats{}
    }
    stats := IndexStats{
        Leads:     idx.leads,
        ExactKeys: len(idx.exact),
        NameKeys:  len(idx.names),
    }
    for _, leads := range idx.exact {
        stats.ExactLeads += len(leads)
    }
    for _, leads := range idx.names {
        stats.NameLeads += len(leads)
    }
    return stats
}
