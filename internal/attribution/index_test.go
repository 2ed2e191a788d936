package attribution

import (
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "cerberus-etl/internal/models"
)

func metaLead(id, campaign, adset, ad string) models.Lead {
    return models.Lead{LeadID: id, FBCampaignID: campaign, FBAdsetID: adset, FBAdID: ad}
}

func googleLead(id, utmCampaign string) models.Lead {
    return models.Lead{LeadID: id, UTMCampaign: utmCampaign}
}

func TestBuild(t *testing.T) {
    idx := Build([]models.Lead{
        metaLead("lead_001", "C1", "A1", "D1"),
        metaLead("lead_002", "C1", "A1", "D1"),
        metaLead("lead_003", "C1", "", "D1"),
        googleLead("lead_004", "Google Search Q1"),
        googleLead("lead_005", " google search q1 "),
        googleLead("lead_006", "   "),
        {LeadID: "lead_007"},
    })

    exact := idx.LookupExact("C1|A1|D1")
    require.Len(t, exact, 2)
    assert.Equal(t, "lead_001", exact[0].LeadID)
    assert.Equal(t, "lead_002", exact[1].LeadID)

    names := idx.LookupName("google search q1")
    require.Len(t, names, 2)
    assert.Equal(t, "lead_004", names[0].LeadID)
    assert.Equal(t, "lead_005", names[1].LeadID)

    assert.Equal(t, IndexStats{
        Leads:      7,
        ExactKeys:  1,
        ExactLeads: 2,
        NameKeys:   1,
        NameLeads:  2,
    }, idx.Stats())
}

func TestBuildIndexesLeadUnderBothStrategies(t *testing.T) {
    lead := metaLead("lead_001", "C1", "A1", "D1")
    lead.UTMCampaign = "Spring Sale"

    idx := Build([]models.Lead{lead})

    assert.Len(t, idx.LookupExact("C1|A1|D1"), 1)
    assert.Len(t, idx.LookupName("spring sale"), 1)
}

func TestExactKey(t *testing.T) {
    key, ok := ExactKey("C1", "A1", "D1")
    assert.True(t, ok)
    assert.Equal(t, "C1|A1|D1", key)

    padded, ok := ExactKey(" C1", "A1", "D1")
    assert.True(t, ok)
    assert.NotEqual(t, key, padded)

    _, ok = ExactKey("C1", "A1", "")
    assert.False(t, ok)
}

func TestNameKeyIsCaseAndWhitespaceInsensitive(t *testing.T) {
    assert.Equal(t, NameKey("Google Search Q1"), NameKey(" google search q1 "))
    assert.Equal(t, "", NameKey("  "))
}

func TestFindContainingNamePicksSmallestKey(t *testing.T) {
    idx := Build([]models.Lead{
        googleLead("lead_b", "Spring Sale Extended"),
        googleLead("lead_a", "2024 Spring Sale Extended"),
        googleLead("lead_c", "Winter"),
    })

    key, ok := idx.FindContainingName("spring sale")
    require.True(t, ok)
    assert.Equal(t, "2024 spring sale extended", key)

    key, ok = idx.FindContainingName("winter clearance")
    require.True(t, ok)
    assert.Equal(t, "winter", key)

    _, ok = idx.FindContainingName("autumn")
    assert.False(t, ok)

    _, ok = idx.FindContainingName("")
    assert.False(t, ok)
}

func TestNilIndexIsEmpty(t *testing.T) {
    var idx *Index

    assert.Nil(t, idx.LookupExact("C1|A1|D1"))
    assert.Nil(t, idx.LookupName("x"))
    _, ok := idx.FindContainingName("x")
    assert.False(t, ok)
    assert.Equal(t, IndexStats{}, idx.Stats())
}
