package merger

// Stage is a step of the linear batch state machine.
type Stage int

const (
    StageIdle Stage = iota
    StageStandardizing
    StageIndexBuilding
    StageMatching
    StageAggregating
    StageEvaluating
    StageDone
)

func (s Stage) String() string {
    switch s {
    case StageIdle:
        return "idle"
    case StageStandardizing:
        return "standardizing"
    case StageIndexBuilding:
        return "index_building"
    case StageMatching:
        return "matching"
    case StageAggregating:
        return "aggregating"
    case StageEvaluating:
        return "evaluating"
    case StageDone:
        return "done"
    }
    return "unknown"
}
