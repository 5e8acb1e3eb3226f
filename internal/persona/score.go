package persona

import "time"

// Dimension identifies one quality axis.
type Dimension string

const (
	DimCompleteness    Dimension = "completeness"
	DimConsistency     Dimension = "consistency"
	DimEvidence        Dimension = "evidence_strength"
	DimDistinctiveness Dimension = "distinctiveness"
	DimRealism         Dimension = "realism"
)

// Dimensions lists every quality axis in presentation order.
func Dimensions() []Dimension {
	return []Dimension{DimCompleteness, DimConsistency, DimEvidence, DimDistinctiveness, DimRealism}
}

// QualityLevel is the discrete tier derived from an overall score.
type QualityLevel string

const (
	LevelExcellent  QualityLevel = "excellent"
	LevelGood       QualityLevel = "good"
	LevelAcceptable QualityLevel = "acceptable"
	LevelPoor       QualityLevel = "poor"
	LevelFailing    QualityLevel = "failing"
)

// DimensionScore is one axis of a quality score: a value in [0,1] plus the
// concrete issues that pulled it down.
type DimensionScore struct {
	Score  float64  `json:"score"`
	Issues []string `json:"issues,omitempty"`
}

// QualityScore is an immutable snapshot of a candidate's quality at scoring
// time. A candidate holds exactly one current score; re-scoring replaces it.
type QualityScore struct {
	Overall    float64                      `json:"overall"`
	Level      QualityLevel                 `json:"level"`
	Dimensions map[Dimension]DimensionScore `json:"dimensions"`
	ScoredAt   time.Time                    `json:"scored_at"`
}

// Issues flattens every dimension's issue list, prefixed by dimension name.
func (s *QualityScore) Issues() []string {
	var all []string
	for _, dim := range Dimensions() {
		ds, ok := s.Dimensions[dim]
		if !ok {
			continue
		}
		for _, issue := range ds.Issues {
			all = append(all, string(dim)+": "+issue)
		}
	}
	return all
}
