package model

import "time"

// TopicSuggestion is a scored concept returned by a classification query.
type TopicSuggestion struct {
	ConceptID string  `json:"concept"`
	Score     float64 `json:"score"`
}

// ClassificationReport holds the cross-validated performance of one concept.
// Precision and Recall are 0 when their denominator is 0; Support (held-out
// positives) and the raw counts distinguish that case from a measured zero.
type ClassificationReport struct {
	ConceptID        string    `json:"concept"`
	Precision        float64   `json:"precision"`
	Recall           float64   `json:"recall"`
	F1               float64   `json:"f1"`
	Threshold        float64   `json:"threshold"`
	TruePositives    int       `json:"true_positives"`
	FalsePositives   int       `json:"false_positives"`
	FalseNegatives   int       `json:"false_negatives"`
	Support          int       `json:"support"`
	FalsePositiveIDs []string  `json:"false_positive_ids"`
	FalseNegativeIDs []string  `json:"false_negative_ids"`
	Folds            int       `json:"folds"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Defined reports whether both precision and recall had a non-zero denominator.
func (r ClassificationReport) Defined() bool {
	return r.TruePositives+r.FalsePositives > 0 && r.Support > 0
}
