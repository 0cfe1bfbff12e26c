package domain

import "time"

// Verdict is the binary clinical call.
type Verdict string

const (
	VerdictPositive Verdict = "positive"
	VerdictNegative Verdict = "negative"
)

// ConfidenceBand is a coarse discretization of the winning-class probability.
type ConfidenceBand string

const (
	ConfidenceHigh   ConfidenceBand = "high"
	ConfidenceMedium ConfidenceBand = "medium"
	ConfidenceLow    ConfidenceBand = "low"
)

// Class indexes of the classifier output.
const (
	ClassNormal    = 0
	ClassPneumonia = 1
)

// VerdictForClass maps the argmax class index to a verdict.
func VerdictForClass(class int) Verdict {
	if class == ClassPneumonia {
		return VerdictPositive
	}
	return VerdictNegative
}

// Analysis is one recorded diagnostic run.
type Analysis struct {
	ID          int64          `json:"id"`
	UserID      int64          `json:"user_id"`
	PatientID   int64          `json:"patient_id"`
	FileName    string         `json:"file_name"`
	Heatmap     string         `json:"heatmap,omitempty"`
	Verdict     Verdict        `json:"verdict"`
	Probability float64        `json:"probability"`
	Confidence  ConfidenceBand `json:"confidence"`
	Timestamp   time.Time      `json:"timestamp"`
}

// HistoryEntry is an analysis joined with its patient and a resolvable overlay URL.
type HistoryEntry struct {
	Analysis
	Patient  Patient `json:"patient"`
	ImageURL string  `json:"imageUrl"`
}
