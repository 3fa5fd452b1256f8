package chat

import (
	"strings"

	"github.com/mridulmehra/CyberGaurd-Backend/internal/directory"
)

// Score deltas applied per message.
const (
	ToxicPenalty = 10
	CleanCredit  = 5
)

// Severity offsets over the running score.
const (
	flaggedSeverityOffset  = 25
	fallbackSeverityOffset = 15
)

// AdjustScore applies one message verdict to a running toxicity score.
func AdjustScore(score int, toxic bool) int {
	if toxic {
		return min(directory.MaxScore, score+ToxicPenalty)
	}
	return max(directory.MinScore, score-CleanCredit)
}

// FlaggedSeverity estimates the severity of a classifier-flagged message
// from the author's updated score.
func FlaggedSeverity(updated int) int {
	return min(directory.MaxScore, updated+flaggedSeverityOffset)
}

// FallbackSeverity estimates the severity of a message flagged by the
// heuristic filter after a pipeline failure.
func FallbackSeverity(current int) int {
	return min(directory.MaxScore, current+fallbackSeverityOffset)
}

// reportSeverities is checked in order; the first keyword found in the
// lowercased reason wins.
var reportSeverities = []struct {
	keyword  string
	severity int
}{
	{"threat", 95},
	{"hate", 90},
	{"slur", 90},
	{"explicit", 85},
	{"spam", 60},
}

// DefaultReportSeverity applies when the reason names no known category.
const DefaultReportSeverity = 75

// ReportSeverity estimates severity from a report's reason text.
func ReportSeverity(reason string) int {
	lower := strings.ToLower(reason)
	for _, rs := range reportSeverities {
		if strings.Contains(lower, rs.keyword) {
			return rs.severity
		}
	}
	return DefaultReportSeverity
}
