package engagement

import "math"

// HealthStatus is the organizer-facing headline for a session.
type HealthStatus string

const (
	HealthExcellent      HealthStatus = "excellent"
	HealthGood           HealthStatus = "good"
	HealthNeedsAttention HealthStatus = "needs_attention"
	HealthCritical       HealthStatus = "critical"
)

// HealthSummary pairs the status with a short label.
type HealthSummary struct {
	Status HealthStatus `json:"status"`
	Label  string       `json:"label"`
}

// Summarize condenses metrics into a headline status.
func Summarize(m Metrics) HealthSummary {
	switch {
	case m.SessionHealth >= 80 && m.ParticipationRate >= 70:
		return HealthSummary{Status: HealthExcellent, Label: "Excellent engagement"}
	case m.SessionHealth >= 60 && m.ParticipationRate >= 50:
		return HealthSummary{Status: HealthGood, Label: "Good engagement"}
	case m.SessionHealth >= 40 || m.ParticipationRate >= 30:
		return HealthSummary{Status: HealthNeedsAttention, Label: "Needs attention"}
	default:
		return HealthSummary{Status: HealthCritical, Label: "Critical, act now"}
	}
}

// RadarState places a participant on the organizer's engagement radar.
type RadarState string

const (
	RadarSuperstar RadarState = "superstar"
	RadarActive    RadarState = "active"
	RadarAtRisk    RadarState = "at_risk"
	RadarIdle      RadarState = "idle"
)

// Radar is a participant's radar position.
type Radar struct {
	ParticipantID string     `json:"participant_id"`
	Engagement    float64    `json:"engagement"`
	State         RadarState `json:"state"`
}

// RadarStatus maps an analysis onto the radar. Engagement is the total score
// doubled and capped at 100.
func RadarStatus(a ParticipantAnalysis) Radar {
	engagement := math.Min(a.TotalScore*2, 100)
	r := Radar{ParticipantID: a.ParticipantID, Engagement: math.Max(engagement, 0)}
	switch {
	case engagement > 80:
		r.State = RadarSuperstar
	case a.RecentActivityCount > 2:
		r.State = RadarActive
	case a.TotalActivityCount > 0 && a.RecentActivityCount == 0:
		r.State = RadarAtRisk
	default:
		r.State = RadarIdle
	}
	return r
}
