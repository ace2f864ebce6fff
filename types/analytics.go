package types

// AnalyticsSummary aggregates chat activity over a trailing window of days.
type AnalyticsSummary struct {
	Days               int              `json:"days"`
	TotalConversations int64            `json:"total_conversations"`
	TotalMessages      int64            `json:"total_messages"`
	TotalQuestions     int64            `json:"total_questions"`
	Departments        map[string]int64 `json:"departments"`
	FeedbackUp         int64            `json:"feedback_up"`
	FeedbackDown       int64            `json:"feedback_down"`
	Daily              []DailyCount     `json:"daily"`
	TopSources         []LabelCount     `json:"top_sources"`
	TopQuestions       []LabelCount     `json:"top_questions"`
	AvgConfidence      float64          `json:"avg_confidence"`
	ErrorRate          float64          `json:"error_rate"`
}

// DailyCount is the number of user questions asked on one calendar day.
type DailyCount struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// LabelCount is a generic ranked tally (source names, repeated questions).
type LabelCount struct {
	Label string `json:"label"`
	Count int64  `json:"count"`
}
