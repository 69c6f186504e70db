package taskname

const (
	// Rollup tasks
	SummaryRefresh    = "rollup:summary:refresh"
	SummaryRefreshAll = "rollup:summary:refresh_all"
)
