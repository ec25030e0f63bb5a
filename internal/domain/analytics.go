package domain

import "time"

// AnalyticsDaily stores aggregated pipeline metrics for a specific day.
type AnalyticsDaily struct {
	Day               time.Time
	ProjectsCreated   int
	ProjectsCompleted int
	ProjectsFailed    int
	ClipsGenerated    int
	ImagesGenerated   int
	ByCountry         map[string]int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
