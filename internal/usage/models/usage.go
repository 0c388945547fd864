// Package models defines AI usage accounting records.
package models

import (
	"time"

	id "mailroom/pkg/domain"
)

// RetentionDays is how long per-day usage buckets are kept.
const RetentionDays = 90

// Record is the usage of one message's extraction attempts, bucketed by
// calendar day.
type Record struct {
	OrgID            id.OrgID  `json:"org_id"`
	Day              string    `json:"day"` // "2006-01-02", UTC
	Model            string    `json:"model"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	CostUSD          float64   `json:"cost_usd"`
	RecordedAt       time.Time `json:"recorded_at"`
}

// DayBucket formats a timestamp into the UTC day key records accumulate
// under.
func DayBucket(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// MonthBucket formats a timestamp into the UTC month key budget spend
// accumulates under.
func MonthBucket(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// modelRates is USD per million tokens, prompt and completion.
var modelRates = map[string][2]float64{
	"gpt-4o-mini": {0.15, 0.60},
	"gpt-4o":      {2.50, 10.00},
}

// defaultRates covers unknown models conservatively so spend is never
// undercounted.
var defaultRates = [2]float64{2.50, 10.00}

// Cost prices a token count for a model.
func Cost(model string, promptTokens, completionTokens int) float64 {
	rates, ok := modelRates[model]
	if !ok {
		rates = defaultRates
	}
	return float64(promptTokens)/1e6*rates[0] + float64(completionTokens)/1e6*rates[1]
}

// ModelUsage is a per-model line in a summary.
type ModelUsage struct {
	Model            string  `json:"model"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	CostUSD          float64 `json:"cost_usd"`
}

// Summary is an organization's usage over a trailing window.
type Summary struct {
	OrgID            id.OrgID     `json:"org_id"`
	Days             int          `json:"days"`
	PromptTokens     int          `json:"prompt_tokens"`
	CompletionTokens int          `json:"completion_tokens"`
	CostUSD          float64      `json:"cost_usd"`
	ByModel          []ModelUsage `json:"by_model"`
}
