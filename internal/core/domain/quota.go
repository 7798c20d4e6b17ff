package domain

import "fmt"

// PlanLimits is the quota bundle for one plan tier.
type PlanLimits struct {
	RequestsPerMinute int   `json:"requests_per_minute"`
	RequestsPerHour   int   `json:"requests_per_hour"`
	MaxUploadBytes    int64 `json:"max_upload_bytes"`
	MaxBatchItems     int   `json:"max_batch_items"`
}

// MaxUploadDisplay renders the upload limit the way error responses show it,
// e.g. "5MB".
func (l PlanLimits) MaxUploadDisplay() string {
	return fmt.Sprintf("%dMB", l.MaxUploadBytes/(1024*1024))
}

// QuotaTable maps plan tiers to limits. It is loaded once at startup and
// read-only afterwards.
type QuotaTable struct {
	plans map[Plan]PlanLimits
}

// DefaultQuotaTable returns the built-in plan limits.
func DefaultQuotaTable() *QuotaTable {
	return &QuotaTable{
		plans: map[Plan]PlanLimits{
			PlanFree: {
				RequestsPerMinute: 10,
				RequestsPerHour:   100,
				MaxUploadBytes:    5 * 1024 * 1024,
				MaxBatchItems:     100,
			},
			PlanDeveloper: {
				RequestsPerMinute: 100,
				RequestsPerHour:   2000,
				MaxUploadBytes:    25 * 1024 * 1024,
				MaxBatchItems:     100,
			},
			PlanBasic: {
				RequestsPerMinute: 100,
				RequestsPerHour:   2000,
				MaxUploadBytes:    25 * 1024 * 1024,
				MaxBatchItems:     100,
			},
			PlanProfessional: {
				RequestsPerMinute: 1000,
				RequestsPerHour:   50000,
				MaxUploadBytes:    100 * 1024 * 1024,
				MaxBatchItems:     100,
			},
			PlanEnterprise: {
				RequestsPerMinute: 10000,
				RequestsPerHour:   500000,
				MaxUploadBytes:    500 * 1024 * 1024,
				MaxBatchItems:     100,
			},
		},
	}
}

// Limits returns the limits for a plan.
// Unknown plans fall back to the most restrictive tier.
func (q *QuotaTable) Limits(plan Plan) PlanLimits {
	if limits, ok := q.plans[plan]; ok {
		return limits
	}
	return q.plans[PlanFree]
}

// Validate checks the table is internally consistent.
func (q *QuotaTable) Validate() error {
	if _, ok := q.plans[PlanFree]; !ok {
		return fmt.Errorf("%w: quota table missing free tier", ErrInvalidInput)
	}
	for plan, limits := range q.plans {
		if limits.RequestsPerMinute <= 0 || limits.RequestsPerHour <= 0 {
			return fmt.Errorf("%w: plan %s has non-positive rate limits", ErrInvalidInput, plan)
		}
		if limits.RequestsPerMinute > limits.RequestsPerHour {
			return fmt.Errorf("%w: plan %s minute limit exceeds hour limit", ErrInvalidInput, plan)
		}
		if limits.MaxUploadBytes <= 0 || limits.MaxBatchItems <= 0 {
			return fmt.Errorf("%w: plan %s has non-positive size limits", ErrInvalidInput, plan)
		}
	}
	return nil
}
