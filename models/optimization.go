package models

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/octabyte/mmm-dashboard/enums"
	"github.com/tidwall/gjson"
)

type HistoricalOptimizationRequest struct {
	ModelID   string `json:"model_id" validate:"required"`
	StartDate string `json:"start_date" validate:"required"`
	EndDate   string `json:"end_date" validate:"required"`
}

type BudgetOptimizationRequest struct {
	ModelID      string             `json:"model_id" validate:"required"`
	TotalBudget  float64            `json:"total_budget" validate:"gt=0"`
	Weeks        int                `json:"weeks" validate:"required,min=1"`
	ChannelLimit map[string]float64 `json:"channel_limits,omitempty"`
}

type PeriodComparisonRequest struct {
	ModelID     string `json:"model_id" validate:"required"`
	BaseStart   string `json:"base_start" validate:"required"`
	BaseEnd     string `json:"base_end" validate:"required"`
	CompareFrom string `json:"compare_start" validate:"required"`
	CompareTo   string `json:"compare_end" validate:"required"`
}

type ChannelAllocation struct {
	Channel       string  `json:"channel"`
	CurrentSpend  float64 `json:"current_spend"`
	OptimalSpend  float64 `json:"optimal_spend"`
	ExpectedSales float64 `json:"expected_sales"`
}

type HistoricalResult struct {
	Allocations   []ChannelAllocation `json:"allocations"`
	ActualSales   float64             `json:"actual_sales"`
	OptimalSales  float64             `json:"optimal_sales"`
	UpliftPercent float64             `json:"uplift_percent"`
}

type BudgetResult struct {
	Allocations   []ChannelAllocation `json:"allocations"`
	TotalBudget   float64             `json:"total_budget"`
	ExpectedSales float64             `json:"expected_sales"`
	ExpectedROAS  float64             `json:"expected_roas"`
}

type PeriodDelta struct {
	Channel      string  `json:"channel"`
	BaseSpend    float64 `json:"base_spend"`
	CompareSpend float64 `json:"compare_spend"`
	ContribDelta float64 `json:"contribution_delta"`
}

type ComparisonResult struct {
	Deltas     []PeriodDelta `json:"deltas"`
	BaseSales  float64       `json:"base_sales"`
	CompSales  float64       `json:"compare_sales"`
	SalesDelta float64       `json:"sales_delta"`
}

// OptimizationResult is a tagged union keyed by Type; exactly one of the
// payload pointers is set after decoding.
type OptimizationResult struct {
	Type       enums.ScenarioType
	Historical *HistoricalResult
	Budget     *BudgetResult
	Comparison *ComparisonResult
}

func (r *OptimizationResult) UnmarshalJSON(data []byte) error {
	kind := enums.ScenarioType(gjson.GetBytes(data, "type").String())
	payload := []byte(gjson.GetBytes(data, "result").Raw)
	if len(payload) == 0 {
		payload = data
	}

	*r = OptimizationResult{Type: kind}
	switch kind {
	case enums.ScenarioHistorical:
		r.Historical = &HistoricalResult{}
		return json.Unmarshal(payload, r.Historical)
	case enums.ScenarioBudget:
		r.Budget = &BudgetResult{}
		return json.Unmarshal(payload, r.Budget)
	case enums.ScenarioComparison:
		r.Comparison = &ComparisonResult{}
		return json.Unmarshal(payload, r.Comparison)
	default:
		return fmt.Errorf("unknown optimization result type %q", kind)
	}
}

func (r OptimizationResult) MarshalJSON() ([]byte, error) {
	var payload interface{}
	switch r.Type {
	case enums.ScenarioHistorical:
		payload = r.Historical
	case enums.ScenarioBudget:
		payload = r.Budget
	case enums.ScenarioComparison:
		payload = r.Comparison
	default:
		return nil, fmt.Errorf("unknown optimization result type %q", r.Type)
	}
	return json.Marshal(struct {
		Type   enums.ScenarioType `json:"type"`
		Result interface{}        `json:"result"`
	}{r.Type, payload})
}

type Scenario struct {
	ID        string             `json:"id,omitempty"`
	ModelID   string             `json:"model_id" validate:"required"`
	Name      string             `json:"name" validate:"required,max=120"`
	Result    OptimizationResult `json:"result"`
	CreatedAt string             `json:"created_at,omitempty"`
}
