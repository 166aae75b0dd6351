package models

import "github.com/octabyte/mmm-dashboard/enums"

type Project struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organization_id"`
	Name           string `json:"name"`
	Description    string `json:"description,omitempty"`
	CreatedAt      string `json:"created_at,omitempty"`
}

type CreateProjectRequest struct {
	OrganizationID string `json:"organization_id" validate:"required"`
	Name           string `json:"name" validate:"required,max=120"`
	Description    string `json:"description,omitempty"`
}

type Dataset struct {
	ID        string   `json:"id"`
	ProjectID string   `json:"project_id"`
	Name      string   `json:"name"`
	FileName  string   `json:"file_name,omitempty"`
	Status    string   `json:"status,omitempty"`
	RowCount  int      `json:"row_count,omitempty"`
	Columns   []string `json:"columns,omitempty"`
	CreatedAt string   `json:"created_at,omitempty"`
}

type Model struct {
	ID        string          `json:"id"`
	ProjectID string          `json:"project_id"`
	DatasetID string          `json:"dataset_id"`
	Name      string          `json:"name"`
	JobID     string          `json:"job_id,omitempty"`
	Status    enums.JobStatus `json:"status,omitempty"`
	CreatedAt string          `json:"created_at,omitempty"`
}

// ChannelMetrics is one row of trained-model analytics.
type ChannelMetrics struct {
	Channel      string  `json:"channel"`
	Spend        float64 `json:"spend"`
	Contribution float64 `json:"contribution"`
	ROAS         float64 `json:"roas"`
	Efficiency   float64 `json:"efficiency"`
}

type ModelAnalytics struct {
	ModelID  string           `json:"model_id"`
	Channels []ChannelMetrics `json:"channels"`
	Baseline float64          `json:"baseline,omitempty"`
	R2       float64          `json:"r2,omitempty"`
	MAPE     float64          `json:"mape,omitempty"`
}
