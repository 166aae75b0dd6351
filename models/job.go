package models

import "github.com/octabyte/mmm-dashboard/enums"

// TrainingJobRequest is the body of a model-training submission.
type TrainingJobRequest struct {
	DatasetID      string   `json:"dataset_id" validate:"required"`
	Name           string   `json:"name" validate:"required,max=120"`
	SpendColumns   []string `json:"spend_columns" validate:"required,min=1,dive,required"`
	ControlColumns []string `json:"control_columns" validate:"dive,required"`
	DateColumn     string   `json:"date_column" validate:"required"`
	TargetColumn   string   `json:"target_column" validate:"required"`
	Countries      []string `json:"countries" validate:"dive,required"`
	Draws          int      `json:"draws" validate:"required,min=1"`
	Tune           int      `json:"tune" validate:"required,min=1"`
	Chains         int      `json:"chains" validate:"required,min=1,max=16"`
	TestWeeks      int      `json:"test_weeks" validate:"min=0"`
}

type Job struct {
	ID        string          `json:"id"`
	ProjectID string          `json:"project_id,omitempty"`
	ModelID   string          `json:"model_id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Status    enums.JobStatus `json:"status"`
	Progress  float64         `json:"progress,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt string          `json:"created_at,omitempty"`
	UpdatedAt string          `json:"updated_at,omitempty"`
}
