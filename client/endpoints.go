package client

import (
	"context"
	"io"
	"net/http"
	"net/url"

	"github.com/octabyte/mmm-dashboard/models"
)

// Org-scoped calls carry the organization id the caller captured when the
// call was initiated, in the query string so it survives the proxy.

func scoped(orgID string, segments ...string) string {
	path := ""
	for _, s := range segments {
		path += "/" + url.PathEscape(s)
	}
	return path + "?" + url.Values{"org_id": {orgID}}.Encode()
}

// validated checks v before any network call, reporting failures as 422.
func (c *Client) validated(v interface{}) error {
	if err := c.validate.Struct(v); err != nil {
		return &Error{Status: http.StatusUnprocessableEntity, Detail: err.Error()}
	}
	return nil
}

func (c *Client) Me(ctx context.Context) (*models.User, error) {
	return Request[models.User](ctx, c, "/me", RequestOptions{})
}

func (c *Client) CreateOrganization(ctx context.Context, in models.CreateOrganizationRequest) (*models.Organization, error) {
	if err := c.validated(in); err != nil {
		return nil, err
	}
	return Request[models.Organization](ctx, c, "/organizations", RequestOptions{Method: http.MethodPost, Body: in})
}

func (c *Client) ListProjects(ctx context.Context, orgID string) ([]models.Project, error) {
	out, err := Request[[]models.Project](ctx, c, scoped(orgID, "projects"), RequestOptions{})
	if err != nil {
		return nil, err
	}
	return *out, nil
}

func (c *Client) CreateProject(ctx context.Context, in models.CreateProjectRequest) (*models.Project, error) {
	if err := c.validated(in); err != nil {
		return nil, err
	}
	return Request[models.Project](ctx, c, scoped(in.OrganizationID, "projects"), RequestOptions{Method: http.MethodPost, Body: in})
}

func (c *Client) DeleteProject(ctx context.Context, orgID, projectID string) error {
	_, err := Request[struct{}](ctx, c, scoped(orgID, "projects", projectID), RequestOptions{Method: http.MethodDelete})
	return err
}

func (c *Client) ListDatasets(ctx context.Context, orgID, projectID string) ([]models.Dataset, error) {
	out, err := Request[[]models.Dataset](ctx, c, scoped(orgID, "projects", projectID, "datasets"), RequestOptions{})
	if err != nil {
		return nil, err
	}
	return *out, nil
}

// UploadDataset sends a CSV/XLSX file as multipart form data.
func (c *Client) UploadDataset(ctx context.Context, orgID, projectID, name, fileName string, file io.Reader) (*models.Dataset, error) {
	return UploadFile[models.Dataset](ctx, c, scoped(orgID, "projects", projectID, "datasets"), UploadForm{
		Fields: map[string]string{"name": name},
		Files:  []FormFile{{Field: "file", FileName: fileName, Reader: file}},
	})
}

func (c *Client) DeleteDataset(ctx context.Context, orgID, datasetID string) error {
	_, err := Request[struct{}](ctx, c, scoped(orgID, "datasets", datasetID), RequestOptions{Method: http.MethodDelete})
	return err
}

func (c *Client) ListModels(ctx context.Context, orgID, projectID string) ([]models.Model, error) {
	out, err := Request[[]models.Model](ctx, c, scoped(orgID, "projects", projectID, "models"), RequestOptions{})
	if err != nil {
		return nil, err
	}
	return *out, nil
}

func (c *Client) GetModel(ctx context.Context, orgID, modelID string) (*models.Model, error) {
	return Request[models.Model](ctx, c, scoped(orgID, "models", modelID), RequestOptions{})
}

func (c *Client) GetModelAnalytics(ctx context.Context, orgID, modelID string) (*models.ModelAnalytics, error) {
	return Request[models.ModelAnalytics](ctx, c, scoped(orgID, "models", modelID, "analytics"), RequestOptions{})
}

func (c *Client) SubmitTrainingJob(ctx context.Context, orgID, projectID string, in models.TrainingJobRequest) (*models.Job, error) {
	if err := c.validated(in); err != nil {
		return nil, err
	}
	return Request[models.Job](ctx, c, scoped(orgID, "projects", projectID, "jobs"), RequestOptions{Method: http.MethodPost, Body: in})
}

func (c *Client) ListJobs(ctx context.Context, orgID, projectID string) ([]models.Job, error) {
	out, err := Request[[]models.Job](ctx, c, scoped(orgID, "projects", projectID, "jobs"), RequestOptions{})
	if err != nil {
		return nil, err
	}
	return *out, nil
}

func (c *Client) GetJob(ctx context.Context, orgID, jobID string) (*models.Job, error) {
	return Request[models.Job](ctx, c, scoped(orgID, "jobs", jobID), RequestOptions{})
}

func (c *Client) CancelJob(ctx context.Context, orgID, jobID string) (*models.Job, error) {
	return Request[models.Job](ctx, c, scoped(orgID, "jobs", jobID, "cancel"), RequestOptions{Method: http.MethodPost})
}

func (c *Client) RunHistoricalOptimization(ctx context.Context, orgID string, in models.HistoricalOptimizationRequest) (*models.OptimizationResult, error) {
	return c.optimize(ctx, orgID, in.ModelID, "historical", in)
}

func (c *Client) RunBudgetOptimization(ctx context.Context, orgID string, in models.BudgetOptimizationRequest) (*models.OptimizationResult, error) {
	return c.optimize(ctx, orgID, in.ModelID, "budget", in)
}

func (c *Client) RunPeriodComparison(ctx context.Context, orgID string, in models.PeriodComparisonRequest) (*models.OptimizationResult, error) {
	return c.optimize(ctx, orgID, in.ModelID, "compare", in)
}

func (c *Client) optimize(ctx context.Context, orgID, modelID, kind string, in interface{}) (*models.OptimizationResult, error) {
	if err := c.validated(in); err != nil {
		return nil, err
	}
	return Request[models.OptimizationResult](ctx, c, scoped(orgID, "models", modelID, "optimize", kind), RequestOptions{Method: http.MethodPost, Body: in})
}

func (c *Client) SaveScenario(ctx context.Context, orgID string, in models.Scenario) (*models.Scenario, error) {
	if err := c.validated(in); err != nil {
		return nil, err
	}
	return Request[models.Scenario](ctx, c, scoped(orgID, "models", in.ModelID, "scenarios"), RequestOptions{Method: http.MethodPost, Body: in})
}

func (c *Client) ListScenarios(ctx context.Context, orgID, modelID string) ([]models.Scenario, error) {
	out, err := Request[[]models.Scenario](ctx, c, scoped(orgID, "models", modelID, "scenarios"), RequestOptions{})
	if err != nil {
		return nil, err
	}
	return *out, nil
}
