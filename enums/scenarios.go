package enums

type ScenarioType string

const (
	ScenarioHistorical ScenarioType = "historical"
	ScenarioBudget     ScenarioType = "budget"
	ScenarioComparison ScenarioType = "comparison"
)
