//nolint:revive // types is a common Go package naming convention
package types

// StrategyScore is the area-under-curve score of one strategy's run.
type StrategyScore struct {
	Strategy    string `json:"strategy"`
	DisplayName string `json:"display_name,omitempty"`
	// Value is the mean coverage percent over present steps. Meaningless when NoData.
	Value       float64 `json:"value"`
	Steps       int     `json:"steps"`
	FailedSteps int     `json:"failed_steps"`
	NoData      bool    `json:"no_data"`
}
