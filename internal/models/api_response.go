package models

import "time"

// ContractResponse represents a contract with its deployment state for API responses
type ContractResponse struct {
	ClassName string `json:"class_name"`
	Filename  string `json:"filename,omitempty"`

	// Deploy options
	Deploy bool   `json:"deploy"`
	Track  bool   `json:"track"`
	Gas    string `json:"gas,omitempty"`

	// Status of the last run
	Status            string        `json:"status"` // deployed, already-deployed, undeployed, error, pending
	DeployedAddress   string        `json:"deployed_address,omitempty"`
	TransactionHash   string        `json:"transaction_hash,omitempty"`
	DeploymentAccount string        `json:"deployment_account,omitempty"`
	RealArgs          []interface{} `json:"real_args,omitempty"`
	Error             string        `json:"error,omitempty"`

	// Tracking record
	Tracked *TrackedContract `json:"tracked,omitempty"`
}

// ContractListResponse represents the list of known contracts
type ContractListResponse struct {
	Contracts []ContractSummary `json:"contracts"`
	Total     int               `json:"total"`
}

// ContractSummary represents a contract summary for list views
type ContractSummary struct {
	ClassName       string     `json:"class_name"`
	Status          string     `json:"status"`
	DeployedAddress string     `json:"deployed_address,omitempty"`
	DeployedAt      *time.Time `json:"deployed_at,omitempty"`
}

// ErrorResponse represents an API error
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}
