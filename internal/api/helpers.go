package api

import (
	"context"

	"github.com/pvgupta24/embark/internal/models"
)

// statusPending is reported for contracts the run has not reached yet
const statusPending = "pending"

// ContractStatus returns the API status of a contract
func ContractStatus(c *models.Contract) string {
	if c.Status == models.StatusPending {
		return statusPending
	}
	return string(c.Status)
}

// BuildContractSummary creates a summary for list views
func BuildContractSummary(c *models.Contract, tracked *models.TrackedContract) models.ContractSummary {
	summary := models.ContractSummary{
		ClassName:       c.ClassName,
		Status:          ContractStatus(c),
		DeployedAddress: c.DeployedAddress,
	}

	// Fall back to the recorded deployment of an earlier run
	if tracked != nil {
		if summary.DeployedAddress == "" {
			summary.DeployedAddress = tracked.Address
		}
		deployedAt := tracked.DeployedAt
		summary.DeployedAt = &deployedAt
	}

	return summary
}

// BuildContractResponse creates a full contract response
func BuildContractResponse(c *models.Contract, tracked *models.TrackedContract) *models.ContractResponse {
	response := &models.ContractResponse{
		ClassName:         c.ClassName,
		Filename:          c.Filename,
		Deploy:            !c.Skipped(),
		Track:             c.Tracked(),
		Status:            ContractStatus(c),
		DeployedAddress:   c.DeployedAddress,
		TransactionHash:   c.TransactionHash,
		DeploymentAccount: c.DeploymentAccount,
		RealArgs:          c.RealArgs,
		Error:             c.Error,
		Tracked:           tracked,
	}

	if !c.Gas.IsZero() {
		response.Gas = c.Gas.String()
	}

	return response
}

// trackedByName indexes the tracking records by class name
func (s *Server) trackedByName(ctx context.Context) (map[string]*models.TrackedContract, error) {
	list, err := s.repository.ListTracked(ctx)
	if err != nil {
		return nil, err
	}
	result := make(map[string]*models.TrackedContract, len(list))
	for _, t := range list {
		result[t.ClassName] = t
	}
	return result, nil
}
