package models

import "time"

// Receipt is the result of a successful deploy transaction
type Receipt struct {
	ClassName       string `json:"className"`
	ContractAddress string `json:"contractAddress"`
	TransactionHash string `json:"transactionHash"`
	GasUsed         uint64 `json:"gasUsed"`
	BlockNumber     uint64 `json:"blockNumber,omitempty"`
}

// TrackedContract is the recorded deployment of a contract, consulted to
// decide between reuse and redeploy
type TrackedContract struct {
	ClassName       string    `json:"className"`
	Address         string    `json:"address"`
	TransactionHash string    `json:"transactionHash,omitempty"`
	Deployer        string    `json:"deployer,omitempty"`
	Track           bool      `json:"track"`
	DeployedAt      time.Time `json:"deployedAt"`
}
