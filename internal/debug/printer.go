package debug

import (
	"encoding/json"
	"log/slog"

	"github.com/pvgupta24/embark/internal/models"
)

// PrintContract prints the contract in JSON format
func PrintContract(contract *models.Contract) {
	// Bytecode is noise in a debug dump
	dump := contract.Clone()
	dump.Code = ""

	jsonData, err := json.MarshalIndent(dump, "", "  ")
	if err != nil {
		slog.Error("Failed to marshal contract to JSON", "error", err)
		return
	}

	slog.Debug("Contract details", "contract", contract.ClassName, "json", string(jsonData))
}

// PrintReceipt prints the deploy receipt in JSON format
func PrintReceipt(receipt *models.Receipt) {
	jsonData, err := json.MarshalIndent(receipt, "", "  ")
	if err != nil {
		slog.Error("Failed to marshal receipt to JSON", "error", err)
		return
	}

	slog.Debug("Receipt details", "contract", receipt.ClassName, "json", string(jsonData))
}
