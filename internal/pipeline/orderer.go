package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/pvgupta24/embark/internal/events"
	"github.com/pvgupta24/embark/internal/metrics"
	"github.com/pvgupta24/embark/internal/models"
)

// Dependencies returns the names of the contracts c needs deployed first:
// libraries referenced by its bytecode and contracts referenced by "$Name"
// arguments
func Dependencies(c *models.Contract, all []*models.Contract) []string {
	known := make(map[string]*models.Contract, len(all))
	for _, other := range all {
		known[other.ClassName] = other
	}

	deps := make(map[string]bool)
	lowerCode := strings.ToLower(c.Code)
	for _, lib := range all {
		if lib.ClassName == c.ClassName {
			continue
		}
		reference := LinkReference(lib.Filename, lib.ClassName)
		if len(reference) > linkDetectWidth {
			reference = reference[:linkDetectWidth]
		}
		if strings.Contains(lowerCode, strings.ToLower(reference)) ||
			strings.Contains(lowerCode, HashedPlaceholder(lib.Filename, lib.ClassName)) {
			deps[lib.ClassName] = true
		}
	}

	var visit func(arg interface{})
	visit = func(arg interface{}) {
		switch v := arg.(type) {
		case string:
			if len(v) > 1 && v[0] == '$' && !accountRef.MatchString(v) {
				if _, ok := known[v[1:]]; ok && v[1:] != c.ClassName {
					deps[v[1:]] = true
				}
			}
		case []interface{}:
			for _, item := range v {
				visit(item)
			}
		case []string:
			for _, item := range v {
				visit(item)
			}
		case map[string]interface{}:
			for _, item := range v {
				visit(item)
			}
		}
	}
	visit(c.Args)

	result := make([]string, 0, len(deps))
	for name := range deps {
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}

// Order sorts contracts so that every contract comes after its
// dependencies. Independent contracts keep their input order. A dependency
// cycle is an error
func Order(contracts []*models.Contract) ([]*models.Contract, error) {
	const (
		unvisited = iota
		visiting
		done
	)

	byName := make(map[string]*models.Contract, len(contracts))
	for _, c := range contracts {
		byName[c.ClassName] = c
	}

	state := make(map[string]int, len(contracts))
	ordered := make([]*models.Contract, 0, len(contracts))

	var visit func(c *models.Contract, path []string) error
	visit = func(c *models.Contract, path []string) error {
		switch state[c.ClassName] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("dependency cycle: %s -> %s", strings.Join(path, " -> "), c.ClassName)
		}

		state[c.ClassName] = visiting
		for _, dep := range Dependencies(c, contracts) {
			if err := visit(byName[dep], append(path, c.ClassName)); err != nil {
				return err
			}
		}
		state[c.ClassName] = done
		ordered = append(ordered, c)
		return nil
	}

	for _, c := range contracts {
		if err := visit(c, nil); err != nil {
			return nil, err
		}
	}
	return ordered, nil
}

// Summary counts the outcome of a DeployAll run
type Summary struct {
	Deployed        int
	AlreadyDeployed int
	Undeployed      int
	Failed          int
	Receipts        []*models.Receipt
	Errors          map[string]error
}

// DeployAll hands contracts to the deploy:contract command one at a time,
// in dependency order, and continues past per-contract failures
func DeployAll(ctx context.Context, bus *events.Bus, contracts []*models.Contract) (*Summary, error) {
	ordered, err := Order(contracts)
	if err != nil {
		return nil, err
	}

	summary := &Summary{Errors: make(map[string]error)}
	start := time.Now()

	for _, c := range ordered {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		result, err := bus.RequestWait(ctx, CommandDeployContract, c)
		if err != nil {
			summary.Failed++
			summary.Errors[c.ClassName] = err
			slog.Error("Contract deployment failed",
				"contract", c.ClassName,
				"error", err,
			)
			// Continue with the remaining contracts
			continue
		}

		if receipt, ok := result.(*models.Receipt); ok && receipt != nil {
			summary.Receipts = append(summary.Receipts, receipt)
		}
		switch c.Status {
		case models.StatusDeployed:
			summary.Deployed++
		case models.StatusAlreadyDeployed:
			summary.AlreadyDeployed++
		case models.StatusUndeployed:
			summary.Undeployed++
		}
	}

	metrics.TrackedContracts.Set(float64(summary.Deployed + summary.AlreadyDeployed))
	slog.Info("Deployment finished",
		"deployed", summary.Deployed,
		"already_deployed", summary.AlreadyDeployed,
		"undeployed", summary.Undeployed,
		"failed", summary.Failed,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return summary, nil
}
