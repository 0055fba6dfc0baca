package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"sync"

	"github.com/pvgupta24/embark/internal/contracts"
	"github.com/pvgupta24/embark/internal/ens"
	"github.com/pvgupta24/embark/internal/models"
)

// ZeroAddress stands in for contracts referenced before they have an address
const ZeroAddress = "0x0000000000000000000000000000000000000000"

var accountRef = regexp.MustCompile(`\$accounts\[([0-9]+)]`)

// suppliedArguments turns positional or named args into a positional list
// following the constructor declaration
func (d *Deployer) suppliedArguments(c *models.Contract) []interface{} {
	switch args := c.Args.(type) {
	case nil:
		return nil
	case []interface{}:
		return append([]interface{}(nil), args...)
	case []string:
		out := make([]interface{}, len(args))
		for i, a := range args {
			out[i] = a
		}
		return out
	case map[string]interface{}:
		ctor := c.Constructor()
		if ctor == nil {
			return nil
		}
		out := make([]interface{}, 0, len(ctor.Inputs))
		for _, input := range ctor.Inputs {
			value, ok := args[input.Name]
			if !ok || value == nil || value == "" {
				d.logger.Error(fmt.Sprintf("%s has not been defined for %s constructor", input.Name, c.ClassName),
					"contract", c.ClassName,
					"input", input.Name,
				)
				value = ""
			}
			out = append(out, value)
		}
		return out
	default:
		d.logger.Warn("Ignoring contract arguments of unexpected type",
			"contract", c.ClassName,
			"type", fmt.Sprintf("%T", c.Args),
		)
		return nil
	}
}

// determineArguments resolves every argument concurrently and waits for
// all of them. The first failing argument (by position) wins
func (d *Deployer) determineArguments(ctx context.Context, c *models.Contract, accounts []string) ([]interface{}, error) {
	args := d.suppliedArguments(c)
	resolved := make([]interface{}, len(args))
	errs := make([]error, len(args))

	var wg sync.WaitGroup
	for i, arg := range args {
		wg.Add(1)
		go func(i int, arg interface{}) {
			defer wg.Done()
			if list, ok := arg.([]interface{}); ok {
				resolved[i], errs[i] = d.resolveList(ctx, list, accounts)
				return
			}
			resolved[i], errs[i] = d.resolveArg(ctx, arg, accounts)
		}(i, arg)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return resolved, nil
}

// resolveList resolves array elements concurrently with the scalar rules
func (d *Deployer) resolveList(ctx context.Context, list []interface{}, accounts []string) ([]interface{}, error) {
	out := make([]interface{}, len(list))
	errs := make([]error, len(list))

	var wg sync.WaitGroup
	for i, item := range list {
		wg.Add(1)
		go func(i int, item interface{}) {
			defer wg.Done()
			out[i], errs[i] = d.resolveArg(ctx, item, accounts)
		}(i, item)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (d *Deployer) resolveArg(ctx context.Context, arg interface{}, accounts []string) (interface{}, error) {
	s, ok := arg.(string)
	if !ok {
		return arg, nil
	}

	switch {
	case len(s) > 0 && s[0] == '$':
		if match := accountRef.FindStringSubmatch(s); match != nil {
			index, err := strconv.Atoi(match[1])
			if err != nil || index >= len(accounts) {
				return nil, fmt.Errorf("%w: no corresponding account at index %s", ErrNoSuchAccount, match[1])
			}
			return accounts[index], nil
		}
		return d.contractAddress(ctx, s[1:]), nil

	case ens.IsName(s):
		result, err := d.request(ctx, ens.TopicResolve, s)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", s, err)
		}
		addr, ok := result.(string)
		if !ok {
			return nil, fmt.Errorf("failed to resolve %s: unexpected answer %T", s, result)
		}
		return addr, nil
	}

	return s, nil
}

// contractAddress returns the address of another contract, or the zero
// address when it has none yet so ABI encoding stays well formed
func (d *Deployer) contractAddress(ctx context.Context, name string) string {
	result, err := d.request(ctx, contracts.TopicContract, name)
	if err != nil {
		d.logger.Warn("Referenced contract not found, using the zero address",
			"contract", name,
			"error", err,
		)
		return ZeroAddress
	}

	ref, ok := result.(*models.Contract)
	if !ok {
		return ZeroAddress
	}
	if addr := ref.Snapshot().DeployedAddress; addr != "" {
		return addr
	}
	return ZeroAddress
}
