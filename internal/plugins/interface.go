package plugins

import (
	"context"

	"github.com/pvgupta24/embark/internal/models"
)

// Hook points run by the deployment pipeline
const (
	EventArguments    = "deploy:contract:arguments"
	EventShouldDeploy = "deploy:contract:shouldDeploy"
	EventBeforeDeploy = "deploy:contract:beforeDeploy"
	EventDeployed     = "deploy:contract:deployed"
)

// Params is the mutable context handed to every action of a hook point
// Contract is a copy owned by the hook run; the pipeline keeps the edits
// only if every action returns before its deadline. ShouldDeploy is only
// read after EventShouldDeploy
type Params struct {
	Contract     *models.Contract
	ShouldDeploy bool
}

// Action defines the interface that all plugin actions must implement
type Action interface {
	// Run handles one hook invocation
	// Returning an error is logged and never stops the remaining actions
	Run(ctx context.Context, params *Params) error

	// Name returns the action name for logging
	Name() string
}

// ActionFunc adapts a function to Action
type ActionFunc struct {
	ActionName string
	Fn         func(ctx context.Context, params *Params) error
}

// Run calls Fn
func (a ActionFunc) Run(ctx context.Context, params *Params) error {
	return a.Fn(ctx, params)
}

// Name returns ActionName
func (a ActionFunc) Name() string {
	return a.ActionName
}
