// Package actions contains the automation action implementations and the
// registry that maps action types to them.
package actions

import (
	"context"
	"fmt"

	"github.com/Ramsey-B/clover/pkg/models"
)

// ErrUnsupportedAction is returned when a rule references an action type
// the registry does not know about
var ErrUnsupportedAction = fmt.Errorf("unsupported action type")

// Action executes one automation action for a matched rule
type Action interface {
	Type() models.ActionType
	Execute(ctx context.Context, rule *models.AutomationRule, data *models.TriggerData) (map[string]any, error)
}

// Registry holds the available actions keyed by action type
type Registry struct {
	actions map[models.ActionType]Action
}

// NewRegistry creates an empty action registry
func NewRegistry() *Registry {
	return &Registry{
		actions: make(map[models.ActionType]Action),
	}
}

// Register adds an action to the registry, replacing any existing action
// of the same type
func (r *Registry) Register(action Action) {
	r.actions[action.Type()] = action
}

// Get returns the action for actionType
func (r *Registry) Get(actionType models.ActionType) (Action, error) {
	action, ok := r.actions[actionType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAction, actionType)
	}
	return action, nil
}

// Types returns the registered action types
func (r *Registry) Types() []models.ActionType {
	types := make([]models.ActionType, 0, len(r.actions))
	for t := range r.actions {
		types = append(types, t)
	}
	return types
}
