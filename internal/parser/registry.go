package parser

import (
	"fmt"

	"github.com/supertypeai/sectors-corporate-actions/internal/models"
)

// Registry maps every action type to its parser.
type Registry struct {
	parsers map[models.ActionType]Parser
}

// NewRegistry builds a TableParser for every action type. It panics if an action type
// has no layout, so adding a type without a parser fails at start-up.
func NewRegistry(selector string) *Registry {
	r := &Registry{parsers: make(map[models.ActionType]Parser, len(layouts))}
	for _, at := range models.AllActionTypes() {
		l, ok := layouts[at]
		if !ok {
			panic(fmt.Sprintf("parser: no layout for action type %s", at))
		}
		r.parsers[at] = NewTableParser(l, selector)
	}
	return r
}

// For returns the parser for at.
func (r *Registry) For(at models.ActionType) (Parser, error) {
	p, ok := r.parsers[at]
	if !ok {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownActionType, at)
	}
	return p, nil
}
