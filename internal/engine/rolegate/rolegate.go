// Package rolegate answers whether a role may invoke a transition from a
// state. The table is built once from the transition catalog and is immutable
// afterwards, so it is safe to share across goroutines without locking.
package rolegate

import (
	"caseline/internal/config"
	"caseline/internal/domain"
)

type key struct {
	role       string
	from       string
	transition string
}

type Gate struct {
	allowed map[key]bool
	edges   map[string]string
}

// New builds the gate from the static catalog.
func New(cfg *config.Config) Gate {
	g := Gate{
		allowed: make(map[key]bool),
		edges:   make(map[string]string),
	}
	for _, t := range cfg.Workflow.Transitions {
		g.edges[t.Name] = t.From
		for _, role := range t.Roles {
			g.allowed[key{role: role, from: t.From, transition: t.Name}] = true
		}
	}
	return g
}

// IsAuthorized fails closed: any triple not listed in the catalog is denied.
// Administrator may invoke every listed edge; it bypasses only the role check,
// never the existence of the edge itself.
func (g Gate) IsAuthorized(role, fromState, transitionName string) bool {
	if role == domain.RoleAdministrator {
		return g.edges[transitionName] == fromState
	}
	return g.allowed[key{role: role, from: fromState, transition: transitionName}]
}
