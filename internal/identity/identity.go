// Package identity resolves an authenticated user id into the store scope
// and role the budget engine acts under. Authentication itself happens
// upstream.
package identity

import (
	"strings"

	"presupuestos/internal/config"
	"presupuestos/internal/core"
)

// Directory answers who may act on which store.
type Directory struct {
	admins       map[string]bool
	stores       map[string]string
	known        []string
	defaultStore string
}

// NewDirectory builds a directory from the access section of the policy.
func NewDirectory(p config.Policy) *Directory {
	d := &Directory{
		admins:       map[string]bool{},
		stores:       map[string]string{},
		known:        append([]string(nil), p.Stores...),
		defaultStore: p.Access.DefaultStore,
	}
	if d.defaultStore == "" {
		d.defaultStore = "Nacional"
	}
	for _, a := range p.Access.Admins {
		d.admins[normalize(a)] = true
	}
	for user, store := range p.Access.Stores {
		d.stores[normalize(user)] = store
	}
	return d
}

func normalize(user string) string { return strings.ToLower(strings.TrimSpace(user)) }

// IsAdmin reports whether user is listed as an administrator.
func (d *Directory) IsAdmin(user string) bool { return d.admins[normalize(user)] }

// HomeStore returns the store user is pinned to.
func (d *Directory) HomeStore(user string) string {
	if s, ok := d.stores[normalize(user)]; ok {
		return s
	}
	return d.defaultStore
}

// Stores lists the configured stores, without TODAS.
func (d *Directory) Stores() []string { return append([]string(nil), d.known...) }

// Resolve returns the scope user acts under. Admins may pick any known store
// or TODAS, defaulting to TODAS. Everybody else is pinned to their home
// store whatever they request.
func (d *Directory) Resolve(user, requested string, year int, view core.View, month core.Month) (core.Scope, error) {
	user = normalize(user)
	if user == "" {
		return core.Scope{}, core.Failf(core.KindValidation, "missing user identity")
	}
	s := core.Scope{User: user, Year: year, View: view, Month: month}
	if s.View == "" {
		s.View = core.Monthly
	}
	if s.View != core.Monthly && s.View != core.Annual {
		return core.Scope{}, core.Failf(core.KindValidation, "unknown view %q", view)
	}

	if !d.IsAdmin(user) {
		s.Store = d.HomeStore(user)
		return s, nil
	}
	s.IsAdmin = true
	requested = strings.TrimSpace(requested)
	if requested == "" || strings.EqualFold(requested, core.AllStores) {
		s.Store = core.AllStores
		return s, nil
	}
	for _, k := range d.known {
		if strings.EqualFold(k, requested) {
			s.Store = k
			return s, nil
		}
	}
	return core.Scope{}, core.Failf(core.KindValidation, "unknown store %q", requested)
}
