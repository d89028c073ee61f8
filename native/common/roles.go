package common

import (
	"sort"
	"sync"
)

// Role identifies a named capability grant.
type Role string

const (
	// RoleAdmin may change economy parameters: catalog types, prices,
	// percentages, allowed assets, and schedule timestamps.
	RoleAdmin Role = "admin"
	// RoleConnector may establish referral links on behalf of buyers.
	RoleConnector Role = "connector"
)

// Roles is an enumerable registry of (role, account) grants. Every mutating
// admin operation checks it explicitly; there is no ambient authority.
type Roles struct {
	mu     sync.RWMutex
	grants map[Role]map[[20]byte]struct{}
}

// NewRoles returns an empty registry.
func NewRoles() *Roles {
	return &Roles{grants: make(map[Role]map[[20]byte]struct{})}
}

// Grant records the role for the account. Granting twice is a no-op.
func (r *Roles) Grant(role Role, account [20]byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.grants[role]
	if !ok {
		members = make(map[[20]byte]struct{})
		r.grants[role] = members
	}
	members[account] = struct{}{}
}

// Revoke removes the role from the account if present.
func (r *Roles) Revoke(role Role, account [20]byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if members, ok := r.grants[role]; ok {
		delete(members, account)
	}
}

// HasRole reports whether the account holds the role.
func (r *Roles) HasRole(role Role, account [20]byte) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members, ok := r.grants[role]
	if !ok {
		return false
	}
	_, held := members[account]
	return held
}

// Members returns the accounts holding the role in deterministic order.
func (r *Roles) Members(role Role) [][20]byte {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.grants[role]
	out := make([][20]byte, 0, len(members))
	for account := range members {
		out = append(out, account)
	}
	sort.Slice(out, func(i, j int) bool {
		for k := 0; k < len(out[i]); k++ {
			if out[i][k] != out[j][k] {
				return out[i][k] < out[j][k]
			}
		}
		return false
	})
	return out
}
