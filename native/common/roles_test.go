package common

import "testing"

func roleAddr(b byte) [20]byte {
	var a [20]byte
	a[19] = b
	return a
}

func TestRolesGrantRevoke(t *testing.T) {
	roles := NewRoles()
	admin, connector := roleAddr(1), roleAddr(2)

	if roles.HasRole(RoleAdmin, admin) {
		t.Fatalf("fresh registry must grant nothing")
	}
	roles.Grant(RoleAdmin, admin)
	roles.Grant(RoleConnector, connector)
	if !roles.HasRole(RoleAdmin, admin) {
		t.Fatalf("admin grant missing")
	}
	if roles.HasRole(RoleAdmin, connector) {
		t.Fatalf("roles must not leak across accounts")
	}
	if roles.HasRole(RoleConnector, admin) {
		t.Fatalf("roles must not leak across roles")
	}

	roles.Revoke(RoleAdmin, admin)
	if roles.HasRole(RoleAdmin, admin) {
		t.Fatalf("revoked role still active")
	}
	// revoking an absent grant is a no-op
	roles.Revoke(RoleAdmin, admin)
}

func TestRolesMembersSorted(t *testing.T) {
	roles := NewRoles()
	roles.Grant(RoleAdmin, roleAddr(3))
	roles.Grant(RoleAdmin, roleAddr(1))
	roles.Grant(RoleAdmin, roleAddr(2))
	roles.Grant(RoleAdmin, roleAddr(2))

	members := roles.Members(RoleAdmin)
	if len(members) != 3 {
		t.Fatalf("members: %d", len(members))
	}
	for i := 0; i+1 < len(members); i++ {
		if string(members[i][:]) >= string(members[i+1][:]) {
			t.Fatalf("members not sorted at %d", i)
		}
	}
	if got := roles.Members(RoleConnector); len(got) != 0 {
		t.Fatalf("unexpected connector members: %d", len(got))
	}
}
