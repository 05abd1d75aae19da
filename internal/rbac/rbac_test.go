package rbac

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		role   Role
		action Action
		want   bool
	}{
		{RoleOwner, ActionDelete, true},
		{RoleOwner, ActionManage, true},
		{RoleAdmin, ActionManage, true},
		{RoleAdmin, ActionDelete, false},
		{RoleAdmin, ActionWrite, true},
		{RoleMember, ActionWrite, true},
		{RoleMember, ActionManage, false},
		{RoleObserver, ActionRead, true},
		{RoleObserver, ActionWrite, false},
		{Role("ghost"), ActionRead, false},
	}
	for _, tc := range cases {
		if got := Can(tc.role, tc.action); got != tc.want {
			t.Errorf("Can(%s, %s) = %v, want %v", tc.role, tc.action, got, tc.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	if Normalize("admin") != RoleAdmin {
		t.Fatal("admin should survive normalization")
	}
	if Normalize("superuser") != RoleObserver {
		t.Fatal("unknown roles should degrade to observer")
	}
	if Normalize("") != RoleObserver {
		t.Fatal("empty role should degrade to observer")
	}
}
