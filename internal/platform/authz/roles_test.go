package authz

import "testing"

func TestRoleHierarchy_TotalOrder(t *testing.T) {
	ordered := []Role{RoleViewer, RoleSecretary, RoleDoctor, RoleAdmin, RoleOwner}
	for i := 1; i < len(ordered); i++ {
		if ordered[i].Level() <= ordered[i-1].Level() {
			t.Fatalf("%s (level %d) should outrank %s (level %d)",
				ordered[i], ordered[i].Level(), ordered[i-1], ordered[i-1].Level())
		}
	}
}

func TestRoleHierarchy_Monotonicity(t *testing.T) {
	// Any operation permitted for a role must be permitted for every role
	// at or above it.
	ladder := []Role{RoleViewer, RoleSecretary, RoleDoctor, RoleAdmin, RoleOwner}
	for _, min := range ladder {
		for _, caller := range ladder {
			got := caller.AtLeast(min)
			want := caller.Level() >= min.Level()
			if got != want {
				t.Errorf("%s.AtLeast(%s) = %v, want %v", caller, min, got, want)
			}
		}
	}
}

func TestRoleSuperAdmin_OffLadder(t *testing.T) {
	if RoleSuperAdmin.Level() != 0 {
		t.Fatalf("SUPER_ADMIN has ladder level %d, want 0", RoleSuperAdmin.Level())
	}
	if RoleSuperAdmin.AtLeast(RoleViewer) {
		t.Fatal("SUPER_ADMIN must not satisfy tenant ladder requirements implicitly")
	}
	if !RoleSuperAdmin.Valid() {
		t.Fatal("SUPER_ADMIN should be a valid role")
	}
}

func TestParseRole(t *testing.T) {
	cases := []struct {
		in      string
		want    Role
		wantErr bool
	}{
		{"DOCTOR", RoleDoctor, false},
		{"doctor", RoleDoctor, false},
		{"  owner ", RoleOwner, false},
		{"SUPER_ADMIN", RoleSuperAdmin, false},
		{"janitor", "", true},
		{"", "", true},
	}
	for _, tc := range cases {
		got, err := ParseRole(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseRole(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseRole(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseRole(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestMinRequired(t *testing.T) {
	if got := minRequired([]Role{RoleDoctor, RoleOwner}); got != RoleDoctor {
		t.Fatalf("minRequired = %s, want DOCTOR", got)
	}
	if got := minRequired([]Role{RoleOwner}); got != RoleOwner {
		t.Fatalf("minRequired = %s, want OWNER", got)
	}
	if got := minRequired(nil); got != "" {
		t.Fatalf("minRequired(nil) = %s, want empty", got)
	}
}
