package cli

import (
	"path/filepath"
	"testing"

	"github.com/formwright/formwright/internal/auth"
)

func resetCreateUserFlags(t *testing.T) {
	t.Helper()
	createUserUsername = ""
	createUserEmail = ""
	createUserEmployeeID = ""
	createUserMobile = ""
	createUserPassword = ""
	createUserType = "employee"
	createUserRoles = nil
}

func TestRunCreateUser_CreatesFirstUser(t *testing.T) {
	t.Setenv("FORMWRIGHT_DATABASE_PATH", filepath.Join(t.TempDir(), "test.db"))
	resetCreateUserFlags(t)

	createUserEmail = "owner@example.com"
	createUserPassword = "password123"

	if err := runCreateUser(createUserCmd, nil); err != nil {
		t.Fatalf("runCreateUser failed: %v", err)
	}
}

func TestRunCreateUser_InvalidType(t *testing.T) {
	t.Setenv("FORMWRIGHT_DATABASE_PATH", filepath.Join(t.TempDir(), "test.db"))
	resetCreateUserFlags(t)

	createUserEmail = "owner@example.com"
	createUserPassword = "password123"
	createUserType = "bogus"

	if err := runCreateUser(createUserCmd, nil); err == nil {
		t.Fatal("expected an error for an invalid --type")
	}
}

func TestRunCreateUser_InvalidRole(t *testing.T) {
	t.Setenv("FORMWRIGHT_DATABASE_PATH", filepath.Join(t.TempDir(), "test.db"))
	resetCreateUserFlags(t)

	createUserEmail = "owner@example.com"
	createUserPassword = "password123"
	createUserRoles = []string{"not-a-role"}

	if err := runCreateUser(createUserCmd, nil); err == nil {
		t.Fatal("expected an error for an invalid role")
	}
}

func TestRunCreateUser_GeneralUserByMobile(t *testing.T) {
	t.Setenv("FORMWRIGHT_DATABASE_PATH", filepath.Join(t.TempDir(), "test.db"))
	resetCreateUserFlags(t)

	createUserMobile = "+15551234567"
	createUserType = "general"

	if err := runCreateUser(createUserCmd, nil); err != nil {
		t.Fatalf("runCreateUser failed: %v", err)
	}
}

func TestRolesToStrings(t *testing.T) {
	got := rolesToStrings([]auth.Role{auth.RoleAdmin, auth.RoleEditor})
	if len(got) != 2 || got[0] != "admin" || got[1] != "editor" {
		t.Errorf("unexpected result: %v", got)
	}
}
