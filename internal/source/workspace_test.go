package source

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	admin "google.golang.org/api/admin/directory/v1"
)

type mockDirectory struct {
	users       []*admin.User
	members     map[string][]*admin.Member
	shouldError bool
}

func (m *mockDirectory) Users(ctx context.Context, domain string) ([]*admin.User, error) {
	if m.shouldError {
		return nil, errors.New("mock directory error")
	}
	return m.users, nil
}

func (m *mockDirectory) GroupMembers(ctx context.Context, groupEmail string) ([]*admin.Member, error) {
	if m.shouldError {
		return nil, errors.New("mock directory members error")
	}
	return m.members[groupEmail], nil
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel) // Reduce log noise during tests
	return logger
}

func testUsers() []*admin.User {
	return []*admin.User{
		{Id: "1", PrimaryEmail: "jane@example.com", Name: &admin.UserName{GivenName: "Jane", FamilyName: "Doe"}},
		{Id: "2", PrimaryEmail: "john@example.com", Name: &admin.UserName{GivenName: "John"}},
		{Id: "3", PrimaryEmail: "gone@example.com", Suspended: true},
		{Id: "4", PrimaryEmail: "old@example.com", Archived: true},
	}
}

func TestWorkspaceSource_Fetch(t *testing.T) {
	src := newWorkspaceSource(&mockDirectory{users: testUsers()}, "example.com", nil, testLogger())

	leads, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(leads) != 2 {
		t.Fatalf("Expected 2 active users, got %d", len(leads))
	}

	jane := leads[0]
	if jane.Email != "jane@example.com" {
		t.Errorf("Expected jane@example.com, got %s", jane.Email)
	}
	if jane.ForeignSysPersonID != "1" || jane.ForeignSysType != "CUSTOM" {
		t.Errorf("Expected foreign system id 1/CUSTOM, got %s/%s", jane.ForeignSysPersonID, jane.ForeignSysType)
	}
	if value, _ := jane.Get("LastName"); value != "Doe" {
		t.Errorf("Expected LastName Doe, got %q", value)
	}

	if _, ok := leads[1].Get("LastName"); ok {
		t.Error("Expected no LastName for john")
	}
}

func TestWorkspaceSource_FetchGroups(t *testing.T) {
	dir := &mockDirectory{
		users: testUsers(),
		members: map[string][]*admin.Member{
			"sales@example.com": {
				{Email: "John@example.com", Type: "USER"},
				{Email: "gone@example.com", Type: "USER"},
				{Email: "nested@example.com", Type: "GROUP"},
			},
		},
	}
	src := newWorkspaceSource(dir, "example.com", []string{"sales@example.com"}, testLogger())

	leads, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(leads) != 1 || leads[0].Email != "john@example.com" {
		t.Fatalf("Expected only john@example.com, got %+v", leads)
	}
}

func TestWorkspaceSource_Error(t *testing.T) {
	src := newWorkspaceSource(&mockDirectory{shouldError: true}, "example.com", nil, testLogger())

	if _, err := src.Fetch(context.Background()); err == nil {
		t.Error("Expected error, got nil")
	}
}
