package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2/google"
	admin "google.golang.org/api/admin/directory/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/gobeyondidentity/marketo-sync/internal/marketo"
)

// foreignSysType marks leads whose ForeignSysPersonID is a Workspace user id
const foreignSysType = "CUSTOM"

// directory is the part of the Admin SDK the workspace source reads
type directory interface {
	Users(ctx context.Context, domain string) ([]*admin.User, error)
	GroupMembers(ctx context.Context, groupEmail string) ([]*admin.Member, error)
}

// WorkspaceSource reads leads from Google Workspace directory users
type WorkspaceSource struct {
	dir    directory
	domain string
	groups []string
	logger logrus.FieldLogger
}

// NewWorkspaceSource creates a Workspace source using a service account with
// domain-wide delegation impersonating superAdminEmail. When groups is not
// empty only their members become leads.
func NewWorkspaceSource(serviceAccountKeyPath, domain, superAdminEmail string, groups []string, logger logrus.FieldLogger) (*WorkspaceSource, error) {
	ctx := context.Background()

	credentialsJSON, err := os.ReadFile(serviceAccountKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read service account file: %w", err)
	}

	jwtConfig, err := google.JWTConfigFromJSON(
		credentialsJSON,
		admin.AdminDirectoryUserReadonlyScope,
		admin.AdminDirectoryGroupMemberReadonlyScope,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWT config: %w", err)
	}
	jwtConfig.Subject = superAdminEmail

	service, err := admin.NewService(ctx, option.WithHTTPClient(jwtConfig.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("failed to create Admin SDK service: %w", err)
	}

	return newWorkspaceSource(&adminDirectory{service: service}, domain, groups, logger), nil
}

func newWorkspaceSource(dir directory, domain string, groups []string, logger logrus.FieldLogger) *WorkspaceSource {
	return &WorkspaceSource{
		dir:    dir,
		domain: domain,
		groups: groups,
		logger: logger,
	}
}

// Name describes the source for logs and run history
func (s *WorkspaceSource) Name() string {
	if len(s.groups) > 0 {
		return fmt.Sprintf("google_workspace:%s (%s)", s.domain, strings.Join(s.groups, ", "))
	}
	return "google_workspace:" + s.domain
}

// Fetch lists active directory users and maps them to leads
func (s *WorkspaceSource) Fetch(ctx context.Context) ([]*marketo.Lead, error) {
	users, err := s.dir.Users(ctx, s.domain)
	if err != nil {
		return nil, err
	}

	var members map[string]bool
	if len(s.groups) > 0 {
		members, err = s.groupMembers(ctx)
		if err != nil {
			return nil, err
		}
	}

	var leads []*marketo.Lead
	for _, user := range users {
		if user.Suspended || user.Archived {
			s.logger.Debugf("Skipping inactive user %s", user.PrimaryEmail)
			continue
		}
		if members != nil && !members[strings.ToLower(user.PrimaryEmail)] {
			continue
		}
		leads = append(leads, userToLead(user))
	}

	s.logger.Infof("Found %d active users in %s", len(leads), s.Name())
	return leads, nil
}

func (s *WorkspaceSource) groupMembers(ctx context.Context) (map[string]bool, error) {
	members := make(map[string]bool)
	for _, group := range s.groups {
		groupMembers, err := s.dir.GroupMembers(ctx, group)
		if err != nil {
			return nil, err
		}
		for _, member := range groupMembers {
			if member.Type != "" && member.Type != "USER" {
				continue
			}
			members[strings.ToLower(member.Email)] = true
		}
	}
	return members, nil
}

func userToLead(user *admin.User) *marketo.Lead {
	lead := marketo.NewLead(nil)
	lead.Email = user.PrimaryEmail
	lead.ForeignSysPersonID = user.Id
	lead.ForeignSysType = foreignSysType
	if user.Name != nil {
		if user.Name.GivenName != "" {
			lead.Set("FirstName", user.Name.GivenName)
		}
		if user.Name.FamilyName != "" {
			lead.Set("LastName", user.Name.FamilyName)
		}
	}
	return lead
}

// adminDirectory implements directory over the Admin SDK
type adminDirectory struct {
	service *admin.Service
}

func (d *adminDirectory) Users(ctx context.Context, domain string) ([]*admin.User, error) {
	var allUsers []*admin.User
	pageToken := ""

	for {
		call := d.service.Users.List().Domain(domain).MaxResults(500).Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("failed to list users: %w", err)
		}

		allUsers = append(allUsers, resp.Users...)

		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	return allUsers, nil
}

func (d *adminDirectory) GroupMembers(ctx context.Context, groupEmail string) ([]*admin.Member, error) {
	var allMembers []*admin.Member
	pageToken := ""

	for {
		call := d.service.Members.List(groupEmail).MaxResults(200).Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			// Groups without members answer 404
			if isNotFoundError(err) {
				return allMembers, nil
			}
			return nil, fmt.Errorf("failed to list members for group %s: %w", groupEmail, err)
		}

		allMembers = append(allMembers, resp.Members...)

		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	return allMembers, nil
}

func isNotFoundError(err error) bool {
	var googleErr *googleapi.Error
	return errors.As(err, &googleErr) && googleErr.Code == http.StatusNotFound
}
