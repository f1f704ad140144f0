package workflow

import (
	"context"

	"tangled.sh/tangled.sh/elevator/ghclient"
)

// Collaborator is the slice of the GitHub API the workflows need. Every
// call carries the invocation's AuthContext explicitly.
type Collaborator interface {
	ListOrgOwners(ctx context.Context, auth ghclient.AuthContext, org string) ([]string, ghclient.Result)
	GetTeamBySlug(ctx context.Context, auth ghclient.AuthContext, org, slug string) (ghclient.Team, ghclient.Result)
	GetTeamMembership(ctx context.Context, auth ghclient.AuthContext, teamID int64, user string) ghclient.Result
	SetOrgRole(ctx context.Context, auth ghclient.AuthContext, org, user string, role ghclient.OrgRole) ghclient.Result
	CommentOnIssue(ctx context.Context, auth ghclient.AuthContext, repo string, number int64, body string) ghclient.Result
	CloseIssue(ctx context.Context, auth ghclient.AuthContext, repo string, number int64) ghclient.Result
}

var _ Collaborator = &ghclient.Client{}
