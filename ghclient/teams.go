package ghclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

type Team struct {
	ID   int64  `json:"id"`
	Slug string `json:"slug"`
	Name string `json:"name"`
}

func (c *Client) GetTeamBySlug(ctx context.Context, auth AuthContext, org, slug string) (Team, Result) {
	path := fmt.Sprintf("/orgs/%s/teams/%s", url.PathEscape(org), url.PathEscape(slug))

	var team Team
	res, _ := c.do(ctx, auth, http.MethodGet, path, nil, &team)
	return team, res
}

// GetTeamMembership reports a 2xx for members and a 404 for non-members.
func (c *Client) GetTeamMembership(ctx context.Context, auth AuthContext, teamID int64, user string) Result {
	path := fmt.Sprintf("/teams/%d/memberships/%s", teamID, url.PathEscape(user))
	res, _ := c.do(ctx, auth, http.MethodGet, path, nil, nil)
	return res
}
