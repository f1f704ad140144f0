package ghclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
)

type OrgRole string

const (
	RoleOwner  OrgRole = "admin"
	RoleMember OrgRole = "member"
)

type account struct {
	Login string `json:"login"`
}

var nextLink = regexp.MustCompile(`<([^>]+)>;\s*rel="next"`)

// ListOrgOwners returns the logins of every organization owner. The set is
// always fetched live; nothing is cached.
func (c *Client) ListOrgOwners(ctx context.Context, auth AuthContext, org string) ([]string, Result) {
	path := fmt.Sprintf("/orgs/%s/members?role=admin&per_page=100", url.PathEscape(org))

	var owners []string
	for path != "" {
		var page []account
		res, header := c.do(ctx, auth, http.MethodGet, path, nil, &page)
		if !res.OK() {
			return nil, res
		}
		for _, a := range page {
			owners = append(owners, a.Login)
		}

		path = ""
		if m := nextLink.FindStringSubmatch(header.Get("Link")); m != nil {
			path = m[1]
		}
	}

	return owners, Result{Method: http.MethodGet, Path: "/orgs/" + org + "/members", StatusCode: http.StatusOK}
}

// SetOrgRole changes a user's organization membership role.
func (c *Client) SetOrgRole(ctx context.Context, auth AuthContext, org, user string, role OrgRole) Result {
	path := fmt.Sprintf("/orgs/%s/memberships/%s", url.PathEscape(org), url.PathEscape(user))
	res, _ := c.do(ctx, auth, http.MethodPut, path, map[string]string{"role": string(role)}, nil)
	return res
}
