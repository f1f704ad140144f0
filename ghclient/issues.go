package ghclient

import (
	"context"
	"fmt"
	"net/http"
)

// repo is the full "owner/name" form; it is used verbatim in the path.
func (c *Client) CommentOnIssue(ctx context.Context, auth AuthContext, repo string, number int64, body string) Result {
	path := fmt.Sprintf("/repos/%s/issues/%d/comments", repo, number)
	res, _ := c.do(ctx, auth, http.MethodPost, path, map[string]string{"body": body}, nil)
	return res
}

func (c *Client) CloseIssue(ctx context.Context, auth AuthContext, repo string, number int64) Result {
	path := fmt.Sprintf("/repos/%s/issues/%d", repo, number)
	res, _ := c.do(ctx, auth, http.MethodPatch, path, map[string]string{"state": "closed"}, nil)
	return res
}
