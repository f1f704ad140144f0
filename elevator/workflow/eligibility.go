package workflow

import (
	"context"
	"log/slog"

	"tangled.sh/tangled.sh/elevator/ghclient"
)

// Eligibility decides whether a user may take part in elevations by
// checking membership of a team. Nothing is cached: membership can change
// between deliveries.
type Eligibility struct {
	c Collaborator
	l *slog.Logger
}

func NewEligibility(c Collaborator, l *slog.Logger) *Eligibility {
	return &Eligibility{c: c, l: l}
}

// IsMember never fails: any lookup problem means "not eligible".
func (e *Eligibility) IsMember(ctx context.Context, auth ghclient.AuthContext, user, org, teamSlug string) bool {
	l := e.l.With("user", user, "org", org, "team", teamSlug)

	team, res := e.c.GetTeamBySlug(ctx, auth, org, teamSlug)
	if !res.OK() || team.ID == 0 {
		l.Error("error fetching team", "status", res.StatusCode, "error", res.Failure())
		return false
	}

	res = e.c.GetTeamMembership(ctx, auth, team.ID, user)
	switch {
	case res.OK():
		l.Debug("user is a member of the team")
		return true
	case res.NotFound():
		l.Info("user is not a member of the team")
		return false
	default:
		l.Error("error checking membership", "status", res.StatusCode, "error", res.Failure())
		return false
	}
}
