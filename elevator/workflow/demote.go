package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"tangled.sh/tangled.sh/elevator/elevator/models"
	"tangled.sh/tangled.sh/elevator/elevator/notify"
	"tangled.sh/tangled.sh/elevator/elevator/store"
	"tangled.sh/tangled.sh/elevator/ghclient"
)

const (
	OutcomeNotOwner          Outcome = "not_owner"
	OutcomeLastOwner         Outcome = "last_owner"
	OutcomeDemoted           Outcome = "demoted"
	OutcomeOwnersUnavailable Outcome = "owners_unavailable"
	OutcomeRevokeFailed      Outcome = "revoke_failed"
)

// Demoter reverses an elevation. It trusts nothing about the state at
// scheduling time and re-reads the owner set on every run.
type Demoter struct {
	c        Collaborator
	store    store.Store
	notifier notify.Notifier
	now      func() time.Time
	l        *slog.Logger
}

type DemoterOpt func(*Demoter)

func WithDemoterClock(now func() time.Time) DemoterOpt {
	return func(d *Demoter) {
		d.now = now
	}
}

func NewDemoter(c Collaborator, s store.Store, n notify.Notifier, l *slog.Logger, opts ...DemoterOpt) *Demoter {
	d := &Demoter{
		c:        c,
		store:    s,
		notifier: n,
		now:      time.Now,
		l:        l,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

func (d *Demoter) comment(ctx context.Context, auth ghclient.AuthContext, dm models.Demotion, body string) {
	if res := d.c.CommentOnIssue(ctx, auth, dm.Repository, dm.IssueNumber, body); !res.OK() {
		d.l.Error("posting comment", "repo", dm.Repository, "issue", dm.IssueNumber, "error", res.Failure())
	}
}

func (d *Demoter) close(ctx context.Context, auth ghclient.AuthContext, dm models.Demotion) {
	if res := d.c.CloseIssue(ctx, auth, dm.Repository, dm.IssueNumber); !res.OK() {
		d.l.Error("closing issue", "repo", dm.Repository, "issue", dm.IssueNumber, "error", res.Failure())
	}
}

// Execute is idempotent: a user who is no longer an owner is left alone.
func (d *Demoter) Execute(ctx context.Context, auth ghclient.AuthContext, dm models.Demotion) (Outcome, error) {
	ctx, span := tracer.Start(ctx, "demote")
	defer span.End()
	span.SetAttributes(attribute.String("user", dm.User), attribute.String("org", dm.Organization))

	l := d.l.With("user", dm.User, "org", dm.Organization, "repo", dm.Repository, "issue", dm.IssueNumber)

	owners, res := d.c.ListOrgOwners(ctx, auth, dm.Organization)
	if !res.OK() {
		l.Error("fetching org owners", "error", res.Failure())
		return OutcomeOwnersUnavailable, res.Failure()
	}

	if !contains(owners, dm.User) {
		l.Info("user is not an owner, nothing to demote")
		return OutcomeNotOwner, nil
	}

	if IsLastOwner(owners, dm.User) {
		l.Warn("user is the last owner, refusing to demote")
		d.comment(ctx, auth, dm, lastOwnerComment)
		d.close(ctx, auth, dm)
		d.notifier.DemotionRefused(ctx, dm, "last owner")
		return OutcomeLastOwner, nil
	}

	d.comment(ctx, auth, dm, demotionStartedComment)

	res = d.c.SetOrgRole(ctx, auth, dm.Organization, dm.User, ghclient.RoleMember)
	if !res.OK() {
		l.Error("revoking owner role", "status", res.StatusCode, "error", res.Failure())
		return OutcomeRevokeFailed, res.Failure()
	}

	d.comment(ctx, auth, dm, demotedComment)
	d.close(ctx, auth, dm)
	d.notifier.Demoted(ctx, dm)

	if err := d.markDemoted(ctx, dm.User); err != nil {
		// the role change already happened; only the record lags behind
		l.Error("recording demotion", "error", err)
		return OutcomeDemoted, err
	}

	l.Info("user demoted", "status", models.StatusDemoted)
	return OutcomeDemoted, nil
}

func (d *Demoter) markDemoted(ctx context.Context, user string) error {
	latest, err := d.store.Latest(ctx, user)
	if errors.Is(err, store.ErrNotFound) {
		d.l.Warn("demoted user has no elevation record", "user", user)
		return nil
	}
	if err != nil {
		return err
	}

	err = d.store.Transition(ctx, latest.Key(), models.StatusElevated, models.StatusDemoted, d.now().UTC())
	if errors.Is(err, store.ErrStatusConflict) {
		d.l.Warn("latest request is not elevated, leaving it", "user", user, "status", latest.Status)
		return nil
	}
	if err != nil {
		return fmt.Errorf("marking %s demoted: %w", latest.Key(), err)
	}
	return nil
}
