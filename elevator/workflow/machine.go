package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"tangled.sh/tangled.sh/elevator/elevator/models"
	"tangled.sh/tangled.sh/elevator/elevator/notify"
	"tangled.sh/tangled.sh/elevator/elevator/scheduler"
	"tangled.sh/tangled.sh/elevator/elevator/store"
	"tangled.sh/tangled.sh/elevator/ghclient"
)

var tracer = otel.Tracer("tangled.sh/tangled.sh/elevator/elevator/workflow")

// Outcome is how a workflow run ended. Refusals and denials are outcomes,
// not errors.
type Outcome string

const (
	OutcomeIgnored       Outcome = "ignored"
	OutcomeIneligible    Outcome = "ineligible"
	OutcomePending       Outcome = "pending"
	OutcomeNotApproval   Outcome = "not_approval"
	OutcomeSelfApproval  Outcome = "self_approval"
	OutcomeMissingRecord Outcome = "missing_record"
	OutcomeNotPending    Outcome = "not_pending"
	OutcomeGrantFailed   Outcome = "grant_failed"
	OutcomeElevated      Outcome = "elevated"
	OutcomeStoreFailed   Outcome = "store_failed"
)

// Origin is where an event came from.
type Origin struct {
	Repo           string // owner/name
	RepoOwner      string
	Org            string
	InstallationID int64
}

type Issue struct {
	Number int64
	Title  string
	Body   string
	Author string
}

type IssueOpened struct {
	Origin
	Issue Issue
}

type CommentCreated struct {
	Origin
	Issue     Issue
	Commenter string
	Body      string
}

type Settings struct {
	EscalationTeam string
	BotLogin       string
	WaitSeconds    int64
}

// Machine drives an elevation request from pending to elevated and
// schedules its reversal.
type Machine struct {
	c        Collaborator
	elig     *Eligibility
	store    store.Store
	sched    scheduler.Scheduler
	notifier notify.Notifier
	settings Settings
	now      func() time.Time
	l        *slog.Logger
}

type MachineOpt func(*Machine)

func WithMachineClock(now func() time.Time) MachineOpt {
	return func(m *Machine) {
		m.now = now
	}
}

func NewMachine(c Collaborator, s store.Store, sched scheduler.Scheduler, n notify.Notifier, settings Settings, l *slog.Logger, opts ...MachineOpt) *Machine {
	m := &Machine{
		c:        c,
		elig:     NewEligibility(c, l),
		store:    s,
		sched:    sched,
		notifier: n,
		settings: settings,
		now:      time.Now,
		l:        l,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Machine) comment(ctx context.Context, auth ghclient.AuthContext, o Origin, number int64, body string) {
	res := m.c.CommentOnIssue(ctx, auth, o.Repo, number, body)
	if !res.OK() {
		m.l.Error("posting comment", "repo", o.Repo, "issue", number, "error", res.Failure())
	}
}

// RequestElevation handles an opened issue that asks for elevation.
func (m *Machine) RequestElevation(ctx context.Context, auth ghclient.AuthContext, ev IssueOpened) (Outcome, error) {
	user := ev.Issue.Author
	l := m.l.With("user", user, "repo", ev.Repo, "issue", ev.Issue.Number)

	if !m.elig.IsMember(ctx, auth, user, ev.RepoOwner, m.settings.EscalationTeam) {
		l.Info("elevation requested by ineligible user")
		m.comment(ctx, auth, ev.Origin, ev.Issue.Number, requestIneligibleComment(user))
		m.notifier.ElevationDenied(ctx, user, ev.Repo)
		return OutcomeIneligible, nil
	}

	req := models.ElevationRequest{
		User:        user,
		RequestedAt: m.now().UTC(),
		IssueNumber: ev.Issue.Number,
		Repo:        ev.Repo,
		Status:      models.StatusPending,
	}
	if err := m.store.Create(ctx, req); err != nil {
		l.Error("recording elevation request", "error", err)
		return OutcomeStoreFailed, fmt.Errorf("recording elevation request: %w", err)
	}

	l.Info("elevation request recorded", "status", req.Status)
	m.comment(ctx, auth, ev.Origin, ev.Issue.Number, requestedComment(user))
	m.notifier.ElevationRequested(ctx, req)
	return OutcomePending, nil
}

// CommentReceived handles a new comment on an elevation issue, promoting
// the issue author when an eligible third party approves.
func (m *Machine) CommentReceived(ctx context.Context, auth ghclient.AuthContext, ev CommentCreated) (Outcome, error) {
	commenter := ev.Commenter
	l := m.l.With("commenter", commenter, "repo", ev.Repo, "issue", ev.Issue.Number)

	if commenter == m.settings.BotLogin {
		return OutcomeIgnored, nil
	}

	if !m.elig.IsMember(ctx, auth, commenter, ev.RepoOwner, m.settings.EscalationTeam) {
		l.Info("comment from ineligible user")
		m.comment(ctx, auth, ev.Origin, ev.Issue.Number, commentIneligibleComment(commenter))
		return OutcomeIneligible, nil
	}

	if !IsApproval(ev.Body) {
		m.comment(ctx, auth, ev.Origin, ev.Issue.Number, notApprovalComment(commenter))
		return OutcomeNotApproval, nil
	}

	requestor := ev.Issue.Author
	m.comment(ctx, auth, ev.Origin, ev.Issue.Number, approvedComment(commenter, requestor))

	if IsSelfApproval(commenter, requestor) {
		l.Info("refusing self approval")
		m.comment(ctx, auth, ev.Origin, ev.Issue.Number, selfApprovalComment(commenter))
		m.notifier.ApprovalRefused(ctx, requestor, commenter, "self approval")
		return OutcomeSelfApproval, nil
	}

	return m.promote(ctx, auth, ev, requestor, commenter)
}

// promote claims the requestor's newest pending record before granting
// the role, so concurrent approvals promote at most once.
func (m *Machine) promote(ctx context.Context, auth ghclient.AuthContext, ev CommentCreated, user, approver string) (Outcome, error) {
	ctx, span := tracer.Start(ctx, "promote")
	defer span.End()
	span.SetAttributes(attribute.String("user", user), attribute.String("org", ev.Org))

	l := m.l.With("user", user, "org", ev.Org, "approver", approver)
	l.Info("promoting user to owner")

	latest, err := m.store.Latest(ctx, user)
	if errors.Is(err, store.ErrNotFound) {
		l.Warn("user not found in the store")
		return OutcomeMissingRecord, nil
	}
	if err != nil {
		l.Error("reading latest request", "error", err)
		return OutcomeStoreFailed, err
	}

	elevatedAt := m.now().UTC()
	err = m.store.Transition(ctx, latest.Key(), models.StatusPending, models.StatusElevated, elevatedAt)
	if errors.Is(err, store.ErrStatusConflict) {
		l.Info("latest request is not pending, nothing to promote", "status", latest.Status)
		return OutcomeNotPending, nil
	}
	if err != nil {
		l.Error("claiming pending request", "error", err)
		return OutcomeStoreFailed, err
	}

	res := m.c.SetOrgRole(ctx, auth, ev.Org, user, ghclient.RoleOwner)
	if !res.OK() {
		l.Error("granting owner role", "status", res.StatusCode, "error", res.Failure())
		if err := m.store.Transition(ctx, latest.Key(), models.StatusElevated, models.StatusPending, m.now().UTC()); err != nil {
			l.Error("releasing claim after failed grant", "error", err)
		}
		return OutcomeGrantFailed, nil
	}
	l.Info("promoted user to owner", "status", models.StatusElevated)

	latest.Status = models.StatusElevated
	latest.ElevatedAt = &elevatedAt
	m.notifier.Elevated(ctx, *latest, approver)

	d := models.Demotion{
		User:           user,
		InstallationID: auth.InstallationID,
		Organization:   ev.Org,
		Repository:     ev.Repo,
		IssueNumber:    ev.Issue.Number,
		WaitSeconds:    m.settings.WaitSeconds,
	}
	if err := m.sched.Schedule(ctx, d); err != nil {
		// the role stays granted; this needs an operator
		l.Error("scheduling demotion", "error", err)
		span.RecordError(err)
		return OutcomeElevated, fmt.Errorf("scheduling demotion: %w", err)
	}
	l.Info("demotion scheduled", "wait_seconds", d.WaitSeconds)

	return OutcomeElevated, nil
}
