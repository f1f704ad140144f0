package posthog_service

import (
	"context"

	"github.com/posthog/posthog-go"
	"tangled.sh/tangled.sh/elevator/elevator/models"
	"tangled.sh/tangled.sh/elevator/elevator/notify"
	"tangled.sh/tangled.sh/elevator/log"
)

type posthogNotifier struct {
	client posthog.Client
	notify.BaseNotifier
}

func NewPosthogNotifier(client posthog.Client) notify.Notifier {
	return &posthogNotifier{
		client,
		notify.BaseNotifier{},
	}
}

var _ notify.Notifier = &posthogNotifier{}

func (n *posthogNotifier) capture(ctx context.Context, user, event string, props posthog.Properties) {
	err := n.client.Enqueue(posthog.Capture{
		DistinctId: user,
		Event:      event,
		Properties: props,
	})
	if err != nil {
		log.FromContext(ctx).Error("failed to enqueue posthog event", "event", event, "error", err)
	}
}

func (n *posthogNotifier) ElevationRequested(ctx context.Context, req models.ElevationRequest) {
	n.capture(ctx, req.User, "elevation_requested", posthog.Properties{
		"repo":  req.Repo,
		"issue": req.IssueNumber,
	})
}

func (n *posthogNotifier) ElevationDenied(ctx context.Context, user, repo string) {
	n.capture(ctx, user, "elevation_denied", posthog.Properties{"repo": repo})
}

func (n *posthogNotifier) Elevated(ctx context.Context, req models.ElevationRequest, approver string) {
	n.capture(ctx, req.User, "elevated", posthog.Properties{
		"repo":     req.Repo,
		"issue":    req.IssueNumber,
		"approver": approver,
	})
}

func (n *posthogNotifier) ApprovalRefused(ctx context.Context, user, approver, reason string) {
	n.capture(ctx, user, "approval_refused", posthog.Properties{
		"approver": approver,
		"reason":   reason,
	})
}

func (n *posthogNotifier) Demoted(ctx context.Context, d models.Demotion) {
	n.capture(ctx, d.User, "demoted", posthog.Properties{
		"org":   d.Organization,
		"repo":  d.Repository,
		"issue": d.IssueNumber,
	})
}

func (n *posthogNotifier) DemotionRefused(ctx context.Context, d models.Demotion, reason string) {
	n.capture(ctx, d.User, "demotion_refused", posthog.Properties{
		"org":    d.Organization,
		"repo":   d.Repository,
		"reason": reason,
	})
}
