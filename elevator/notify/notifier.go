package notify

import (
	"context"

	"tangled.sh/tangled.sh/elevator/elevator/models"
)

// Notifier observes elevation lifecycle events. Implementations must not
// block the workflow and must swallow their own failures.
type Notifier interface {
	ElevationRequested(ctx context.Context, req models.ElevationRequest)
	ElevationDenied(ctx context.Context, user, repo string)

	Elevated(ctx context.Context, req models.ElevationRequest, approver string)
	ApprovalRefused(ctx context.Context, user, approver, reason string)

	Demoted(ctx context.Context, d models.Demotion)
	DemotionRefused(ctx context.Context, d models.Demotion, reason string)
}

// BaseNotifier is a listener that does nothing
type BaseNotifier struct{}

var _ Notifier = &BaseNotifier{}

func (m *BaseNotifier) ElevationRequested(ctx context.Context, req models.ElevationRequest) {}
func (m *BaseNotifier) ElevationDenied(ctx context.Context, user, repo string)              {}

func (m *BaseNotifier) Elevated(ctx context.Context, req models.ElevationRequest, approver string) {}
func (m *BaseNotifier) ApprovalRefused(ctx context.Context, user, approver, reason string)         {}

func (m *BaseNotifier) Demoted(ctx context.Context, d models.Demotion)                        {}
func (m *BaseNotifier) DemotionRefused(ctx context.Context, d models.Demotion, reason string) {}
