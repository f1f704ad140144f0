package notify

import (
	"context"
	"log/slog"
	"reflect"
	"sync"

	"tangled.sh/tangled.sh/elevator/elevator/models"
	"tangled.sh/tangled.sh/elevator/log"
)

type mergedNotifier struct {
	notifiers []Notifier
	logger    *slog.Logger
}

func NewMergedNotifier(notifiers []Notifier, logger *slog.Logger) Notifier {
	return &mergedNotifier{notifiers, logger}
}

var _ Notifier = &mergedNotifier{}

// fanout calls the same method on all notifiers concurrently
func (m *mergedNotifier) fanout(method string, ctx context.Context, args ...any) {
	ctx = log.IntoContext(ctx, m.logger.With("method", method))
	var wg sync.WaitGroup
	for _, n := range m.notifiers {
		wg.Add(1)
		go func(notifier Notifier) {
			defer wg.Done()
			v := reflect.ValueOf(notifier).MethodByName(method)
			in := make([]reflect.Value, len(args)+1)
			in[0] = reflect.ValueOf(ctx)
			for i, arg := range args {
				in[i+1] = reflect.ValueOf(arg)
			}
			v.Call(in)
		}(n)
	}
	wg.Wait()
}

func (m *mergedNotifier) ElevationRequested(ctx context.Context, req models.ElevationRequest) {
	m.fanout("ElevationRequested", ctx, req)
}

func (m *mergedNotifier) ElevationDenied(ctx context.Context, user, repo string) {
	m.fanout("ElevationDenied", ctx, user, repo)
}

func (m *mergedNotifier) Elevated(ctx context.Context, req models.ElevationRequest, approver string) {
	m.fanout("Elevated", ctx, req, approver)
}

func (m *mergedNotifier) ApprovalRefused(ctx context.Context, user, approver, reason string) {
	m.fanout("ApprovalRefused", ctx, user, approver, reason)
}

func (m *mergedNotifier) Demoted(ctx context.Context, d models.Demotion) {
	m.fanout("Demoted", ctx, d)
}

func (m *mergedNotifier) DemotionRefused(ctx context.Context, d models.Demotion, reason string) {
	m.fanout("DemotionRefused", ctx, d, reason)
}
