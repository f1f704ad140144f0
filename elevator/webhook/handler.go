package webhook

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"tangled.sh/tangled.sh/elevator/elevator/secrets"
	"tangled.sh/tangled.sh/elevator/elevator/workflow"
	"tangled.sh/tangled.sh/elevator/ghclient"
)

var tracer = otel.Tracer("tangled.sh/tangled.sh/elevator/elevator/webhook")

// Workflows is what a verified delivery is dispatched to.
type Workflows interface {
	RequestElevation(ctx context.Context, auth ghclient.AuthContext, ev workflow.IssueOpened) (workflow.Outcome, error)
	CommentReceived(ctx context.Context, auth ghclient.AuthContext, ev workflow.CommentCreated) (workflow.Outcome, error)
}

type Authenticator interface {
	AuthContext(ctx context.Context, creds ghclient.AppCredentials, installationID int64) (ghclient.AuthContext, error)
}

var (
	_ Workflows     = &workflow.Machine{}
	_ Authenticator = &ghclient.Authenticator{}
)

type Handler struct {
	secrets   secrets.Provider
	auth      Authenticator
	workflows Workflows
	metrics   *Metrics
	l         *slog.Logger
}

func NewHandler(p secrets.Provider, a Authenticator, w Workflows, m *Metrics, l *slog.Logger) *Handler {
	return &Handler{
		secrets:   p,
		auth:      a,
		workflows: w,
		metrics:   m,
		l:         l,
	}
}

func writeResponse(w http.ResponseWriter, status int, answer string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"response": answer})
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	event := r.Header.Get(EventHeader)
	ctx, span := tracer.Start(r.Context(), "webhook")
	defer span.End()
	span.SetAttributes(attribute.String("event", event))

	l := h.l.With("event", event)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		l.Error("reading body", "error", err)
		h.metrics.Delivery(event, "unreadable")
		writeResponse(w, http.StatusForbidden, "no")
		return
	}

	creds, err := h.secrets.Credentials(ctx)
	if err != nil {
		l.Error("fetching credentials", "error", err)
		span.RecordError(err)
		h.metrics.Delivery(event, "credentials_unavailable")
		writeResponse(w, http.StatusInternalServerError, "no")
		return
	}

	if !VerifySignature(body, r.Header.Get(SignatureHeader), creds.WebhookSecret) {
		l.Warn("rejecting delivery with bad signature")
		h.metrics.Delivery(event, "forbidden")
		writeResponse(w, http.StatusForbidden, "no")
		return
	}

	outcome := h.dispatch(ctx, l, event, body, creds)
	h.metrics.Delivery(event, outcome)
	writeResponse(w, http.StatusOK, "yes")
}

// dispatch never fails the delivery once the signature checks out; it
// reports what happened as a metrics label.
func (h *Handler) dispatch(ctx context.Context, l *slog.Logger, event string, body []byte, creds secrets.Credentials) string {
	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		l.Error("decoding payload", "error", err)
		return "malformed"
	}

	routed := Route(event, p)
	if routed.Kind == KindIgnore {
		l.Debug("ignoring delivery", "action", p.Action)
		return string(KindIgnore)
	}

	installationID := p.installationID()
	if installationID == 0 {
		installationID = creds.InstallationID
	}
	auth, err := h.auth.AuthContext(ctx, ghclient.AppCredentials{
		AppID:      creds.AppID,
		PrivateKey: []byte(creds.PrivateKey),
	}, installationID)
	if err != nil {
		l.Error("authenticating installation", "installation_id", installationID, "error", err)
		return "auth_failed"
	}

	var outcome workflow.Outcome
	switch routed.Kind {
	case KindRequestElevation:
		outcome, err = h.workflows.RequestElevation(ctx, auth, routed.Opened)
	case KindComment:
		outcome, err = h.workflows.CommentReceived(ctx, auth, routed.Comment)
	}
	if err != nil {
		l.Error("running workflow", "kind", routed.Kind, "outcome", outcome, "error", err)
	}
	h.metrics.Outcome(outcome)
	return string(outcome)
}
