package workflow

import (
	"context"
	"net/http"
	"sync"

	"tangled.sh/tangled.sh/elevator/elevator/models"
	"tangled.sh/tangled.sh/elevator/elevator/notify"
	"tangled.sh/tangled.sh/elevator/ghclient"
)

type comment struct {
	Repo   string
	Number int64
	Body   string
}

// fakeGitHub is an in-memory organization. SetOrgRole mutates the owner
// list so demotions observe earlier promotions.
type fakeGitHub struct {
	mu sync.Mutex

	owners  []string
	team    map[string]bool
	teamErr int // status returned by GetTeamBySlug when non-zero

	ownersStatus int
	grantStatus  int
	revokeStatus int

	comments []comment
	closed   []int64
	roleSets int
}

func newFakeGitHub(owners []string, team ...string) *fakeGitHub {
	f := &fakeGitHub{
		owners: append([]string(nil), owners...),
		team:   map[string]bool{},
	}
	for _, u := range team {
		f.team[u] = true
	}
	return f
}

func status(code int) ghclient.Result {
	if code == 0 {
		code = http.StatusOK
	}
	return ghclient.Result{StatusCode: code}
}

func (f *fakeGitHub) ListOrgOwners(ctx context.Context, auth ghclient.AuthContext, org string) ([]string, ghclient.Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ownersStatus != 0 {
		return nil, status(f.ownersStatus)
	}
	return append([]string(nil), f.owners...), status(0)
}

func (f *fakeGitHub) GetTeamBySlug(ctx context.Context, auth ghclient.AuthContext, org, slug string) (ghclient.Team, ghclient.Result) {
	if f.teamErr != 0 {
		return ghclient.Team{}, status(f.teamErr)
	}
	return ghclient.Team{ID: 7, Slug: slug, Name: slug}, status(0)
}

func (f *fakeGitHub) GetTeamMembership(ctx context.Context, auth ghclient.AuthContext, teamID int64, user string) ghclient.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.team[user] {
		return status(0)
	}
	return status(http.StatusNotFound)
}

func (f *fakeGitHub) SetOrgRole(ctx context.Context, auth ghclient.AuthContext, org, user string, role ghclient.OrgRole) ghclient.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roleSets++

	switch role {
	case ghclient.RoleOwner:
		if f.grantStatus != 0 {
			return status(f.grantStatus)
		}
		if !contains(f.owners, user) {
			f.owners = append(f.owners, user)
		}
	case ghclient.RoleMember:
		if f.revokeStatus != 0 {
			return status(f.revokeStatus)
		}
		kept := f.owners[:0]
		for _, o := range f.owners {
			if o != user {
				kept = append(kept, o)
			}
		}
		f.owners = kept
	}
	return status(0)
}

func (f *fakeGitHub) CommentOnIssue(ctx context.Context, auth ghclient.AuthContext, repo string, number int64, body string) ghclient.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comments = append(f.comments, comment{Repo: repo, Number: number, Body: body})
	return status(http.StatusCreated)
}

func (f *fakeGitHub) CloseIssue(ctx context.Context, auth ghclient.AuthContext, repo string, number int64) ghclient.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, number)
	return status(0)
}

func (f *fakeGitHub) bodies() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.comments {
		out = append(out, c.Body)
	}
	return out
}

func (f *fakeGitHub) isOwner(user string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return contains(f.owners, user)
}

type fakeScheduler struct {
	mu        sync.Mutex
	demotions []models.Demotion
	err       error
}

func (s *fakeScheduler) Schedule(ctx context.Context, d models.Demotion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.demotions = append(s.demotions, d)
	return nil
}

type recordingNotifier struct {
	notify.BaseNotifier
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) record(e string) {
	n.mu.Lock()
	n.events = append(n.events, e)
	n.mu.Unlock()
}

func (n *recordingNotifier) ElevationRequested(ctx context.Context, req models.ElevationRequest) {
	n.record("requested")
}

func (n *recordingNotifier) ElevationDenied(ctx context.Context, user, repo string) {
	n.record("denied")
}

func (n *recordingNotifier) Elevated(ctx context.Context, req models.ElevationRequest, approver string) {
	n.record("elevated")
}

func (n *recordingNotifier) ApprovalRefused(ctx context.Context, user, approver, reason string) {
	n.record("approval_refused")
}

func (n *recordingNotifier) Demoted(ctx context.Context, d models.Demotion) {
	n.record("demoted")
}

func (n *recordingNotifier) DemotionRefused(ctx context.Context, d models.Demotion, reason string) {
	n.record("demotion_refused")
}
