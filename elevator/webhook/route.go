package webhook

import (
	"tangled.sh/tangled.sh/elevator/elevator/workflow"
)

type Kind string

const (
	KindIgnore           Kind = "ignore"
	KindRequestElevation Kind = "request_elevation"
	KindComment          Kind = "comment"
)

// Routed is a classified delivery. Only the field matching Kind is set.
type Routed struct {
	Kind    Kind
	Opened  workflow.IssueOpened
	Comment workflow.CommentCreated
}

// Route classifies a delivery by event type and action. It has no side
// effects.
func Route(event string, p Payload) Routed {
	if p.Issue == nil || p.Repository == nil {
		return Routed{Kind: KindIgnore}
	}

	origin := workflow.Origin{
		Repo:           p.Repository.FullName,
		RepoOwner:      p.Repository.Owner.Login,
		Org:            p.Repository.Owner.Login,
		InstallationID: p.installationID(),
	}
	if p.Organization != nil && p.Organization.Login != "" {
		origin.Org = p.Organization.Login
	}

	issue := workflow.Issue{
		Number: p.Issue.Number,
		Title:  p.Issue.Title,
		Body:   p.Issue.Body,
		Author: p.Issue.User.Login,
	}

	switch event {
	case "issues":
		if p.Action != "opened" || !workflow.IsElevationRequest(issue.Title, issue.Body) {
			break
		}
		return Routed{
			Kind:   KindRequestElevation,
			Opened: workflow.IssueOpened{Origin: origin, Issue: issue},
		}
	case "issue_comment":
		if p.Action != "created" || p.Comment == nil {
			break
		}
		return Routed{
			Kind: KindComment,
			Comment: workflow.CommentCreated{
				Origin:    origin,
				Issue:     issue,
				Commenter: p.Comment.User.Login,
				Body:      p.Comment.Body,
			},
		}
	}

	return Routed{Kind: KindIgnore}
}
