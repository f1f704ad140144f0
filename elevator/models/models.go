package models

import (
	"fmt"
	"time"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusElevated Status = "elevated"
	StatusDemoted  Status = "demoted"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusElevated, StatusDemoted:
		return true
	}
	return false
}

// RequestKey identifies one elevation request. A user accumulates one
// record per request; the newest RequestedAt is the current one.
type RequestKey struct {
	User        string
	RequestedAt time.Time
}

func (k RequestKey) String() string {
	return fmt.Sprintf("%s@%s", k.User, k.RequestedAt.UTC().Format(time.RFC3339Nano))
}

type ElevationRequest struct {
	User        string
	RequestedAt time.Time
	IssueNumber int64
	Repo        string // owner/name
	Status      Status
	ElevatedAt  *time.Time
	DemotedAt   *time.Time
}

func (r ElevationRequest) Key() RequestKey {
	return RequestKey{User: r.User, RequestedAt: r.RequestedAt}
}

// Demotion carries everything the executor needs to reverse one
// elevation. Field names follow the scheduler's wire format.
type Demotion struct {
	User           string `json:"user"`
	InstallationID int64  `json:"installation_id"`
	Organization   string `json:"organization"`
	Repository     string `json:"repository"`
	IssueNumber    int64  `json:"issue_number"`
	WaitSeconds    int64  `json:"wait_seconds"`
}

func (d Demotion) Validate() error {
	switch {
	case d.User == "":
		return fmt.Errorf("demotion: user is empty")
	case d.Organization == "":
		return fmt.Errorf("demotion: organization is empty")
	case d.Repository == "":
		return fmt.Errorf("demotion: repository is empty")
	case d.IssueNumber <= 0:
		return fmt.Errorf("demotion: invalid issue number %d", d.IssueNumber)
	case d.WaitSeconds < 0:
		return fmt.Errorf("demotion: negative wait %d", d.WaitSeconds)
	}
	return nil
}
