package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatusValid(t *testing.T) {
	assert.True(t, StatusPending.Valid())
	assert.True(t, StatusElevated.Valid())
	assert.True(t, StatusDemoted.Valid())
	assert.False(t, Status("closed").Valid())
	assert.False(t, Status("").Valid())
}

func TestRequestKeyString(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	k := ElevationRequest{User: "alice", RequestedAt: at}.Key()
	assert.Equal(t, "alice@2024-05-01T10:00:00Z", k.String())
}

func TestDemotionValidate(t *testing.T) {
	ok := Demotion{
		User:         "alice",
		Organization: "acme",
		Repository:   "acme/access",
		IssueNumber:  7,
		WaitSeconds:  3600,
	}
	assert.NoError(t, ok.Validate())

	tests := []struct {
		name   string
		mutate func(*Demotion)
	}{
		{"no user", func(d *Demotion) { d.User = "" }},
		{"no org", func(d *Demotion) { d.Organization = "" }},
		{"no repo", func(d *Demotion) { d.Repository = "" }},
		{"zero issue", func(d *Demotion) { d.IssueNumber = 0 }},
		{"negative wait", func(d *Demotion) { d.WaitSeconds = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := ok
			tt.mutate(&d)
			assert.Error(t, d.Validate())
		})
	}
}
