package workflow

import "fmt"

func requestedComment(user string) string {
	return fmt.Sprintf("@%s has requested elevation. Waiting for approval.", user)
}

func requestIneligibleComment(user string) string {
	return fmt.Sprintf("@%s has requested elevation but is not a member of the elevators team.", user)
}

func commentIneligibleComment(user string) string {
	return fmt.Sprintf("@%s has commented on the elevation request but is not a member of the elevators team.", user)
}

func notApprovalComment(user string) string {
	return fmt.Sprintf("@%s has commented but not approved the elevation.", user)
}

func approvedComment(approver, requestor string) string {
	return fmt.Sprintf("@%s has approved the elevation for @%s.", approver, requestor)
}

func selfApprovalComment(user string) string {
	return fmt.Sprintf("@%s cannot approve own requests.", user)
}

const (
	lastOwnerComment       = "User is the last owner - therefore will not be demoted"
	demotionStartedComment = "User is currently an owner - demotion to member in progress"
	demotedComment         = "User has been demoted"
)
