package workflow

// IsLastOwner is true only when user is the one and only organization
// owner. Demoting them would leave the organization ownerless.
func IsLastOwner(owners []string, user string) bool {
	if user == "" {
		return false
	}
	return len(owners) == 1 && owners[0] == user
}

func IsSelfApproval(approver, requestor string) bool {
	return approver == requestor
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
