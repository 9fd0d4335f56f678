package checkout

// decide applies routing to approval's recorded votes and returns the
// resulting status. It never returns ApprovalStatusPending once enough
// votes are in to decide either way; callers re-run it after every vote.
func decide(routing RoutingMode, approvers []string, votes []Vote) ApprovalStatus {
	if anyDenied(votes) {
		return ApprovalStatusDenied
	}
	approvedBy := approvedSet(votes)

	switch routing {
	case RoutingSingleApprover:
		if len(approvedBy) >= 1 {
			return ApprovalStatusApproved
		}
	case RoutingDualControl:
		if len(approvedBy) >= 2 {
			return ApprovalStatusApproved
		}
	case RoutingAllApprovers:
		if len(approvers) > 0 && containsAll(approvedBy, approvers) {
			return ApprovalStatusApproved
		}
	case RoutingMajority:
		need := len(approvers)/2 + 1
		if len(approvers) > 0 && len(approvedBy) >= need {
			return ApprovalStatusApproved
		}
	}
	return ApprovalStatusPending
}

func anyDenied(votes []Vote) bool {
	for _, v := range votes {
		if !v.Approved {
			return true
		}
	}
	return false
}

func approvedSet(votes []Vote) map[string]bool {
	set := make(map[string]bool, len(votes))
	for _, v := range votes {
		if v.Approved {
			set[v.Approver] = true
		}
	}
	return set
}

func containsAll(set map[string]bool, approvers []string) bool {
	for _, a := range approvers {
		if !set[a] {
			return false
		}
	}
	return true
}
