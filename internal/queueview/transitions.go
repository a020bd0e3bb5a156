package queueview

import "qms/patient-client/internal/models"

var transitionMap = map[string][]string{
	"cancel": {models.TokenWaiting},
}

// ValidTransition reports whether a client action is allowed while the
// patient's token is in fromStatus. An empty status means no token.
func ValidTransition(action, fromStatus string) bool {
	allowed, ok := transitionMap[action]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == fromStatus {
			return true
		}
	}
	return false
}
