package queueview

import "qms/patient-client/internal/models"

// PatientsAhead projects the list shown on the token tab: the token currently
// in consultation (unless it is the patient's own), then waiting tokens with a
// smaller position in snapshot order, then the patient's own token if it is
// still waiting.
func PatientsAhead(snapshot []models.Token, current *models.Token) []models.Token {
	ahead := make([]models.Token, 0, len(snapshot)+1)
	isOwn := func(t models.Token) bool {
		return current != nil && t.ID == current.ID
	}

	for _, t := range snapshot {
		if t.Status == models.TokenInConsultation {
			if !isOwn(t) {
				ahead = append(ahead, t)
			}
			break
		}
	}
	if current != nil {
		for _, t := range snapshot {
			if t.Status == models.TokenWaiting && t.Position < current.Position && !isOwn(t) {
				ahead = append(ahead, t)
			}
		}
		if current.Status == models.TokenWaiting {
			ahead = append(ahead, *current)
		}
	}
	return ahead
}
