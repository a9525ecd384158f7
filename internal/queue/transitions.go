package queue

import "hospital-queue-backend/internal/model"

// allowedEdges is the token lifecycle. Anything not listed is rejected
// before any mutation happens.
var allowedEdges = map[string][]string{
	model.StatusWaiting: {model.StatusCalled, model.StatusCancelled},
	model.StatusCalled:  {model.StatusCompleted, model.StatusSkipped, model.StatusNoShow},
}

// canTransition reports whether from -> to is a legal lifecycle edge.
func canTransition(from, to string) bool {
	for _, target := range allowedEdges[from] {
		if target == to {
			return true
		}
	}
	return false
}
