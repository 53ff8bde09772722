package jobs

// SendWelcomePayload carries everything the notifier needs so the worker
// never has to read the user store.
type SendWelcomePayload struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Course string `json:"course,omitempty"`
	Source string `json:"source"` // signup | admin
}
