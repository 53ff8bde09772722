package notifications

import "context"

type SendWelcomeInput struct {
	UserID string
	Email  string
	Name   string
	Course string
	Source string
}

type Notifier interface {
	SendWelcome(ctx context.Context, input SendWelcomeInput) error
}
