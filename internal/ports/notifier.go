package ports

import "context"

// Notifier delivers operator-visible alerts. Only drift and repeated
// persistence failures are escalated through this channel; ordinary errors
// stay in the logs.
type Notifier interface {
	Alert(ctx context.Context, subject, body string) error
}
