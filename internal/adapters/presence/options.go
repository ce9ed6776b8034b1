package presence

import "github.com/okian/ridetrack/pkg/logger"

// Option applies a configuration option to the Client.
type Option func(*Client)

// WithLogger sets a custom logger for the client.
func WithLogger(log logger.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}
