package mqtt

import (
	"time"

	"github.com/okian/bikewatch/pkg/logger"
)

// Option configures a Client.
type Option func(*Client)

// WithPrefix sets the topic prefix.
func WithPrefix(prefix string) Option {
	return func(c *Client) {
		c.setPrefix(prefix)
	}
}

// WithTimeout bounds the wait for each response.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithClientID overrides the generated client id.
func WithClientID(id string) Option {
	return func(c *Client) {
		if id != "" {
			c.clientID = id
		}
	}
}

// WithQueueSize bounds the buffer of pushed samples.
func WithQueueSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.queueSize = n
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}
