package poller

import (
	"github.com/okian/bikewatch/internal/domain/model"
	"github.com/okian/bikewatch/pkg/logger"
)

// Option applies a configuration option to the Poller.
type Option func(*Poller)

// WithName sets the poller name for identification and logging.
func WithName(name string) Option {
	return func(p *Poller) {
		if name != "" {
			p.name = name
		}
	}
}

// WithLogger sets a custom logger for the poller.
func WithLogger(l logger.Logger) Option {
	return func(p *Poller) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithPushed makes the poller consume ch between cycles, passing each sample
// to fn. A nil channel or function disables push consumption.
func WithPushed(ch <-chan model.Sample, fn PushFunc) Option {
	return func(p *Poller) {
		if ch != nil && fn != nil {
			p.pushed = ch
			p.onPush = fn
		}
	}
}
