package event

import (
	"github.com/viant/fsmflow/service/messaging/memory"
)

// Option customises the event service
type Option func(s *Service)

// WithNewMemoryQueueConfig sets the memory queue configuration per queue name
func WithNewMemoryQueueConfig(newConfig func(name string) memory.Config) Option {
	return func(s *Service) {
		s.newQueueConfig = newConfig
	}
}
