package loop

// Option customises a pool
type Option func(p *Pool)

// WithWorkers sets the number of worker goroutines
func WithWorkers(count int) Option {
	return func(p *Pool) {
		p.config.Workers = count
	}
}

// WithName sets the pool name used in logs
func WithName(name string) Option {
	return func(p *Pool) {
		p.config.Name = name
	}
}

// WithConfig sets the pool configuration
func WithConfig(config Config) Option {
	return func(p *Pool) {
		p.config = config
	}
}
