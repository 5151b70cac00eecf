package ports

import (
	"context"

	"github.com/xoelrdgz/sentinel/internal/domain"
)

// RequestReader produces simulated requests from an external source
// (replay file, generator).
type RequestReader interface {
	Start(ctx context.Context) (<-chan *domain.RequestPayload, <-chan error)
	Stop() error
}

type RequestParser interface {
	Parse(line string) (*domain.RequestPayload, error)
	Format() string
}

// TrafficDriver sends requests to the gateway itself and reacts to the
// returned status codes (load generation with backoff).
type TrafficDriver interface {
	Run(ctx context.Context) error
}
