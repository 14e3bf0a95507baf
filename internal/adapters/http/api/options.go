package api

import (
	"time"

	"github.com/okian/refmatch/pkg/logger"
)

// Option configures a Server.
type Option func(*Server)

// WithCORSOrigins sets the origins allowed to call the API from a browser.
func WithCORSOrigins(origins ...string) Option {
	return func(s *Server) {
		if len(origins) > 0 {
			s.corsOrigins = origins
		}
	}
}

// WithRequestTimeout bounds each request. Zero disables the timeout.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d >= 0 {
			s.requestTimeout = d
		}
	}
}

// WithLogger sets the request logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}
