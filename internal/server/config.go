package server

import "github.com/raysh454/dorkrecon/internal/logging"

type Config struct {
	// ListenAddr is the HTTP listen address for the API server.
	ListenAddr string

	// Logger defaults to a JSON stdout logger when nil.
	Logger logging.Logger
}
