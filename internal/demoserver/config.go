package demoserver

// Config controls the demo server.
type Config struct {
	// Port to listen on.
	Port int

	// InitialVersion selects which corpus version is served at startup.
	InitialVersion int
}

// DefaultConfig returns the default demo server configuration.
func DefaultConfig() Config {
	return Config{
		Port:           9999,
		InitialVersion: 1,
	}
}
