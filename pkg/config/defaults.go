package config

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	ProviderNone  = "none"
	ProviderKafka = "kafka"
)

const (
	defaultDriver     = DriverSQLite
	defaultSQLitePath = "truthstore.db"
	defaultAPIListen  = ":8090"

	defaultClientAPITarget = "http://localhost:8090"

	defaultRecomputeWorkers   = 3
	defaultRecomputeQueueSize = 256

	defaultEventTopic = "truthstore.events"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Storage: StorageConfig{
			Driver:     defaultDriver,
			SQLitePath: defaultSQLitePath,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		Client: ClientConfig{
			APITarget: defaultClientAPITarget,
		},
		Recompute: RecomputeConfig{
			Workers:   defaultRecomputeWorkers,
			QueueSize: defaultRecomputeQueueSize,
		},
		EventStream: EventStreamConfig{
			Provider: ProviderNone,
			Topic:    defaultEventTopic,
		},
	}
}

// ValidDrivers returns the recognized storage driver names.
func ValidDrivers() []string {
	return []string{DriverMemory, DriverSQLite, DriverPostgres}
}

func isValidDriver(name string) bool {
	for _, d := range ValidDrivers() {
		if d == name {
			return true
		}
	}
	return false
}
