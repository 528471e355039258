package config

const (
	DefaultTimeZone = "UTC"

	// Recategorization job defaults
	DefaultCategorizationSchedule = "0 18 * * *"
	CategorizationBatchSize       = 500

	// Service ports
	LedgerPort  = 6143
	AuditPort   = 7143
	GatewayPort = 8081
)
