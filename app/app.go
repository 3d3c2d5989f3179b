package app

const (
	Name = "waconnect"

	// Version is stamped into logs, telemetry, and error reports.
	Version = "1.3.0"

	LogFileName = "waconnect.log"
)
