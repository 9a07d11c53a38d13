package ir

// Version constants for persisted data and the engine.
const (
	// SchemaVersion is the event journal payload version.
	SchemaVersion = "1"

	// EngineVersion is the photostack engine version.
	EngineVersion = "0.1.0"
)
