package ports

import "context"

// Logger is the logging contract every component takes as a dependency.
// Two adapters implement it, a plain-text std-log writer and a zerolog
// JSON writer, chosen at startup via the LOG_FORMAT setting. The field
// maps are optional; adapters consume at most the first one.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...map[string]interface{})
	Info(ctx context.Context, msg string, fields ...map[string]interface{})
	Warn(ctx context.Context, msg string, fields ...map[string]interface{})

	// Error carries the error separately from the message so adapters can
	// attach it as a structured field rather than baking it into the text.
	Error(ctx context.Context, err error, msg string, fields ...map[string]interface{})
}
