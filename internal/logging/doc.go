// Package logging builds the service slog.Logger from the logging config section.
package logging
