// Package logging builds the slog logger used by the command line tool.
// Console output is text on terminals and JSON elsewhere. An optional log
// file captures debug records and is rotated by size.
package logging
