package application

import "log/slog"

const logModule = "data-marketplace/dataset-registry"

func ResolveLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}
