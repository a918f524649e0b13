package logging

import "go.uber.org/zap"

// New builds the process logger. Development mode gets the console encoder.
func New(environment string) (*zap.Logger, error) {
	if environment == "development" {
		cfg := zap.NewDevelopmentConfig()
		return cfg.Build()
	}
	return zap.NewProduction()
}
