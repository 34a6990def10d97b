package main

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidServeMode = errors.New("invalid serve mode")

// ServeMode selects which halves of the service a process exposes.
// monolith serves the API and, when a static directory is configured, the built frontend.
type ServeMode string

const (
	ServeModeMonolith ServeMode = "monolith"
	ServeModeWeb      ServeMode = "web"
	ServeModeAPI      ServeMode = "api"
)

func ParseServeMode(rawInput string) (ServeMode, error) {
	normalized := strings.ToLower(strings.TrimSpace(rawInput))
	if normalized == "" {
		return ServeModeMonolith, nil
	}

	mode := ServeMode(normalized)
	switch mode {
	case ServeModeMonolith, ServeModeWeb, ServeModeAPI:
		return mode, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidServeMode, rawInput)
	}
}

func (mode ServeMode) servesAPI() bool {
	return mode != ServeModeWeb
}

func (mode ServeMode) servesFrontend() bool {
	return mode != ServeModeAPI
}
