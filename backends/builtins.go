package backends

import (
	"github.com/lumineer/alight"
	"github.com/lumineer/alight/config"
)

type BuiltInBackendType = string

const (
	FSBackendType       BuiltInBackendType = config.FSBackend
	SnapshotBackendType BuiltInBackendType = config.SnapshotBackend
)

// RegisterBuiltins registers all built-in backends by default
// or only the specific ones if keys are provided
func RegisterBuiltins(backendTypes ...BuiltInBackendType) {
	registerBuiltins(defaultRegistry, backendTypes...)
}

func registerBuiltins(r *Registry, backendTypes ...BuiltInBackendType) {
	if len(backendTypes) == 0 {
		backendTypes = append(backendTypes, FSBackendType, SnapshotBackendType)
	}

	for _, key := range backendTypes {
		switch key {
		case FSBackendType:
			r.Register(key, func(cfg *config.Config) (alight.Backend, error) {
				b, err := NewFS(cfg)
				if err != nil {
					return nil, err
				}
				return b, nil
			})
		case SnapshotBackendType:
			r.Register(key, func(cfg *config.Config) (alight.Backend, error) {
				b, err := NewSnapshot(cfg)
				if err != nil {
					return nil, err
				}
				return b, nil
			})
		}
	}
}
