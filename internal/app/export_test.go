package app

import "github.com/MrWong99/daymind/internal/config"

// ApplyConfig exposes the watcher callback to tests.
func (a *App) ApplyConfig(old, new *config.Config) { a.applyConfig(old, new) }
