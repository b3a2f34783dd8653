package profile

import "github.com/matheus3301/wisp/internal/config"

// Resolve determines the active profile name: flag override first, then
// the config file's default, then "main".
func Resolve(flagOverride string) string {
	if flagOverride != "" {
		return flagOverride
	}
	cfg, err := config.Load(ConfigPath())
	if err == nil && cfg.DefaultProfile != "" {
		return cfg.DefaultProfile
	}
	return DefaultName
}
