package config

// WorkspaceConfig configures the working directory the file tools are
// rooted at. Resolver escape checks live in internal/tools/files; this
// struct only carries where that root is.
type WorkspaceConfig struct {
	Path     string `yaml:"path"`
	MaxChars int    `yaml:"max_chars"`
}

func DefaultWorkspaceConfig() WorkspaceConfig {
	return WorkspaceConfig{Path: ".", MaxChars: 200_000}
}

func applyWorkspaceDefaults(cfg *WorkspaceConfig) {
	if cfg.Path == "" {
		cfg.Path = "."
	}
	if cfg.MaxChars == 0 {
		cfg.MaxChars = 200_000
	}
}
