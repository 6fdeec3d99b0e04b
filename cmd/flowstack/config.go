package main

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Config holds all flowstack configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	BackendURL   string `json:"backend_url"`
	DBPath       string `json:"db_path"`
	LogLevel     string `json:"log_level"`
	AutosaveCron string `json:"autosave_cron"`
	WorkflowName string `json:"workflow_name"`
}

func defaultConfig() Config {
	return Config{
		BackendURL:   "http://localhost:8000",
		DBPath:       filepath.Join(flowstackDir(), "flowstack.db"),
		LogLevel:     "info",
		AutosaveCron: "* * * * *",
		WorkflowName: "Untitled Workflow",
	}
}

func flowstackDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".flowstack"
	}
	return filepath.Join(home, ".flowstack")
}

func settingsPath() string {
	return filepath.Join(flowstackDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("FLOWSTACK_BACKEND_URL"); v != "" {
		cfg.BackendURL = v
	}
	if v := os.Getenv("FLOWSTACK_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("FLOWSTACK_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("FLOWSTACK_AUTOSAVE_CRON"); v != "" {
		cfg.AutosaveCron = v
	}
	if v := os.Getenv("FLOWSTACK_WORKFLOW_NAME"); v != "" {
		cfg.WorkflowName = v
	}

	return cfg
}
