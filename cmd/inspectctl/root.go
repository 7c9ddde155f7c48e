package main

import (
	"errors"
	"strings"

	"github.com/mmdatafocus/inspection_backend/config"
	"github.com/mmdatafocus/inspection_backend/notify"
	"github.com/mmdatafocus/inspection_backend/store"
	"github.com/mmdatafocus/inspection_backend/utils"
	"github.com/mmdatafocus/inspection_backend/workflow"
	"github.com/spf13/cobra"
)

var projectId string

var rootCmd = &cobra.Command{
	Use:           "inspectctl",
	Short:         "Operate the inspection reconciliation backend",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&projectId, "project", "", "project id the command runs against")
}

// newEngine connects the configured store. Tests replace it with an in-memory engine.
var newEngine = func() (*workflow.Engine, error) {
	settings, err := config.LoadEngineSettings()
	if err != nil {
		return nil, err
	}
	notifier, err := notify.NewFromEnv()
	if err != nil {
		return nil, err
	}
	var st store.Store
	if strings.EqualFold(config.EnvOrDefault("STORE_DRIVER", "mysql"), "memory") {
		st = store.NewMemoryStore()
	} else {
		config.ConnectDatabaseWithRetry()
		if config.GetDB() == nil {
			return nil, errors.New("database not initialized")
		}
		st = store.NewGormStore(config.GetDB())
	}
	return workflow.NewEngine(workflow.Options{
		Store:        st,
		Logger:       config.GetLogger(),
		Settings:     settings,
		Notifier:     notifier,
		SignEvidence: utils.SignEvidenceURL,
	}), nil
}

func requireProject() error {
	if strings.TrimSpace(projectId) == "" {
		return errors.New("--project is required")
	}
	return nil
}
