package main

import (
	"github.com/octabyte/mmm-dashboard/config"
	"github.com/octabyte/mmm-dashboard/utils/logger"
	"github.com/spf13/cobra"
)

type app struct {
	envFile string
	cfg     *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "dashboard",
		Short: "MMM dashboard API relay and organization context tools",
		Long: `dashboard serves the authenticated relay between the MMM dashboard
and the modeling backend, and inspects or changes the organization the
dashboard is scoped to.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var files []string
			if a.envFile != "" {
				files = append(files, a.envFile)
			}
			cfg, err := config.Load(files...)
			if err != nil {
				return err
			}
			a.cfg = cfg
			return logger.Init(&logger.Config{
				Level:       cfg.LogLevel,
				Env:         cfg.Env,
				ServiceName: cfg.ServiceName,
			})
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logger.Sync()
		},
	}
	root.PersistentFlags().StringVar(&a.envFile, "env-file", "", "dotenv file to load (default .env)")

	root.AddCommand(newServeCmd(a), newOrgCmd(a))
	return root
}
