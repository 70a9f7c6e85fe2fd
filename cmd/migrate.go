package cmd

import (
	"github.com/spf13/cobra"

	"stocks-simulator/config"
	"stocks-simulator/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(_ *cobra.Command, _ []string) error {
		db, err := config.InitDB(cfg)
		if err != nil {
			return err
		}
		if sqlDB, err := db.DB(); err == nil {
			defer sqlDB.Close()
		}

		if err := database.AutoMigrate(db); err != nil {
			return err
		}
		log.Info().Msg("database migrated")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
