package cmd

import (
	"github.com/spf13/cobra"

	"stocks-simulator/config"
	"stocks-simulator/database"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Migrate the database and load the demo account",
	RunE: func(cmd *cobra.Command, _ []string) error {
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
		created, err := database.Seed(cmd.Context(), db)
		if err != nil {
			return err
		}
		if !created {
			log.Info().Str("email", database.SeedEmail).Msg("demo account already exists, nothing to do")
			return nil
		}
		log.Info().Str("email", database.SeedEmail).Str("password", database.SeedPassword).Msg("demo account created")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
