package app

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Create the database tables",
	Long:  "Creates the emails and llm_usage tables and their indexes. Safe to run repeatedly.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := bootstrap()
		if err != nil {
			return err
		}
		defer logger.Sync()

		ctx := context.Background()
		st, err := openStore(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer st.Close()

		fmt.Println("Running migrations...")
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		fmt.Printf("✓ Database setup complete (%s)\n", cfg.Database.Driver)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(setupCmd)
}
