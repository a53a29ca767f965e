package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/opportunity-cli/internal/queue"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply schema migrations to the record and queue stores",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate record store")
		}
		fmt.Println("record store migrated")

		qs, err := queue.NewSQLite(cfg.Queue.DatabasePath)
		if err != nil {
			return eris.Wrap(err, "open queue store")
		}
		defer qs.Close()
		if err := qs.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate queue store")
		}
		fmt.Println("queue store migrated")

		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
