package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/martinemde/toolline/internal/config"
	"github.com/martinemde/toolline/sessionstore"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List stored chat sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		store, err := sessionstore.New(cfg.SessionsDir())
		if err != nil {
			return err
		}
		ids, err := store.List()
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			fmt.Println("no sessions")
			return nil
		}
		for _, id := range ids {
			fmt.Println(id)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
}
