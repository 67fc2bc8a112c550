package cli

import (
	"context"

	"github.com/spf13/cobra"
)

var (
	clearMemorySession string
	clearMemoryAll     bool
)

var clearCacheCmd = &cobra.Command{
	Use:   "clear-cache",
	Short: "Remove all cached answers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openCache()
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.Clear(context.Background()); err != nil {
			return err
		}
		cmd.Println("Cache cleared")
		return nil
	},
}

var clearMemoryCmd = &cobra.Command{
	Use:   "clear-memory",
	Short: "Remove conversation history",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openMemory()
		if err != nil {
			return err
		}
		defer store.Close()
		ctx := context.Background()
		if clearMemoryAll {
			ids, err := store.Sessions(ctx)
			if err != nil {
				return err
			}
			for _, id := range ids {
				if err := store.Clear(ctx, id); err != nil {
					return err
				}
			}
			cmd.Printf("Cleared %d session(s)\n", len(ids))
			return nil
		}
		if err := store.Clear(ctx, clearMemorySession); err != nil {
			return err
		}
		cmd.Printf("Conversation memory cleared for session %q\n", clearMemorySession)
		return nil
	},
}

func init() {
	clearMemoryCmd.Flags().StringVar(&clearMemorySession, "session", "default", "session id to clear")
	clearMemoryCmd.Flags().BoolVar(&clearMemoryAll, "all", false, "clear every session")
	rootCmd.AddCommand(clearCacheCmd)
	rootCmd.AddCommand(clearMemoryCmd)
}
