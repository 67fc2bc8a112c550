package cli

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"docqa/internal/domain"
	"docqa/internal/tui"
)

var (
	chatSession   string
	chatNoCache   bool
	chatSummarize bool
	chatTopK      int
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive multi-turn question answering",
	Long: `Opens a terminal chat over the indexed document. Every question carries
the conversation history of the session, so follow-ups like "can you
elaborate on that?" work. Press Ctrl+C or Ctrl+D to leave.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatSession, "session", "", "conversation session id (default: a fresh one)")
	chatCmd.Flags().BoolVar(&chatNoCache, "no-cache", false, "disable the answer cache")
	chatCmd.Flags().BoolVarP(&chatSummarize, "summarize", "s", false, "condense retrieved context before generation")
	chatCmd.Flags().IntVarP(&chatTopK, "top-k", "k", 5, "number of passages to retrieve")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	opts := domain.DefaultOptions()
	opts.UseCache = !chatNoCache
	opts.Summarize = chatSummarize
	opts.TopK = chatTopK
	opts.SessionID = chatSession
	if opts.SessionID == "" {
		opts.SessionID = uuid.NewString()
	}

	program := tea.NewProgram(tui.New(a.pipe, opts), tea.WithAltScreen())
	_, err = program.Run()
	return err
}
