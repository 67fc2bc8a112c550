package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"docqa/internal/domain"
)

var (
	askNoCache        bool
	askSummarize      bool
	askConversational bool
	askSession        string
	askTopK           int
	askJSON           bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question about the indexed document",
	Args:  cobra.ExactArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askNoCache, "no-cache", false, "disable the answer cache for this query")
	askCmd.Flags().BoolVarP(&askSummarize, "summarize", "s", false, "condense retrieved context before generation")
	askCmd.Flags().BoolVarP(&askConversational, "conversational", "c", false, "use conversation memory for follow-up questions")
	askCmd.Flags().StringVar(&askSession, "session", "default", "conversation session id")
	askCmd.Flags().IntVarP(&askTopK, "top-k", "k", 5, "number of passages to retrieve")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output the result as JSON")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	opts := domain.DefaultOptions()
	opts.UseCache = !askNoCache
	opts.Summarize = askSummarize
	opts.Conversational = askConversational
	opts.SessionID = askSession
	opts.TopK = askTopK

	result, err := a.pipe.Answer(context.Background(), args[0], opts)
	if err != nil {
		return err
	}

	if askJSON {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		cmd.Println(string(data))
		return nil
	}

	printResult(cmd, result)
	return nil
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	pageStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

func printResult(cmd *cobra.Command, result *domain.QueryResult) {
	cmd.Println(headerStyle.Render("Answer:"))
	cmd.Println(result.Answer)
	cmd.Println()
	cmd.Println(headerStyle.Render("Sources:"))
	for i, src := range result.Sources {
		label := fmt.Sprintf("  [%d] Page %d (%s)  score=%.3f", i+1, src.Page, src.Modality, src.Score)
		cmd.Println(pageStyle.Render(label))
		cmd.Printf("      %s\n", preview(src.Text, 150))
	}
	cmd.Println()
	timing := fmt.Sprintf("%.2fs", result.Elapsed.Seconds())
	if result.CacheHit {
		timing += " (cached)"
	}
	cmd.Println(dimStyle.Render(timing))
}

func preview(text string, limit int) string {
	flat := strings.Join(strings.Fields(text), " ")
	if len(flat) <= limit {
		return flat
	}
	return flat[:limit] + "..."
}
