package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"docqa/internal/domain"
)

var loadBatchSize int

var loadCmd = &cobra.Command{
	Use:   "load [chunks.jsonl]",
	Short: "Load pre-chunked passages into the vector index",
	Long: `Reads chunks produced by the upstream ingestion job, one JSON object per
line ({"id", "text", "page", "modality"}), embeds each text and upserts it
into the vector index. Re-loading the same chunk ids overwrites in place.`,
	Args: cobra.ExactArgs(1),
	RunE: runLoad,
}

func init() {
	loadCmd.Flags().IntVar(&loadBatchSize, "batch-size", 32, "number of chunks upserted per batch")
	rootCmd.AddCommand(loadCmd)
}

func runLoad(cmd *cobra.Command, args []string) error {
	embedder, err := buildEmbedder()
	if err != nil {
		return err
	}
	index, err := buildIndex()
	if err != nil {
		return err
	}

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	ctx := context.Background()
	var (
		batch       []domain.Chunk
		total       int
		initialized bool
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := index.Upsert(ctx, batch); err != nil {
			return err
		}
		total += len(batch)
		batch = batch[:0]
		return nil
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var chunk domain.Chunk
		if err := json.Unmarshal(raw, &chunk); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if chunk.ID == "" || chunk.Text == "" {
			return fmt.Errorf("line %d: chunk needs id and text", line)
		}
		if chunk.Modality == "" {
			chunk.Modality = domain.ModalityText
		}
		vector, err := embedder.Embed(ctx, chunk.Text)
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		chunk.Embedding = vector

		if !initialized {
			if bootstrapper, ok := index.(interface {
				Init(ctx context.Context, dimension int) error
			}); ok {
				if err := bootstrapper.Init(ctx, len(vector)); err != nil {
					return err
				}
			}
			initialized = true
		}

		batch = append(batch, chunk)
		if len(batch) >= loadBatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if err := flush(); err != nil {
		return err
	}

	cmd.Printf("Loaded %d chunk(s)\n", total)
	return nil
}
