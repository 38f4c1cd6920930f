package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kozaktomas/facewatch/internal/activity"
	"github.com/kozaktomas/facewatch/internal/config"
	"github.com/kozaktomas/facewatch/internal/database"
	"github.com/kozaktomas/facewatch/internal/logging"
	"github.com/kozaktomas/facewatch/internal/registry"
)

var importCmd = &cobra.Command{
	Use:   "import <file.jsonl>",
	Short: "Bulk enroll identities from a JSON-lines file",
	Long: `Bulk enroll identities from a JSON-lines file, one object per line:

  {"id":"...","firstName":"...","lastName":"...","dateOfBirth":"...","gender":"...","embedding":[...],"photoRef":"..."}

Identities that are already enrolled are skipped. Blank lines and lines
starting with # are ignored.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().Int("concurrency", 4, "Number of parallel enrollments")
	importCmd.Flags().Bool("dry-run", false, "Validate the file without enrolling")
}

// importRecord is one line of an import file.
type importRecord struct {
	ID          string    `json:"id"`
	FirstName   string    `json:"firstName"`
	LastName    string    `json:"lastName"`
	DateOfBirth string    `json:"dateOfBirth"`
	Gender      string    `json:"gender"`
	Embedding   []float32 `json:"embedding"`
	PhotoRef    string    `json:"photoRef"`
}

// readImportRecords parses a JSON-lines stream. Errors carry the line number.
func readImportRecords(r io.Reader) ([]importRecord, error) {
	var records []importRecord
	scanner := bufio.NewScanner(r)
	// Lines carry a full embedding.
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		var rec importRecord
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading import file: %w", err)
	}
	return records, nil
}

// importResult counts the outcome of an import run.
type importResult struct {
	Enrolled int
	Skipped  int
	Errors   []error
}

// importRecords enrolls every record through the registry. Duplicates are
// skipped; other failures are collected and do not stop the run.
func importRecords(ctx context.Context, reg *registry.Service, records []importRecord, concurrency int, bar *progressbar.ProgressBar) importResult {
	var (
		result importResult
		mu     sync.Mutex
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(concurrency, 1))

	for i := range records {
		rec := records[i]
		g.Go(func() error {
			_, err := reg.Enroll(ctx, registry.EnrollRequest{
				ID:          rec.ID,
				FirstName:   rec.FirstName,
				LastName:    rec.LastName,
				DateOfBirth: rec.DateOfBirth,
				Gender:      rec.Gender,
				Embedding:   rec.Embedding,
				PhotoRef:    rec.PhotoRef,
				Actor:       database.ActorSystem,
			})

			mu.Lock()
			switch {
			case err == nil:
				result.Enrolled++
			case errors.Is(err, database.ErrConflict):
				result.Skipped++
			default:
				result.Errors = append(result.Errors, fmt.Errorf("identity %q: %w", rec.ID, err))
			}
			mu.Unlock()

			if bar != nil {
				_ = bar.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	return result
}

func runImport(cmd *cobra.Command, args []string) error {
	concurrency, err := mustGetPositiveInt(cmd, "concurrency")
	if err != nil {
		return err
	}
	dryRun := mustGetBool(cmd, "dry-run")

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("opening import file: %w", err)
	}
	defer f.Close()

	records, err := readImportRecords(f)
	if err != nil {
		return err
	}
	fmt.Printf("Records in file: %d\n", len(records))
	if dryRun || len(records) == 0 {
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	logger := logging.New(os.Stderr, config.LogConfig{Level: "warn", Format: cfg.Log.Format})
	ctx := context.Background()

	pool, store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	reg := registry.NewService(store, cfg.Matching.Dim, cfg.Matching.Threshold,
		registry.WithActivity(activity.NewService(store, logger)),
		registry.WithLogger(logger),
	)

	bar := progressbar.NewOptions(len(records),
		progressbar.OptionSetDescription("Enrolling"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("identities"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	result := importRecords(ctx, reg, records, concurrency, bar)
	fmt.Printf("\nEnrolled: %d, already enrolled: %d, failed: %d\n", result.Enrolled, result.Skipped, len(result.Errors))
	if len(result.Errors) > 0 {
		for _, e := range result.Errors {
			fmt.Printf("  - %v\n", e)
		}
		return fmt.Errorf("%d identities failed to import", len(result.Errors))
	}
	return nil
}
