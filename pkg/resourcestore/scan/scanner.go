// Package scan walks every object under a prefix one listing page at a time
// and hands each summary to a Processor. Unlike resourcestore.ListAll it
// never holds more than one page in memory.
package scan

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tendant/simple-resource/pkg/resourcestore"
)

// Scanner pages through a gateway's listing.
type Scanner struct {
	gateway resourcestore.Gateway
	logger  *slog.Logger
}

// New creates a new Scanner instance.
func New(gw resourcestore.Gateway, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{gateway: gw, logger: logger}
}

// Options configures the scan operation.
type Options struct {
	// Prefix selects the objects to process.
	Prefix string

	// Processor defines the processing logic (required unless DryRun is true)
	Processor Processor

	// DryRun reports what would be processed without calling Processor
	DryRun bool

	// OnProgress is called after each page is processed (optional)
	OnProgress func(processed, found int64)
}

// Result contains statistics about the scan operation.
type Result struct {
	TotalFound     int64
	TotalProcessed int64
	TotalFailed    int64
	FailedKeys     []string
}

// Scan lists objects under opts.Prefix and processes each one. A processor
// failure is recorded in the result and the scan moves on; a listing failure
// stops the scan and is returned with the partial result.
func (s *Scanner) Scan(ctx context.Context, opts Options) (*Result, error) {
	result := &Result{}

	if !opts.DryRun && opts.Processor == nil {
		return result, fmt.Errorf("processor is required when DryRun is false")
	}

	seen := make(map[string]struct{})
	token := ""
	for {
		page, err := s.gateway.ListPage(ctx, opts.Prefix, token)
		if err != nil {
			return result, fmt.Errorf("failed to list %s: %w", opts.Prefix, err)
		}

		result.TotalFound += int64(len(page.Summaries))

		for _, summary := range page.Summaries {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			if opts.DryRun {
				s.logger.Info("[DRY-RUN] Would process", "key", summary.Key, "size", summary.Size)
				result.TotalProcessed++
				continue
			}

			if err := opts.Processor.Process(ctx, summary); err != nil {
				result.TotalFailed++
				result.FailedKeys = append(result.FailedKeys, summary.Key)
				s.logger.Error("Failed to process object", "key", summary.Key, "error", err)
				continue
			}
			result.TotalProcessed++
		}

		if opts.OnProgress != nil {
			opts.OnProgress(result.TotalProcessed+result.TotalFailed, result.TotalFound)
		}

		if page.NextToken == "" {
			return result, nil
		}
		if _, dup := seen[page.NextToken]; dup {
			return result, &resourcestore.StorageError{
				Key:  opts.Prefix,
				Op:   "scan",
				Kind: resourcestore.ErrUnavailable,
				Err:  fmt.Errorf("continuation token %q repeated", page.NextToken),
			}
		}
		seen[page.NextToken] = struct{}{}
		token = page.NextToken
	}
}

// ForEach processes each object under prefix with fn.
//
//	scanner.ForEach(ctx, "resources/42/", func(ctx context.Context, s resourcestore.ObjectSummary) error {
//	    fmt.Println(s.Key)
//	    return nil
//	})
func (s *Scanner) ForEach(ctx context.Context, prefix string, fn func(context.Context, resourcestore.ObjectSummary) error) (*Result, error) {
	return s.Scan(ctx, Options{Prefix: prefix, Processor: ProcessorFunc(fn)})
}
