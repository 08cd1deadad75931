package scan

import (
	"context"
	"fmt"
	"io"

	"github.com/tendant/simple-resource/pkg/resourcestore"
)

// Processor processes individual objects found during a scan.
//
// Example implementations:
//   - Verifier (checks stored content against its listing metadata)
//   - Reporter (exports keys and sizes)
//   - Migrator (copies objects to another backend)
type Processor interface {
	// Process is called for each object found during the scan.
	// Return an error to mark the object as failed; the scan continues.
	Process(ctx context.Context, summary resourcestore.ObjectSummary) error
}

// ProcessorFunc adapts a function to the Processor interface.
type ProcessorFunc func(ctx context.Context, summary resourcestore.ObjectSummary) error

func (f ProcessorFunc) Process(ctx context.Context, summary resourcestore.ObjectSummary) error {
	return f(ctx, summary)
}

// SizeVerifier reads every object in full and checks that the number of
// bytes served matches the size reported by the listing.
type SizeVerifier struct {
	Gateway resourcestore.Gateway
}

func (v SizeVerifier) Process(ctx context.Context, summary resourcestore.ObjectSummary) error {
	obj, err := v.Gateway.Get(ctx, summary.Key)
	if err != nil {
		return err
	}
	defer obj.Body.Close()

	n, err := io.Copy(io.Discard, obj.Body)
	if err != nil {
		return fmt.Errorf("read %s: %w", summary.Key, err)
	}
	if n != summary.Size {
		return fmt.Errorf("size mismatch for %s: listed %d bytes, read %d", summary.Key, summary.Size, n)
	}
	return nil
}
