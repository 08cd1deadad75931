package main

import (
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/tendant/simple-resource/pkg/resourcestore"
	"github.com/tendant/simple-resource/pkg/resourcestore/config"
	"github.com/tendant/simple-resource/pkg/resourcestore/scan"
)

func parseOwnerID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid owner ID %q: %w", s, err)
	}
	return id, nil
}

// NewListCommand creates the ls command
func NewListCommand() *cobra.Command {
	var summaries bool
	var prefix bool

	cmd := &cobra.Command{
		Use:   "ls <owner-id | prefix>",
		Short: "List an owner's resources",
		Long:  `List the resource names of an owner, or every object under a raw prefix with --prefix.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := storeFromFlags(cmd)
			if err != nil {
				return fmt.Errorf("failed to create store: %w", err)
			}
			out := cmd.OutOrStdout()

			if prefix {
				items, err := store.ListSummariesByPrefix(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("list failed: %w", err)
				}
				return printSummaries(out, items)
			}

			ownerID, err := parseOwnerID(args[0])
			if err != nil {
				return err
			}
			if summaries {
				items, err := store.ListSummaries(cmd.Context(), ownerID)
				if err != nil {
					return fmt.Errorf("list failed: %w", err)
				}
				return printSummaries(out, items)
			}

			names, err := store.ListNames(cmd.Context(), ownerID)
			if err != nil {
				return fmt.Errorf("list failed: %w", err)
			}
			for _, name := range names {
				fmt.Fprintln(out, name)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&summaries, "long", "l", false, "show size, modification time and ETag")
	cmd.Flags().BoolVar(&prefix, "prefix", false, "treat the argument as a raw key prefix")

	return cmd
}

func printSummaries(out io.Writer, items []resourcestore.ObjectSummary) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tSIZE\tMODIFIED\tETAG")
	for _, s := range items {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", s.Key, s.Size, s.LastModified.UTC().Format(time.RFC3339), s.ETag)
	}
	return tw.Flush()
}

// NewGetCommand creates the get command
func NewGetCommand() *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Download a resource by key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := storeFromFlags(cmd)
			if err != nil {
				return fmt.Errorf("failed to create store: %w", err)
			}

			obj, found, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("get failed: %w", err)
			}
			if !found {
				return fmt.Errorf("resource not found: %s", args[0])
			}
			defer obj.Body.Close()

			var w io.Writer = cmd.OutOrStdout()
			if outputPath != "" {
				f, err := os.Create(outputPath)
				if err != nil {
					return fmt.Errorf("failed to create output file: %w", err)
				}
				defer f.Close()
				w = f
			}

			if _, err := io.Copy(w, obj.Body); err != nil {
				return fmt.Errorf("download failed: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "output file path (default: stdout)")

	return cmd
}

// NewPutCommand creates the put command
func NewPutCommand() *cobra.Command {
	var mimeType string
	var owner string
	var base64Input bool

	cmd := &cobra.Command{
		Use:   "put <key> <file>",
		Short: "Upload a file; existing resources are never overwritten",
		Long: `Upload a file to key. With --owner, key is a name relative to the owner's
folder. With --base64, the file holds base64 or data-URI text that is decoded
before storing; undecodable input is skipped.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, filePath := args[0], args[1]

			if base64Input && owner == "" {
				return fmt.Errorf("--base64 requires --owner")
			}
			if mimeType == "" {
				mimeType = mime.TypeByExtension(filepath.Ext(key))
			}

			data, err := os.ReadFile(filePath)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", filePath, err)
			}

			store, err := storeFromFlags(cmd)
			if err != nil {
				return fmt.Errorf("failed to create store: %w", err)
			}

			switch {
			case owner == "":
				err = store.PutBytes(cmd.Context(), key, data, mimeType)
			default:
				ownerID, perr := parseOwnerID(owner)
				if perr != nil {
					return perr
				}
				if base64Input {
					if _, derr := resourcestore.DecodeBase64(string(data)); derr != nil {
						return fmt.Errorf("invalid base64 in %s: %w", filePath, derr)
					}
					err = store.PutBase64In(cmd.Context(), ownerID, key, mimeType, string(data))
				} else {
					err = store.PutBytes(cmd.Context(), store.Codec().Join(ownerID, key), data, mimeType)
				}
				key = store.Codec().Join(ownerID, key)
			}
			if err != nil {
				return fmt.Errorf("upload failed: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Stored %s\n", key)
			return nil
		},
	}

	cmd.Flags().StringVarP(&mimeType, "mime-type", "m", "", "content type (default: guessed from the key extension)")
	cmd.Flags().StringVar(&owner, "owner", "", "owner ID; key becomes relative to the owner's folder")
	cmd.Flags().BoolVar(&base64Input, "base64", false, "decode the file as base64 or data-URI text")

	return cmd
}

// NewMkdirCommand creates the mkdir command
func NewMkdirCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <key>",
		Short: "Create an empty folder marker object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := storeFromFlags(cmd)
			if err != nil {
				return fmt.Errorf("failed to create store: %w", err)
			}
			if err := store.PutMarker(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("mkdir failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", args[0])
			return nil
		},
	}
}

// NewRemoveCommand creates the rm command
func NewRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <key>...",
		Short: "Delete resources; missing keys are ignored",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := storeFromFlags(cmd)
			if err != nil {
				return fmt.Errorf("failed to create store: %w", err)
			}
			for _, key := range args {
				if err := store.Delete(cmd.Context(), key); err != nil {
					return fmt.Errorf("delete %s failed: %w", key, err)
				}
			}
			return nil
		},
	}
}

// NewRemoveDirCommand creates the rmdir command
func NewRemoveDirCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rmdir <prefix>",
		Short: "Delete every object under a prefix",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := storeFromFlags(cmd)
			if err != nil {
				return fmt.Errorf("failed to create store: %w", err)
			}
			if err := store.DeleteDirectory(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("rmdir failed: %w", err)
			}
			return nil
		},
	}
}

// NewCopyCommand creates the cp command
func NewCopyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cp <content-type> <src> <dst>",
		Short: "Copy a resource within a content type directory",
		Long:  `Copy src to dst, both relative to the directory of content-type (image, document, xml, text, log, other).`,
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			contentType, err := resourcestore.ParseContentFileType(args[0])
			if err != nil {
				return err
			}
			store, err := storeFromFlags(cmd)
			if err != nil {
				return fmt.Errorf("failed to create store: %w", err)
			}
			if err := store.Copy(cmd.Context(), contentType, args[1], args[2]); err != nil {
				return fmt.Errorf("copy failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Copied %s to %s\n",
				store.RelativePath(contentType, args[1]), store.RelativePath(contentType, args[2]))
			return nil
		},
	}
}

// NewSummaryCommand creates the summary command
func NewSummaryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "summary <content-type> [directory]",
		Short: "Summarize the files of a content type directory",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			contentType, err := resourcestore.ParseContentFileType(args[0])
			if err != nil {
				return err
			}
			directory := ""
			if len(args) == 2 {
				directory = args[1]
			}

			store, err := storeFromFlags(cmd)
			if err != nil {
				return fmt.Errorf("failed to create store: %w", err)
			}
			items, err := store.ResourcesSummary(cmd.Context(), contentType, directory)
			if err != nil {
				return fmt.Errorf("summary failed: %w", err)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSIZE\tTYPE\tPATH")
			for _, item := range items {
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", item.Name, item.Size, item.ContentType, item.Path)
			}
			return tw.Flush()
		},
	}
}

// NewLinkCommand creates the link command
func NewLinkCommand() *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "link <key>",
		Short: "Print a time-limited read link",
		Long:  `Print a credential-free read link. Lifetimes are capped at six days.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := storeFromFlags(cmd)
			if err != nil {
				return fmt.Errorf("failed to create store: %w", err)
			}

			var link string
			if ttl > 0 {
				link, err = store.ShareableURLFor(cmd.Context(), args[0], ttl)
			} else {
				link, err = store.ShareableURL(cmd.Context(), args[0])
			}
			if err != nil {
				return fmt.Errorf("link failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), link)
			return nil
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", 0, "link lifetime (default: RESOURCE_LINK_TTL)")

	return cmd
}

// NewVerifyCommand creates the verify command
func NewVerifyCommand() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "verify <prefix>",
		Short: "Check that every object under a prefix can be read in full",
		Long: `Read every object under prefix one listing page at a time and compare the
bytes served with the size reported by the listing.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := storeFromFlags(cmd)
			if err != nil {
				return fmt.Errorf("failed to create store: %w", err)
			}

			out := cmd.OutOrStdout()
			verbose, _ := cmd.Flags().GetBool("verbose")
			scanner := scan.New(store.Gateway(), config.LogConfig{Level: "info"}.Logger(cmd.ErrOrStderr()))
			result, err := scanner.Scan(cmd.Context(), scan.Options{
				Prefix:    args[0],
				Processor: scan.SizeVerifier{Gateway: store.Gateway()},
				DryRun:    dryRun,
				OnProgress: func(processed, found int64) {
					if verbose {
						fmt.Fprintf(out, "Processed %d/%d\n", processed, found)
					}
				},
			})
			if err != nil {
				return fmt.Errorf("verify failed: %w", err)
			}

			fmt.Fprintf(out, "Found: %d, verified: %d, failed: %d\n", result.TotalFound, result.TotalProcessed, result.TotalFailed)
			for _, key := range result.FailedKeys {
				fmt.Fprintf(out, "FAILED %s\n", key)
			}
			if result.TotalFailed > 0 {
				return fmt.Errorf("%d objects failed verification", result.TotalFailed)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list the objects that would be verified")

	return cmd
}

// NewEnvCommand creates the env command
func NewEnvCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Describe the configuration environment variables",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), config.Usage())
		},
	}
}
