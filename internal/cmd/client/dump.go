package client

import (
	"fmt"

	"github.com/rzbill/buildlog/internal/event"
	"github.com/rzbill/buildlog/internal/filter"
	"github.com/rzbill/buildlog/internal/replay"
	"github.com/spf13/cobra"
)

// NewDumpCommand constructs `dump`, which decodes local stream files.
func NewDumpCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump <file>...",
		Short: "Decode stream files and print their events",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			expr, _ := cmd.Flags().GetString("filter")
			format, _ := cmd.Flags().GetString("format")
			stats, _ := cmd.Flags().GetBool("stats")
			maxRecord, _ := cmd.Flags().GetInt("max-record-bytes")
			if format != "text" && format != "json" {
				return fmt.Errorf("invalid --format %q; use text|json", format)
			}
			f, err := filter.Compile(expr)
			if err != nil {
				return err
			}
			results, err := replay.Files(cmd.Context(), args, replay.Options{Filter: f, MaxRecordBytes: maxRecord})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			failed := 0
			for _, res := range results {
				if len(results) > 1 && format == "text" {
					fmt.Fprintf(out, "== %s\n", res.Path)
				}
				for _, e := range res.Entries {
					v := event.Describe(e.Event)
					if format == "json" {
						if err := printJSON(out, map[string]any{"file": res.Path, "seq": e.Seq, "offset": e.Offset, "event": v}); err != nil {
							return err
						}
						continue
					}
					printView(out, e.Seq, v)
				}
				if stats {
					if format == "json" {
						_ = printJSON(out, map[string]any{"file": res.Path, "stats": res.Stats})
					} else {
						s := res.Stats
						fmt.Fprintf(out, "version=%d newer=%t records=%d unknown=%d malformed=%d matched=%d bytes=%d\n",
							s.Version, s.Newer, s.Records, s.Unknown, s.Malformed, s.Matched, s.Bytes)
					}
				}
				if res.Err != nil {
					failed++
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", res.Path, res.Err)
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed", failed, len(results))
			}
			return nil
		},
	}
	cmd.Flags().String("filter", "", "CEL expression selecting events, e.g. kind == \"Error\"")
	cmd.Flags().String("format", "text", "Output format: text|json")
	cmd.Flags().Bool("stats", false, "Print per-file statistics")
	cmd.Flags().Int("max-record-bytes", 0, "Reject records larger than this (0 uses the reader default)")
	return cmd
}
