package client

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	transports "github.com/rzbill/buildlog/internal/cmd/client/transports"
	"github.com/spf13/cobra"
)

// NewBuildCommand constructs the `build` command group.
func NewBuildCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{Use: "build", Short: "Build operations against a server"}
	cmd.PersistentFlags().String("project", "default", "Project name")
	cmd.AddCommand(
		newBuildIngestCommand(baseURL),
		newBuildListCommand(baseURL),
		newBuildGetCommand(baseURL),
		newBuildEventsCommand(baseURL),
		newBuildExportCommand(baseURL),
	)
	return cmd
}

func getTransport(name string, baseURL BaseURLFunc) (transports.BuildsTransport, error) {
	switch name {
	case "", "http":
		return transports.NewHTTPTransport(baseURL, nil), nil
	case "grpc":
		return transports.NewGrpcTransport(dialGRPCContext), nil
	default:
		return nil, fmt.Errorf("invalid --transport %q; use http|grpc", name)
	}
}

func newBuildIngestCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <file|->",
		Short: "Upload a stream file as a new build",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			project, _ := cmd.Flags().GetString("project")
			source, _ := cmd.Flags().GetString("source")
			tname, _ := cmd.Flags().GetString("transport")
			t, err := getTransport(tname, baseURL)
			if err != nil {
				return err
			}
			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
				if source == "" {
					source = filepath.Base(args[0])
				}
			}
			info, err := t.Ingest(cmd.Context(), project, source, r)
			if info.ID != "" {
				_ = printJSON(cmd.OutOrStdout(), info)
			}
			return err
		},
	}
	cmd.Flags().String("source", "", "Source label stored with the build (defaults to the file name)")
	cmd.Flags().String("transport", "http", "Transport: http|grpc")
	return cmd
}

func newBuildListCommand(baseURL BaseURLFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the builds of a project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			project, _ := cmd.Flags().GetString("project")
			builds, err := transports.NewHTTPTransport(baseURL, nil).Builds(cmd.Context(), project)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, b := range builds {
				fmt.Fprintf(out, "%s v%d records=%d unknown=%d malformed=%d %s\n",
					b.ID, b.SchemaVersion, b.Records, b.Unknown, b.Malformed, b.Source)
			}
			return nil
		},
	}
}

func newBuildGetCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <build>",
		Short: "Show a build's summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			project, _ := cmd.Flags().GetString("project")
			tname, _ := cmd.Flags().GetString("transport")
			t, err := getTransport(tname, baseURL)
			if err != nil {
				return err
			}
			info, err := t.Build(cmd.Context(), project, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), info)
		},
	}
	cmd.Flags().String("transport", "http", "Transport: http|grpc")
	return cmd
}

func newBuildEventsCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events <build>",
		Short: "Print stored events of a build",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			project, _ := cmd.Flags().GetString("project")
			expr, _ := cmd.Flags().GetString("filter")
			after, _ := cmd.Flags().GetUint64("after")
			limit, _ := cmd.Flags().GetInt("limit")
			group, _ := cmd.Flags().GetString("group")
			waitMs, _ := cmd.Flags().GetInt64("wait-ms")
			follow, _ := cmd.Flags().GetBool("follow")
			format, _ := cmd.Flags().GetString("format")
			if format != "text" && format != "json" {
				return fmt.Errorf("invalid --format %q; use text|json", format)
			}
			if follow && waitMs == 0 {
				waitMs = 10_000
			}

			t := transports.NewHTTPTransport(baseURL, nil)
			out := cmd.OutOrStdout()
			req := transports.EventsRequest{Project: project, Build: args[0], Filter: expr, After: after, Limit: limit, Group: group, WaitMs: waitMs}
			for {
				page, err := t.Events(cmd.Context(), req)
				if err != nil {
					return err
				}
				for _, ev := range page.Events {
					if format == "json" {
						if err := printJSON(out, ev); err != nil {
							return err
						}
						continue
					}
					printView(out, ev.Seq, ev.View)
				}
				prev := req.After
				if page.Next > req.After {
					req.After = page.Next
				}
				if !follow && (limit > 0 || req.After == prev) {
					return nil
				}
				if err := cmd.Context().Err(); err != nil {
					return nil
				}
			}
		},
	}
	cmd.Flags().String("filter", "", "CEL expression selecting events")
	cmd.Flags().Uint64("after", 0, "Resume after this sequence")
	cmd.Flags().Int("limit", 0, "Max events per page; with a limit only one page is printed")
	cmd.Flags().String("group", "", "Commit the read position under this consumer group")
	cmd.Flags().Int64("wait-ms", 0, "Long-poll for new events when none match")
	cmd.Flags().Bool("follow", false, "Keep polling for new events")
	cmd.Flags().String("format", "text", "Output format: text|json")
	return cmd
}

func newBuildExportCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <build>",
		Short: "Download a build as a stream file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			project, _ := cmd.Flags().GetString("project")
			version, _ := cmd.Flags().GetUint64("version")
			output, _ := cmd.Flags().GetString("output")
			var w io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			_, err := transports.NewHTTPTransport(baseURL, nil).Export(cmd.Context(), project, args[0], version, w)
			return err
		},
	}
	cmd.Flags().Uint64("version", 0, "Schema version to encode (0 uses the server default)")
	cmd.Flags().StringP("output", "o", "", "Output file (default stdout)")
	return cmd
}
