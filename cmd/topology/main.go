package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/InfraSecConsult/pcap-topology-go/internal/config"
	"github.com/InfraSecConsult/pcap-topology-go/internal/export"
	"github.com/InfraSecConsult/pcap-topology-go/internal/parser"
	"github.com/InfraSecConsult/pcap-topology-go/internal/repository"
	"github.com/InfraSecConsult/pcap-topology-go/internal/topology"
	"github.com/InfraSecConsult/pcap-topology-go/internal/version"
	"github.com/InfraSecConsult/pcap-topology-go/lib/helper"
)

const (
	exitFailure        = 1
	exitRouterNotFound = 3
	exitClassification = 4

	toolVersionKey = "tool_version"
	latestAlias    = "latest"
)

// DependencyProvider allows injection for testability.
// Nil fields are replaced by the real implementations.
type DependencyProvider struct {
	Source     parser.RecordSource
	Repository repository.Repository
	Builder    topology.Builder
}

// settings is what the root command resolves before any subcommand runs.
type settings struct {
	cfg       *config.Config
	tables    *helper.ReferenceTables
	logCloser io.Closer
}

func (p *DependencyProvider) openRepository(dbPath string) (repository.Repository, error) {
	if p.Repository != nil {
		return p.Repository, nil
	}
	repo, err := repository.NewSQLiteRepository(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return repo, nil
}

func (p *DependencyProvider) recordSource(path string, s *settings) parser.RecordSource {
	if p.Source != nil {
		return p.Source
	}
	handler := parser.NewDefaultErrorHandler()
	handler.SetErrorThreshold(s.cfg.ErrorThreshold)
	return parser.NewRecordSource(path, s.tables, handler)
}

func (p *DependencyProvider) topologyBuilder() topology.Builder {
	if p.Builder != nil {
		return p.Builder
	}
	return topology.NewEngine()
}

// Close releases the log file. It is called after Execute so that failing
// commands, which skip cobra's post-run hooks, release it too.
func (s *settings) Close() error {
	if s.logCloser == nil {
		return nil
	}
	err := s.logCloser.Close()
	s.logCloser = nil
	return err
}

// newRootCmd wires up the CLI with the given dependencies. The returned closer
// must be closed once the command has run.
func newRootCmd(provider *DependencyProvider) (*cobra.Command, io.Closer) {
	v := config.NewViper()
	s := &settings{}
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "topology",
		Short:         "Infer the network topology seen in a packet capture",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v, configFile)
			if err != nil {
				return err
			}
			if err := export.ValidateFormat(cfg.Format); err != nil {
				return err
			}
			closer, err := cfg.SetupLogging()
			if err != nil {
				return fmt.Errorf("failed to set up logging: %w", err)
			}
			s.cfg, s.logCloser = cfg, closer

			if cfg.ReferenceDir == "" {
				s.tables = helper.DefaultReferenceTables()
				return nil
			}
			s.tables, err = helper.LoadReferenceTables(cfg.ReferenceDir)
			return err
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "Config file (default ./topology.yaml or $HOME/.topology/topology.yaml)")
	flags.String("db-path", "topology.sqlite", "Path to the SQLite database file")
	flags.String("format", "table", "Output format: table, json, yaml")
	flags.String("log-level", "info", "Log level: debug, info, warn, error")
	flags.String("log-file", "", "Write JSON logs to this file instead of stderr")
	flags.String("reference-dir", "", "Directory with ethertypes.json, ip-protocol-numbers.json and ports.json")
	flags.Int("error-threshold", 100, "Stop reading a capture after this many undecodable packets (0 disables)")
	bindFlags(v, rootCmd)

	rootCmd.AddCommand(
		newBuildCmd(provider, s),
		newConvertCmd(provider, s),
		newRunsCmd(provider, s),
		newShowCmd(provider, s),
		newVersionCmd(),
	)
	return rootCmd, s
}

func bindFlags(v *viper.Viper, cmd *cobra.Command) {
	for key, flag := range map[string]string{
		config.KeyDBPath:         "db-path",
		config.KeyFormat:         "format",
		config.KeyLogLevel:       "log-level",
		config.KeyLogFile:        "log-file",
		config.KeyReferenceDir:   "reference-dir",
		config.KeyErrorThreshold: "error-threshold",
	} {
		if err := v.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(err)
		}
	}
}

func newBuildCmd(provider *DependencyProvider, s *settings) *cobra.Command {
	var (
		noStore bool
		outPath string
	)
	cmd := &cobra.Command{
		Use:   "build <capture>",
		Short: "Build the topology of a pcap or JSON record file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			capture := args[0]
			startTime := time.Now()

			records, err := provider.recordSource(capture, s).ReadRecords()
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", capture, err)
			}
			top, err := provider.topologyBuilder().Build(capture, records)
			if err != nil {
				return err
			}

			if !noStore {
				repo, err := provider.openRepository(s.cfg.DBPath)
				if err != nil {
					return err
				}
				defer repo.Close()

				runID, err := repo.SaveTopology(top)
				if err != nil {
					return fmt.Errorf("failed to store topology: %w", err)
				}
				if err := repo.SetKeyValue(toolVersionKey, version.GetVersion()); err != nil {
					return err
				}
				if err := repo.Commit(); err != nil {
					return err
				}
				log.Info().Str("run", runID).Str("db", s.cfg.DBPath).Msg("Topology stored")
			}

			render := func(w io.Writer) error {
				return export.Render(w, top, s.cfg.Format, s.tables)
			}
			if outPath == "" {
				err = render(cmd.OutOrStdout())
			} else {
				err = renderToFile(outPath, render)
			}
			if err != nil {
				return err
			}
			log.Info().
				Str("capture", capture).
				Int("devices", len(top.Devices)).
				Int("edges", len(top.Edges)).
				Dur("duration", time.Since(startTime)).
				Msg("Build finished")
			return nil
		},
	}
	cmd.Flags().BoolVar(&noStore, "no-store", false, "Do not save the run in the database")
	cmd.Flags().StringVar(&outPath, "out", "", "Write the rendered topology to this file instead of stdout")
	return cmd
}

// renderToFile writes through render into path. The close error is reported
// because it can carry the final write failure.
func renderToFile(path string, render func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := render(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	return nil
}

func newConvertCmd(provider *DependencyProvider, s *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "convert <pcap> <out.json>",
		Short: "Convert a pcap capture into a JSON record file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := parser.ConvertCapture(provider.recordSource(args[0], s), args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d records to %s\n", n, args[1])
			return nil
		},
	}
}

func newRunsCmd(provider *DependencyProvider, s *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "runs",
		Short: "List stored topology runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := provider.openRepository(s.cfg.DBPath)
			if err != nil {
				return err
			}
			defer repo.Close()

			runs, err := repo.ListRuns()
			if err != nil {
				return err
			}
			return export.RenderRuns(cmd.OutOrStdout(), runs, s.cfg.Format)
		},
	}
}

func newShowCmd(provider *DependencyProvider, s *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id|latest>",
		Short: "Render a stored topology run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := provider.openRepository(s.cfg.DBPath)
			if err != nil {
				return err
			}
			defer repo.Close()

			runID := args[0]
			if runID == latestAlias {
				latest, ok, err := repo.GetKeyValue(repository.LatestRunKey)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("%w: no run stored yet", repository.ErrRunNotFound)
				}
				runID = latest
			}
			top, err := repo.GetTopology(runID)
			if err != nil {
				return err
			}
			return export.Render(cmd.OutOrStdout(), top, s.cfg.Format, s.tables)
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), version.GetBuildInfo().String())
			return nil
		},
	}
}

// exitCode maps the engine's named failures to distinct process exit codes.
func exitCode(err error) int {
	switch {
	case errors.Is(err, topology.ErrRouterNotFound):
		return exitRouterNotFound
	case errors.Is(err, topology.ErrClassification):
		return exitClassification
	default:
		return exitFailure
	}
}

func main() {
	provider := &DependencyProvider{}
	rootCmd, logs := newRootCmd(provider)
	err := rootCmd.Execute()
	if cerr := logs.Close(); cerr != nil {
		fmt.Fprintf(os.Stderr, "Failed to close log file: %v\n", cerr)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}
