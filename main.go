package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"photosorter/config"
	"photosorter/database"
	"photosorter/geocoder"
	"photosorter/imageprocessor"
	"photosorter/logging"
	"photosorter/metadata"
	"photosorter/scanner"
	"photosorter/signalhandler"
	"photosorter/utils"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "photosorter",
		Short: "Sort photos into a year/month/place archive and quarantine duplicates",
		Long: `photosorter moves images from a source directory into an archive laid out as
<archive>/<year>/<month>[/<place>]. The date comes from EXIF, or from the file's
timestamps when there is none; the place is reverse geocoded from GPS tags.
Images whose fingerprint already exists in the destination are moved into a
Duplicates folder instead.`,
		SilenceUsage: true,
	}
	rootCmd.SetOut(out)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (yaml, toml or json)")
	config.RegisterFlags(rootCmd.PersistentFlags())

	var jsonOutput bool
	organizeCmd := &cobra.Command{
		Use:   "organize",
		Short: "Sort every image under the source directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPipeline(cmd, cfgFile, true, func(ctx context.Context, p *scanner.Pipeline) error {
				summary := p.Run(ctx)
				if jsonOutput {
					if err := utils.WriteJSON(cmd.OutOrStdout(), summary); err != nil {
						return err
					}
				} else {
					scanner.PrintCompletionStats(cmd.OutOrStdout(), summary)
				}
				if summary.Failed > 0 {
					return fmt.Errorf("%d of %d files failed", summary.Failed, summary.Total())
				}
				return nil
			})
		},
	}
	organizeCmd.Flags().BoolVar(&jsonOutput, "json", false, "print the run summary as JSON")

	fileCmd := &cobra.Command{
		Use:   "file <name>",
		Short: "Sort one image of the source directory, named by its file name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPipeline(cmd, cfgFile, false, func(ctx context.Context, p *scanner.Pipeline) error {
				result, err := p.ProcessFile(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s", result.Outcome, result.Source)
				if result.Destination != "" {
					fmt.Fprintf(cmd.OutOrStdout(), " -> %s", result.Destination)
				}
				if result.Reason != "" {
					fmt.Fprintf(cmd.OutOrStdout(), " (%s)", result.Reason)
				}
				fmt.Fprintln(cmd.OutOrStdout())
				return nil
			})
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "photosorter %s\n", version)
		},
	}

	rootCmd.AddCommand(organizeCmd, fileCmd, versionCmd)
	return rootCmd
}

// withPipeline loads the configuration, wires every component and runs fn
// under a context cancelled by SIGINT/SIGTERM
func withPipeline(cmd *cobra.Command, cfgFile string, bulk bool, fn func(context.Context, *scanner.Pipeline) error) error {
	cfg, err := config.Load(cmd.Flags(), cfgFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := logging.SetupLogger(cfg.LogFile, cfg.Debug); err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}
	defer logging.CloseLogger()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	stop := signalhandler.SetupHandler(cancel)
	defer stop()

	reader := metadata.NewReader(cfg.Exiftool)
	defer reader.Close()

	hasher, err := imageprocessor.NewHasher(cfg.Hasher)
	if err != nil {
		return err
	}
	if !cfg.NoCache {
		db, err := database.InitDatabase(cfg.CachePath)
		if err != nil {
			logging.LogWarning("Fingerprint cache disabled: %v", err)
		} else {
			defer db.Close()
			if n, err := database.CountFingerprints(db); err == nil {
				logging.LogInfo("Using fingerprint cache %s (%d entries)", cfg.CachePath, n)
			}
			hasher = imageprocessor.NewCachedHasher(hasher, db)
		}
	}

	var places scanner.PlaceResolver = geocoder.Disabled{}
	if !cfg.Geocode.Disabled {
		nominatim, err := geocoder.NewNominatim(cfg.GeocoderOptions())
		if err != nil {
			return err
		}
		places = nominatim
	}

	pipeline, err := scanner.New(scanner.Options{
		SourceDir:      cfg.Source,
		ArchiveRoot:    cfg.Archive,
		Workers:        cfg.Workers,
		DryRun:         cfg.DryRun,
		PruneEmptyDirs: cfg.PruneEmpty && bulk,
		ShowProgress:   cfg.Progress && bulk,
		Metadata:       reader,
		Geocoder:       places,
		Hasher:         hasher,
	})
	if err != nil {
		return err
	}

	return fn(ctx, pipeline)
}
