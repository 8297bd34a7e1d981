package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/miradorstack/mirador-pdm/internal/analysis"
	"github.com/miradorstack/mirador-pdm/internal/catalog"
	"github.com/miradorstack/mirador-pdm/internal/models"
)

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func parseRequests(args []string) []models.SensorRequest {
	reqs := make([]models.SensorRequest, 0, len(args))
	for _, a := range args {
		reqs = append(reqs, models.ParseSensorRequest(a))
	}
	return reqs
}

func newExtractCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Build one feature table per sensor from an OK/KO dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()
			root, err := cmd.Flags().GetString("dataset")
			if err != nil {
				return fmt.Errorf("failed to get dataset flag: %w", err)
			}
			out, err := cmd.Flags().GetString("out")
			if err != nil {
				return fmt.Errorf("failed to get out flag: %w", err)
			}
			root = orConfig(root, a.cfg.Dataset.Root)
			out = orConfig(out, a.cfg.Features.OutputDir)

			builder, err := a.corpusBuilder()
			if err != nil {
				return err
			}
			defer builder.Close()

			ctx, stop := signalContext()
			defer stop()
			res, err := builder.Build(ctx, root, out)
			if err != nil {
				return err
			}
			if res.Empty() {
				return fmt.Errorf("no feature rows extracted from %s", root)
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"Sensor", "Rows", "Path"})
			for _, key := range models.SortedKeys(res.Tables) {
				table.Append([]string{key.String(), fmt.Sprint(res.Rows[key]), res.Tables[key]})
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().String("dataset", "", "dataset root holding OK/ and KO/ (default from config)")
	cmd.Flags().String("out", "", "feature table output directory (default from config)")
	return cmd
}

func newAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze [SENSOR...]",
		Short: "Rank sensors and features by OK/KO separability",
		Long: "Sensors are given as NAME_TYPE, NAME_ (every type of a name) or _TYPE\n" +
			"(every sensor of a type). No sensors analyses every table.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			dir, err := cmd.Flags().GetString("features")
			if err != nil {
				return fmt.Errorf("failed to get features flag: %w", err)
			}
			algorithm, err := cmd.Flags().GetString("algorithm")
			if err != nil {
				return fmt.Errorf("failed to get algorithm flag: %w", err)
			}
			asJSON, err := cmd.Flags().GetBool("json")
			if err != nil {
				return fmt.Errorf("failed to get json flag: %w", err)
			}
			dir = orConfig(dir, a.cfg.Features.OutputDir)

			ctx, stop := signalContext()
			defer stop()
			out, err := a.analyzer().Run(ctx, dir, algorithm, parseRequests(args))
			if err != nil {
				return err
			}
			switch out.Status {
			case analysis.StatusOK:
			case analysis.StatusUnsupportedAlgorithm:
				return fmt.Errorf("unsupported algorithm %q (supported: %v)", algorithm, analysis.SupportedAlgorithms())
			case analysis.StatusInvalidSensors:
				return fmt.Errorf("no feature table matches %v", out.Unresolved)
			default:
				return fmt.Errorf("no analysable feature tables in %s", dir)
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out.Report)
			}
			fmt.Fprint(cmd.OutOrStdout(), analysis.Summarize(out.Report, a.cfg.Analysis.SummaryRows))
			return nil
		},
	}
	cmd.Flags().String("features", "", "feature table directory (default from config)")
	cmd.Flags().StringP("algorithm", "a", analysis.AlgorithmRandomForest, "classifier: rf, dt or lr")
	cmd.Flags().Bool("json", false, "print the full report as JSON")
	return cmd
}

func newResolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve [SENSOR...]",
		Short: "Print the feature tables a sensor selection resolves to",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			dir, err := cmd.Flags().GetString("features")
			if err != nil {
				return fmt.Errorf("failed to get features flag: %w", err)
			}
			res, err := catalog.ResolveDir(orConfig(dir, a.cfg.Features.OutputDir), parseRequests(args))
			if err != nil {
				return err
			}
			for _, p := range res.Paths {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			if !res.AllValid {
				return fmt.Errorf("unresolved sensors: %v", res.Unresolved)
			}
			return nil
		},
	}
	cmd.Flags().String("features", "", "feature table directory (default from config)")
	return cmd
}

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [DATASET]",
		Short: "Check a dataset's OK/KO layout and metadata",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			root := a.cfg.Dataset.Root
			if len(args) == 1 {
				root = args[0]
			}
			ok, reason := catalog.ValidateDataset(root)
			if !ok {
				return errors.New(reason)
			}
			vocab, err := catalog.ScanVocabulary(root)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is valid\nsensors: %v\ntypes: %v\nconditions: %v\nfault details: %v\n",
				root, vocab.SensorNames, vocab.SensorTypes, vocab.Conditions, vocab.FaultDetails)
			return nil
		},
	}
	return cmd
}

func orConfig(flag, cfg string) string {
	if flag != "" {
		return flag
	}
	return cfg
}
