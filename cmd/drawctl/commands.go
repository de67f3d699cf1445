package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/apuracao/internal/apuracao/record"
	"github.com/Adithya-Monish-Kumar-K/apuracao/internal/apuracao/walker"
	"github.com/Adithya-Monish-Kumar-K/apuracao/internal/ingestion/parser"
	"github.com/Adithya-Monish-Kumar-K/apuracao/pkg/logger"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "drawctl",
		Short:         "Run lucky-number draws over a CSV file",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd())
	root.AddCommand(newInspectCmd())
	return root
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a draw and print the selection as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			numero, _ := cmd.Flags().GetString("numero")
			serie, _ := cmd.Flags().GetString("serie")
			modeFlag, _ := cmd.Flags().GetString("mode")
			ignore, _ := cmd.Flags().GetStringSlice("ignore")
			ignoreFile, _ := cmd.Flags().GetString("ignore-file")
			length, _ := cmd.Flags().GetInt("length")
			verbose, _ := cmd.Flags().GetBool("verbose")

			level := "warn"
			if verbose {
				level = "debug"
			}
			logger.SetupWriter(cmd.ErrOrStderr(), level, "text")

			mode, err := walker.ParseMode(modeFlag)
			if err != nil {
				return err
			}
			cfg := walker.FlatConfig()
			if mode == walker.ModePartitioned {
				cfg = walker.PartitionedConfig()
			}
			if length > 0 {
				cfg.Length = length
			}
			if ignoreFile != "" {
				keys, err := readKeys(ignoreFile)
				if err != nil {
					return err
				}
				ignore = append(ignore, keys...)
			}

			store, err := loadStore(file, cfg.PartitionWidth)
			if err != nil {
				return err
			}
			var opts []walker.Option
			if verbose {
				opts = append(opts, walker.WithObserver(walker.NewLogObserver(nil)))
			}
			sel, err := walker.New(cfg, opts...).Run(store, walker.Request{
				DrawnNumber:    numero,
				DrawnPartition: serie,
				IgnoredKeys:    ignore,
			})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), sel)
		},
	}
	cmd.Flags().String("file", "", "CSV file with numero_sorte and chave_contato columns")
	cmd.Flags().String("numero", "", "drawn number")
	cmd.Flags().String("serie", "", "drawn series (partitioned mode)")
	cmd.Flags().String("mode", string(walker.ModeFlat), "flat or partitioned")
	cmd.Flags().StringSlice("ignore", nil, "contact keys to exclude")
	cmd.Flags().String("ignore-file", "", "file of contact keys to exclude, one per line or comma separated")
	cmd.Flags().Int("length", 0, "positions to fill (default depends on mode)")
	cmd.Flags().BoolP("verbose", "v", false, "log every walker step to stderr")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("numero")
	return cmd
}

// Summary is what inspect prints.
type Summary struct {
	TotalRecords  int            `json:"total_registros"`
	UsableRecords int            `json:"registros_validos"`
	Series        []string       `json:"series"`
	BySeries      map[string]int `json:"registros_por_serie"`
}

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print record counts and the distinct series of a CSV file",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			width, _ := cmd.Flags().GetInt("width")
			logger.SetupWriter(cmd.ErrOrStderr(), "warn", "text")

			store, err := loadStore(file, width)
			if err != nil {
				return err
			}
			summary := Summary{
				TotalRecords:  store.Len(),
				UsableRecords: store.Usable(),
				Series:        []string{},
				BySeries:      map[string]int{},
			}
			for p := range store.Partitions() {
				summary.Series = append(summary.Series, p)
				summary.BySeries[p] = len(store.InPartition(p))
			}
			sort.Strings(summary.Series)
			return writeJSON(cmd.OutOrStdout(), summary)
		},
	}
	cmd.Flags().String("file", "", "CSV file to inspect")
	cmd.Flags().Int("width", walker.PartitionedConfig().PartitionWidth, "series prefix width")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func loadStore(path string, width int) (*record.Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	parsed, err := parser.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return record.NewStore(parsed.Rows, width), nil
}

func readKeys(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	return parser.ParseKeys(f)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
