package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fentz26/greenlight/internal/plan"
	"github.com/fentz26/greenlight/internal/scan"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the task plan for the selected tier without running anything",
	RunE:  runPlan,
}

var planJSON bool

func init() {
	planCmd.Flags().BoolVar(&planJSON, "json", false, "Emit the plan as JSON")
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, logger, hasher, err := setup()
	if err != nil {
		return err
	}
	defer logger.Close()

	scanRes, err := scan.New(repoRoot, cfg.Ignore, logger).Scan()
	if err != nil {
		return fmt.Errorf("scan %s: %w", repoRoot, err)
	}
	files, _ := hasher.HashFiles(repoRoot, scanRes.Files)

	pl, err := plan.New(hasher, logger).Build(cfg, plan.Detect(repoRoot), files)
	if err != nil {
		return err
	}

	if planJSON {
		type row struct {
			ID        string   `json:"id"`
			Category  string   `json:"category"`
			Level     int      `json:"level"`
			Blocking  bool     `json:"blocking"`
			Files     int      `json:"files"`
			DependsOn []string `json:"depends_on,omitempty"`
		}
		rows := make([]row, 0, len(pl.Tasks))
		for _, lvl := range pl.Levels {
			for _, idx := range lvl {
				t := pl.Tasks[idx]
				rows = append(rows, row{
					ID: t.ID, Category: string(t.Category), Level: t.Level,
					Blocking: t.Blocking, Files: len(t.Matched), DependsOn: t.DependsOn,
				})
			}
		}
		data, err := json.MarshalIndent(map[string]any{
			"tier": pl.Tier, "digest": pl.Digest(hasher), "tasks": rows,
		}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("tier %s, %d tasks in %d levels (digest %s)\n\n", pl.Tier, len(pl.Tasks), len(pl.Levels), pl.Digest(hasher))
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "LEVEL\tID\tCATEGORY\tBLOCKING\tFILES\tDEPENDS ON")
	for _, lvl := range pl.Levels {
		for _, idx := range lvl {
			t := pl.Tasks[idx]
			fmt.Fprintf(w, "%d\t%s\t%s\t%t\t%d\t%s\n",
				t.Level, t.ID, t.Category, t.Blocking, len(t.Matched), strings.Join(t.DependsOn, ","))
		}
	}
	return w.Flush()
}
