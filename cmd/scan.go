package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/reelsight/metrics-cli/internal/model"
	"github.com/reelsight/metrics-cli/internal/plan"
	"github.com/reelsight/metrics-cli/internal/sheet"
)

// scanReport is the dry-run output: the plan without any fetching.
type scanReport struct {
	Layout  model.LayoutFormat `json:"layout"`
	Links   int                `json:"links"`
	Placed  int                `json:"placed"`
	Skipped int                `json:"skipped"`
	Plan    []scanEntry        `json:"plan"`
}

type scanEntry struct {
	Row        int    `json:"row"`
	Col        int    `json:"col"`
	ID         string `json:"id"`
	ViewsRow   int    `json:"views_row,omitempty"`
	ViewsCol   int    `json:"views_col,omitempty"`
	Resolution string `json:"resolution"`
}

var scanCmd = &cobra.Command{
	Use:   "scan <spreadsheet.xlsx>",
	Short: "Dry-run the planning phase and print the placement plan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrapf(err, "read %s", args[0])
		}

		doc, err := sheet.Open(data)
		if err != nil {
			return err
		}
		defer doc.Close()

		res, err := plan.Build(doc)
		if err != nil {
			return err
		}

		report := scanReport{
			Layout: res.Layout,
			Links:  len(res.Links),
			Placed: len(res.Placed()),
		}
		for _, l := range res.Links {
			if l.Resolution == model.ResolutionSkipped {
				report.Skipped++
			}
			report.Plan = append(report.Plan, scanEntry{
				Row:        l.Row,
				Col:        l.Col,
				ID:         l.CanonicalID,
				ViewsRow:   l.ViewsRow,
				ViewsCol:   l.ViewsCol,
				Resolution: string(l.Resolution),
			})
		}

		out, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
}
