package main

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bannerdesk/banner-service/internal/importer"
)

var importImages []string

// importCmd represents the import command
var importCmd = &cobra.Command{
	Use:   "import <sheet>",
	Short: "Bulk import products and banners from a CSV or XLSX sheet",
	Long: `Import one product and one banner image per sheet row. The first row is a
header; every following row has six columns:

  product_name, business_id, banner_title, external_url, donation_amount, image_source

image_source is either an http(s) URL or the name of a file passed with --image.
Rows that fail validation are reported and skipped; the rest are imported.`,
	Example: `  banner-service import products.csv --as creator@example.com
  banner-service import products.xlsx --image hotate.png --image wagyu.jpg --as admin@example.com`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().StringArrayVar(&importImages, "image", nil, "image file referenced by image_source (repeatable)")
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	actor, err := actingUser(ctx, a.Store)
	if err != nil {
		return err
	}

	sheet, err := readFile(args[0])
	if err != nil {
		return err
	}
	images := make([]importer.File, 0, len(importImages))
	for _, path := range importImages {
		f, err := readFile(path)
		if err != nil {
			return err
		}
		images = append(images, f)
	}

	res, err := a.Importer.Run(ctx, actor, sheet, images)
	if err != nil {
		return err
	}
	displayImportResult(cmd.OutOrStdout(), res)

	if res.FailedCount > 0 {
		return fmt.Errorf("%d of %d rows failed", res.FailedCount, res.FailedCount+res.SuccessCount)
	}
	return nil
}

func readFile(path string) (importer.File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return importer.File{}, fmt.Errorf("read %s: %w", path, err)
	}
	name := filepath.Base(path)
	return importer.File{
		Name:        name,
		ContentType: mime.TypeByExtension(filepath.Ext(name)),
		Content:     data,
	}, nil
}

func displayImportResult(out io.Writer, res *importer.Result) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tSUCCEEDED\tFAILED\tWARNINGS\tDURATION")
	fmt.Fprintln(w, "------\t---------\t------\t--------\t--------")
	fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\n", res.RunID, res.SuccessCount, res.FailedCount, len(res.Warnings), res.Duration)
	w.Flush()

	for _, msg := range res.Errors {
		fmt.Fprintln(out, "error:", msg)
	}
	for _, msg := range res.Warnings {
		fmt.Fprintln(out, "warning:", msg)
	}
}
