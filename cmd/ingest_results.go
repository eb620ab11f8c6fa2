package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"qagraph/internal/bootstrap"
	"qagraph/internal/errs"
	"qagraph/internal/infrastructure/persistence/sqlite/repository"
	"qagraph/internal/usecase/ingest"
)

var (
	ingestReportPath string
	ingestAppKey     string
	ingestAppName    string
)

// ingestResultsCmd represents the ingest-results command
var ingestResultsCmd = &cobra.Command{
	Use:   "ingest-results",
	Short: "Ingest a test runner's JSON report into the graph",
	Long: `Parses a Playwright-style JSON report, upserts the tests it names,
appends their execution history and recomputes derived stats. Exits
non-zero when any ingested execution is a failure.`,
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App) error {
		ctx := cmd.Context()

		data, err := os.ReadFile(ingestReportPath)
		if err != nil {
			return errs.Wrapf(err, "read report %s", ingestReportPath)
		}

		cases, executions, err := ingest.ParseReport(data, ingestAppKey, time.Now())
		if err != nil {
			return errs.Wrap(err, "parse report")
		}

		store := repository.NewGraphRepository(app.DB)
		summary, err := ingest.NewService(store).Ingest(ctx, ingestAppKey, ingestAppName, cases, executions)
		if err != nil {
			return errs.Wrap(err, "ingest results")
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%d passed, %d failed, %d total (%d tests upserted)\n",
			summary.Passed, summary.Failed, summary.Total, summary.TestsUpserted)

		if summary.Failed > 0 {
			return fmt.Errorf("%d test execution(s) failed", summary.Failed)
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(ingestResultsCmd)

	ingestResultsCmd.Flags().StringVar(&ingestReportPath, "report", "test-results/results.json", "Path to the runner's JSON report")
	ingestResultsCmd.Flags().StringVar(&ingestAppKey, "app-key", "MST", "Application key the tests belong to")
	ingestResultsCmd.Flags().StringVar(&ingestAppName, "app-name", "", "Application display name on first sight")
}
