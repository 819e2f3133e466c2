package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/example/scan-check/internal/selection"
	"github.com/example/scan-check/internal/session"
	"github.com/example/scan-check/internal/verdict"
)

var errAnalysisFailed = errors.New("one or more images could not be analyzed")

var analyzeCmd = &cobra.Command{
	Use:   "analyze <image>...",
	Short: "Classify one or more scans and print the results",
	Long: `Upload each image to the classifier and print one result row per
image. Every image gets its own session, so a failure on one does not
affect the others. Exits non-zero if any image failed.

Examples:
  scancheck analyze scan.png
  scancheck analyze --parallel 2 scans/*.jpg`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().IntP("parallel", "p", 4, "number of images analyzed at once")
}

type analysisResult struct {
	path  string
	state session.State
	err   error
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	parallel, _ := cmd.Flags().GetInt("parallel")
	if parallel < 1 {
		return fmt.Errorf("--parallel must be at least 1, got %d", parallel)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	spinner, _ := pterm.DefaultSpinner.Start(fmt.Sprintf("Analyzing %d image(s)", len(args)))

	results := make([]analysisResult, len(args))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, path := range args {
		i, path := i, path
		g.Go(func() error {
			results[i] = analyzeOne(gctx, a, path)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if r.err != nil || r.state.Phase != session.Succeeded {
			failed++
		}
	}
	if spinner != nil {
		if failed > 0 {
			spinner.Warning(fmt.Sprintf("%d of %d image(s) failed", failed, len(results)))
		} else {
			spinner.Success("Analysis complete")
		}
	}

	printResults(results)
	if failed > 0 {
		return errAnalysisFailed
	}
	return nil
}

func analyzeOne(ctx context.Context, a *app, path string) analysisResult {
	result := analysisResult{path: path}

	file, err := selection.LoadFile(path)
	if err != nil {
		result.err = err
		return result
	}

	sess := a.newSession(session.LocalOwner)
	defer func() { _ = sess.Close(context.WithoutCancel(ctx)) }()

	sess.SelectFile(ctx, file)
	if err := sess.Submit(ctx); err != nil {
		result.err = err
		return result
	}
	result.state, result.err = sess.Wait(ctx)
	return result
}

func printResults(results []analysisResult) {
	data := [][]string{
		{"Image", "Result", "Verdict", "Request ID"},
	}

	for _, r := range results {
		var outcome, label string
		switch {
		case r.err != nil:
			outcome = pterm.FgYellow.Sprint("ERROR")
			label = r.err.Error()
		case r.state.Phase == session.Failed:
			outcome = pterm.FgYellow.Sprint(r.state.Error)
		default:
			category, _ := r.state.Category()
			summary := verdict.Describe(category)
			if category == verdict.Positive {
				outcome = pterm.FgRed.Sprint(summary.Headline)
			} else {
				outcome = pterm.FgGreen.Sprint(summary.Headline)
			}
			label = string(r.state.Verdict)
		}

		data = append(data, []string{r.path, outcome, label, r.state.RequestID})
	}

	_ = pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}
