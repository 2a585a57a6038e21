/*
Package cli provides helpers shared by the tribune commands.

Output Formatting:

Command results are printed as text, JSON or YAML:

	formatter, err := cli.NewFormatter(cli.FormatJSON)
	if err != nil {
		return err
	}
	if err := formatter.FormatTo(os.Stdout, result); err != nil {
		return err
	}

Values that implement TextRenderer control their own text layout.

Exit Codes:

Commands return an *ExitError when the process should exit with a code
other than 1, for example when an evaluation is non-compliant. ExitCode maps
any error to the code main should exit with.

Progress Reporting:

	progress := cli.NewProgressReporter(os.Stderr, "entities")
	progress.Start(total)
	progress.Update(done)
	progress.Finish()

Signal Handling:

	ctx, stop := cli.SetupSignalHandler()
	defer stop()
*/
package cli
