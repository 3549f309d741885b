/*
Package cli provides helpers shared by the relay commands.

Output Formatting:

Commands print tables as aligned text, JSON or CSV. Values that implement
Table are laid out row by row; anything else is printed with %v (text) or
encoded (JSON):

	formatter := cli.NewFormatter(cli.FormatJSON)
	if err := formatter.FormatTo(os.Stdout, table); err != nil {
		return err
	}

Progress Reporting:

	progress := cli.NewProgressReporter(os.Stderr, "probed")
	progress.Start(int64(len(providers)))
	...
	progress.Finish()

Signal Handling:

	ctx, stop := cli.SetupSignalHandler()
	defer stop()

Exit Codes:

ExitCode maps a command error to the process exit status, so scripts can
tell a rate-limited chat from a configuration mistake.
*/
package cli
