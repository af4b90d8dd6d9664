package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	kverrors "github.com/sajjad-MoBe/logkv/internal/errors"
)

var execCmd = &cobra.Command{
	Use:   "exec [command]...",
	Short: "Run commands from arguments or stdin and print each reply",
	Example: `  logkv exec "SET a 1" "GET a"
  printf 'BEGIN\nSET a 2\nCOMMIT\n' | logkv exec`,
	RunE: runExec,
}

func runExec(cmd *cobra.Command, args []string) error {
	c := cfg
	c.Watch = false

	s, closeStore, err := openStore(cmd.Context(), c)
	if err != nil {
		return err
	}

	var lines []string
	if len(args) > 0 {
		lines = args
	} else {
		lines, err = readLines(cmd.InOrStdin())
		if err != nil {
			return multierr.Append(err, closeStore())
		}
	}

	err = execLines(cmd.Context(), s, lines, cmd.OutOrStdout())
	return multierr.Append(err, closeStore())
}

// execLines prints the reply of every line. Protocol errors are part of
// the output; I/O failures are collected and returned.
func execLines(ctx context.Context, s executor, lines []string, out io.Writer) error {
	var errs error
	for _, line := range lines {
		resp, err := s.Execute(ctx, line)
		if resp != "" {
			fmt.Fprintln(out, resp)
		}
		if kverrors.IsIO(err) || kverrors.IsInternal(err) {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}
