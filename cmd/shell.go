package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"
)

const (
	prompt      = "> "
	historyFile = ".logkv_history"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Read commands interactively (default)",
	RunE:  runShell,
}

// executor runs one protocol line
type executor interface {
	Execute(ctx context.Context, line string) (string, error)
}

// lineReader is satisfied by *liner.State
type lineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
}

func runShell(cmd *cobra.Command, args []string) error {
	s, closeStore, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	history := historyPath()
	if history != "" {
		if f, err := os.Open(history); err == nil {
			line.ReadHistory(f)
			f.Close()
		}
		defer func() {
			if f, err := os.Create(history); err == nil {
				line.WriteHistory(f)
				f.Close()
			}
		}()
	}

	return repl(cmd.Context(), s, line, cmd.OutOrStdout())
}

// repl feeds lines to s until input ends. Blank lines print "empty!";
// empty replies print nothing.
func repl(ctx context.Context, s executor, in lineReader, out io.Writer) error {
	for {
		text, err := in.Prompt(prompt)
		if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
			fmt.Fprintln(out)
			return nil
		}
		if err != nil {
			return err
		}

		if text == "" {
			fmt.Fprintln(out, "empty!")
			continue
		}
		in.AppendHistory(text)

		resp, _ := s.Execute(ctx, text)
		if resp != "" {
			fmt.Fprintln(out, resp)
		}
	}
}

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, historyFile)
}
