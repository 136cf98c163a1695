package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/tidwall/pretty"
)

// isRunningInCI checks if we're running in a CI/CD environment
func isRunningInCI() bool {
	if os.Getenv("CI") != "" {
		return true
	}
	for _, name := range []string{
		"JENKINS_HOME",
		"GITHUB_ACTIONS",
		"GITLAB_CI",
		"CIRCLECI",
		"BUILDKITE",
		"TF_BUILD", // Azure DevOps
	} {
		if os.Getenv(name) != "" {
			return true
		}
	}
	return false
}

// ShouldUseColor reports whether output written to w should be colorized.
func ShouldUseColor(cmd *cobra.Command, w io.Writer) bool {
	if noColor, err := cmd.Flags().GetBool("no-color"); err == nil && noColor {
		return false
	}
	if os.Getenv("NO_COLOR") != "" || isRunningInCI() {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// writeJSON prints v as indented JSON on the command's output.
func writeJSON(cmd *cobra.Command, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	out := cmd.OutOrStdout()
	formatted := pretty.Pretty(raw)
	if ShouldUseColor(cmd, out) {
		formatted = pretty.Color(formatted, nil)
	}
	_, err = out.Write(formatted)
	return err
}
