package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/regsync/regsync/internal/config"
	"github.com/regsync/regsync/internal/document"
	"github.com/regsync/regsync/internal/sync"
	"github.com/regsync/regsync/internal/tree"
	"github.com/regsync/regsync/internal/ui"
)

// diffContext is the number of unchanged lines shown around a change.
const diffContext = 3

var mergePatch bool

var diffCmd = &cobra.Command{
	Use:   "diff DOCUMENT ROOT",
	Short: "Show differences between a document and the live store",
	Long: `Compare DOCUMENT with the current content of ROOT.

Both sides are rendered as indented JSON and compared line by line: lines
starting with "-" are only in the document, lines starting with "+" only in
the store. With --merge-patch an RFC 7386 merge patch that turns the document
into the live state is printed instead.

Nothing is written to the store or the document.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(v, args[0], args[1])
		if err != nil {
			fatal("Error in configuration", err)
		}

		doc, err := document.Load(cfg.Document)
		if err != nil {
			fatal("Error loading document", err)
		}

		backend, root, err := openStore(cfg, false, nil)
		if err != nil {
			fatal("Error", err)
		}
		live, err := sync.Read(root)
		root.Close()
		backend.Close()
		if err != nil {
			fatal("Error reading store", err)
		}

		if err := printDiff(os.Stdout, doc, live); err != nil {
			fatal("Error", err)
		}
	},
}

func printDiff(w io.Writer, doc, live *tree.Node) error {
	if tree.Equal(doc, live) {
		fmt.Fprintf(w, "%s in sync\n", ui.RenderPass("✓"))
		return nil
	}

	// The comparison ignores root names, so the rendering does too.
	live.Name = doc.Name

	if mergePatch {
		patch, err := document.MergePatch(doc, live)
		if err != nil {
			return fmt.Errorf("failed to create merge patch: %w", err)
		}
		fmt.Fprintf(w, "%s\n", patch)
		return nil
	}

	lines, err := document.Diff(doc, live)
	if err != nil {
		return fmt.Errorf("failed to diff: %w", err)
	}

	del := color.New(color.FgRed).SprintFunc()
	ins := color.New(color.FgGreen).SprintFunc()
	sep := color.New(color.FgCyan).SprintFunc()

	fmt.Fprintf(w, "%s\n%s\n", del("--- document"), ins("+++ store"))
	shown := visibleLines(lines, diffContext)
	for i, l := range lines {
		if !shown[i] {
			if i > 0 && shown[i-1] {
				fmt.Fprintln(w, sep("..."))
			}
			continue
		}
		switch l.Op {
		case document.DiffDelete:
			fmt.Fprintln(w, del("-"+l.Text))
		case document.DiffInsert:
			fmt.Fprintln(w, ins("+"+l.Text))
		default:
			fmt.Fprintln(w, " "+l.Text)
		}
	}
	return nil
}

// visibleLines marks changed lines and the context lines around them.
func visibleLines(lines []document.DiffLine, context int) []bool {
	shown := make([]bool, len(lines))
	for i, l := range lines {
		if l.Op == document.DiffEqual {
			continue
		}
		for j := max(0, i-context); j <= min(len(lines)-1, i+context); j++ {
			shown[j] = true
		}
	}
	return shown
}

func init() {
	diffCmd.Flags().BoolVar(&mergePatch, "merge-patch", false, "Print an RFC 7386 merge patch instead of a line diff")
	rootCmd.AddCommand(diffCmd)
}
