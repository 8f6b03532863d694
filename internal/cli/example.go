package cli

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/hejijunhao/canopy/pkg/canopy"
)

const importBatch = 500

func (a *app) exampleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "example",
		Short: "Manage labelled training examples",
	}

	var (
		id       string
		text     string
		concepts []string
	)
	add := &cobra.Command{
		Use:   "add",
		Short: "Add or relabel one example",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.mutate(cmd, func(c *canopy.Classifier) error {
				return c.AddExamples(cmd.Context(), canopy.TrainingExample{ID: id, Text: text, Concepts: concepts})
			})
		},
	}
	add.Flags().StringVar(&id, "id", "", "example id")
	add.Flags().StringVar(&text, "text", "", "example text")
	add.Flags().StringSliceVar(&concepts, "concepts", nil, "concept ids the example is labelled with")
	_ = add.MarkFlagRequired("id")
	_ = add.MarkFlagRequired("text")

	importCmd := &cobra.Command{
		Use:   "import <file.ndjson|->",
		Short: `Import examples, one {"id","text","concepts"} object per line`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, closeFn, err := openInput(cmd, args[0])
			if err != nil {
				return err
			}
			defer closeFn()
			return a.mutate(cmd, func(c *canopy.Classifier) error {
				n, err := importExamples(cmd, c, r)
				fmt.Fprintf(cmd.ErrOrStderr(), "imported %d examples\n", n)
				return err
			})
		},
	}

	remove := &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove an example",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.mutate(cmd, func(c *canopy.Classifier) error {
				ok, err := c.RemoveExample(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("example %q not found", args[0])
				}
				return nil
			})
		},
	}

	cmd.AddCommand(add, importCmd, remove)
	return cmd
}

// importExamples adds examples in batches and returns how many were stored.
func importExamples(cmd *cobra.Command, c *canopy.Classifier, r io.Reader) (int, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4<<20)

	var (
		batch []canopy.TrainingExample
		total int
		line  int
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := c.AddExamples(cmd.Context(), batch...); err != nil {
			return err
		}
		total += len(batch)
		batch = batch[:0]
		return nil
	}
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var ex canopy.TrainingExample
		if err := json.Unmarshal(raw, &ex); err != nil {
			return total, fmt.Errorf("line %d: %w", line, err)
		}
		batch = append(batch, ex)
		if len(batch) == importBatch {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := sc.Err(); err != nil {
		return total, err
	}
	return total, flush()
}

// openInput opens path for reading; "-" is the command's stdin.
func openInput(cmd *cobra.Command, path string) (io.Reader, func(), error) {
	if path == "-" {
		return cmd.InOrStdin(), func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}
