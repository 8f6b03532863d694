package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hejijunhao/canopy/internal/output"
	"github.com/hejijunhao/canopy/internal/pipeline"
	"github.com/hejijunhao/canopy/pkg/canopy"
)

func (a *app) suggestCmd() *cobra.Command {
	var (
		lang    string
		limit   int
		batch   string
		workers int
	)
	cmd := &cobra.Command{
		Use:   "suggest [text...]",
		Short: "Suggest the concepts a text is about",
		Long: `Suggest the concepts a text is about.

With --batch, texts are read one per line from a file ("-" for stdin). A line
may also be a JSON object {"id","text","lang"}. One record per input line is
written to the configured output, in input order.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if batch == "" && len(args) == 0 {
				return fmt.Errorf("suggest: give a text or --batch")
			}
			if !cmd.Flags().Changed("limit") {
				limit = a.cfg.Query.MaxSuggestions
			}
			return a.view(func(c *canopy.Classifier) error {
				out, err := a.newOutput(cmd.OutOrStdout(), c.SchemeID())
				if err != nil {
					return err
				}
				if batch != "" {
					err = runBatch(cmd, c, out, batch, lang, limit, workers)
				} else {
					err = suggestOne(cmd, c, out, strings.Join(args, " "), lang, limit)
				}
				if closeErr := out.Close(); err == nil {
					err = closeErr
				}
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&lang, "lang", "l", "", "language of the text (default: first accepted language)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum suggestions (0 = unlimited)")
	cmd.Flags().StringVar(&batch, "batch", "", "read texts from a file, one per line")
	cmd.Flags().IntVar(&workers, "workers", 4, "concurrent documents in batch mode")
	return cmd
}

func suggestOne(cmd *cobra.Command, c *canopy.Classifier, out output.Output, text, lang string, limit int) error {
	s, err := c.SuggestTopicsN(cmd.Context(), text, lang, limit)
	if err != nil {
		return err
	}
	return out.Write(cmd.Context(), output.Record{
		Kind: output.KindSuggestions, Lang: lang, Text: text, Suggestions: s,
	})
}

func runBatch(cmd *cobra.Command, c *canopy.Classifier, out output.Output, path, lang string, limit, workers int) error {
	r, closeFn, err := openInput(cmd, path)
	if err != nil {
		return err
	}
	defer closeFn()

	p := pipeline.New(c, out,
		pipeline.WithWorkers(workers),
		pipeline.WithLimit(limit),
		pipeline.WithLanguage(lang))
	st, err := p.Run(cmd.Context(), r)
	fmt.Fprintf(cmd.ErrOrStderr(), "%d documents, %d failed\n", st.Documents, st.Failed)
	return err
}
