// cmd/replay.go
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/keynav/internal/dom"
	"github.com/xkilldash9x/keynav/internal/observability"
	"github.com/xkilldash9x/keynav/internal/replay"
)

func newReplayCmd() *cobra.Command {
	var (
		pagePath      string
		behaviorsPath string
		keys          string
		focusXPath    string
		format        string
		rowHeight     float64
	)

	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "Plays a key sequence against an HTML page and prints the focus trace",
		Example: `  keynav replay --page page.html --behaviors behaviors.yaml --keys "Tab Tab Enter Esc"
  keynav replay --page page.html --keys "ArrowDown ArrowDown" --focus "//ul[@id='menu']/li[1]/a"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd.Context())
			if err != nil {
				return err
			}
			logger := observability.GetLogger()

			if format != "text" && format != "json" {
				return fmt.Errorf("unsupported format %q (want text or json)", format)
			}

			f, err := os.Open(pagePath)
			if err != nil {
				return fmt.Errorf("failed to open page: %w", err)
			}
			doc, err := dom.Parse(f)
			f.Close()
			if err != nil {
				return fmt.Errorf("failed to parse page: %w", err)
			}

			manifest, err := replay.LoadManifest(behaviorsPath)
			if err != nil {
				return err
			}
			seq, err := replay.ParseKeys(keys)
			if err != nil {
				return err
			}

			logger.Debug("Replaying keys.",
				zap.String("page", pagePath),
				zap.Int("bindings", len(manifest.Behaviors)),
				zap.Int("keys", len(seq)))

			res, err := replay.Run(doc, manifest, replay.Options{
				Keys:      seq,
				Focus:     focusXPath,
				RowHeight: rowHeight,
			}, cfg.Engine(), logger)
			if err != nil {
				return err
			}

			if format == "json" {
				return res.WriteJSON(cmd.OutOrStdout())
			}
			return res.WriteText(cmd.OutOrStdout())
		},
	}

	replayCmd.Flags().StringVarP(&pagePath, "page", "p", "", "HTML page to load")
	replayCmd.Flags().StringVarP(&behaviorsPath, "behaviors", "b", "", "YAML manifest binding behaviors to XPath selectors")
	replayCmd.Flags().StringVarP(&keys, "keys", "k", "", `key sequence, e.g. "Tab Shift+Tab Enter Esc"`)
	replayCmd.Flags().StringVar(&focusXPath, "focus", "", "XPath of the element focused first (default: first tabbable)")
	replayCmd.Flags().StringVarP(&format, "format", "f", "text", "output format: text or json")
	replayCmd.Flags().Float64Var(&rowHeight, "row-height", 20, "height of each synthetic layout row")
	_ = replayCmd.MarkFlagRequired("page")

	return replayCmd
}
