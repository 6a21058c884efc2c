package commands

import (
	"fmt"
	"strings"

	"github.com/bryanchriswhite/blockcast/internal/capture"
	"github.com/bryanchriswhite/blockcast/internal/screen"
	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect IMAGE...",
	Short: "Show which blocks change between images",
	Long: `Blit each image in turn into one block surface and report how many pixel
rows changed and which blocks became dirty. The surface is sized from the
first image, and every block starts dirty.`,
	Example: `  # Compare two screenshots with 16 pixel blocks
  blockcast inspect --block-size 16 before.png after.png

  # Also print the dirty map and pixels after each image
  blockcast inspect --dump a.png b.png`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInspect,
}

var (
	inspectBlockSize int
	inspectDump      bool
)

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().IntVarP(&inspectBlockSize, "block-size", "b", 32, "block edge in pixels")
	inspectCmd.Flags().BoolVar(&inspectDump, "dump", false, "dump the surface after each image")
}

func formatBlocks(blocks []screen.BlockCoord) string {
	parts := make([]string, len(blocks))
	for i, b := range blocks {
		parts[i] = fmt.Sprintf("(%d,%d)", b.Col, b.Row)
	}
	return strings.Join(parts, " ")
}

func runInspect(cmd *cobra.Command, args []string) error {
	replay, err := capture.NewFileCapturer(args)
	if err != nil {
		return err
	}
	size := replay.Bounds().Size()
	bw, bh := screen.BlockGrid(size.X, size.Y, inspectBlockSize)
	surface, err := screen.New(inspectBlockSize, bw, bh)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "surface %dx%d pixels, %dx%d blocks of %d\n",
		surface.PixelWidth(), surface.PixelHeight(), bw, bh, inspectBlockSize)

	for _, path := range args {
		img, err := replay.CaptureRegion(0, 0, size.X, size.Y)
		if err != nil {
			return err
		}
		rows, err := surface.BlitImage(0, 0, img)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		changed := surface.Changed()
		fmt.Fprintf(out, "%s: %d rows changed, %d blocks dirty: %s\n", path, rows, len(changed), formatBlocks(changed))
		if inspectDump {
			if err := surface.Dump(out); err != nil {
				return err
			}
		}
		surface.Reset()
	}
	return nil
}
