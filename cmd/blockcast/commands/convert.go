package commands

import (
	"fmt"
	"image"
	"image/png"
	"os"

	"github.com/bryanchriswhite/blockcast/internal/capture"
	"github.com/bryanchriswhite/blockcast/internal/screen"
	"github.com/spf13/cobra"
)

var convertCmd = &cobra.Command{
	Use:   "convert IN OUT",
	Short: "Convert raw encoder-format pixels to PNG",
	Long: `Convert a raw buffer of blue, green, red pixels stored bottom row first,
as returned by /api/blocks/{col}/{row}, into a PNG image.

With --encode the direction is reversed: IN is a PNG or JPEG image and OUT
receives its raw encoder-format bytes.`,
	Example: `  # Decode one 32x32 block fetched from the API
  curl -o block.raw localhost:8080/api/blocks/3/1
  blockcast convert --width 32 --height 32 block.raw block.png

  # Encode an image into raw block bytes
  blockcast convert --encode icon.png icon.raw`,
	Args: cobra.ExactArgs(2),
	RunE: runConvert,
}

var (
	convertWidth  int
	convertHeight int
	convertEncode bool
)

func init() {
	rootCmd.AddCommand(convertCmd)
	convertCmd.Flags().IntVar(&convertWidth, "width", 0, "image width in pixels")
	convertCmd.Flags().IntVar(&convertHeight, "height", 0, "image height in pixels")
	convertCmd.Flags().BoolVar(&convertEncode, "encode", false, "convert an image into raw encoder-format bytes")
}

func runConvert(cmd *cobra.Command, args []string) error {
	if convertEncode {
		return encodeImage(cmd, args[0], args[1])
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	pix, err := screen.ToDisplay(convertWidth, convertHeight, data)
	if err != nil {
		return err
	}
	img := &image.RGBA{
		Pix:    pix,
		Stride: convertWidth * screen.DisplayPixelSize,
		Rect:   image.Rect(0, 0, convertWidth, convertHeight),
	}
	// decoded pixels carry zero alpha
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xff
	}

	f, err := os.Create(args[1])
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode PNG: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %dx%d image to %s\n", convertWidth, convertHeight, args[1])
	return nil
}

func encodeImage(cmd *cobra.Command, in, out string) error {
	img, err := capture.LoadImage(in)
	if err != nil {
		return err
	}
	b := img.Bounds()
	data, err := screen.FromDisplay(b.Dx(), b.Dy(), img.Pix)
	if err != nil {
		return err
	}
	if err := os.WriteFile(out, data, 0644); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d bytes for a %dx%d image to %s\n", len(data), b.Dx(), b.Dy(), out)
	return nil
}
