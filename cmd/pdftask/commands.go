package main

import (
	"encoding/base64"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/wudi/pdftask/geometry"
	"github.com/wudi/pdftask/observability"
	"github.com/wudi/pdftask/organize"
	"github.com/wudi/pdftask/task"
)

var errUsage = errors.New("usage")

// outputFlags are shared by every command that writes one document.
type outputFlags struct {
	output         string
	password       string
	outputPassword string
}

// register adds the flags to cmd. Multi-source commands take a password map
// instead of --password.
func (f *outputFlags) register(cmd *cobra.Command, single bool) {
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "Output PDF file (required)")
	if single {
		cmd.Flags().StringVarP(&f.password, "password", "p", "", "Password of the source document")
	}
	cmd.Flags().StringVar(&f.outputPassword, "output-password", "", "Encrypt the output with this password")
	_ = cmd.MarkFlagRequired("output")
}

// filesPassword encodes a single-source password as a password map.
func (f *outputFlags) filesPassword() string {
	if f.password == "" {
		return ""
	}
	return "0:" + base64.StdEncoding.EncodeToString([]byte(f.password))
}

func (a *app) report(cmd *cobra.Command, res *organize.Result) {
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d pages, %d bytes)\n", res.Output, res.Pages, res.Bytes)
}

// runPreset runs a single-source job whose actions depend on the page count.
func (a *app) runPreset(cmd *cobra.Command, source string, f *outputFlags, watermark string, plan organize.Plan) error {
	res, err := a.svc.Run(cmd.Context(), organize.Request{
		Sources:        []string{source},
		Plan:           plan,
		FilesPassword:  f.filesPassword(),
		OutputPassword: f.outputPassword,
		Watermark:      watermark,
		Output:         f.output,
	})
	if err != nil {
		return err
	}
	a.report(cmd, res)
	return nil
}

func (a *app) organizeCmd() *cobra.Command {
	var f outputFlags
	var taskStr, filesPassword, watermark string
	cmd := &cobra.Command{
		Use:   "organize --task TASK -o OUTPUT SOURCE...",
		Short: "Build a document from a task string",
		Long: `Build a document from a task string.

Example:
  pdftask organize --task "1:1-1#90,0:1-3#0" -o out.pdf a.pdf b.pdf

Encrypted sources are unlocked with --files-password, a comma separated list
of index:base64(password) entries.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.svc.Run(cmd.Context(), organize.Request{
				Sources:        args,
				Task:           taskStr,
				FilesPassword:  filesPassword,
				OutputPassword: f.outputPassword,
				Watermark:      watermark,
				Output:         f.output,
			})
			if err != nil {
				return err
			}
			a.report(cmd, res)
			return nil
		},
	}
	f.register(cmd, false)
	cmd.Flags().StringVarP(&taskStr, "task", "t", "", "Action list (required)")
	cmd.Flags().StringVar(&filesPassword, "files-password", "", "Password map for encrypted sources")
	cmd.Flags().StringVar(&watermark, "watermark", "", "Watermark every output page with this text")
	_ = cmd.MarkFlagRequired("task")
	return cmd
}

func (a *app) mergeCmd() *cobra.Command {
	var f outputFlags
	var filesPassword string
	cmd := &cobra.Command{
		Use:   "merge -o OUTPUT SOURCE...",
		Short: "Concatenate every page of every source",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.svc.Run(cmd.Context(), organize.Request{
				Sources:        args,
				Plan:           func(counts []int) (task.Sequence, error) { return task.Merge(counts), nil },
				FilesPassword:  filesPassword,
				OutputPassword: f.outputPassword,
				Output:         f.output,
			})
			if err != nil {
				return err
			}
			a.report(cmd, res)
			return nil
		},
	}
	f.register(cmd, false)
	cmd.Flags().StringVar(&filesPassword, "files-password", "", "Password map for encrypted sources")
	return cmd
}

func (a *app) splitCmd() *cobra.Command {
	var ranges, outDir, password string
	cmd := &cobra.Command{
		Use:   "split --ranges RANGES SOURCE",
		Short: "Write one document per page range",
		Long: `Write one document per page range.

Example:
  pdftask split --ranges "1-3,4,5-9" --out-dir parts report.pdf

writes parts/report-1.pdf, parts/report-2.pdf and parts/report-3.pdf.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := outDir
			if dir == "" {
				dir = filepath.Dir(args[0])
			}
			paths, err := a.svc.Split(cmd.Context(), args[0], password, ranges, dir)
			if err != nil {
				return err
			}
			for _, p := range paths {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&ranges, "ranges", "r", "", "Comma separated page ranges (required)")
	cmd.Flags().StringVarP(&outDir, "out-dir", "d", "", "Directory for the parts (default: next to the source)")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password of the source document")
	_ = cmd.MarkFlagRequired("ranges")
	return cmd
}

func (a *app) sortCmd() *cobra.Command {
	var f outputFlags
	var pages string
	cmd := &cobra.Command{
		Use:   "sort --pages PAGES -o OUTPUT SOURCE",
		Short: "Reorder pages",
		Long: `Reorder pages. Pages not listed are dropped; listed pages may repeat.

Example:
  pdftask sort --pages "3,1-2" -o out.pdf in.pdf`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			order, err := task.ParsePages(pages)
			if err != nil {
				return err
			}
			return a.runPreset(cmd, args[0], &f, "", func([]int) (task.Sequence, error) {
				return task.Sort(0, order), nil
			})
		},
	}
	f.register(cmd, true)
	cmd.Flags().StringVar(&pages, "pages", "", "New page order (required)")
	_ = cmd.MarkFlagRequired("pages")
	return cmd
}

func (a *app) deleteCmd() *cobra.Command {
	var f outputFlags
	var pages string
	cmd := &cobra.Command{
		Use:   "delete --pages PAGES -o OUTPUT SOURCE",
		Short: "Remove pages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			drop, err := task.ParsePages(pages)
			if err != nil {
				return err
			}
			return a.runPreset(cmd, args[0], &f, "", func(counts []int) (task.Sequence, error) {
				return task.Delete(0, counts[0], drop), nil
			})
		},
	}
	f.register(cmd, true)
	cmd.Flags().StringVar(&pages, "pages", "", "Pages to remove (required)")
	_ = cmd.MarkFlagRequired("pages")
	return cmd
}

func (a *app) rotateCmd() *cobra.Command {
	var f outputFlags
	var angle int
	cmd := &cobra.Command{
		Use:   "rotate --angle DEG -o OUTPUT SOURCE",
		Short: "Rotate every page clockwise",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rot := task.Rotation(angle)
			if !rot.Valid() {
				return fmt.Errorf("%w: --angle must be 0, 90, -90 or 180, got %d", errUsage, angle)
			}
			return a.runPreset(cmd, args[0], &f, "", func(counts []int) (task.Sequence, error) {
				return task.Rotate(0, counts[0], rot), nil
			})
		},
	}
	f.register(cmd, true)
	cmd.Flags().IntVar(&angle, "angle", 90, "Clockwise rotation")
	return cmd
}

func (a *app) watermarkCmd() *cobra.Command {
	var f outputFlags
	var text string
	cmd := &cobra.Command{
		Use:   "watermark -o OUTPUT SOURCE",
		Short: "Put a text watermark under every page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if text == "" {
				text = a.cfg.Watermark.Text
			}
			return a.runPreset(cmd, args[0], &f, text, func(counts []int) (task.Sequence, error) {
				return task.Merge(counts), nil
			})
		},
	}
	f.register(cmd, true)
	cmd.Flags().StringVar(&text, "text", "", "Watermark text (default from configuration)")
	return cmd
}

func (a *app) signCmd() *cobra.Command {
	var output, password, image string
	var page int
	var x, y float64
	cmd := &cobra.Command{
		Use:   "sign --image IMAGE -o OUTPUT SOURCE",
		Short: "Stamp an image on one page",
		Long: `Stamp an image on one page. The image is drawn at 96 dpi with its lower
left corner --x and --y inches from the lower left corner of the page as
displayed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.svc.Sign(cmd.Context(), organize.SignRequest{
				Source:   args[0],
				Password: password,
				Image:    image,
				Page:     page,
				At:       geometry.Point{X: x, Y: y},
				Output:   output,
			})
			if err != nil {
				return err
			}
			a.logger.Info("page stamped", observability.String("image", image), observability.Int("page", page))
			a.report(cmd, res)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output PDF file (required)")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password of the source document")
	cmd.Flags().StringVar(&image, "image", "", "PNG, JPEG, GIF, BMP, TIFF or WebP image (required)")
	cmd.Flags().IntVar(&page, "page", 1, "1-based page to stamp")
	cmd.Flags().Float64Var(&x, "x", 0, "Horizontal offset in inches")
	cmd.Flags().Float64Var(&y, "y", 0, "Vertical offset in inches")
	_ = cmd.MarkFlagRequired("output")
	_ = cmd.MarkFlagRequired("image")
	return cmd
}

func (a *app) removeImagesCmd() *cobra.Command {
	var f outputFlags
	cmd := &cobra.Command{
		Use:   "remove-images -o OUTPUT SOURCE",
		Short: "Blank out every image while keeping the layout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.svc.Run(cmd.Context(), organize.Request{
				Sources:        args,
				Plan:           func(counts []int) (task.Sequence, error) { return task.Merge(counts), nil },
				FilesPassword:  f.filesPassword(),
				OutputPassword: f.outputPassword,
				RemoveImages:   true,
				Output:         f.output,
			})
			if err != nil {
				return err
			}
			a.report(cmd, res)
			return nil
		},
	}
	f.register(cmd, true)
	return cmd
}

func (a *app) extractImagesCmd() *cobra.Command {
	var output, password string
	cmd := &cobra.Command{
		Use:   "extract-images -o OUTPUT.zip SOURCE",
		Short: "Export the images of every page into a zip archive",
		Long: `Export the images of every page into a zip archive. JPEG and JPEG 2000
images are stored as they are embedded; 8-bit gray, RGB and CMYK rasters are
converted to PNG. Other images are skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.svc.ExtractImages(cmd.Context(), args[0], password, output)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d images, %d skipped)\n", res.Output, res.Images, res.Skipped)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output zip file (required)")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password of the source document")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func (a *app) infoCmd() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "info SOURCE",
		Short: "Show the displayed size and rotation of every page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			infos, err := a.svc.Inspect(cmd.Context(), args[0], password)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PAGE\tWIDTH(in)\tHEIGHT(in)\tROTATE\tBOX")
			for _, info := range infos {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\n",
					info.Number,
					strconv.FormatFloat(info.Box.Width, 'f', 2, 64),
					strconv.FormatFloat(info.Box.Height, 'f', 2, 64),
					info.Rotate,
					info.Box.Source,
				)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password of the source document")
	return cmd
}
