package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/retouch/retouch/configs"
	"github.com/retouch/retouch/internal/journal"
	"github.com/retouch/retouch/pkg/catalog"
	"github.com/retouch/retouch/pkg/dispatch"
	"github.com/retouch/retouch/pkg/imgcodec"
	"github.com/retouch/retouch/pkg/session"
)

var (
	outputPath string
	noClamp    bool
)

var (
	labelColor = color.New(color.FgHiBlack)
	okColor    = color.New(color.FgGreen)
	errColor   = color.New(color.FgRed, color.Bold)
)

func init() {
	rootCmd.AddCommand(statesCmd, uploadCmd, runCmd, undoCmd, redoCmd)

	for _, c := range []*cobra.Command{uploadCmd, runCmd, undoCmd, redoCmd} {
		c.Flags().StringVarP(&outputPath, "output", "o", "",
			"Copy the resulting image to a file (file display backend)")
	}
	runCmd.Flags().BoolVar(&noClamp, "no-clamp", false,
		"Send parameters as given, without bringing them back into range")
}

var statesCmd = &cobra.Command{
	Use:   "states",
	Short: "Print the session counters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := newClient(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		if err := c.d.Load(cmd.Context()); err != nil {
			return err
		}
		c.printState(c.store.Current())
		return nil
	},
}

var uploadCmd = &cobra.Command{
	Use:   "upload FILE",
	Short: "Start a new session with an image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		if err := c.upload(cmd.Context(), args[0]); err != nil {
			return err
		}
		return c.done()
	},
}

var runCmd = &cobra.Command{
	Use:   "run COMMAND [key=value...]",
	Short: "Apply a command to the current image",
	Long: "Apply a command to the current image.\n\n" +
		"Parameters are given as key=value pairs, see \"retouch catalog\".",
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		if err := c.d.Load(cmd.Context()); err != nil {
			return err
		}
		if err := c.run(cmd.Context(), args[0], args[1:], !noClamp); err != nil {
			return err
		}
		return c.done()
	},
}

var undoCmd = &cobra.Command{
	Use:   "undo",
	Short: "Revert the last change",
	Args:  cobra.NoArgs,
	RunE:  historyCommand(catalog.Undo),
}

var redoCmd = &cobra.Command{
	Use:   "redo",
	Short: "Apply the last reverted change again",
	Args:  cobra.NoArgs,
	RunE:  historyCommand(catalog.Redo),
}

func historyCommand(name catalog.Name) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		c, err := newClient(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		if err := c.d.Load(cmd.Context()); err != nil {
			return err
		}
		if err := c.d.Dispatch(cmd.Context(), name, nil); err != nil {
			return err
		}
		return c.done()
	}
}

// client wires a dispatcher to the configured display backend and
// journal.
type client struct {
	d     *dispatch.Dispatcher
	store *session.Store
	out   io.Writer
}

func newClient(out io.Writer) (*client, error) {
	cfg := configs.Config

	displayer, err := imgcodec.NewDisplayer(cfg.Display.Backend, imgcodec.DisplayOptions{
		Directory: cfg.Display.Directory,
		Output:    out,
		Cols:      cfg.Display.Cols,
		Rows:      cfg.Display.Rows,
	})
	if err != nil {
		return nil, err
	}

	var recorder dispatch.Recorder
	if cfg.Journal.Enabled {
		if err := openJournal(); err != nil {
			log.WithError(err).Warn("journal disabled")
		} else {
			recorder = journal.NewRecorder()
		}
	}

	store := session.NewStore()
	return &client{
		d: dispatch.New(store, dispatch.Options{
			BaseURL:   cfg.Service.URL,
			Client:    dispatch.NewClient(configs.ServiceTimeout()),
			Displayer: displayer,
			Recorder:  recorder,
		}),
		store: store,
		out:   out,
	}, nil
}

// upload converts a file to PNG and starts a new session with it.
func (c *client) upload(ctx context.Context, filename string) error {
	fd, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer fd.Close()

	b, info, err := imgcodec.ToPNG(fd)
	if err != nil {
		return fmt.Errorf("%s: %w", filename, err)
	}
	log.WithFields(log.Fields{
		"file":   filename,
		"width":  info.Width,
		"height": info.Height,
	}).Debug("uploading")

	return c.d.Upload(ctx, b)
}

// run dispatches a command given on the command line. Range checks
// are advisory: values out of range are clamped unless clamp is
// false, in which case the service decides.
func (c *client) run(ctx context.Context, name string, args []string, clamp bool) error {
	params, err := catalog.ParseArgs(args)
	if err != nil {
		return err
	}

	cmd, ok := catalog.Resolve(name)
	if !ok {
		// the dispatcher reports and records unknown commands
		return c.d.Dispatch(ctx, catalog.Name(name), params)
	}

	for _, k := range params.Keys() {
		if _, ok := cmd.Param(k); !ok {
			return fmt.Errorf("%s has no parameter %q", cmd.Name, k)
		}
	}

	if _, err := cmd.Validate(params); err != nil {
		if !clamp {
			log.WithError(err).Warn("sending parameters as given")
		} else {
			params = cmd.Clamp(params)
			log.WithError(err).WithField("params", params).Info("parameters clamped")
		}
	}

	return c.d.Dispatch(ctx, cmd.Name, params)
}

// done prints the state and writes the output file when one was
// asked for. The image handle is not released: it is what the user
// looks at once the program exits.
func (c *client) done() error {
	st := c.store.Current()
	c.printState(st)

	if outputPath == "" {
		return nil
	}
	return writeOutput(st, outputPath)
}

func (c *client) printState(st session.State) {
	labelColor.Fprint(c.out, "undo ")
	fmt.Fprint(c.out, st.Undo)
	labelColor.Fprint(c.out, " redo ")
	fmt.Fprint(c.out, st.Redo)
	if st.Width > 0 {
		labelColor.Fprint(c.out, " size ")
		fmt.Fprintf(c.out, "%dx%d", st.Width, st.Height)
	}
	if st.HasImage() {
		labelColor.Fprint(c.out, " image ")
		fmt.Fprint(c.out, st.Image.ID())
	}
	fmt.Fprintln(c.out)
}

func (c *client) printError(err error) {
	var derr *dispatch.Error
	if errors.As(err, &derr) {
		errColor.Fprint(c.out, derr.Kind.String())
		fmt.Fprintf(c.out, " %s\n", err)
		return
	}
	errColor.Fprint(c.out, "error")
	fmt.Fprintf(c.out, " %s\n", err)
}

// writeOutput copies the current image to a file.
func writeOutput(st session.State, filename string) error {
	h, ok := st.Image.(*imgcodec.FileHandle)
	if !ok {
		return errors.New("--output needs the file display backend")
	}

	fd, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := h.CopyTo(fd); err != nil {
		fd.Close()
		return err
	}
	return fd.Close()
}
