package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/retouch/retouch/pkg/catalog"
	"github.com/retouch/retouch/pkg/session"
)

func init() {
	rootCmd.AddCommand(shellCmd)
}

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Start an interactive editing session",
	Long: "Start an interactive editing session.\n\n" +
		"Each line is a command with its key=value parameters. Commands run\n" +
		"in the background, a command sent while another one is running is\n" +
		"refused. \"open FILE\" starts a new session with an image.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := newClient(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		return c.shell(cmd.Context(), cmd.InOrStdin())
	},
}

// shell reads commands from r until EOF, "quit" or ctx is done. It
// waits for running commands before returning and releases the
// displayed image.
func (c *client) shell(ctx context.Context, r io.Reader) error {
	var mu sync.Mutex // guards c.out
	locked := func(fn func()) {
		mu.Lock()
		defer mu.Unlock()
		fn()
	}

	cancel := c.store.Subscribe(func(st session.State) {
		locked(func() { c.printState(st) })
	})
	defer cancel()
	defer c.store.Close() //nolint:errcheck

	if err := c.d.Load(ctx); err != nil {
		locked(func() { c.printError(err) })
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	background := func(fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				locked(func() { c.printError(err) })
			}
		}()
	}

	lines := make(chan string)
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-stop:
				return
			}
		}
	}()

	for {
		var line string
		var ok bool
		select {
		case <-ctx.Done():
			return nil
		case line, ok = <-lines:
			if !ok {
				return nil
			}
		}

		fields := strings.Fields(line)
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}

		switch name, args := strings.ToLower(fields[0]), fields[1:]; name {
		case "quit", "exit":
			return nil
		case "help":
			locked(func() { c.printHelp() })
		case "states":
			locked(func() { c.printState(c.store.Current()) })
		case "wait":
			wg.Wait()
		case "open":
			if len(args) != 1 {
				locked(func() { fmt.Fprintln(c.out, "usage: open FILE") })
				continue
			}
			background(func() error { return c.upload(ctx, args[0]) })
		default:
			background(func() error { return c.run(ctx, fields[0], args, true) })
		}
	}
}

func (c *client) printHelp() {
	okColor.Fprintln(c.out, "open FILE, states, wait, quit")
	for _, cmd := range catalog.All() {
		fmt.Fprintf(c.out, "  %s", cmd.Name)
		for _, p := range cmd.Params {
			fmt.Fprintf(c.out, " %s=", p.Name)
		}
		fmt.Fprintln(c.out)
	}
}
