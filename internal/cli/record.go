package cli

import (
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/GriffinCanCode/meetscribe/internal/config"
)

// Keys understood while recording.
const (
	keyPause  = 'p'
	keyResume = 'r'
	keyQuit   = 'q'
	keyCtrlC  = 3
)

func newRecordCommand(opts *rootOptions) *cobra.Command {
	var name, objective string

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a meeting from the input device",
		Long: `Record a meeting and print the transcript and analysis as they update.

While recording, press p to pause, r to resume and q (or Ctrl-C) to stop.
Stopping waits for every captured segment to be transcribed and analyzed
before the meeting is saved.`,
		Example: `  meetscribe record --name "Sprint review" --objective "Agree on the release scope"`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRecord(cmd, opts.cfg, name, objective)
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "meeting name (required)")
	cmd.Flags().StringVarP(&objective, "objective", "o", "", "meeting objective (required)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("objective")
	return cmd
}

func runRecord(cmd *cobra.Command, cfg *config.Config, name, objective string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	keys, raw, restore := readKeys(os.Stdin)
	defer restore()

	out := newConsole(cmd.OutOrStdout(), raw)
	a, err := newApp(ctx, cfg, out)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if err := a.ctrl.Start(ctx, name, objective); err != nil {
		return err
	}
	done := a.ctrl.Done()
	out.printf("Recording %q. Press p to pause, r to resume, q to stop.\n", name)

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-done:
			// The device went away and the session stopped on its own.
			return nil
		case k, ok := <-keys:
			if !ok {
				keys = nil
				continue
			}
			switch k {
			case keyPause:
				a.ctrl.Pause()
			case keyResume:
				a.ctrl.Resume()
			case keyQuit, keyCtrlC:
				break loop
			}
		}
	}

	out.printf("Stopping, finishing outstanding transcription and analysis...\n")
	a.ctrl.Stop()
	<-a.ctrl.Done()
	return nil
}

// readKeys streams single bytes from f. When f is a terminal it is put in
// raw mode so keys arrive without Enter; restore undoes that.
func readKeys(f *os.File) (keys <-chan byte, raw bool, restore func()) {
	restore = func() {}
	fd := int(f.Fd())
	if term.IsTerminal(fd) {
		if state, err := term.MakeRaw(fd); err == nil {
			raw = true
			restore = func() { _ = term.Restore(fd, state) }
		}
	}
	return pumpKeys(f), raw, restore
}

func pumpKeys(r io.Reader) <-chan byte {
	ch := make(chan byte)
	go func() {
		defer close(ch)
		buf := make([]byte, 1)
		for {
			n, err := r.Read(buf)
			if n == 1 {
				ch <- buf[0]
			}
			if err != nil {
				return
			}
		}
	}()
	return ch
}
