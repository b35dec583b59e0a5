package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/risa-org/rcl/manager"
	"github.com/risa-org/rcl/transport"
	"github.com/risa-org/rcl/transport/bluetooth"
	"github.com/risa-org/rcl/transport/tcp"
	"github.com/risa-org/rcl/transport/websocket"
	"github.com/risa-org/rcl/wire"
)

type rootFlags struct {
	transport string
	vocabFile string
	verbose   bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "rcl",
		Short:         "Robot control link over TCP, WebSocket, or Bluetooth SPP",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if flags.verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}
	root.PersistentFlags().StringVarP(&flags.transport, "transport", "t", "tcp", "transport: tcp, ws, or bt")
	root.PersistentFlags().StringVar(&flags.vocabFile, "vocab", "", "JSON file overriding the movement command vocabulary")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(newServeCmd(flags), newDialCmd(flags), newScanCmd())
	return root
}

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve [address]",
		Short: "Listen and wait for the robot to connect",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			service := ":9555"
			if len(args) == 1 {
				service = args[0]
			}
			binder, closeFn, err := buildBinder(flags.transport)
			if err != nil {
				return err
			}
			defer closeFn()

			vocab, err := loadVocabulary(flags.vocabFile)
			if err != nil {
				return err
			}

			m := manager.New(manager.Options{Binder: binder, Service: service})
			defer m.Close()
			if err := m.StartServer(); err != nil {
				return err
			}
			return interact(m, vocab)
		},
	}
}

func newDialCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "dial <peer>",
		Short: "Connect out to the robot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dialer, closeFn, err := buildDialer(flags.transport)
			if err != nil {
				return err
			}
			defer closeFn()

			vocab, err := loadVocabulary(flags.vocabFile)
			if err != nil {
				return err
			}

			m := manager.New(manager.Options{Dialer: dialer})
			defer m.Close()
			if err := m.Connect(args[0]); err != nil {
				return err
			}
			return interact(m, vocab)
		},
	}
}

func newScanCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Discover Bluetooth devices advertising SPP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			bt := bluetooth.New()
			defer bt.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			devices, err := bt.Scan(ctx)
			if err != nil {
				return err
			}
			if len(devices) == 0 {
				fmt.Println("no SPP devices found")
				return nil
			}
			for _, d := range devices {
				fmt.Printf("%-20s %s\n", d.MAC, d.Label())
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "how long to scan")
	return cmd
}

// buildBinder returns the server transport for the chosen flag, plus a
// cleanup function.
func buildBinder(kind string) (transport.Binder, func(), error) {
	switch kind {
	case "tcp":
		return tcp.Binder{}, func() {}, nil
	case "ws":
		return websocket.Binder{}, func() {}, nil
	case "bt":
		bt := bluetooth.New()
		return bt, func() { bt.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown transport %q (want tcp, ws, or bt)", kind)
	}
}

// buildDialer returns the client transport for the chosen flag, plus a
// cleanup function.
func buildDialer(kind string) (transport.Dialer, func(), error) {
	switch kind {
	case "tcp":
		return tcp.Dialer{}, func() {}, nil
	case "ws":
		return websocket.Dialer{}, func() {}, nil
	case "bt":
		bt := bluetooth.New()
		return bt, func() { bt.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown transport %q (want tcp, ws, or bt)", kind)
	}
}

func loadVocabulary(path string) (wire.Vocabulary, error) {
	if path == "" {
		return wire.DefaultVocabulary(), nil
	}
	return wire.VocabularyFromFile(path)
}

// interact pumps manager events to stdout and stdin lines to the robot
// until stdin closes or the link manager shuts down.
func interact(m *manager.Manager, vocab wire.Vocabulary) error {
	enc := wire.NewEncoder(vocab)

	go func() {
		for ev := range m.Events() {
			printEvent(ev)
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if kind, ok := moveShortcut(line); ok {
			line = enc.Encode(wire.Move{Kind: kind})
		}
		if err := m.SendLine(line); err != nil {
			fmt.Fprintln(os.Stderr, "send:", err)
		}
	}
	return scanner.Err()
}

// moveShortcut maps the canonical movement tokens typed at the prompt to
// the configured vocabulary.
func moveShortcut(line string) (wire.MoveKind, bool) {
	switch line {
	case "f":
		return wire.MoveForward, true
	case "r":
		return wire.MoveReverse, true
	case "tl":
		return wire.MoveTurnLeft, true
	case "tr":
		return wire.MoveTurnRight, true
	case "s":
		return wire.MoveStop, true
	default:
		return 0, false
	}
}

func printEvent(ev manager.Event) {
	stamp := ev.Time.Format("15:04:05.000")
	switch ev.Kind {
	case manager.EventState:
		fmt.Printf("%s [%s/%s] %s\n", stamp, ev.Mode, ev.State, ev.Message)
	case manager.EventConnected:
		fmt.Printf("%s connected: %s\n", stamp, ev.Message)
	case manager.EventDisconnected:
		fmt.Printf("%s disconnected (%s): %s\n", stamp, ev.Reason, ev.Message)
	case manager.EventLine:
		tag := ""
		if ev.Echo {
			tag = " (echo)"
		}
		fmt.Printf("%s <-%s %s\n", stamp, tag, describe(ev.Line))
	case manager.EventSendRejected:
		fmt.Printf("%s rejected (%s): %s\n", stamp, ev.Reject, ev.Message)
	case manager.EventNotice:
		fmt.Printf("%s %s\n", stamp, ev.Message)
	}
}

// describe renders an inbound line with its decoded meaning where the
// decoder recognized one.
func describe(line string) string {
	switch msg := wire.Decode(line).(type) {
	case wire.RobotUpdate:
		return fmt.Sprintf("robot at (%d,%d) facing %s", msg.X, msg.Y, msg.Dir)
	case wire.TargetFound:
		return fmt.Sprintf("target %s on obstacle %s", msg.TargetID, msg.ObstacleID)
	case wire.StatusUpdate:
		return "status: " + msg.Text
	case wire.PathComplete:
		return "path complete"
	case wire.PathAbort:
		return "path aborted"
	case wire.SyncRequest:
		return "sync requested"
	default:
		return line
	}
}
