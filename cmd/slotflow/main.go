// Command slotflow runs or plans a batch of prioritized tasks on a fixed
// number of slots.
//
// Usage:
//
//	slotflow run  [flags] [batch.yaml]
//	slotflow plan [flags] [batch.yaml]
//
// Without a batch file the built-in five-task reference batch is used.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, "slotflow:", err)
		}
		os.Exit(1)
	}
}

const usage = `usage: slotflow <command> [flags] [batch.yaml]

commands:
  run    execute the batch and report the result
  plan   print the virtual-time schedule without running anything

Run "slotflow <command> -h" for the flags of a command.
`

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return errors.New("missing command")
	}

	switch args[0] {
	case "run", "plan":
	case "help", "-h", "-help", "--help":
		fmt.Fprint(stdout, usage)
		return nil
	default:
		fmt.Fprint(stderr, usage)
		return fmt.Errorf("unknown command %q", args[0])
	}

	opts, err := parseOptions(args[0], args[1:], stderr)
	if err != nil {
		return err
	}
	app := newApp(opts, stdout, stderr)
	if args[0] == "plan" {
		return app.plan()
	}
	return app.run(ctx)
}
