package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/wsfleet/coordinator/internal/buildinfo"
)

const usageText = `workstationctl prints coordinatord's diagnostic snapshot.

Usage:
  workstationctl [--control <socket-or-url>] [--timeout <duration>] list
  workstationctl --version

Flags:
  --control  Path to coordinatord's control socket, or an http(s):// URL
             (default /run/wsfleet/coordinator.sock)
  --timeout  Request timeout (default 5s)
`

func main() {
	var control string
	var timeout time.Duration
	var showVersion bool

	flag.StringVar(&control, "control", "", "path to control socket or http(s) URL")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "request timeout")
	flag.BoolVar(&showVersion, "version", false, "print version and exit")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usageText) }
	flag.Parse()

	if showVersion {
		fmt.Println(buildinfo.String())
		return
	}

	args := flag.Args()
	if len(args) == 0 || args[0] != "list" {
		flag.Usage()
		os.Exit(2)
	}

	client := newAPIClient(control, timeout)
	snap, err := client.fetchSnapshot(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "workstationctl: %v\n", err)
		os.Exit(1)
	}

	printSnapshot(os.Stdout, snap)
}

// printSnapshot renders snap as a table when stdout is a terminal, or as
// plain tab-separated rows when piped, the same decision point the
// teacher's CLI uses go-isatty for.
func printSnapshot(out *os.File, snap snapshot) {
	interactive := isatty.IsTerminal(out.Fd())

	var w io.Writer = out
	if interactive {
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		defer tw.Flush()
		w = tw
	}

	if interactive {
		fmt.Fprintln(w, "ENGINE TYPES")
	}
	fmt.Fprintf(w, "id\tname\n")
	for _, et := range snap.EngineTypes {
		fmt.Fprintf(w, "%s\t%s\n", et.ID, et.Name)
	}

	if interactive {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "TEMPLATES")
	}
	fmt.Fprintf(w, "id\tname\n")
	for _, tpl := range snap.Templates {
		fmt.Fprintf(w, "%s\t%s\n", tpl.ID, tpl.Name)
	}

	if interactive {
		fmt.Fprintln(w)
		fmt.Fprintln(w, fmt.Sprintf("PENDING RESERVATIONS (%d)", len(snap.PendingReservations)))
	}
	fmt.Fprintf(w, "id\ttemplate_id\tusername\n")
	for _, r := range snap.PendingReservations {
		fmt.Fprintf(w, "%s\t%s\t%s\n", r.ID, r.TemplateID, r.Username)
	}
}
