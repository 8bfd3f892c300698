// Command ustorekvsh is a REPL shell talking to a running ustorekv
// server over its Unix socket, adapted from the teacher's
// cmd/docdbsh REPL (plain bufio loop, dot-commands) but with cobra
// driving the top-level flag parsing instead of the teacher's bare
// flag package.
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kartikbazzad/ustorekv/cmd/ustorekvsh/parser"
	"github.com/kartikbazzad/ustorekv/cmd/ustorekvsh/shell"
)

func main() {
	var socketPath string

	root := &cobra.Command{
		Use:   "ustorekvsh",
		Short: "ustorekv REPL shell",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShell(socketPath)
		},
	}
	root.Flags().StringVar(&socketPath, "socket", "/tmp/ustorekv.sock", "unix socket path")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runShell(socketPath string) error {
	fmt.Printf("ustorekv shell\n")
	fmt.Printf("connecting to %s...\n", socketPath)

	sh := shell.NewShell(socketPath)
	defer sh.Close()

	if err := sh.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	fmt.Printf("connected. type '.help' for commands.\n\n")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\ninterrupted. exiting...")
		sh.Close()
		os.Exit(0)
	}()

	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print(sh.Prompt())
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				fmt.Println()
				return nil
			}
			fmt.Fprintf(os.Stderr, "error reading input: %v\n", err)
			continue
		}
		line = line[:len(line)-1]
		if line == "" {
			continue
		}

		cmd, err := parser.Parse(line)
		if err != nil {
			fmt.Println("ERROR")
			fmt.Println(err.Error())
			fmt.Println()
			continue
		}

		result := sh.Execute(cmd)
		if result.IsExit() {
			return nil
		}
		result.Print(os.Stdout)
		fmt.Println()
	}
}
