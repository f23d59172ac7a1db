package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/lyra-sh/lyrad/client"
)

func usage() {
	prog := filepath.Base(os.Args[0])
	fmt.Fprintf(os.Stderr, "Usage: %s <command> [args...]\n", prog)
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  search <query> [limit]  - Ranked application search\n")
	fmt.Fprintf(os.Stderr, "  resolve <text>          - Show which plugin owns the input\n")
	fmt.Fprintf(os.Stderr, "  run <name>              - Launch an application by name\n")
	fmt.Fprintf(os.Stderr, "  track <name>            - Record a launch without executing\n")
	fmt.Fprintf(os.Stderr, "  reindex                 - Schedule an index rescan\n")
	fmt.Fprintf(os.Stderr, "  prune                   - Drop stale history records\n")
	fmt.Fprintf(os.Stderr, "  stats                   - Show daemon counters\n")
	fmt.Fprintf(os.Stderr, "  interactive             - Type queries, see ranked results\n")
	os.Exit(1)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	socket := os.Getenv("LYRA_SOCK")
	if socket == "" {
		dir := os.Getenv("XDG_RUNTIME_DIR")
		if dir == "" {
			dir = os.TempDir()
		}
		socket = filepath.Join(dir, "lyrad.sock")
	}

	c, err := client.Dial(socket)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to lyrad: %v\n", err)
		os.Exit(1)
	}
	defer c.Close()

	if err := run(c, os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(c *client.Client, cmd string, args []string) error {
	switch cmd {
	case "search":
		if len(args) < 1 {
			usage()
		}
		limit := 10
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid limit: %s", args[1])
			}
			limit = n
		}
		return doSearch(c, args[0], limit)

	case "resolve":
		if len(args) < 1 {
			usage()
		}
		res, err := c.Resolve(strings.Join(args, " "))
		if err != nil {
			return err
		}
		if res.Plugin == "" {
			fmt.Printf("no trigger matched, query: %q\n", res.Remainder)
			return nil
		}
		fmt.Printf("trigger: %s\nplugin: %s\nquery: %q\n", res.Trigger, res.Plugin, res.Remainder)
		if res.HandlesEnter {
			fmt.Println("handles-enter")
		}
		if res.HandlesTab {
			fmt.Println("handles-tab")
		}
		return nil

	case "run":
		if len(args) != 1 {
			usage()
		}
		pid, err := c.Run(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("started, pid %d\n", pid)
		return nil

	case "track":
		if len(args) != 1 {
			usage()
		}
		return c.Track(args[0])

	case "reindex":
		return c.Reindex()

	case "prune":
		pruned, err := c.Prune()
		if err != nil {
			return err
		}
		fmt.Printf("pruned %d records\n", pruned)
		return nil

	case "stats":
		stats, err := c.Stats()
		if err != nil {
			return err
		}
		keys := make([]string, 0, len(stats))
		for k := range stats {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("%s: %s\n", k, stats[k])
		}
		return nil

	case "interactive":
		return interactive(c)

	default:
		usage()
		return nil
	}
}

func doSearch(c *client.Client, query string, limit int) error {
	apps, err := c.Search(query, limit)
	if err != nil {
		return err
	}
	for _, app := range apps {
		if app.Description != "" {
			fmt.Printf("%s\t%s\n", app.Name, app.Description)
		} else {
			fmt.Println(app.Name)
		}
	}
	return nil
}

func interactive(c *client.Client) error {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("Type a query, empty line to quit.")
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			return nil
		}
		if err := doSearch(c, line, 10); err != nil {
			return err
		}
	}
}
