package setup

import (
	"errors"
	"fmt"
	"io"
	"os"
)

const usage = `Register the medication interaction MCP server with a desktop client.

Usage:
  mcp-server-lite setup <command> [options]

Commands:
  install    Add or update the server entry
  uninstall  Remove the server entry
  status     Show the current registration

Options:
  --config <path>           client config file (default: platform location)
  --binary <path>           server binary (default: this executable)
  --data-dir <path>         data directory for SQLite files
  --openfda-key <key>       openFDA API key
  --supplement-url <url>    supplement interaction service
  --literature-url <url>    literature analysis service
`

// CLI runs setup subcommands.
type CLI struct {
	out io.Writer
}

// NewCLI creates a CLI writing to out.
func NewCLI(out io.Writer) *CLI {
	return &CLI{out: out}
}

// Run executes one subcommand.
func (c *CLI) Run(args []string) error {
	if len(args) == 0 {
		fmt.Fprint(c.out, usage)
		return nil
	}

	opts, err := parseOptions(args[1:])
	if err != nil {
		return err
	}

	switch args[0] {
	case "install":
		if opts.BinaryPath == "" {
			if exe, err := os.Executable(); err == nil {
				opts.BinaryPath = exe
			}
		}
		path, err := Install(opts)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "Registered %q in %s\nRestart the client to load it.\n", ServerEntryName, path)
		return nil
	case "uninstall":
		path, err := c.configPath(opts)
		if err != nil {
			return err
		}
		removed, err := Uninstall(path)
		if err != nil {
			return err
		}
		if removed {
			fmt.Fprintf(c.out, "Removed %q from %s\n", ServerEntryName, path)
		} else {
			fmt.Fprintf(c.out, "%q was not registered in %s\n", ServerEntryName, path)
		}
		return nil
	case "status":
		path, err := c.configPath(opts)
		if err != nil {
			return err
		}
		status, err := GetStatus(path)
		if err != nil {
			return err
		}
		c.printStatus(status)
		return nil
	case "help", "--help", "-h":
		fmt.Fprint(c.out, usage)
		return nil
	default:
		fmt.Fprint(c.out, usage)
		return fmt.Errorf("unknown setup command: %s", args[0])
	}
}

func (c *CLI) configPath(opts Options) (string, error) {
	if opts.ConfigPath != "" {
		return opts.ConfigPath, nil
	}
	return DefaultClientConfigPath()
}

func (c *CLI) printStatus(s *Status) {
	mark := func(ok bool) string {
		if ok {
			return "yes"
		}
		return "no"
	}
	fmt.Fprintf(c.out, "Client config:   %s\n", s.ConfigPath)
	fmt.Fprintf(c.out, "Registered:      %s\n", mark(s.Registered))
	if s.Registered {
		fmt.Fprintf(c.out, "Binary:          %s (exists: %s)\n", s.BinaryPath, mark(s.BinaryExists))
	}
	fmt.Fprintf(c.out, "Data directory:  %s (exists: %s)\n", s.DataDir, mark(s.DataDirReady))
	fmt.Fprintf(c.out, "Feedback DB:     %s\n", mark(s.FeedbackDB))
}

func parseOptions(args []string) (Options, error) {
	var opts Options
	targets := map[string]*string{
		"--config":         &opts.ConfigPath,
		"--binary":         &opts.BinaryPath,
		"--data-dir":       &opts.DataDir,
		"--openfda-key":    &opts.OpenFDAAPIKey,
		"--supplement-url": &opts.SupplementURL,
		"--literature-url": &opts.LiteratureURL,
	}
	for i := 0; i < len(args); i++ {
		dst, ok := targets[args[i]]
		if !ok {
			return opts, fmt.Errorf("unknown option: %s", args[i])
		}
		if i+1 >= len(args) {
			return opts, errors.New(args[i] + " requires a value")
		}
		*dst = args[i+1]
		i++
	}
	return opts, nil
}
