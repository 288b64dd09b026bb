package cli

import (
	"flag"
	"fmt"
	"io"
)

const versionString = "1.0.0"
const defaultConfigPath = "./data/config/shelltree.toml"

const (
	commandParse   = "parse"
	commandStream  = "stream"
	commandFollow  = "follow"
	commandRepl    = "repl"
	commandJournal = "journal"
)

type cliOptions struct {
	configPath string
	policy     string
	journal    bool
	format     string
	out        string
	limit      int
	verbose    bool
	version    bool
	command    string
	args       []string
}

func newFlagSet(opts *cliOptions) *flag.FlagSet {
	fs := flag.NewFlagSet("shelltree", flag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", defaultConfigPath, "Path to config file")
	fs.StringVar(&opts.policy, "first-parse", "", "Changed nodes reported by the first parse: all or none (overrides config)")
	fs.BoolVar(&opts.journal, "journal", false, "Record change reports in the journal even if disabled in config")
	fs.StringVar(&opts.format, "format", "json", "Output format for parse: json or outline")
	fs.StringVar(&opts.out, "out", "", "Write parse output to this path instead of stdout")
	fs.IntVar(&opts.limit, "limit", 0, "Maximum journal entries to print (0 = all)")
	fs.BoolVar(&opts.verbose, "verbose", false, "Enable verbose logging")
	fs.BoolVar(&opts.version, "version", false, "Print version and exit")
	return fs
}

func parseOptions(args []string) (cliOptions, error) {
	var opts cliOptions
	fs := newFlagSet(&opts)
	fs.Usage = func() { printUsage(fs.Output(), fs) }

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, err
	}

	rest := fs.Args()
	if len(rest) > 0 {
		opts.command = rest[0]
		opts.args = rest[1:]
	}
	return opts, nil
}

func validateCommand(opts cliOptions) error {
	switch opts.command {
	case "":
		return fmt.Errorf("missing command")
	case commandParse:
		if len(opts.args) != 1 {
			return fmt.Errorf("parse requires exactly one FILE argument (use - for stdin)")
		}
		if opts.format != "json" && opts.format != "outline" {
			return fmt.Errorf("--format must be json or outline, got %q", opts.format)
		}
	case commandStream, commandFollow:
		if len(opts.args) == 0 {
			return fmt.Errorf("%s requires at least one path", opts.command)
		}
	case commandRepl:
		if len(opts.args) != 0 {
			return fmt.Errorf("repl takes no arguments")
		}
	case commandJournal:
		if len(opts.args) > 1 {
			return fmt.Errorf("journal takes at most one SESSION argument")
		}
	default:
		return fmt.Errorf("unknown command %q", opts.command)
	}
	if opts.limit < 0 {
		return fmt.Errorf("--limit must be >= 0")
	}
	return nil
}

func printUsage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintln(w, "Usage: shelltree [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  parse FILE       parse a script once and print its tree")
	fmt.Fprintln(w, "  stream FILE...   append each file to one session and print change reports")
	fmt.Fprintln(w, "  follow PATH...   tail scripts and print change reports as they grow")
	fmt.Fprintln(w, "  repl             interactive session, one line per fragment")
	fmt.Fprintln(w, "  journal [ID]     list journaled sessions or the entries of one session")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fs.PrintDefaults()
}
