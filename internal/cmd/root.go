// Package cmd wires the tsprobe command line.
package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"tsprobe/internal/config"
	"tsprobe/internal/engine"
	"tsprobe/internal/logging"
)

// version is set at build time with -ldflags "-X tsprobe/internal/cmd.version=...".
var version = "dev"

type rootOptions struct {
	configPath    string
	debug         string
	file          string
	address       string
	tcp           bool
	udp           bool
	output        string
	summary       string
	summaryFile   string
	summaryPeriod int64
}

func newRootCmd() *cobra.Command {
	o := &rootOptions{}
	root := &cobra.Command{
		Use:   "tsprobe",
		Short: "Capture and analyze an MPEG transport stream",
		Long: `tsprobe reads a transport stream from a file, a UDP or TCP endpoint or a
Kafka topic, optionally tees the raw bytes to an output, and periodically
writes a summary of the decoded streams.`,
		Example: `  tsprobe -f capture.ts -s table
  tsprobe -i 239.1.1.1:1234 -u -o dump.ts -s bandwidth --summary-file /tmp/summary.txt`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		Version:      version,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCapture(cmd, o)
		},
	}

	// Global flags
	pf := root.PersistentFlags()
	pf.StringVarP(&o.configPath, "config", "c", "", "config file (YAML)")
	pf.StringVarP(&o.debug, "debug", "d", "", "log level: error, warn, info or debug")
	pf.StringVarP(&o.file, "file", "f", "", "read from file ('-' for stdin)")
	pf.StringVarP(&o.address, "ipaddress", "i", "", "listen on or connect to host:port")
	pf.BoolVarP(&o.tcp, "tcp", "t", false, "receive over TCP")
	pf.BoolVarP(&o.udp, "udp", "u", false, "receive over UDP (default for --ipaddress)")
	pf.StringVarP(&o.output, "output", "o", "", "tee raw bytes to a new file ('-' for stdout)")
	pf.StringVarP(&o.summary, "summary", "s", "", "enable summaries: bandwidth, table, packet or wire")
	pf.StringVarP(&o.summaryFile, "summary-file", "j", "", "write summaries to this file (default stdout)")
	pf.Int64VarP(&o.summaryPeriod, "summary-period", "p", 0, "summary refresh period in milliseconds")

	root.AddCommand(newConfigCmd(o), newHealthCmd(), newVersionCmd())
	return root
}

// Execute runs the command line; cancelling ctx stops a running capture.
func Execute(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}

func (o *rootOptions) flags(fs *pflag.FlagSet) config.Flags {
	var f config.Flags
	str := func(name string, v string) *string {
		if fs.Changed(name) {
			return &v
		}
		return nil
	}
	f.Debug = str("debug", o.debug)
	f.File = str("file", o.file)
	f.Address = str("ipaddress", o.address)
	f.Output = str("output", o.output)
	f.Summary = str("summary", o.summary)
	f.SummaryFile = str("summary-file", o.summaryFile)
	f.TCP, f.UDP = o.tcp, o.udp
	if fs.Changed("summary-period") {
		p := o.summaryPeriod
		f.SummaryPeriod = &p
	}
	return f
}

func (o *rootOptions) load(cmd *cobra.Command) (config.Config, error) {
	return config.Load(o.configPath, o.flags(cmd.Flags()))
}

func runCapture(cmd *cobra.Command, o *rootOptions) error {
	cfg, err := o.load(cmd)
	if err != nil {
		return err
	}
	opts := cfg.Logging()
	opts.Output = cmd.ErrOrStderr()
	logging.Configure(opts)

	e, err := engine.Bootstrap(cmd.Context(), cfg, engine.WithStdout(cmd.OutOrStdout()))
	if err != nil {
		return err
	}
	return e.Run(cmd.Context())
}
