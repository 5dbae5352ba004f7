// Package cli exposes the node coordination subcommands so services can
// embed them under their own root command.
package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/amirimatin/go-nodesync/pkg/bootstrap"
	"github.com/amirimatin/go-nodesync/pkg/daemonctl"
	"github.com/amirimatin/go-nodesync/pkg/monitor"
	"github.com/amirimatin/go-nodesync/pkg/observability/metrics"
	"github.com/amirimatin/go-nodesync/pkg/observability/tracing"
)

// AddAll attaches all subcommands (register/monitor/wait/migrate/setup-etc)
// to the provided root command.
func AddAll(root *cobra.Command) {
	root.AddCommand(NewRegisterCmd())
	root.AddCommand(NewMonitorCmd())
	root.AddCommand(NewWaitCmd())
	root.AddCommand(NewMigrateCmd())
	root.AddCommand(NewSetupEtcCmd())
}

// nodeFlags are shared by every command that addresses the local node.
type nodeFlags struct {
	hostname   string
	nodeNumber int
	takeFrom   string
	ip         string
	metaURI    string
	realPath   string
	canonPath  string
	debug      bool
}

func (f *nodeFlags) addTo(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.hostname, "hostname", "", "host name of the local node")
	cmd.Flags().IntVar(&f.nodeNumber, "node-number", -1, "expected node number (pnn)")
	cmd.Flags().StringVar(&f.takeFrom, "take-node-number-from-hostname", "",
		"derive the node number from the host name ("+bootstrap.AfterLastDash+")")
	cmd.Flags().StringVar(&f.ip, "ip", "", "node address (skips hostname resolution)")
	cmd.Flags().StringVar(&f.metaURI, "meta-uri", "",
		"location of the cluster membership document (path, file: or etcd:// URI)")
	cmd.Flags().StringVar(&f.realPath, "nodes-path", "", "real path of the nodes file (required)")
	cmd.Flags().StringVar(&f.canonPath, "canon-path", bootstrap.CanonNodesPath,
		"canonical nodes file path consumed by the daemon (symlink)")
	cmd.Flags().BoolVar(&f.debug, "debug", false, "enable debug logging")
}

func (f *nodeFlags) setup() (*bootstrap.Node, *zap.Logger, error) {
	logger, err := newLogger(f.debug)
	if err != nil {
		return nil, nil, err
	}
	node, err := bootstrap.Setup(bootstrap.Config{
		Hostname:                   f.hostname,
		NodeNumber:                 f.nodeNumber,
		TakeNodeNumberFromHostname: f.takeFrom,
		IP:                         f.ip,
		MetaURI:                    f.metaURI,
		RealPath:                   f.realPath,
		CanonPath:                  f.canonPath,
		Logger:                     logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return node, logger, nil
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// NewRegisterCmd returns the "register" command: one-shot admission of the
// local node's intent into the membership document.
func NewRegisterCmd() *cobra.Command {
	var flags nodeFlags
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register the local node in the cluster membership document",
		RunE: func(cmd *cobra.Command, args []string) error {
			node, logger, err := flags.setup()
			if err != nil {
				return err
			}
			defer logger.Sync()
			defer node.Close()
			ctx, cancel := signalContext()
			defer cancel()
			return node.Engine.Register(ctx, node.Identity)
		},
	}
	flags.addTo(cmd)
	return cmd
}

// NewMonitorCmd returns the "monitor" command: the long-lived supervisor
// that reconciles membership updates into the daemon's nodes file.
func NewMonitorCmd() *cobra.Command {
	var (
		flags       nodeFlags
		metricsAddr string
		errorLimit  int
		traceEnable bool
	)
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Monitor the membership document and reconcile node updates",
		RunE: func(cmd *cobra.Command, args []string) error {
			node, logger, err := flags.setup()
			if err != nil {
				return err
			}
			defer logger.Sync()
			defer node.Close()
			ctx, cancel := signalContext()
			defer cancel()

			if traceEnable {
				shutdown, err := tracing.Setup(true)
				if err != nil {
					logger.Warn("tracing setup error", zap.Error(err))
				} else {
					defer func() { _ = shutdown(context.Background()) }()
				}
			}
			if metricsAddr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", metrics.Handler())
				go func() {
					if err := http.ListenAndServe(metricsAddr, mux); err != nil {
						logger.Warn("metrics endpoint error", zap.Error(err))
					}
				}()
			}

			mon, err := monitor.New(monitor.Options{
				Engine:     node.Engine,
				Waiter:     node.Waiter,
				PNN:        node.Identity.PNN,
				ErrorLimit: errorLimit,
				Logger:     logger,
			})
			if err != nil {
				return err
			}
			return mon.Run(ctx)
		},
	}
	flags.addTo(cmd)
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics at this address (host:port)")
	cmd.Flags().IntVar(&errorLimit, "error-limit", monitor.DefaultErrorLimit, "consecutive pass failures tolerated before giving up")
	cmd.Flags().BoolVar(&traceEnable, "trace", false, "enable OpenTelemetry stdout tracing (dev)")
	return cmd
}

// NewWaitCmd returns the "wait" command: block until the local node is
// confirmed in the membership document. Used as a readiness gate.
func NewWaitCmd() *cobra.Command {
	var flags nodeFlags
	cmd := &cobra.Command{
		Use:   "wait",
		Short: "Block until the local node is confirmed in the nodes list",
		RunE: func(cmd *cobra.Command, args []string) error {
			node, logger, err := flags.setup()
			if err != nil {
				return err
			}
			defer logger.Sync()
			defer node.Close()
			ctx, cancel := signalContext()
			defer cancel()

			mon, err := monitor.New(monitor.Options{
				Engine: node.Engine,
				Waiter: node.Waiter,
				PNN:    node.Identity.PNN,
				Logger: logger,
			})
			if err != nil {
				return err
			}
			return mon.WaitUntilAdmitted(ctx)
		},
	}
	flags.addTo(cmd)
	return cmd
}

// NewMigrateCmd returns the "migrate" command: one-shot conversion of
// legacy databases into the daemon's clustered format.
func NewMigrateCmd() *cobra.Command {
	var (
		destDir string
		pnn     int
		debug   bool
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Convert legacy databases into clustered databases",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(debug)
			if err != nil {
				return err
			}
			defer logger.Sync()
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			runner := &daemonctl.CTDB{Logger: logger}
			return daemonctl.MigrateDatabases(ctx, runner, daemonctl.MigrateOptions{
				DestDir: destDir,
				PNN:     pnn,
				Logger:  logger,
			})
		},
	}
	cmd.Flags().StringVar(&destDir, "dest-dir", bootstrap.DBDir, "where converted database files are written")
	cmd.Flags().IntVar(&pnn, "node-number", 0, "pnn suffix for converted database files")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "overall conversion timeout")
	return cmd
}

// NewSetupEtcCmd returns the "setup-etc" command: symlink the daemon's
// support files into its etc directory.
func NewSetupEtcCmd() *cobra.Command {
	var etcDir, srcDir string
	cmd := &cobra.Command{
		Use:   "setup-etc",
		Short: "Populate the daemon etc directory with support file links",
		RunE: func(cmd *cobra.Command, args []string) error {
			return bootstrap.EnsureEtcFiles(etcDir, srcDir)
		},
	}
	cmd.Flags().StringVar(&etcDir, "etc-dir", bootstrap.EtcDir, "daemon etc directory")
	cmd.Flags().StringVar(&srcDir, "src-dir", bootstrap.ShareDir, "directory shipping the daemon support files")
	return cmd
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()
	return ctx, cancel
}
