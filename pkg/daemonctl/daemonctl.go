// Package daemonctl wraps the clustering daemon's external control
// commands. The daemon owns the runtime cluster state; this package only
// shells out to its CLI and reports exit status.
package daemonctl

import (
	"context"
	"os"
	"os/exec"

	"go.uber.org/zap"
)

// Runner invokes control operations against the clustering daemon.
type Runner interface {
	// ReloadNodes makes the daemon re-read the nodes file. Any abnormal
	// exit fails the commit that requested it.
	ReloadNodes(ctx context.Context) error
	// ConvertDatabase converts one legacy database file into the
	// daemon's clustered format.
	ConvertDatabase(ctx context.Context, src, dst string) error
}

// CTDB runs the real daemon binaries.
type CTDB struct {
	// Prefix is prepended to every invocation. Tests point it at a stub
	// so the real binaries are never required.
	Prefix []string
	// DaemonCmd overrides the daemon control binary (default "ctdb").
	DaemonCmd string
	// ConvertCmd overrides the database converter (default "ltdbtool").
	ConvertCmd string
	Logger     *zap.Logger
}

func (c *CTDB) ReloadNodes(ctx context.Context) error {
	return c.run(ctx, c.daemonCmd(), "reloadnodes")
}

func (c *CTDB) ConvertDatabase(ctx context.Context, src, dst string) error {
	return c.run(ctx, c.convertCmd(), "convert", "-s0", src, dst)
}

func (c *CTDB) daemonCmd() string {
	if c.DaemonCmd != "" {
		return c.DaemonCmd
	}
	return "ctdb"
}

func (c *CTDB) convertCmd() string {
	if c.ConvertCmd != "" {
		return c.ConvertCmd
	}
	return "ltdbtool"
}

func (c *CTDB) run(ctx context.Context, name string, args ...string) error {
	argv := append(append([]string{}, c.Prefix...), name)
	argv = append(argv, args...)
	if c.Logger != nil {
		c.Logger.Info("running daemon command", zap.Strings("argv", argv))
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

var _ Runner = (*CTDB)(nil)
