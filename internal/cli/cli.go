// Package cli implements pmctl, a command-line front end for the dashboard
// API client.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jessevdk/go-flags"

	"github.com/aussiebroadwan/pmboard/pkg/apiclient"
	"github.com/aussiebroadwan/pmboard/pkg/credstore"
	"github.com/aussiebroadwan/pmboard/pkg/credstore/sqlite"
	"github.com/aussiebroadwan/pmboard/pkg/cryptox"
	"github.com/aussiebroadwan/pmboard/pkg/slogx"
)

// Version is overridden at build time via ldflags.
var Version = "v0.1.0"

// SessionExpiredNotice is printed when the backend ends the session.
const SessionExpiredNotice = "Your session has expired. Run `pmctl login` to sign in again."

// IO bundles the process streams so tests can capture them.
type IO struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

type runner struct {
	ctx  context.Context
	opts *Options
	io   IO

	logger *slog.Logger
	store  credstore.Store
	client *apiclient.Client
}

// Run parses args (without the program name), executes the command and
// returns the process exit code.
func Run(ctx context.Context, args []string, streams IO) int {
	opts := &Options{}
	r := &runner{ctx: ctx, opts: opts, io: streams}

	opts.Login.r = r
	opts.Logout.r = r
	opts.Status.r = r
	opts.Request.r = r
	opts.Get.r = r
	opts.List.r = r

	parser := flags.NewParser(opts, flags.HelpFlag|flags.PassDoubleDash)
	parser.Name = "pmctl"
	defer r.close()

	if _, err := parser.ParseArgs(args); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			fmt.Fprintln(streams.Out, flagsErr.Message)
			return 0
		}
		fmt.Fprintln(streams.Err, "error:", err)
		return 1
	}
	return 0
}

// setup opens the credential store and builds the client. Commands call it
// from Execute, after go-flags has filled in the global options.
func (r *runner) setup() error {
	if r.client != nil {
		return nil
	}

	r.logger = slogx.New(slogx.Config{
		Service: "pmctl",
		Version: Version,
		Level:   r.opts.LogLevel,
		Format:  "text",
		Output:  r.io.Err,
	})
	r.ctx = slogx.WithContext(r.ctx, r.logger)

	st, err := r.openStore()
	if err != nil {
		return err
	}
	r.store = st

	r.client = apiclient.New(r.opts.BaseURL, st,
		apiclient.WithTimeout(r.opts.Timeout),
		apiclient.WithSessionExpiredHandler(func(context.Context) {
			fmt.Fprintln(r.io.Err, SessionExpiredNotice)
		}),
	)
	return nil
}

func (r *runner) openStore() (credstore.Store, error) {
	path := r.opts.CredentialsDB
	if path == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("locate config dir: %w", err)
		}
		path = filepath.Join(dir, "pmboard", "credentials.db")
	}

	var opts []sqlite.Option
	material, err := cryptox.LoadKeyMaterial(r.opts.MasterKeyPath, r.opts.MasterKey)
	if err != nil {
		return nil, err
	}
	if material != nil {
		sealer, err := cryptox.NewSealer(material)
		if err != nil {
			return nil, err
		}
		opts = append(opts, sqlite.WithSealer(sealer))
	} else {
		r.logger.Warn("no master key configured; tokens are stored unencrypted", "path", path)
	}

	st, err := sqlite.Open(path, opts...)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("credentials store opened", "path", path)
	return st, nil
}

func (r *runner) close() {
	if r.store != nil {
		if err := r.store.Close(); err != nil && r.logger != nil {
			r.logger.Warn("closing credentials store", "err", err)
		}
	}
}
