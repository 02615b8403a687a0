// Command themectl runs theme operations against a website bucket without
// going through the HTTP API.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/keithlinneman/themehub/internal/app"
	"github.com/keithlinneman/themehub/internal/cfg"
	"github.com/keithlinneman/themehub/internal/log"
	"github.com/keithlinneman/themehub/internal/themes"
	v "github.com/keithlinneman/themehub/internal/version"
)

// opener builds the theme service from the parsed config. The returned
// func releases its backends.
type opener func(ctx context.Context, conf cfg.App, L log.Logger) (*themes.Service, func(), error)

type cli struct {
	conf    cfg.App
	goFlags *flag.FlagSet
	open    opener

	logger  log.Logger
	svc     *themes.Service
	closeFn func()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	root, c := newRootCmd(openThemes)
	err := root.ExecuteContext(ctx)
	c.close()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd(open opener) (*cobra.Command, *cli) {
	c := &cli{goFlags: flag.NewFlagSet("themectl", flag.ContinueOnError), open: open}
	cfg.Register(c.goFlags, &c.conf)

	root := &cobra.Command{
		Use:   "themectl",
		Short: "Manage website themes in object storage",
		Long: `themectl lists, edits and swaps theme folders in a website bucket.

It reads the same flags, THEMEHUB_ environment variables and config file
as the server. Results are printed as JSON.`,
		Version:           v.Get().String(),
		SilenceUsage:      true,
		PersistentPreRunE: c.setup,
	}
	root.PersistentFlags().AddGoFlagSet(c.goFlags)

	root.AddCommand(
		c.setThemeCmd(),
		c.detailsCmd(),
		c.pagesCmd(),
		c.folderCmd(),
		c.mediaCmd(),
		c.createFolderCmd(),
		c.deleteFolderCmd(),
		c.uploadCmd(),
		c.deleteFileCmd(),
	)
	return root, c
}

func (c *cli) close() {
	if c.closeFn != nil {
		c.closeFn()
		c.closeFn = nil
	}
}

func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	// cobra parsed the flags; mark them set so env and file values do not
	// override them
	c.goFlags.VisitAll(func(f *flag.Flag) {
		if pf := cmd.Flags().Lookup(f.Name); pf != nil && pf.Changed {
			_ = c.goFlags.Set(f.Name, pf.Value.String())
		}
	})
	cfg.FillFromEnv(c.goFlags, "THEMEHUB_", func(format string, args ...any) {
		fmt.Fprintf(cmd.ErrOrStderr(), format+"\n", args...)
	})
	if err := cfg.LoadFile(c.goFlags, c.conf.ConfigFile); err != nil {
		return err
	}
	if err := cfg.ValidateStorage(c.conf); err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	lvl, err := log.ParseLevel(c.conf.LogLevel)
	if err != nil {
		return err
	}
	c.logger, err = log.New(log.Options{
		App:     v.AppName,
		Version: v.Version,
		Commit:  v.Commit,
		Level:   lvl,
		JSON:    c.conf.LogJSON,
		Writer:  cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	c.logger = c.logger.With("component", "themectl")

	c.svc, c.closeFn, err = c.open(cmd.Context(), c.conf, c.logger)
	return err
}

func (c *cli) print(cmd *cobra.Command, out any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func openThemes(ctx context.Context, conf cfg.App, L log.Logger) (*themes.Service, func(), error) {
	awsCfg, err := app.LoadAWS(ctx, conf)
	if err != nil {
		return nil, nil, err
	}
	store, closeStore, err := app.OpenObjectStore(ctx, conf, awsCfg, L, nil)
	if err != nil {
		return nil, nil, err
	}
	recs, err := app.OpenRecords(ctx, conf)
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	svc, err := themes.New(themes.Options{
		Store:           store,
		Records:         recs,
		Logger:          L,
		RootFolder:      conf.RootFolder,
		CurrentFolder:   conf.CurrentFolder,
		PublicBaseURL:   conf.PublicBaseURL,
		Concurrency:     conf.StoreConcurrency,
		AllowEmptyTheme: conf.AllowEmptyTheme,
		SwapTimeout:     conf.SwapTimeout,
	})
	closeAll := func() {
		closeStore()
		if err := recs.Close(context.Background()); err != nil {
			L.Warn(context.Background(), "record store close failed", "error", err)
		}
	}
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	return svc, closeAll, nil
}
