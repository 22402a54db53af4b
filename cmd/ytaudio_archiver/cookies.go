package main

import (
	"errors"

	"github.com/italolelis/ytaudio_archiver/internal/config"
	"github.com/italolelis/ytaudio_archiver/internal/logctx"
	"github.com/spf13/cobra"
)

func newCookiesCmd(cfg func() *config.Config) *cobra.Command {
	var once, force bool

	cmd := &cobra.Command{
		Use:   "cookies",
		Short: "Keep the browser cookie jar fresh",
		Long: "Exports the configured browser's cookies into the cookie jar whenever it is\n" +
			"missing or older than COOKIE_MAX_AGE. Runs until interrupted unless --once is set.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := cfg()
			ctx := cmd.Context()
			logger := logctx.LoggerFromContext(ctx)

			if c.Cookie.Browser == "" {
				return errors.New("COOKIE_BROWSER must be set to refresh cookies")
			}

			monitor, _ := setupCookies(c, nil)

			if once || force {
				refreshed, err := monitor.RunOnce(ctx, force)
				if err != nil {
					return err
				}

				logger.Info("cookie check completed", "refreshed", refreshed, "path", c.Cookie.File)

				return nil
			}

			logger.Info("cookie monitor started",
				"path", c.Cookie.File,
				"max_age", c.Cookie.MaxAge.String(),
				"interval", c.Cookie.CheckInterval.String(),
			)

			<-monitor.Start(ctx)

			return nil
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "check the jar once and exit")
	cmd.Flags().BoolVar(&force, "force", false, "refresh the jar now regardless of its age and exit")

	return cmd
}
