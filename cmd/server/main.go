package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/BimaHajer/APIAutome/internal/app"
	"github.com/BimaHajer/APIAutome/internal/config"
	"github.com/BimaHajer/APIAutome/internal/records/sqlstore"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "apiautome",
		Short:         "Drive documents API",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.AddCommand(newServeCmd(), newMigrateCmd())
	return cmd
}

func newServeCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the API on a local HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			logger := app.NewLogger(cfg)

			application, err := app.NewApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer application.Close()

			addr := fmt.Sprintf(":%d", cfg.Port)
			logger.WithFields(logrus.Fields{"addr": addr, "dev_mode": cfg.DevMode}).Info("starting local server")
			return newRouter(application, cfg).Run(addr)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "port to listen on")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the SQL record store migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := app.NewLogger(cfg)

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			db, err := sqlstore.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseDSN)
			if err != nil {
				return err
			}
			defer db.Close()
			return sqlstore.Migrate(ctx, db, cfg.DatabaseDriver, logger)
		},
	}
}

// newRouter serves every path through the API Gateway handler.
func newRouter(application *app.App, cfg *config.Config) *gin.Engine {
	if !cfg.DevMode {
		gin.SetMode(gin.ReleaseMode)
	}
	gin.DisableConsoleColor()
	r := gin.New()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{cfg.FrontendURL}
	corsConfig.AllowCredentials = true
	corsConfig.AddAllowHeaders("authorization", "x-origin-verify")
	corsConfig.AddExposeHeaders("content-disposition")

	r.Use(gin.Recovery(), cors.New(corsConfig))
	r.Any("/*path", bridge(application.HandleRequest))
	return r
}
