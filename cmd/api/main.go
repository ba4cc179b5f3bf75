package main

import (
	"context"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/sirupsen/logrus"

	"github.com/BimaHajer/APIAutome/internal/app"
	"github.com/BimaHajer/APIAutome/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}
	logger := app.NewLogger(cfg)

	application, err := app.NewApp(context.Background(), cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize app")
	}
	defer application.Close()

	lambda.Start(application.HandleRequest)
}
