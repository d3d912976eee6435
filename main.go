package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/drone/drone-tf-xunit/plugin"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: true,
	})

	var args plugin.Args
	if err := envconfig.Process("", &args); err != nil {
		logrus.Fatalln(err)
	}

	if args.Level != "" {
		level, err := logrus.ParseLevel(args.Level)
		if err != nil {
			logrus.WithError(err).WithField("Level", args.Level).Fatalln("Invalid log level")
		}
		logrus.SetLevel(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := plugin.Exec(ctx, args); err != nil {
		stop()
		logrus.Fatalln(err)
	}
}
