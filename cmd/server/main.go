package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	appconfig "mailtriage/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:    "config-env",
			Usage:   "配置环境（读取 config/<env>.yaml）",
			Value:   "local",
			Sources: cli.EnvVars("CONFIG_ENV"),
		},
		&cli.StringFlag{
			Name:  "config-dir",
			Usage: "配置目录",
			Value: "config",
		},
		&cli.StringFlag{
			Name:  "queue",
			Usage: "任务队列后端：memory 或 rabbitmq，留空使用配置文件",
		},
	}

	app := &cli.Command{
		Name:  "mailtriage",
		Usage: "邮件分类服务：OAuth 授权码兑换和异步邮件分类",
		Commands: []*cli.Command{
			{
				Name:   appconfig.RoleServe,
				Usage:  "HTTP 服务和分类 worker 在同一进程内运行",
				Flags:  flags,
				Action: runAction(appconfig.RoleServe),
			},
			{
				Name:   appconfig.RoleAPI,
				Usage:  "只运行 HTTP 服务，任务发布到 RabbitMQ",
				Flags:  flags,
				Action: runAction(appconfig.RoleAPI),
			},
			{
				Name:   appconfig.RoleWorker,
				Usage:  "只运行分类 worker",
				Flags:  flags,
				Action: runAction(appconfig.RoleWorker),
			},
		},
		DefaultCommand: appconfig.RoleServe,
	}

	if err := app.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runAction(role string) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		cfg, err := appconfig.Load(cmd.String("config-env"), cmd.String("config-dir"))
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if q := cmd.String("queue"); q != "" {
			cfg.Queue.Broker = q
		}
		if err := cfg.Validate(role); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		a, err := newApp(ctx, cfg, role)
		if err != nil {
			return err
		}
		defer a.Close()

		return a.Run(ctx)
	}
}
