package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"Bt1QMedia/server"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"server"},
	Short:   "启动HTTP服务器",
	Long:    `启动Bt1QMedia的HTTP服务器，收到 SIGINT/SIGTERM 后优雅关闭。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		// 创建一个上下文来接收操作系统信号
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return server.Start(ctx, cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
