package cmd

import (
	"songforge/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动 songforge 服务器",
	Long:  `启动 HTTP API 服务，并在后台按计划运行排队歌曲的补偿扫描。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return server.Start(cfg)
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
