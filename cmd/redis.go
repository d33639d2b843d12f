package cmd

import (
	"context"
	"fmt"
	"time"

	"songforge/db"

	"github.com/spf13/cobra"
)

var redisCmd = &cobra.Command{
	Use:   "redis",
	Short: "Redis连接测试",
	Long:  `测试Redis连接是否成功，并进行基本读写操作。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("开始测试Redis连接...")
		fmt.Printf("Redis配置: %s, DB: %d\n", cfg.RedisAddr(), cfg.RedisDB)

		client, err := db.ConnectRedis(cfg)
		if err != nil {
			return fmt.Errorf("无法连接到Redis: %w", err)
		}
		defer client.Close()
		fmt.Println("Redis连接成功！")

		stream, err := db.ConnectStreamRedis(cfg)
		if err != nil {
			return fmt.Errorf("无法连接到Redis (stream): %w", err)
		}
		defer stream.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		fmt.Println("开始测试Redis基本操作...")
		if err := db.CheckRedis(ctx, client); err != nil {
			return fmt.Errorf("Redis操作测试失败: %w", err)
		}
		fmt.Println("Redis基本操作测试成功！")

		n, err := stream.XLen(ctx, cfg.GenerationStream).Result()
		if err != nil {
			return fmt.Errorf("读取队列长度失败: %w", err)
		}
		fmt.Printf("生成队列 %s 当前长度: %d\n", cfg.GenerationStream, n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(redisCmd)
}
