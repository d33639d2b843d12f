package cmd

import (
	"context"
	"fmt"
	"time"

	"songforge/cache"
	"songforge/core/generation"
	"songforge/db"
	"songforge/events"
	"songforge/logger"
	"songforge/repository"

	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "重新派发长时间排队的歌曲",
	Long:  `执行一次补偿扫描：排队超过 SWEEP_STALE_AFTER 的歌曲重新派发生成任务，超过 SWEEP_GIVE_UP_AFTER 的标记为失败。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		gdb, err := db.ConnectGormDB(cfg)
		if err != nil {
			return err
		}
		defer db.CloseGormDB(gdb)

		streamClient, err := db.ConnectStreamRedis(cfg)
		if err != nil {
			return err
		}
		defer streamClient.Close()

		var lists generation.ListInvalidator
		if client, err := db.ConnectRedis(cfg); err != nil {
			logger.Warn("[Sweep] Redis unavailable, cached song lists may be stale", logger.ErrorField(err))
		} else {
			defer client.Close()
			lists = cache.NewSongListCache(client)
		}

		sweeper := generation.NewSweeper(
			repository.NewGormSongRepository(gdb),
			events.NewRedisStreamDispatcher(streamClient, cfg.GenerationStream, events.DefaultStreamMaxLen),
			lists,
			cfg.SweepStaleAfter,
			cfg.SweepGiveUp,
		)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		res, err := sweeper.Run(ctx)
		fmt.Printf("重新派发: %d, 标记失败: %d\n", res.Redispatched, res.Failed)
		return err
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
