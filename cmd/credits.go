package cmd

import (
	"context"
	"fmt"
	"time"

	"songforge/cache"
	"songforge/core/ledger"
	"songforge/db"
	"songforge/logger"
	"songforge/repository"

	"github.com/spf13/cobra"
)

var (
	grantUser      string
	grantAmount    int
	grantReference string
)

var creditsCmd = &cobra.Command{
	Use:   "credits",
	Short: "积分管理",
}

var creditsGrantCmd = &cobra.Command{
	Use:   "grant",
	Short: "手动为用户增加积分",
	Long:  `通过账本的原子递增路径为用户增加积分。同一 reference 只会生效一次。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if grantReference == "" {
			grantReference = fmt.Sprintf("cli-%d", time.Now().UnixNano())
		}

		gdb, err := db.ConnectGormDB(cfg)
		if err != nil {
			return err
		}
		defer db.CloseGormDB(gdb)

		var balances ledger.BalanceInvalidator
		if client, err := db.ConnectRedis(cfg); err != nil {
			logger.Warn("[Credits] Redis unavailable, cached balance may be stale", logger.ErrorField(err))
		} else {
			defer client.Close()
			balances = cache.NewBalanceCache(client)
		}

		catalog := ledger.NewCatalog(cfg.ProductSmall, cfg.ProductMedium, cfg.ProductLarge)
		l := ledger.New(catalog, repository.NewGormCreditRepository(gdb), balances)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		applied, err := l.GrantManual(ctx, grantUser, grantAmount, grantReference)
		if err != nil {
			return err
		}
		if !applied {
			fmt.Printf("reference %s 已处理过，未重复发放\n", grantReference)
			return nil
		}

		credits, err := repository.NewGormUserRepository(gdb).GetCredits(ctx, grantUser)
		if err != nil {
			return err
		}
		fmt.Printf("已为用户 %s 增加 %d 积分，当前余额 %d\n", grantUser, grantAmount, credits)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(creditsCmd)
	creditsCmd.AddCommand(creditsGrantCmd)

	creditsGrantCmd.Flags().StringVarP(&grantUser, "user", "u", "", "用户ID")
	creditsGrantCmd.Flags().IntVarP(&grantAmount, "amount", "a", 0, "增加的积分数")
	creditsGrantCmd.Flags().StringVarP(&grantReference, "reference", "r", "", "幂等引用，默认自动生成")
	_ = creditsGrantCmd.MarkFlagRequired("user")
	_ = creditsGrantCmd.MarkFlagRequired("amount")
}
