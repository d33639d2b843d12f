package cmd

import (
	"context"
	"fmt"
	"time"

	"songforge/config"
	"songforge/storage"

	"github.com/spf13/cobra"
)

var (
	storagePrefix  string
	storageStats   bool
	storagePresign string
)

var storageCmd = &cobra.Command{
	Use:   "storage",
	Short: "对象存储检查",
	Long:  `检查音频与封面所在的存储桶：列出文件、查看统计信息，或为某个对象生成临时下载链接。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		if storagePresign != "" {
			signer, err := storage.NewSigner(ctx, cfg)
			if err != nil {
				return fmt.Errorf("无法连接到对象存储: %w", err)
			}
			u, err := signer.PresignGet(ctx, storagePresign, cfg.SignedURLTTL)
			if err != nil {
				return err
			}
			fmt.Println(u)
			return nil
		}

		if cfg.StorageDriver != config.StorageDriverMinio {
			return fmt.Errorf("listing is only supported for STORAGE_DRIVER=minio")
		}

		fmt.Printf("MinIO配置: %s, Bucket: %s\n", cfg.MinioEndpoint, cfg.MinioBucket)
		client, err := storage.NewMinioSigner(ctx, storage.MinioOptions{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			Region:    cfg.MinioRegion,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			return fmt.Errorf("无法连接到MinIO: %w", err)
		}

		objects, stats, err := client.ListObjects(ctx, storagePrefix)
		if err != nil {
			return err
		}

		if storageStats {
			fmt.Printf("\n存储桶: %s\n", client.Bucket())
			fmt.Printf("文件总数: %d\n", stats.TotalObjects)
			fmt.Printf("总大小: %s\n", formatSize(stats.TotalSize))
			if !stats.LastModified.IsZero() {
				fmt.Printf("最后修改时间: %s\n", stats.LastModified.Format("2006-01-02 15:04:05"))
			}
			return nil
		}

		fmt.Printf("\n列出存储桶中的文件 (前缀: %s)...\n", storagePrefix)
		for _, o := range objects {
			fmt.Printf("%-60s %10s  %s\n", o.Key, formatSize(o.Size), o.LastModified.Format("2006-01-02 15:04:05"))
		}
		fmt.Printf("\n共 %d 个文件\n", len(objects))
		return nil
	},
}

// formatSize 格式化文件大小
func formatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}

func init() {
	rootCmd.AddCommand(storageCmd)

	storageCmd.Flags().StringVarP(&storagePrefix, "prefix", "p", "", "按前缀过滤文件")
	storageCmd.Flags().BoolVarP(&storageStats, "stats", "s", false, "显示存储桶统计信息")
	storageCmd.Flags().StringVar(&storagePresign, "presign", "", "为指定对象生成临时下载链接")

	storageCmd.Example = `  # 列出所有文件
  songforge storage

  # 按前缀过滤文件
  songforge storage -p "audio/"

  # 显示存储桶统计信息
  songforge storage -s

  # 生成临时下载链接
  songforge storage --presign "audio/1234.wav"`
}
