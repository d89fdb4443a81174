package cmd

import (
	"context"
	"fmt"

	"github.com/anoixa/image-resizer/cache"
	"github.com/anoixa/image-resizer/config"
	"github.com/spf13/cobra"
)

// cacheCmd 缓存管理命令
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Cache management commands",
	Long:  "Manage the shared cache. Only meaningful with cache_type=redis, the memory cache lives inside the server process.",
}

// cacheClearCmd 清除缓存命令
var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear cached originals and directory trees",
	Long: `Delete cache entries for the given image keys and directory keys.

Examples:
  image-resizer cache clear --image-key k1 --image-key k2
  image-resizer cache clear --directory-key root`,
	RunE: func(cmd *cobra.Command, args []string) error {
		imageKeys, _ := cmd.Flags().GetStringSlice("image-key")
		directoryKeys, _ := cmd.Flags().GetStringSlice("directory-key")
		if len(imageKeys) == 0 && len(directoryKeys) == 0 {
			return fmt.Errorf("at least one --image-key or --directory-key is required")
		}

		factory, err := cache.NewFactory(config.Get())
		if err != nil {
			return fmt.Errorf("failed to initialize cache: %w", err)
		}
		defer factory.Close()

		cleared, err := clearCacheKeys(cmd.Context(), factory, imageKeys, directoryKeys)
		fmt.Printf("Cleared %d cache entries from %s cache\n", cleared, factory.GetProvider().Name())
		return err
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheClearCmd)

	cacheClearCmd.Flags().StringSlice("image-key", nil, "Image key whose cached original should be removed (repeatable)")
	cacheClearCmd.Flags().StringSlice("directory-key", nil, "Directory key whose cached tree should be removed (repeatable)")
}

// clearCacheKeys 删除指定的原图与目录树缓存
func clearCacheKeys(ctx context.Context, factory *cache.Factory, imageKeys, directoryKeys []string) (int, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	keys := make([]string, 0, len(imageKeys)+len(directoryKeys))
	for _, k := range imageKeys {
		keys = append(keys, cache.OriginalImage.Build(k))
	}
	for _, k := range directoryKeys {
		keys = append(keys, cache.DirectoryTree.Build(k))
	}

	cleared := 0
	for _, key := range keys {
		if err := factory.Delete(ctx, key); err != nil {
			return cleared, fmt.Errorf("failed to delete %s: %w", key, err)
		}
		cleared++
	}
	return cleared, nil
}
