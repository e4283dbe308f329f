package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	redisclient "github.com/vietddude/demandcast/internal/infra/redis"
)

var (
	clearScope   string
	clearProduct string
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the Redis cache",
}

var cacheInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Print cache statistics and key counts",
	Run: func(cmd *cobra.Command, args []string) {
		cache := openCache()
		defer closeCache(cache)

		info := cache.Info(context.Background())
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(info)
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove cached models and predictions",
	Run: func(cmd *cobra.Command, args []string) {
		cache := openCache()
		defer closeCache(cache)

		ctx := context.Background()
		var n int
		switch {
		case clearProduct != "":
			n = cache.InvalidateProduct(ctx, clearProduct)
		case clearScope == "all":
			n = cache.InvalidateAll(ctx)
		case clearScope == "predictions":
			n = cache.InvalidatePredictions(ctx)
		case clearScope == "models":
			n = cache.InvalidateModels(ctx)
		default:
			slog.Error("Invalid scope, expected all, predictions or models", "scope", clearScope)
			os.Exit(1)
		}
		fmt.Printf("Removed %d keys\n", n)
	},
}

func init() {
	cacheClearCmd.Flags().StringVar(&clearScope, "scope", "all", "all, predictions or models")
	cacheClearCmd.Flags().StringVar(&clearProduct, "product", "", "only clear entries of this product")
	cacheCmd.AddCommand(cacheInfoCmd, cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}

func openCache() *redisclient.ModelCache {
	cfg := loadConfig()
	c := redisclient.NewClient(cfg.Redis)
	if !c.Enabled() {
		slog.Error("Redis is not reachable, check redis.url or REDIS_URL")
		os.Exit(1)
	}
	return redisclient.NewModelCache(c)
}

func closeCache(m *redisclient.ModelCache) {
	_ = m.Client().Close()
}
