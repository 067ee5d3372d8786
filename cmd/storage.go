package cmd

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"Bt1QMedia/storage"

	"github.com/spf13/cobra"
)

var (
	storagePrefix string
	storageStats  bool
)

var storageCmd = &cobra.Command{
	Use:   "storage",
	Short: "媒体文件存储管理",
}

var storageLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "列出存储中的媒体文件",
	Long:  `列出当前存储后端（local/minio/supabase）中的文件，可按前缀过滤并显示统计信息。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := storage.New(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("无法连接到存储: %w", err)
		}

		objects, err := store.List(cmd.Context(), storagePrefix)
		if err != nil {
			return fmt.Errorf("列出文件失败: %w", err)
		}

		fmt.Printf("存储后端: %s, 前缀: %q\n\n", store.Name(), storagePrefix)
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "KEY\tSIZE\tMODIFIED")
		for _, obj := range objects {
			modified := "-"
			if !obj.LastModified.IsZero() {
				modified = obj.LastModified.Format("2006-01-02 15:04:05")
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", obj.Key, storage.FormatSize(obj.Size), modified)
		}
		tw.Flush()

		if storageStats {
			stats := storage.Summarize(objects)
			fmt.Printf("\n总文件数: %d\n总大小: %s\n", stats.TotalObjects, storage.FormatSize(stats.TotalSize))
			if !stats.LastModified.IsZero() {
				fmt.Printf("最后修改: %s\n", stats.LastModified.Format("2006-01-02 15:04:05"))
			}
			kinds := make([]string, 0, len(stats.ByType))
			for k := range stats.ByType {
				kinds = append(kinds, k)
			}
			sort.Strings(kinds)
			for _, k := range kinds {
				fmt.Printf("  %s: %d\n", k, stats.ByType[k])
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(storageCmd)
	storageCmd.AddCommand(storageLsCmd)

	storageLsCmd.Flags().StringVarP(&storagePrefix, "prefix", "p", "", "按前缀过滤文件")
	storageLsCmd.Flags().BoolVarP(&storageStats, "stats", "s", false, "显示统计信息")

	storageLsCmd.Example = `  # 列出所有文件
  bt1qmedia storage ls

  # 按前缀过滤并显示统计信息
  bt1qmedia storage ls -p "audio/" -s`
}
