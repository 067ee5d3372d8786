package cmd

import (
	"fmt"

	"Bt1QMedia/config"
	"Bt1QMedia/core/auth"
	"Bt1QMedia/db"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "迁移数据库表结构",
	Long:  `对关系型数据库执行 AutoMigrate，创建或更新所有表。仅适用于 sql 存储后端。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.StoreBackend != config.StoreSQL {
			return fmt.Errorf("migrate needs STORE_BACKEND=sql, got %q", cfg.StoreBackend)
		}

		gdb, err := db.Open(cfg)
		if err != nil {
			return err
		}
		if sqlDB, err := gdb.DB(); err == nil {
			defer sqlDB.Close()
		}
		if err := db.Migrate(gdb); err != nil {
			return err
		}
		fmt.Printf("数据库迁移完成 (%s)\n", cfg.DBDriver)
		return nil
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "写入管理员账号和示例曲库",
	Long:  `创建管理员账号（若不存在），曲库为空时写入示例歌曲和播客。重复执行不会产生重复数据。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := db.NewStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		res, err := db.Seed(cmd.Context(), store, db.AdminAccount{
			Username: cfg.AdminUsername,
			Email:    cfg.AdminEmail,
			Password: cfg.AdminPassword,
		})
		if err != nil {
			return err
		}
		fmt.Printf("管理员已创建: %v, 示例歌曲: %d, 示例播客: %d\n", res.AdminCreated, res.Tracks, res.Podcasts)
		return nil
	},
}

var (
	adminUsername string
	adminEmail    string
	adminPassword string
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "用户管理",
}

var createAdminCmd = &cobra.Command{
	Use:   "create-admin",
	Short: "创建管理员账号",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := db.NewStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		created, err := auth.NewService(store, nil).EnsureAdmin(cmd.Context(), adminUsername, adminEmail, adminPassword)
		if err != nil {
			return err
		}
		if created {
			fmt.Printf("管理员 %s 创建成功\n", adminUsername)
		} else {
			fmt.Printf("用户 %s 已存在，未做修改\n", adminUsername)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd, seedCmd, userCmd)
	userCmd.AddCommand(createAdminCmd)

	createAdminCmd.Flags().StringVarP(&adminUsername, "username", "u", "", "admin username")
	createAdminCmd.Flags().StringVarP(&adminEmail, "email", "e", "", "admin email")
	createAdminCmd.Flags().StringVarP(&adminPassword, "password", "p", "", "admin password")
	createAdminCmd.MarkFlagRequired("username")
	createAdminCmd.MarkFlagRequired("email")
	createAdminCmd.MarkFlagRequired("password")
}
