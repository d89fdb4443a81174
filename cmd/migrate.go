package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/anoixa/image-resizer/config"
	"github.com/anoixa/image-resizer/database"
	"github.com/anoixa/image-resizer/database/models"
	"github.com/anoixa/image-resizer/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// migrateCmd 数据库迁移命令
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Database migration tools",
	Long:  `Create the schema or move data from one database to another (e.g., SQLite to PostgreSQL).`,
}

// migrateSchemaCmd 只建表
var migrateSchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Create or update tables in the configured database",
	RunE: func(cmd *cobra.Command, args []string) error {
		factory, err := database.NewFactory(config.Get())
		if err != nil {
			return err
		}
		defer factory.Close()

		if err := factory.AutoMigrate(); err != nil {
			return err
		}
		utils.Logger().Info("Schema is up to date", zap.String("db_type", config.Get().DBType))
		return nil
	},
}

// migrateRunCmd 执行迁移命令
var migrateRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run database migration",
	Long: `Copy directories, original images and derived images from source to target database.

Examples:
  # Migrate from SQLite to PostgreSQL
  image-resizer migrate run --from-sqlite ./data/resizer.db --to-postgres "host=localhost user=postgres password=secret dbname=resizer port=5432"

  # Migrate with overwrite strategy (replace existing rows)
  image-resizer migrate run --from-sqlite ./data/resizer.db --to-postgres "..." --on-conflict=overwrite

  # Stop on conflict
  image-resizer migrate run --from-sqlite ./data/resizer.db --to-postgres "..." --on-conflict=error`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fromType, _ := cmd.Flags().GetString("from-type")
		toType, _ := cmd.Flags().GetString("to-type")
		fromDSN, _ := cmd.Flags().GetString("from-dsn")
		toDSN, _ := cmd.Flags().GetString("to-dsn")
		fromSQLite, _ := cmd.Flags().GetString("from-sqlite")
		toPostgres, _ := cmd.Flags().GetString("to-postgres")
		skipConfirm, _ := cmd.Flags().GetBool("yes")
		batchSize, _ := cmd.Flags().GetInt("batch-size")
		onConflict, _ := cmd.Flags().GetString("on-conflict")

		if fromSQLite != "" {
			fromType, fromDSN = "sqlite", fromSQLite
		}
		if toPostgres != "" {
			toType, toDSN = "postgres", toPostgres
		}
		return runMigration(migrateOptions{
			fromType:    fromType,
			toType:      toType,
			fromDSN:     fromDSN,
			toDSN:       toDSN,
			skipConfirm: skipConfirm,
			batchSize:   batchSize,
			onConflict:  onConflict,
		})
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateSchemaCmd)
	migrateCmd.AddCommand(migrateRunCmd)

	migrateRunCmd.Flags().String("from-type", "", "Source database type (sqlite, postgres)")
	migrateRunCmd.Flags().String("to-type", "", "Target database type (sqlite, postgres)")
	migrateRunCmd.Flags().String("from-dsn", "", "Source database DSN/connection string")
	migrateRunCmd.Flags().String("to-dsn", "", "Target database DSN/connection string")
	migrateRunCmd.Flags().String("from-sqlite", "", "Source SQLite file path (shortcut)")
	migrateRunCmd.Flags().String("to-postgres", "", "Target PostgreSQL connection string (shortcut)")
	migrateRunCmd.Flags().Bool("yes", false, "Skip confirmation prompt")
	migrateRunCmd.Flags().Int("batch-size", 100, "Batch size for data migration")
	migrateRunCmd.Flags().String("on-conflict", "skip", "Conflict resolution strategy: skip (default), overwrite, error")
}

type migrateOptions struct {
	fromType, toType string
	fromDSN, toDSN   string
	skipConfirm      bool
	batchSize        int
	onConflict       string
}

// migrateStats 迁移统计
type migrateStats struct {
	directories int
	originals   int
	derived     int
	errors      []string
}

// runMigration 执行数据库迁移
func runMigration(opts migrateOptions) error {
	if opts.onConflict != "skip" && opts.onConflict != "overwrite" && opts.onConflict != "error" {
		return fmt.Errorf("invalid on-conflict strategy: %s (must be skip, overwrite, or error)", opts.onConflict)
	}
	if opts.fromType == "" || opts.toType == "" {
		return fmt.Errorf("both --from-type and --to-type are required")
	}
	if opts.fromDSN == "" || opts.toDSN == "" {
		return fmt.Errorf("both --from-dsn and --to-dsn (or shortcuts) are required")
	}
	if opts.fromType == opts.toType && opts.fromDSN == opts.toDSN {
		return fmt.Errorf("source and target databases are the same")
	}
	if opts.batchSize <= 0 {
		opts.batchSize = 100
	}

	log := utils.Logger()
	log.Info("Migrating database",
		zap.String("from", opts.fromType),
		zap.String("to", opts.toType),
		zap.String("source", maskDSN(opts.fromDSN)),
		zap.String("target", maskDSN(opts.toDSN)),
		zap.String("on_conflict", opts.onConflict))

	sourceDB, err := openDatabase(opts.fromType, opts.fromDSN)
	if err != nil {
		return fmt.Errorf("failed to connect to source database: %w", err)
	}
	sqlDB, _ := sourceDB.DB()
	defer sqlDB.Close()

	targetDB, err := openDatabase(opts.toType, opts.toDSN)
	if err != nil {
		return fmt.Errorf("failed to connect to target database: %w", err)
	}
	sqlDB2, _ := targetDB.DB()
	defer sqlDB2.Close()

	if !opts.skipConfirm {
		fmt.Println("\nWarning: This will migrate all data from source to target database.")
		fmt.Printf("Conflict resolution strategy: %s\n", opts.onConflict)
		fmt.Print("Do you want to continue? [y/N]: ")
		var response string
		fmt.Scanln(&response)
		if response != "y" && response != "Y" {
			fmt.Println("Migration cancelled.")
			return nil
		}
	}

	if err := database.Migrate(database.WrapDB(targetDB, opts.toType)); err != nil {
		return err
	}

	ctx := context.Background()
	stats := &migrateStats{}
	if err := migrateTables(ctx, sourceDB, targetDB, stats, opts.batchSize, opts.onConflict); err != nil {
		printMigrateStats(stats)
		return err
	}

	if opts.toType == "postgres" || opts.toType == "postgresql" {
		if err := resetSequences(ctx, targetDB); err != nil {
			log.Warn("Failed to reset sequences", zap.Error(err))
		}
	}

	printMigrateStats(stats)
	return nil
}

// migrateTables 按外键依赖顺序复制：目录、原图、派生图
func migrateTables(ctx context.Context, sourceDB, targetDB *gorm.DB, stats *migrateStats, batchSize int, onConflict string) error {
	// 目录自引用，先去掉父级插入，再单独回填父级
	n, err := copyTable(ctx, sourceDB, targetDB, batchSize, onConflict, stats, func(d *models.Directory) {
		d.ParentDirectoryID = nil
	})
	stats.directories = n
	if err != nil {
		return err
	}
	if err := restoreDirectoryParents(ctx, sourceDB, targetDB); err != nil {
		return err
	}

	n, err = copyTable[models.OriginalImage](ctx, sourceDB, targetDB, batchSize, onConflict, stats, nil)
	stats.originals = n
	if err != nil {
		return err
	}

	n, err = copyTable[models.DerivedImage](ctx, sourceDB, targetDB, batchSize, onConflict, stats, nil)
	stats.derived = n
	return err
}

// copyTable 分批读取源表写入目标表，返回写入条数
func copyTable[T any](ctx context.Context, sourceDB, targetDB *gorm.DB, batchSize int, onConflict string, stats *migrateStats, prepare func(*T)) (int, error) {
	var (
		copied int
		rows   []T
	)

	conflict := clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}
	if onConflict == "overwrite" {
		conflict = clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, UpdateAll: true}
	}

	result := sourceDB.WithContext(ctx).FindInBatches(&rows, batchSize, func(tx *gorm.DB, batch int) error {
		for i := range rows {
			if prepare != nil {
				prepare(&rows[i])
			}
		}

		target := targetDB.WithContext(ctx)
		if onConflict != "error" {
			target = target.Clauses(conflict)
		}
		res := target.Create(&rows)
		if res.Error != nil {
			stats.errors = append(stats.errors, fmt.Sprintf("batch %d: %v", batch, res.Error))
			if onConflict == "error" {
				return res.Error
			}
			return nil
		}
		copied += int(res.RowsAffected)
		return nil
	})
	if result.Error != nil {
		var zero T
		return copied, fmt.Errorf("failed to migrate %T: %w", zero, result.Error)
	}

	var zero T
	utils.Logger().Info("Table migrated", zap.String("model", fmt.Sprintf("%T", zero)), zap.Int("rows", copied))
	return copied, nil
}

// restoreDirectoryParents 回填目录的父级引用
func restoreDirectoryParents(ctx context.Context, sourceDB, targetDB *gorm.DB) error {
	type link struct {
		ID                uint
		ParentDirectoryID *uint
	}
	var links []link
	if err := sourceDB.WithContext(ctx).Model(&models.Directory{}).
		Where("parent_directory_id IS NOT NULL").
		Select("id", "parent_directory_id").
		Scan(&links).Error; err != nil {
		return err
	}

	for _, l := range links {
		if err := targetDB.WithContext(ctx).Model(&models.Directory{}).
			Where("id = ?", l.ID).
			Update("parent_directory_id", l.ParentDirectoryID).Error; err != nil {
			return fmt.Errorf("failed to restore parent of directory %d: %w", l.ID, err)
		}
	}
	return nil
}

// resetSequences 显式写入 id 后需要把 postgres 序列推进到最大值
func resetSequences(ctx context.Context, db *gorm.DB) error {
	for _, table := range []string{"directories", "original_images", "derived_images"} {
		sql := fmt.Sprintf("SELECT setval(pg_get_serial_sequence('%s', 'id'), COALESCE((SELECT MAX(id) FROM %s), 0) + 1, false)", table, table)
		if err := db.WithContext(ctx).Exec(sql).Error; err != nil {
			return fmt.Errorf("reset sequence for %s: %w", table, err)
		}
	}
	return nil
}

func openDatabase(dbType, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch dbType {
	case "sqlite":
		sqliteDSN := dsn
		if sqliteDSN == "" {
			sqliteDSN = "file::memory:?cache=shared"
		}
		dialector = sqlite.Open(sqliteDSN)
	case "postgres", "postgresql":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

// maskDSN 隐藏敏感信息
func maskDSN(dsn string) string {
	if len(dsn) > 50 {
		return dsn[:50] + "..."
	}
	return dsn
}

// printMigrateStats 打印迁移统计
func printMigrateStats(stats *migrateStats) {
	fmt.Println()
	fmt.Println("========================================")
	fmt.Println("       Migration Statistics")
	fmt.Println("========================================")
	fmt.Printf("Directories migrated:     %d\n", stats.directories)
	fmt.Printf("Original images migrated: %d\n", stats.originals)
	fmt.Printf("Derived images migrated:  %d\n", stats.derived)
	fmt.Println("========================================")

	if len(stats.errors) > 0 {
		fmt.Println("\nErrors encountered:")
		for _, err := range stats.errors {
			fmt.Printf("  - %s\n", err)
		}
	}
}
