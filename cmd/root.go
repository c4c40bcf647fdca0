package cmd

import (
	"fmt"
	"os"

	"peoplegrid_backend/internal/app"
	"peoplegrid_backend/internal/config"
	"peoplegrid_backend/pkg/logger"

	"github.com/spf13/cobra"
)

const Version = "1.0.0"

var (
	configDir string

	// RootCmd 不带子命令时等同于 serve
	RootCmd = &cobra.Command{
		Use:   "peoplegrid",
		Short: "PeopleGrid social backend",
		Long: fmt.Sprintf(`PeopleGrid (v%s)

Friends, realtime direct messages and a shared media feed.`, Version),
		RunE: runServe,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and websocket server",
		RunE:  runServe,
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations and exit",
		RunE:  runMigrate,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("peoplegrid v%s\n", Version)
		},
	}
)

func init() {
	RootCmd.PersistentFlags().StringVar(&configDir, "config", "configs", "directory containing config.yaml")

	RootCmd.AddCommand(serveCmd)
	RootCmd.AddCommand(migrateCmd)
	RootCmd.AddCommand(versionCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	application, err := app.NewApp(cfg)
	if err != nil {
		return err
	}
	defer logger.Log.Sync()

	application.WatchConfig(configDir)
	return application.Run()
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.MigrateOnly = true

	if _, err := app.NewApp(cfg); err != nil {
		return err
	}
	defer logger.Log.Sync()

	fmt.Println("database migration finished")
	return nil
}

// Execute 由 main.main 调用
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
