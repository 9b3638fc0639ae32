package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/sqlreports/cmd/cli/client"
)

var rootCmd = &cobra.Command{
	Use:   "sqlreports",
	Short: "SQL Query Reports CLI",
	Long: `Command-line client for the SQL Query Reports server.
It manages report categories and definitions, runs manual reports,
and lists archived scheduled runs.`,
}

func init() {
	viper.SetConfigName("cli")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.SetDefault("server", "http://localhost:8080")
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			_ = viper.SafeWriteConfig()
		}
	}

	apiClient = client.NewAPIClient(viper.GetString("server"))

	loginCmd.Flags().String("username", "", "Username")
	loginCmd.Flags().String("password", "", "Password")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(categoriesCmd)
	rootCmd.AddCommand(newReportsCommand())
	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(archivesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
