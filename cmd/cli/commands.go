package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/sqlreports/cmd/cli/client"
)

var apiClient *client.APIClient

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Login to the reports server",
	RunE: func(cmd *cobra.Command, args []string) error {
		username, _ := cmd.Flags().GetString("username")
		password, _ := cmd.Flags().GetString("password")

		token, err := apiClient.Login(username, password)
		if err != nil {
			return fmt.Errorf("login failed: %v", err)
		}

		viper.Set("token", token)
		if err := viper.WriteConfig(); err != nil {
			return fmt.Errorf("failed to save token: %v", err)
		}
		fmt.Println("Login successful")
		return nil
	},
}

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List report categories",
	RunE: func(cmd *cobra.Command, args []string) error {
		categories, err := apiClient.ListCategories()
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.TabIndent)
		fmt.Fprintln(w, "ID\tNAME\t")
		for _, category := range categories {
			fmt.Fprintf(w, "%d\t%s\t\n", category.ID, category.Name)
		}
		return w.Flush()
	},
}

func newReportsCommand() *cobra.Command {
	var categoryID uint

	cmd := &cobra.Command{
		Use:   "reports",
		Short: "List and manage reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			reports, err := apiClient.ListReports(categoryID)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.TabIndent)
			fmt.Fprintln(w, "ID\tNAME\tRUNABLE\tLAST RUN\t")
			for _, report := range reports {
				lastRun := "never"
				if report.LastRun != 0 {
					lastRun = time.Unix(report.LastRun, 0).Format("2006-01-02 15:04:05")
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t\n",
					report.ID, report.DisplayName, report.Runable, lastRun)
			}
			return w.Flush()
		},
	}
	cmd.Flags().UintVar(&categoryID, "category", 0, "Filter by category ID")

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a report from JSON on stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			var report map[string]interface{}
			if err := json.NewDecoder(os.Stdin).Decode(&report); err != nil {
				return fmt.Errorf("invalid report JSON: %v", err)
			}

			if err := apiClient.CreateReport(report); err != nil {
				return err
			}

			fmt.Println("Report created successfully")
			return nil
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete [id]",
		Short: "Delete a report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid report ID: %v", err)
			}

			if err := apiClient.DeleteReport(uint(id)); err != nil {
				return err
			}

			fmt.Println("Report deleted successfully")
			return nil
		},
	}

	cmd.AddCommand(createCmd, deleteCmd)
	return cmd
}

func newRunCommand() *cobra.Command {
	var paramFlags []string

	cmd := &cobra.Command{
		Use:   "run [id]",
		Short: "Run a manual report now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid report ID: %v", err)
			}

			params := make(map[string]string)
			for _, flag := range paramFlags {
				name, value := splitParam(flag)
				if name != "" {
					params[name] = value
				}
			}

			result, err := apiClient.RunReport(uint(id), params)
			if err != nil {
				return err
			}

			if result.CSVPath == "" {
				fmt.Println("The report returned no data")
			} else {
				fmt.Printf("Report written to %s (%d ms)\n", result.CSVPath, result.LastExecutionTime)
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&paramFlags, "param", nil, "Placeholder value as name=value (repeatable)")
	return cmd
}

func splitParam(flag string) (string, string) {
	for i := 0; i < len(flag); i++ {
		if flag[i] == '=' {
			return flag[:i], flag[i+1:]
		}
	}
	return flag, ""
}

var archivesCmd = &cobra.Command{
	Use:   "archives [id]",
	Short: "List a report's archived runs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid report ID: %v", err)
		}

		archives, err := apiClient.ListArchives(uint(id))
		if err != nil {
			return err
		}

		for _, timestamp := range archives {
			fmt.Println(time.Unix(timestamp, 0).Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}
