package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/battconv/battconv/internal/configregistry"
)

var (
	backupDescription string
	restoreBackupID   string
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and manage persisted configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the live app configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg := configregistry.New(configDir)
		if err := reg.Load(); err != nil {
			return err
		}
		app := reg.App()
		fmt.Printf("%+v\n", app)
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the live app configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg := configregistry.New(configDir)
		if err := reg.Load(); err != nil {
			return err
		}
		ok, errs := configregistry.Validate(reg.App())
		if ok {
			fmt.Println("config valid")
			return nil
		}
		for _, e := range errs {
			fmt.Println("-", e)
		}
		return fmt.Errorf("config invalid: %d errors", len(errs))
	},
}

var configBackupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Create a backup of the config tree",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg := configregistry.New(configDir)
		if err := reg.Load(); err != nil {
			return err
		}
		rec, err := reg.Backup(configregistry.ConfigTypeAll, backupDescription, false)
		if err != nil {
			return err
		}
		fmt.Println("backup created:", rec.ID)
		return nil
	},
}

var configRestoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restore the config tree from a backup id",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg := configregistry.New(configDir)
		return reg.Restore(restoreBackupID)
	},
}

func init() {
	configBackupCmd.Flags().StringVar(&backupDescription, "description", "", "human-readable note for this backup")
	configRestoreCmd.Flags().StringVar(&restoreBackupID, "id", "", "backup id to restore from")
	configCmd.AddCommand(configShowCmd, configValidateCmd, configBackupCmd, configRestoreCmd)
}
