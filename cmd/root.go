/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"

	"github.com/shorttrack/apiserver/config"
	"github.com/shorttrack/apiserver/internal/logging"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "shorttrack",
	Short: "ShortTrack URL shortener backend",
	Long: `ShortTrack shortens URLs, tracks their visits and signs users in
with passwords, authenticator apps, SMS codes or magic links.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Setup(config.LoadConfig().Log)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.WithError(err).Error("command failed")
		os.Exit(1)
	}
}
