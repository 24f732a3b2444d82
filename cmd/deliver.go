/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/shorttrack/apiserver/config"
	"github.com/shorttrack/apiserver/internal/delivery"
	"github.com/shorttrack/apiserver/internal/mq"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// deliverCmd drains queued email and SMS jobs.
var deliverCmd = &cobra.Command{
	Use:   "deliver",
	Short: "Run the email and SMS delivery worker",
	Long: `Consumes delivery jobs published by the server when MQ_BACKEND is set
and sends them through SMTP and Twilio.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		mailer, sms, err := delivery.Channels(cfg)
		if err != nil {
			return err
		}
		if mailer == nil && sms == nil {
			return errors.New("neither SMTP nor Twilio is configured")
		}

		queue, err := mq.Open(ctx, cfg.MQ)
		if err != nil {
			return err
		}
		if queue == nil {
			return errors.New("MQ_BACKEND is required for the delivery worker")
		}
		defer func() {
			if err := queue.Close(); err != nil {
				log.WithError(err).Warn("failed to close message queue")
			}
		}()

		return delivery.NewWorker(mailer, sms).Run(ctx, queue, cfg.MQ.DeliveryTopic)
	},
}

func init() {
	rootCmd.AddCommand(deliverCmd)
}
