package cmd

import (
	"os"

	"github.com/alapierre/go-dian-client/dian"
	"github.com/alapierre/go-dian-client/dian/config"
	"github.com/alapierre/go-dian-client/dian/util"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"

	verbose     bool
	envName     string
	eventlogDSN string
	maxRetries  int

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "dian",
	Short: "Issue Colombian electronic invoices to DIAN",
	Long: `dian builds UBL 2.1 invoices and notes, signs them with the issuer
certificate, transmits them to the DIAN web services and keeps an append-only
log of every authority answer.

Configuration is read from DIAN_* environment variables, flags take
precedence.

Examples:
  # Build and inspect the XML and CUFE of an invoice
  dian build invoice.json -o invoice.xml

  # Issue an invoice against the certification environment
  DIAN_CERT_FILE=cert.p12 DIAN_KEY_PASS=... dian send invoice.json

  # Poll an invoice that is still being processed
  dian status SETP990000001

  # Show the fiscal history of an invoice, newest first
  dian events SETP990000001`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig(cmd)
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging (env: DIAN_DEBUG)")
	rootCmd.PersistentFlags().StringVar(&envName, "env", "", "DIAN environment: production or certification (env: DIAN_ENV)")
	rootCmd.PersistentFlags().StringVar(&eventlogDSN, "eventlog", "", "Event log: memory, sqlite://path or postgres://... (env: DIAN_EVENTLOG_DSN)")
	rootCmd.PersistentFlags().IntVar(&maxRetries, "max-retries", -1, "Retries after the first attempt (env: DIAN_MAX_RETRIES)")
}

// initConfig loads the environment configuration and applies flag overrides.
func initConfig(cmd *cobra.Command) error {
	logrus.SetOutput(os.Stderr)
	if verbose || util.DebugEnabled() {
		logrus.SetLevel(logrus.DebugLevel)
	}
	if util.HttpTraceEnabled() {
		logrus.SetLevel(logrus.TraceLevel)
	}

	c, err := config.FromEnv()
	if err != nil {
		return err
	}
	if envName != "" {
		var e dian.Environment
		if err := e.UnmarshalText([]byte(envName)); err != nil {
			return err
		}
		c.Env = e
	}
	if eventlogDSN != "" {
		c.EventLogDSN = eventlogDSN
	}
	if cmd.Flags().Changed("max-retries") {
		c.Policy.MaxRetries = maxRetries
		if err := c.Policy.Validate(); err != nil {
			return err
		}
	}
	cfg = c
	return nil
}
