package main

import (
	"fmt"
	"io"
	"os"
	"pixgate/internal"
	"pixgate/internal/config"
	"pixgate/security"
	"pixgate/utility"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var Version = "dev"

// app carries what the commands share; the database is opened on first use
type app struct {
	confPath  string
	conf      *config.Config
	db        internal.Database
	mongo     *internal.MongoDB
	encryptor *security.Encryptor
	out       io.Writer
	now       func() time.Time
}

func main() {
	a := &app{out: os.Stdout, now: time.Now}
	if err := a.rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func (a *app) rootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "pixctl",
		Short:         "pixctl - administration of the PIX payments gateway",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&a.confPath, "conf", "c", "config.yml", "path to the gateway configuration file")
	rootCmd.SetOut(a.out)

	rootCmd.AddCommand(a.providerCmd())
	rootCmd.AddCommand(a.merchantCmd())
	rootCmd.AddCommand(a.userCmd())
	rootCmd.AddCommand(a.apiKeyCmd())
	rootCmd.AddCommand(a.keysCmd())
	return rootCmd
}

// open connects to mongodb; records written from the command line must outlive the process
func (a *app) open() error {
	if a.db != nil {
		return nil
	}
	conf, err := config.GetConfig(a.confPath)
	if err != nil {
		return fmt.Errorf("reading configuration: %w", err)
	}
	if !conf.Mongo.Enabled {
		return utility.Err("mongo is disabled in configuration, nothing to administer")
	}
	a.conf = conf
	a.mongo, err = internal.NewMongoClient(conf)
	if err != nil {
		return fmt.Errorf("mongodb setup failed: %w", err)
	}
	if err = a.mongo.EnsureIndexes(); err != nil {
		return fmt.Errorf("mongodb indexes: %w", err)
	}
	a.db = a.mongo
	return nil
}

// secrets returns the credential encryptor built from the configured key
func (a *app) secrets() (*security.Encryptor, error) {
	if a.encryptor != nil {
		return a.encryptor, nil
	}
	if err := a.open(); err != nil {
		return nil, err
	}
	if a.conf.Encryption.Key == "" {
		return nil, utility.Err("encryption key is not configured; run `pixctl keys generate`")
	}
	encryptor, err := security.NewEncryptorFromBase64(a.conf.Encryption.Key)
	if err != nil {
		return nil, fmt.Errorf("encryption setup failed: %w", err)
	}
	a.encryptor = encryptor
	return encryptor, nil
}

func (a *app) close() {
	if a.mongo != nil {
		a.mongo.Close()
		a.mongo = nil
	}
}

func (a *app) table() *tabwriter.Writer {
	return tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
}

func boolText(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
