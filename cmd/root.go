package cmd

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/lending/internal/config"
)

type rootOptions struct {
	configFile string
	apiURL     string
	output     string
	verbose    bool
}

func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	a := &app{}

	cmd := &cobra.Command{
		Use:   "lending",
		Short: "Browse the library catalog and request loans from the terminal",
		Long: `Lending is a client for the library's lending service.

It signs you in, lists the catalog, tells you whether you can request a book
(and why not when you can't), submits loan requests, and shows your request,
loan and penalty history.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()

			v := config.New(opts.configFile)
			if cmd.Flags().Changed("api-url") {
				v.Set("api_url", opts.apiURL)
			}
			if cmd.Flags().Changed("output") {
				v.Set("output", opts.output)
			}
			if opts.verbose {
				v.Set("log_level", "debug")
			}

			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			configureLogging(cfg.LogLevel)
			*a = *newApp(cfg)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "Path to lending.yaml")
	cmd.PersistentFlags().StringVar(&opts.apiURL, "api-url", "", "Lending API base URL (default http://127.0.0.1:8000/api)")
	cmd.PersistentFlags().StringVarP(&opts.output, "output", "o", "", "Output format: table, json or yaml")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose logging")

	cmd.AddCommand(newLoginCmd(a))
	cmd.AddCommand(newRegisterCmd(a))
	cmd.AddCommand(newLogoutCmd(a))
	cmd.AddCommand(newWhoamiCmd(a))
	cmd.AddCommand(newCatalogCmd(a))
	cmd.AddCommand(newCheckCmd(a))
	cmd.AddCommand(newRequestCmd(a))
	cmd.AddCommand(newRequestsCmd(a))
	cmd.AddCommand(newLoansCmd(a))
	cmd.AddCommand(newPenaltiesCmd(a))
	cmd.AddCommand(newExportCmd(a))
	cmd.AddCommand(newServeCmd(a))

	return cmd
}
