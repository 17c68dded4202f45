package main

import (
	"net/url"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/student-map/internal/config"
)

const redacted = "********"

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with secrets redacted",
	RunE: func(cmd *cobra.Command, _ []string) error {
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		if err := enc.Encode(redactConfig(*cfg)); err != nil {
			return eris.Wrap(err, "config show: encode")
		}
		return eris.Wrap(enc.Close(), "config show: flush")
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}

// redactConfig masks credentials in a copy of c.
func redactConfig(c config.Config) config.Config {
	if c.Export.S3.AccessKey != "" {
		c.Export.S3.AccessKey = redacted
	}
	if c.Export.S3.SecretKey != "" {
		c.Export.S3.SecretKey = redacted
	}
	if c.Store.DatabaseURL != "" {
		if u, err := url.Parse(c.Store.DatabaseURL); err == nil && u.User != nil {
			c.Store.DatabaseURL = u.Redacted()
		}
	}
	return c
}
