// Package cli implements collabctl, the operator command line for a running
// CollabHub server. Every command goes through the admin API.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/dalemusser/collabhub/internal/app/client"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	ConfigFileName = ".collabctl"
	EnvPrefix      = "COLLABCTL"
)

const version = "v0.1.0"

// NewRootCommand builds the command tree. Output goes to out.
//
// Settings resolve in order: flags, COLLABCTL_* environment variables, then
// $HOME/.collabctl.yaml (or the file named by --config).
func NewRootCommand(out io.Writer) *cobra.Command {
	v := viper.New()
	var cfgFile string

	root := &cobra.Command{
		Use:           "collabctl",
		Short:         "Operate a CollabHub server",
		Long:          "collabctl approves and rejects submissions, runs cascading deletes,\nends companies, and watches lifecycle events on a CollabHub server.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(v, cfgFile)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.SetOut(out)

	pf := root.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.collabctl.yaml)")
	pf.String("server", "http://localhost:8080", "CollabHub server URL")
	pf.String("api-key", "", "admin API key (<adminID>.<secret>)")
	_ = v.BindPFlag("server", pf.Lookup("server"))
	_ = v.BindPFlag("api_key", pf.Lookup("api-key"))

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	newClient := func() (*client.Client, error) {
		return client.New(client.Config{URL: v.GetString("server"), APIKey: v.GetString("api_key")})
	}

	root.AddCommand(
		newApproveCommand(newClient),
		newRejectCommand(newClient),
		newDeleteCommand(newClient),
		newEndCompanyCommand(newClient),
		newReconcileCommand(newClient),
		newStreamCommand(newClient),
		newAuditCommand(newClient),
		&cobra.Command{
			Use:   "version",
			Short: "Print the collabctl version",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "collabctl %s\n", version)
			},
		},
	)
	return root
}

func initConfig(v *viper.Viper, cfgFile string) error {
	v.SetConfigType("yaml")
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			return fmt.Errorf("finding home directory: %w", err)
		}
		v.AddConfigPath(home)
		v.SetConfigName(ConfigFileName)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && cfgFile == "" {
			return nil
		}
		return fmt.Errorf("reading config %s: %w", filepath.Base(v.ConfigFileUsed()), err)
	}
	return nil
}

type clientFactory func() (*client.Client, error)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
