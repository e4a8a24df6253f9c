package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"agentmux/internal/infra/config"
)

const configKeyEnv = "AGENTMUX_CONFIG_KEY"

func newEncryptCmd() *cobra.Command {
	var decrypt bool
	cmd := &cobra.Command{
		Use:   "encrypt [value]",
		Short: "Encrypt a secret for use in the config file",
		Long: `Encrypt an API key or bearer token with the passphrase in
AGENTMUX_CONFIG_KEY. Paste the printed enc:... value into the config; it
is decrypted at load time when the same passphrase is set.

With no argument the value is read from stdin.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			passphrase := os.Getenv(configKeyEnv)
			if passphrase == "" {
				return errors.New(configKeyEnv + " is not set")
			}
			value, err := readQuery(cmd.InOrStdin(), args)
			if err != nil {
				return errors.New("no value given")
			}

			if decrypt {
				sealed, _ := strings.CutPrefix(value, config.EncPrefix)
				plain, err := config.DecryptValue(sealed, passphrase)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), plain)
				return nil
			}

			sealed, err := config.EncryptValue(value, passphrase)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), config.EncPrefix+sealed)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&decrypt, "decrypt", "d", false, "decrypt an enc: value instead")
	return cmd
}
