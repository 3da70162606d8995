package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nhle/mailreader/internal/credential"
	"github.com/nhle/mailreader/internal/model"
	"github.com/nhle/mailreader/internal/ui/setup"
)

func newConfigureCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "configure",
		Short: "Set up the IMAP account interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			form, collect := setup.NewForm(*env.Config)
			if err := form.Run(); err != nil {
				return fmt.Errorf("configure form: %w", err)
			}
			res, err := collect()
			if err != nil {
				return err
			}

			if res.Password != "" {
				if err := credential.Set(res.Config.Account.PasswordKey, res.Password); err != nil {
					return fmt.Errorf("saving password: %w", err)
				}
			}
			if err := model.SaveConfig(env.ConfigPath, &res.Config); err != nil {
				return err
			}

			fmt.Fprintf(env.Out, "Saved %s\n", env.ConfigPath)
			return nil
		},
	}
}
