package cli

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"

	"github.com/dkeye/Huddle/internal/adapters/token"
)

func NewTokenCmd(deps *Dependencies) *cobra.Command {
	var room, name string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Fetch a join credential and print it as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				name = deps.Settings.DisplayName
			}
			if name == "" {
				return errors.New("--name is required when no display name is saved")
			}
			g, err := token.NewClient(deps.Config.TokenURL, nil).Fetch(cmd.Context(), room, name)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(g)
		},
	}

	cmd.Flags().StringVarP(&room, "room", "r", "", "Room name")
	cmd.Flags().StringVarP(&name, "name", "n", "", "Display name")
	_ = cmd.MarkFlagRequired("room")

	return cmd
}
