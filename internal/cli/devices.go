package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/media"
)

func NewDevicesCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List configured capture devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := media.NewCatalog("huddle", deps.Config.Devices)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			preferred := map[domain.Kind]string{
				domain.KindAudio: deps.Settings.AudioDevice,
				domain.KindVideo: deps.Settings.VideoDevice,
			}
			for _, kind := range domain.Kinds {
				fmt.Fprintln(out, titleStyle.Render(string(kind)))
				devs := catalog.Devices(kind)
				if len(devs) == 0 {
					fmt.Fprintln(out, dimStyle.Render("  none"))
				}
				for i, d := range devs {
					mark := " "
					if d.ID == preferred[kind] || preferred[kind] == "" && i == 0 {
						mark = selectedStyle.Render("*")
					}
					fmt.Fprintf(out, " %s %s %s\n", mark, d.ID, dimStyle.Render(d.Label))
				}
			}
			return nil
		},
	}
}
