package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/plantoncloud-inc/graph-fleet-sub000/internal/adapter/tui/theme"
	"github.com/plantoncloud-inc/graph-fleet-sub000/internal/domain"
	"github.com/plantoncloud-inc/graph-fleet-sub000/internal/usecase/specialization"
)

func newProfilesCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List the agent specializations",
		Long:  "List the built-in specializations. With --provider only the profiles supporting that cloud are shown.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			profiles := specialization.Profiles()
			if root.provider != "" {
				p := domain.CloudProvider(strings.ToLower(root.provider))
				if !p.Valid() {
					return fmt.Errorf("%w: unknown cloud provider %q", domain.ErrConfiguration, root.provider)
				}
				profiles = specialization.ForProvider(p)
			}
			writeProfiles(cmd.OutOrStdout(), profiles)
			return nil
		},
	}
}

func writeProfiles(w io.Writer, profiles []specialization.Profile) {
	header := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorAccent).Padding(0, 1)
	cell := lipgloss.NewStyle().Padding(0, 1)

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(theme.ColorBorder)).
		Headers("NAME", "PROVIDERS", "SUB-AGENTS", "DESCRIPTION").
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			return cell
		})

	for _, p := range profiles {
		t.Row(string(p.Name), providerList(p.SupportedProviders), fmt.Sprint(len(p.SubAgents)), p.Description)
	}
	fmt.Fprintln(w, t.Render())
}

func providerList(ps []domain.CloudProvider) string {
	names := make([]string, len(ps))
	for i, p := range ps {
		names[i] = string(p)
	}
	return strings.Join(names, ",")
}
