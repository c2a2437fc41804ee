package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"gridlock/internal/config"
	"gridlock/internal/store"
)

func newCharactersCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "characters",
		Short: "Manage the recurring character roster",
	}
	cmd.AddCommand(newCharactersListCommand(ctx))
	cmd.AddCommand(newCharactersAddCommand(ctx))
	return cmd
}

func newCharactersListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active characters",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				characters, err := st.ActiveCharacters(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(characters) == 0 {
					fmt.Fprintln(out, "No active characters")
					return nil
				}
				rows := make([][]string, 0, len(characters))
				for _, ch := range characters {
					rows = append(rows, []string{
						strconv.FormatInt(ch.ID, 10),
						ch.Name,
						ch.Role,
						ch.Team,
						truncate(ch.Personality, 40),
						yesNo(ch.PrimaryImagePath != ""),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "Name", "Role", "Team", "Personality", "Portrait"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
}

func newCharactersAddCommand(ctx *commandContext) *cobra.Command {
	var character store.Character

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a character to the roster",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			character.Name = args[0]
			if character.DisplayName == "" {
				character.DisplayName = character.Name
			}
			character.IsActive = true
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				if err := st.InsertCharacter(cmd.Context(), &character); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Character %d added: %s\n", character.ID, character.Name)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&character.DisplayName, "display-name", "", "Name as shown in prompts (defaults to the roster name)")
	cmd.Flags().StringVar(&character.Role, "role", "", "Role, e.g. driver or team-principal")
	cmd.Flags().StringVar(&character.Team, "team", "", "Team affiliation")
	cmd.Flags().StringVar(&character.Personality, "personality", "", "Personality description used in script prompts")
	cmd.Flags().StringVar(&character.ComedyAngle, "comedy-angle", "", "Recurring comedic angle")
	cmd.Flags().StringVar(&character.PhysicalFeatures, "features", "", "Exaggerated physical features for caricatures")
	cmd.Flags().StringVar(&character.ClothingDescription, "clothing", "", "Typical clothing description")
	return cmd
}
