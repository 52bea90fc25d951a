package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/narravid/narravid/internal/domain/entities"
)

func newEntitiesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entities",
		Short: "Inspect and curate the entity registry",
	}
	cmd.AddCommand(
		newEntitiesListCmd(),
		newEntitiesShowCmd(),
		newEntitiesSetCmd(),
	)
	return cmd
}

func newEntitiesListCmd() *cobra.Command {
	var kind, validation string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registry entities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withDeps(ctx, func(d *Deps) error {
				ents, err := d.Entities.List(ctx, entities.EntityKind(kind), entities.ValidationStatus(validation))
				if err != nil {
					return err
				}

				t := table.NewWriter()
				t.SetOutputMirror(os.Stdout)
				t.AppendHeader(table.Row{"ID", "Kind", "Name", "Aliases", "Validation", "Voice"})
				for _, ent := range ents {
					t.AppendRow(table.Row{
						shortID(ent.ID), ent.Kind, ent.Name,
						strings.Join(ent.Aliases, ", "), ent.Validation, ent.VoiceProfile,
					})
				}
				t.Render()
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "Filter by kind (character|location|object)")
	cmd.Flags().StringVar(&validation, "validation", "", "Filter by validation status (pending|confirmed|rejected)")
	return cmd
}

func newEntitiesShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <entity-id>",
		Short: "Show one entity in full",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withDeps(ctx, func(d *Deps) error {
				ent, err := d.Entities.Show(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Printf("ID:           %s\n", ent.ID)
				fmt.Printf("Kind:         %s\n", ent.Kind)
				fmt.Printf("Name:         %s\n", ent.Name)
				fmt.Printf("Aliases:      %s\n", strings.Join(ent.Aliases, ", "))
				fmt.Printf("Description:  %s\n", ent.Description)
				fmt.Printf("Validation:   %s\n", ent.Validation)
				fmt.Printf("Voice:        %s\n", ent.VoiceProfile)
				fmt.Printf("Asset:        %s\n", ent.AssetRef)
				fmt.Printf("First seen:   %s\n", ent.FirstSeenChapter)
				fmt.Printf("Last updated: %s\n", ent.LastUpdatedChapter)
				return nil
			})
		},
	}
}

func newEntitiesSetCmd() *cobra.Command {
	var voice, asset, description string

	cmd := &cobra.Command{
		Use:   "set <entity-id>",
		Short: "Update an entity's voice, asset or description",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id := args[0]
			return withDeps(ctx, func(d *Deps) error {
				changed := false
				if cmd.Flags().Changed("voice") {
					if err := d.Entities.SetVoice(ctx, id, voice); err != nil {
						return err
					}
					changed = true
				}
				if cmd.Flags().Changed("asset") {
					if err := d.Entities.SetAsset(ctx, id, asset); err != nil {
						return err
					}
					changed = true
				}
				if cmd.Flags().Changed("description") {
					if err := d.Entities.SetDescription(ctx, id, description); err != nil {
						return err
					}
					changed = true
				}
				if !changed {
					return fmt.Errorf("nothing to update: pass --voice, --asset or --description")
				}
				fmt.Println("Updated.")
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&voice, "voice", "", "Voice profile for dialogue synthesis")
	cmd.Flags().StringVar(&asset, "asset", "", "Reference image path or URL")
	cmd.Flags().StringVar(&description, "description", "", "Description used in image prompts")
	return cmd
}

// shortID truncates a UUID for table display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
