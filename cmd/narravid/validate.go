package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/narravid/narravid/internal/domain/entities"
	"github.com/narravid/narravid/internal/domain/services"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Review pending entities in the terminal",
		Long: "Walks the validation queue item by item. Each decision commits immediately, so an " +
			"interrupted session can be resumed without losing or repeating work.",
		Args: cobra.NoArgs,
		RunE: runValidate,
	}
}

func runValidate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	return withDeps(ctx, func(d *Deps) error {
		items, err := d.Validation.Pending(ctx)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Println("Validation queue is empty.")
			return nil
		}
		fmt.Printf("%d item(s) pending review.\n\n", len(items))

		reader := bufio.NewReader(os.Stdin)
		for i, item := range items {
			printItem(i+1, len(items), item)

			decision, skip, quit, err := promptDecision(reader, item)
			if err != nil {
				return err
			}
			if quit {
				fmt.Println("Stopping; remaining items stay queued.")
				return nil
			}
			if skip {
				continue
			}

			err = d.Validation.Decide(ctx, item.ID, *decision)
			switch {
			case errors.Is(err, services.ErrAlreadyDecided):
				fmt.Println("  Already decided elsewhere; skipping.")
			case errors.Is(err, services.ErrAliasTaken):
				fmt.Printf("  Cannot confirm: %v\n", err)
			case err != nil:
				return err
			default:
				fmt.Printf("  Applied: %s\n\n", decision.Action)
			}
		}
		return nil
	})
}

// printItem renders one queue item for review.
func printItem(n, total int, item *entities.PendingItem) {
	fmt.Printf("[%d/%d] %s: %q (%s)\n", n, total, item.Kind, item.Candidate.Surface, item.Candidate.Kind)
	if item.Candidate.Context != "" {
		fmt.Printf("  Context: %s\n", item.Candidate.Context)
	}
	if item.Candidate.ChapterID != "" {
		fmt.Printf("  Chapter: %s (source: %s, confidence %.2f)\n",
			item.Candidate.ChapterID, item.Candidate.Source, item.Candidate.Confidence)
	}
	for i, sug := range item.Suggestions {
		fmt.Printf("  [%d] merge into %s (score %.2f)\n", i+1, sug.Name, sug.Score)
	}
}

// promptDecision reads one decision from the terminal.
func promptDecision(reader *bufio.Reader, item *entities.PendingItem) (*entities.Decision, bool, bool, error) {
	for {
		fmt.Print("  (c)onfirm, (m)erge <n>, (r)eject, (e)dit, (s)kip, (q)uit: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return nil, false, true, nil // EOF ends the session cleanly
		}
		fields := strings.Fields(strings.ToLower(line))
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "c", "confirm":
			return &entities.Decision{Action: entities.DecisionConfirmNew}, false, false, nil
		case "r", "reject":
			return &entities.Decision{Action: entities.DecisionReject}, false, false, nil
		case "s", "skip":
			return nil, true, false, nil
		case "q", "quit":
			return nil, false, true, nil
		case "m", "merge":
			if len(fields) < 2 {
				fmt.Println("  Usage: m <suggestion number>")
				continue
			}
			n, err := strconv.Atoi(fields[1])
			if err != nil || n < 1 || n > len(item.Suggestions) {
				fmt.Printf("  Pick a suggestion between 1 and %d.\n", len(item.Suggestions))
				continue
			}
			return &entities.Decision{
				Action:         entities.DecisionMergeInto,
				TargetEntityID: item.Suggestions[n-1].EntityID,
			}, false, false, nil
		case "e", "edit":
			edit, err := promptEdit(reader)
			if err != nil {
				return nil, false, true, nil
			}
			return &entities.Decision{Action: entities.DecisionEdit, Edit: edit}, false, false, nil
		default:
			fmt.Println("  Unknown choice.")
		}
	}
}

// promptEdit collects field overrides; empty answers keep current values.
func promptEdit(reader *bufio.Reader) (*entities.EntityEdit, error) {
	edit := &entities.EntityEdit{}

	ask := func(label string) (string, error) {
		fmt.Printf("  %s (empty keeps current): ", label)
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(line), nil
	}

	var err error
	if edit.Name, err = ask("Name"); err != nil {
		return nil, err
	}
	kind, err := ask("Kind (character|location|object)")
	if err != nil {
		return nil, err
	}
	edit.Kind = entities.EntityKind(kind)
	if edit.Description, err = ask("Description"); err != nil {
		return nil, err
	}
	if edit.VoiceProfile, err = ask("Voice profile"); err != nil {
		return nil, err
	}
	return edit, nil
}
