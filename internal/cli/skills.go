package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/tellmenow/internal/client"
	"github.com/raphaelgruber/tellmenow/internal/models"
	"github.com/raphaelgruber/tellmenow/internal/service"
)

var (
	skillInput   service.CreateSkillInput
	skillContext string
	skillNoWait  bool
)

var skillsCmd = &cobra.Command{
	Use:   "skills",
	Short: "List skills",
	Long: `List the skills you can ask with: the built-in ones plus generated skills
that are yours or shared with you.

Examples:
  tellmenow skills
  tellmenow skills create --name "Recipe Finder" --description "..." --input "..." --output "..."
  tellmenow skills status recipe-finder-3fa2c1`,
	Args: cobra.NoArgs,
	RunE: runListSkills,
}

var skillsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Generate a new skill from a description",
	Args:  cobra.NoArgs,
	RunE:  runCreateSkill,
}

var skillsStatusCmd = &cobra.Command{
	Use:   "status <skill-id>",
	Short: "Show the generation status of a skill",
	Args:  cobra.ExactArgs(1),
	RunE:  runSkillStatus,
}

var skillsGenerateCmd = &cobra.Command{
	Use:   "generate <skill-id>",
	Short: "Start or follow generation of a skill",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		return followSkill(ctx, args[0])
	},
}

func init() {
	f := skillsCreateCmd.Flags()
	f.StringVar(&skillInput.Name, "name", "", "skill name")
	f.StringVar(&skillInput.Description, "description", "", "what the skill does")
	f.StringVar(&skillInput.InputSpec, "input", "", "what a query should contain")
	f.StringVar(&skillInput.OutputSpec, "output", "", "what the report should contain")
	f.StringVar(&skillContext, "context", "", "extra context for the skill author")
	f.BoolVar(&skillNoWait, "no-wait", false, "create the skill without starting generation")

	skillsCmd.AddCommand(skillsCreateCmd)
	skillsCmd.AddCommand(skillsStatusCmd)
	skillsCmd.AddCommand(skillsGenerateCmd)
}

func runListSkills(cmd *cobra.Command, args []string) error {
	skills, err := apiClient.ListSkills(context.Background())
	if err != nil {
		return fmt.Errorf("list skills: %w", err)
	}

	fmt.Printf("%-28s %-10s %s\n", "ID", "STATUS", "NAME")
	fmt.Println("------------------------------------------------------------------------")
	for _, s := range skills {
		status := "built-in"
		if s.Status != "" {
			status = string(s.Status)
		}
		fmt.Printf("%-28s %-10s %s\n", s.ID, status, s.Name)
		if verbose && s.Description != "" {
			fmt.Printf("  %s\n", s.Description)
		}
	}
	return nil
}

func runCreateSkill(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	in := skillInput
	if skillContext != "" {
		in.ChatContext = &skillContext
	}

	id, err := apiClient.CreateSkill(ctx, in)
	if err != nil {
		return fmt.Errorf("create skill: %w", err)
	}
	fmt.Printf("Created skill %s\n", id)

	if skillNoWait {
		return nil
	}
	return followSkill(ctx, id)
}

func followSkill(ctx context.Context, id string) error {
	var last service.SkillStatusData
	err := apiClient.GenerateSkill(ctx, id, func(e client.Event) error {
		if e.Name == service.EventTimeout {
			return fmt.Errorf("timed out waiting for skill %s; it may still be generating", id)
		}
		if err := e.Decode(&last); err != nil {
			return err
		}
		fmt.Printf("[%s]\n", last.Status)
		return nil
	})
	if err != nil {
		return err
	}

	if last.Status == models.SkillFailed {
		msg := "unknown error"
		if last.Error != nil {
			msg = *last.Error
		}
		return fmt.Errorf("skill generation failed: %s", msg)
	}
	if last.Status == models.SkillReady {
		fmt.Printf("Skill %s is ready. Ask with: tellmenow ask \"...\" --skill %s\n", id, id)
	}
	return nil
}

func runSkillStatus(cmd *cobra.Command, args []string) error {
	st, err := apiClient.GetSkillStatus(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("get skill status: %w", err)
	}

	fmt.Printf("Skill: %s\n", st.ID)
	fmt.Printf("  Name: %s\n", st.Name)
	fmt.Printf("  Status: %s\n", st.Status)
	if st.Error != nil && *st.Error != "" {
		fmt.Printf("  Error: %s\n", *st.Error)
	}
	return nil
}
