package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"workpilot/internal/assistant"
	"workpilot/internal/assistant/action"
)

func assistantCmd() *cobra.Command {
	as := &cobra.Command{Use: "assistant", Short: "Talk to the AI assistant"}
	as.AddCommand(assistantSettingsCmd(), assistantChatCmd(), assistantRunCmd(), assistantTasksCmd(), assistantCleanupCmd())
	return as
}

func assistantSettingsCmd() *cobra.Command {
	st := &cobra.Command{Use: "settings", Short: "Provider, model and key"}
	show := &cobra.Command{
		Use:   "show",
		Short: "Show assistant settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAssistant(cmd.Context(), func(ctx context.Context, c cliEnv, svc *assistant.Service) error {
				view, err := svc.Settings(ctx, c.actorID)
				if err != nil {
					return err
				}
				return printJSONOrTable(view)
			})
		},
	}
	var theme, kind, model string
	var keyStdin, clearKey bool
	set := &cobra.Command{
		Use:   "set",
		Short: "Update assistant settings",
		Long:  "Sets the provider, model or theme. The key is read from WORKPILOT_API_KEY or, with --api-key-stdin, from standard input.",
		RunE: func(cmd *cobra.Command, args []string) error {
			in := assistant.SettingsInput{}
			if cmd.Flags().Changed("theme") {
				in.Theme = &theme
			}
			if cmd.Flags().Changed("provider") {
				in.Provider = &kind
			}
			if cmd.Flags().Changed("model") {
				in.Model = &model
			}
			switch {
			case clearKey:
				empty := ""
				in.APIKey = &empty
			case keyStdin:
				data, err := io.ReadAll(os.Stdin)
				if err != nil {
					return err
				}
				in.APIKey = optionalString(strings.TrimSpace(string(data)))
			default:
				in.APIKey = optionalString(viper.GetString("api-key"))
			}
			return withAssistant(cmd.Context(), func(ctx context.Context, c cliEnv, svc *assistant.Service) error {
				view, err := svc.SaveSettings(ctx, c.actorID, in)
				if err != nil {
					return err
				}
				return printJSONOrTable(view)
			})
		},
	}
	set.Flags().StringVar(&theme, "theme", "", "light, dark or system")
	set.Flags().StringVar(&kind, "provider", "", "openai, anthropic, google, groq, mistral, xai, deepseek or openrouter")
	set.Flags().StringVar(&model, "model", "", "model id (empty for the provider default)")
	set.Flags().BoolVar(&keyStdin, "api-key-stdin", false, "read the API key from stdin")
	set.Flags().BoolVar(&clearKey, "clear-api-key", false, "remove the stored API key")
	st.AddCommand(show, set)
	return st
}

func assistantChatCmd() *cobra.Command {
	var req assistant.ChatRequest
	cmd := &cobra.Command{
		Use:   "chat <message>",
		Short: "Send one message to the assistant",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Message = strings.Join(args, " ")
			return withAssistant(cmd.Context(), func(ctx context.Context, c cliEnv, svc *assistant.Service) error {
				req.ActorID = c.actorID
				res, err := svc.Chat(ctx, req)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Println(res.Content)
				if res.Parse == action.Malformed {
					fmt.Println("\n(the reply contained an action list that could not be read)")
				}
				if len(res.Outcomes) > 0 {
					fmt.Println()
					printOutcomes(res.Outcomes)
				} else if len(res.Actions) > 0 {
					fmt.Println("\nProposed actions (rerun with --execute, or save them and use 'wp assistant run'):")
					printProposed(res.Actions)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&req.Execute, "execute", false, "run proposed actions immediately")
	cmd.Flags().StringVar(&req.Page, "page", "", "page the user is looking at")
	cmd.Flags().StringVar(&req.ProjectID, "project", "", "project in focus")
	cmd.Flags().StringVar(&req.ClientID, "client", "", "client in focus")
	return cmd
}

func assistantRunCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a JSON array of actions",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(file)
			if err != nil {
				return err
			}
			var actions []action.ProposedAction
			if err := json.Unmarshal(data, &actions); err != nil {
				return fmt.Errorf("decode actions: %w", err)
			}
			return withAssistant(cmd.Context(), func(ctx context.Context, c cliEnv, svc *assistant.Service) error {
				outcomes, err := svc.ExecuteActions(ctx, c.actorID, actions)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(outcomes)
				}
				printOutcomes(outcomes)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "actions file, - for stdin")
	return cmd
}

func assistantTasksCmd() *cobra.Command {
	var projectID, brief string
	cmd := &cobra.Command{
		Use:   "suggest-tasks",
		Short: "Ask the assistant for task ideas for a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAssistant(cmd.Context(), func(ctx context.Context, c cliEnv, svc *assistant.Service) error {
				items, err := svc.GenerateTasks(ctx, c.actorID, projectID, brief)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable(table.Row{"Title", "Priority", "Description"})
				for _, it := range items {
					tw.AppendRow(table.Row{it.Title, it.Priority, it.Description})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().StringVar(&brief, "brief", "", "what the tasks should cover")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func assistantCleanupCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "cleanup-transcript",
		Short: "Tidy a speech-to-text transcript",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(file)
			if err != nil {
				return err
			}
			return withAssistant(cmd.Context(), func(ctx context.Context, c cliEnv, svc *assistant.Service) error {
				text, err := svc.CleanupTranscript(ctx, c.actorID, string(data))
				if err != nil {
					return err
				}
				fmt.Println(text)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "transcript file, - for stdin")
	return cmd
}

func withAssistant(ctx context.Context, fn func(context.Context, cliEnv, *assistant.Service) error) error {
	return withWorkspace(ctx, func(ctx context.Context, c cliEnv) error {
		svc, err := c.ws.Assistant(c.log)
		if err != nil {
			return err
		}
		return fn(ctx, c, svc)
	})
}

func readInput(file string) ([]byte, error) {
	if file == "" || file == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(file)
}

func printOutcomes(outcomes []action.Outcome) {
	tw := newTable(table.Row{"#", "Action", "Status", "Entity", "Error"})
	for _, o := range outcomes {
		tw.AppendRow(table.Row{o.Index + 1, o.Type, o.Status, o.EntityID, o.Error})
	}
	tw.Render()
}

func printProposed(actions []action.ProposedAction) {
	tw := newTable(table.Row{"#", "Action", "Data"})
	for i, a := range actions {
		data, _ := json.Marshal(a.Data)
		tw.AppendRow(table.Row{i + 1, a.Type, string(data)})
	}
	tw.Render()
}
