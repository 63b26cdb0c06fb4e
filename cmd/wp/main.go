package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"workpilot/internal/app"
	"workpilot/internal/db"
	"workpilot/internal/domain"
	"workpilot/internal/engine"
	"workpilot/internal/logging"
	"workpilot/internal/repo"
	"workpilot/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "wp",
	Short: "Workpilot CLI",
	Long: `Workpilot manages organizations, projects, tasks and clients, with an AI assistant
that can read the workspace and propose changes.
- Workspace: the .workpilot directory holding the database and the key vault.
- Organization: members with owner, admin or member roles; every change is checked against the role.
- Assistant: bring your own provider key (openai, anthropic, google, groq, mistral, xai, deepseek,
  openrouter). Replies may propose actions; nothing changes until you run them (--execute or 'assistant run').
- Event log: every mutation is recorded, view it with 'wp log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_, err := db.EnsureWorkspace(viper.GetString("workspace"))
		return err
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("WORKPILOT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("org", "", "organization id (defaults to the actor's organization)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("org", rootCmd.PersistentFlags().Lookup("org"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func registerCommands() {
	rootCmd.AddCommand(orgCmd())
	rootCmd.AddCommand(memberCmd())
	rootCmd.AddCommand(teamCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(clientCmd())
	rootCmd.AddCommand(assistantCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(serveCmd())
}

// cliEnv is an opened workspace plus the resolved actor and organization.
type cliEnv struct {
	ws      *app.Workspace
	log     *zap.Logger
	actorID string
	orgID   string
}

func (c cliEnv) engine() engine.Engine { return c.ws.Engine }

func withWorkspace(ctx context.Context, fn func(context.Context, cliEnv) error) error {
	ws, err := app.Open(ctx, viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer ws.Close()
	level := viper.GetString("log-level")
	if level == "" {
		level = ws.Config.Logging.Level
	}
	log, err := logging.New(level)
	if err != nil {
		return err
	}
	defer log.Sync()
	actorID := viper.GetString("actor-id")
	orgID, err := app.ResolveOrg(ctx, ws.Engine, viper.GetString("org"), actorID)
	if err != nil {
		return err
	}
	return fn(ctx, cliEnv{ws: ws, log: log, actorID: actorID, orgID: orgID})
}

func orgCmd() *cobra.Command {
	org := &cobra.Command{Use: "org", Short: "Manage organizations"}
	var id, name, ownerName, ownerEmail string
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create an organization owned by the current actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := app.Open(cmd.Context(), viper.GetString("workspace"))
			if err != nil {
				return err
			}
			defer ws.Close()
			o, err := ws.Engine.InitOrg(cmd.Context(), engine.OrgInitOptions{
				ID:         id,
				Name:       name,
				OwnerID:    viper.GetString("actor-id"),
				OwnerName:  ownerName,
				OwnerEmail: ownerEmail,
			})
			if err != nil {
				return err
			}
			return printJSONOrTable(o)
		},
	}
	initCmd.Flags().StringVar(&id, "id", "", "organization id (generated when empty)")
	initCmd.Flags().StringVar(&name, "name", "", "organization name")
	initCmd.Flags().StringVar(&ownerName, "owner-name", "", "display name of the owner")
	initCmd.Flags().StringVar(&ownerEmail, "owner-email", "", "email of the owner")
	_ = initCmd.MarkFlagRequired("name")
	org.AddCommand(initCmd)
	return org
}

func memberCmd() *cobra.Command {
	mem := &cobra.Command{Use: "member", Short: "Manage organization members"}
	var opts engine.MemberAddOptions
	add := &cobra.Command{
		Use:   "add",
		Short: "Add or update a member",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, c cliEnv) error {
				opts.OrgID = c.orgID
				opts.ActorID = c.actorID
				m, err := c.engine().AddMember(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	add.Flags().StringVar(&opts.MemberID, "id", "", "member actor id")
	add.Flags().StringVar(&opts.Name, "name", "", "display name")
	add.Flags().StringVar(&opts.Email, "email", "", "email")
	add.Flags().StringVar(&opts.Role, "role", "member", "owner, admin or member")
	_ = add.MarkFlagRequired("id")
	list := &cobra.Command{
		Use:   "list",
		Short: "List members",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, c cliEnv) error {
				members, err := c.engine().Repo.ListMembers(ctx, nil, c.orgID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(members)
				}
				tw := newTable(table.Row{"Actor", "Name", "Role", "Email"})
				for _, m := range members {
					tw.AppendRow(table.Row{m.ActorID, m.Name, m.Role, m.Email})
				}
				tw.Render()
				return nil
			})
		},
	}
	mem.AddCommand(add, list)
	return mem
}

func teamCmd() *cobra.Command {
	team := &cobra.Command{Use: "team", Short: "Manage teams"}
	var name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a team",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, c cliEnv) error {
				t, err := c.engine().CreateTeam(ctx, c.orgID, name, c.actorID)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "team name")
	_ = create.MarkFlagRequired("name")
	var teamID, memberID string
	addMember := &cobra.Command{
		Use:   "add-member",
		Short: "Add an organization member to a team",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, c cliEnv) error {
				if err := c.engine().AddTeamMember(ctx, teamID, memberID, c.actorID); err != nil {
					return err
				}
				fmt.Printf("Added %s to team %s\n", memberID, teamID)
				return nil
			})
		},
	}
	addMember.Flags().StringVar(&teamID, "team", "", "team id")
	addMember.Flags().StringVar(&memberID, "member", "", "member actor id")
	_ = addMember.MarkFlagRequired("team")
	_ = addMember.MarkFlagRequired("member")
	team.AddCommand(create, addMember)
	return team
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectListCmd(), projectCreateCmd(), projectShowCmd())
	return prj
}

func projectListCmd() *cobra.Command {
	var f repo.ProjectFilter
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, c cliEnv) error {
				f.OrgID = c.orgID
				projects, err := c.engine().Repo.ListProjects(ctx, nil, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(projects)
				}
				tw := newTable(table.Row{"ID", "Name", "Status", "Client"})
				for _, p := range projects {
					tw.AppendRow(table.Row{p.ID, p.Name, p.Status, deref(p.ClientID)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.ClientID, "client", "", "client filter")
	return cmd
}

func projectCreateCmd() *cobra.Command {
	var opts engine.ProjectCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, c cliEnv) error {
				opts.OrgID = c.orgID
				opts.ActorID = c.actorID
				p, err := c.engine().CreateProject(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Name, "name", "", "project name")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.Status, "status", "", "initial status (default active)")
	cmd.Flags().StringVar(&opts.ClientID, "client", "", "client id")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func projectShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, c cliEnv) error {
				p, err := c.engine().Repo.GetProject(ctx, nil, args[0])
				if err != nil {
					return err
				}
				if p.OrgID != c.orgID {
					return fmt.Errorf("project %s: %w", args[0], repo.ErrNotFound)
				}
				workstreams, err := c.engine().Repo.ListWorkstreams(ctx, nil, p.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(struct {
					domain.Project
					Workstreams []domain.Workstream `json:"workstreams"`
				}{p, workstreams})
			})
		},
	}
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Manage tasks"}
	task.AddCommand(taskListCmd(), taskCreateCmd())
	return task
}

func taskCreateCmd() *cobra.Command {
	var opts engine.TaskCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, c cliEnv) error {
				opts.ActorID = c.actorID
				t, err := c.engine().CreateTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ProjectID, "project", "", "project id")
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.Priority, "priority", "", "low, medium, high or urgent")
	cmd.Flags().StringVar(&opts.WorkstreamID, "workstream", "", "workstream id")
	cmd.Flags().StringVar(&opts.AssigneeID, "assignee-id", "", "assignee")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func taskListCmd() *cobra.Command {
	var f repo.TaskFilter
	var mine bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, c cliEnv) error {
				if f.ProjectID == "" && !mine {
					return fmt.Errorf("--project or --mine required")
				}
				if mine {
					f.AssigneeID = c.actorID
				}
				tasks, err := c.engine().Repo.ListTasks(ctx, nil, f)
				if err != nil {
					return err
				}
				return printTasks(tasks)
			})
		},
	}
	cmd.Flags().StringVar(&f.ProjectID, "project", "", "project id")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.AssigneeID, "assignee-id", "", "assignee filter")
	cmd.Flags().BoolVar(&mine, "mine", false, "only tasks assigned to the current actor")
	cmd.Flags().BoolVar(&f.OpenOnly, "open", false, "hide done and canceled tasks")
	return cmd
}

func clientCmd() *cobra.Command {
	cl := &cobra.Command{Use: "client", Short: "Manage clients"}
	list := &cobra.Command{
		Use:   "list",
		Short: "List clients",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, c cliEnv) error {
				clients, err := c.engine().Repo.ListClients(ctx, nil, c.orgID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(clients)
				}
				tw := newTable(table.Row{"ID", "Name", "Status", "Email"})
				for _, cl := range clients {
					tw.AppendRow(table.Row{cl.ID, cl.Name, cl.Status, cl.Email})
				}
				tw.Render()
				return nil
			})
		},
	}
	var opts engine.ClientCreateOptions
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a client",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, c cliEnv) error {
				opts.OrgID = c.orgID
				opts.ActorID = c.actorID
				out, err := c.engine().CreateClient(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(out)
			})
		},
	}
	create.Flags().StringVar(&opts.Name, "name", "", "client name")
	create.Flags().StringVar(&opts.Email, "email", "", "email")
	create.Flags().StringVar(&opts.Phone, "phone", "", "phone")
	create.Flags().StringVar(&opts.Status, "status", "", "active, inactive or prospect")
	_ = create.MarkFlagRequired("name")
	cl.AddCommand(list, create)
	return cl
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{Use: "log", Short: "Event log"}
	lg.AddCommand(logTailCmd())
	return lg
}

func logTailCmd() *cobra.Command {
	var n int
	var entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, c cliEnv) error {
				events, err := c.engine().Repo.ListEvents(ctx, repo.EventFilter{OrgID: c.orgID, EntityKind: entityKind, EntityID: entityID, Limit: n})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := newTable(table.Row{"ID", "Time", "Type", "Entity", "Actor"})
				for _, e := range events {
					tw.AppendRow(table.Row{e.ID, e.TS, e.Type, e.EntityKind + ":" + e.EntityID, e.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func apiKeyCmd() *cobra.Command {
	keys := &cobra.Command{Use: "apikey", Short: "Manage API keys for the HTTP server"}
	var name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an API key for the current actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, c cliEnv) error {
				raw, key, err := c.engine().CreateAPIKey(ctx, c.actorID, name)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"id": key.ID, "key": raw, "actor_id": key.ActorID})
				}
				fmt.Printf("API key %s created. Store it now, it is not shown again:\n%s\n", key.ID, raw)
				return nil
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "key label")
	keys.AddCommand(create)
	return keys
}

func tokenCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the current actor (needs WORKPILOT_JWT_SECRET)",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := server.SignToken(viper.GetString("jwt-secret"), viper.GetString("actor-id"), ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, c cliEnv) error {
				authCfg := server.AuthConfig{JWTSecret: viper.GetString("jwt-secret")}
				if authCfg.JWTSecret == "" {
					c.log.Warn("WORKPILOT_JWT_SECRET not set; only API keys are accepted")
				}
				svc, err := c.ws.Assistant(c.log)
				if err != nil {
					return err
				}
				handler, err := server.New(server.Config{Engine: c.engine(), Assistant: svc, BasePath: basePath, Auth: authCfg, Logger: c.log})
				if err != nil {
					return err
				}
				ctx, cancel := context.WithCancel(ctx)
				defer cancel()
				server.StartWebhooks(ctx, c.engine(), c.log)
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving Workpilot API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

func newTable(header table.Row) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(header)
	return tw
}

func printTasks(tasks []domain.Task) error {
	if viper.GetBool("json") {
		return printJSON(tasks)
	}
	tw := newTable(table.Row{"ID", "Title", "Status", "Priority", "Assignee"})
	for _, t := range tasks {
		tw.AppendRow(table.Row{t.ID, t.Title, t.Status, t.Priority, deref(t.AssigneeID)})
	}
	tw.Render()
	return nil
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
