package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"caseline/internal/config"
	"caseline/internal/db"
	"caseline/internal/domain"
	"caseline/internal/engine"
	"caseline/internal/migrate"
	"caseline/internal/notify"
	"caseline/internal/repo"
	"caseline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "cl",
	Short: "Caseline CLI",
	Long: `Caseline tracks intake cases through a role-gated approval workflow.
Core concepts:
- Workspace: your .caseline directory with the case database; the workflow catalog lives in caseline.yml.
- Case: one intake record. It moves through named transitions (submit, allocate, approve, ...) and every applied transition lands in an immutable audit ledger.
- Roles: each transition names who may request it (initiator, investigator, reviewer, approver, legal_reviewer, actioner); administrators may drive any legal transition.
- Interaction channels: open questions raised against a stage; a stage with an open channel cannot progress until the channel is responded to or closed.
- Classification: fraud / non_fraud / other_incident decided at final adjudication; it picks the closing route.
- Sub-tracks: fraud cases fan out into parallel legal and actioner tracks that must both finish before the case closes.
- SLA obligations: some transitions start a regulatory clock (e.g. FMR1); 'cl sla' lists and fulfils them.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
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
	viper.SetEnvPrefix("CASELINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("role", "administrator", "actor role for transition requests")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("role", rootCmd.PersistentFlags().Lookup("role"))
}

func registerCommands() {
	rootCmd.AddCommand(caseCmd())
	rootCmd.AddCommand(channelCmd())
	rootCmd.AddCommand(slaCmd())
	rootCmd.AddCommand(catalogCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(serveCmd())
}

func caseCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "case",
		Short: "Manage cases",
		Long:  "Cases flow draft -> submitted -> allocated -> ... -> closed. Use 'cl catalog' to see which transitions are legal from each state.",
	}
	c.AddCommand(caseCreateCmd())
	c.AddCommand(caseListCmd())
	c.AddCommand(caseShowCmd())
	c.AddCommand(caseTransitionCmd())
	c.AddCommand(caseHistoryCmd())
	return c
}

func caseCreateCmd() *cobra.Command {
	var payloadJSON string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a new case in draft",
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := parsePayload(payloadJSON)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.CreateCase(ctx, engine.CreateCaseOptions{
					ActorID: viper.GetString("actor-id"),
					Payload: payload,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&payloadJSON, "payload-json", "", "initial stage payload JSON")
	return cmd
}

func caseListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cases",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListCases(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "State", "Classification", "Created By", "Last Transition"})
				for _, c := range items {
					tw.AppendRow(table.Row{c.ID, colorState(c.State), c.Classification, c.CreatedBy, c.TransitionedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func caseShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show the current state snapshot of a case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.GetCurrentState(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(c)
				}
				fmt.Printf("Case: %s\n", c.ID)
				fmt.Printf("State: %s\n", colorState(c.State))
				if c.Classification != domain.ClassificationUnclassified {
					fmt.Printf("Classification: %s\n", c.Classification)
				}
				for _, st := range c.SubTracks {
					fmt.Printf("Track %s: %s\n", st.Track, colorState(st.State))
				}
				if len(c.OpenChannels) > 0 {
					fmt.Printf("Open channels: %s\n", strings.Join(c.OpenChannels, ", "))
				}
				return nil
			})
		},
	}
	return cmd
}

func caseTransitionCmd() *cobra.Command {
	var track, payloadJSON string
	cmd := &cobra.Command{
		Use:   "transition <case-id> <transition>",
		Short: "Request a named transition on a case",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := parsePayload(payloadJSON)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.RequestTransition(ctx, engine.TransitionRequest{
					CaseID:     args[0],
					Transition: args[1],
					ActorID:    viper.GetString("actor-id"),
					ActorRole:  viper.GetString("role"),
					Track:      track,
					Payload:    payload,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringVar(&track, "track", "", "sub-track to move (legal, actioner)")
	cmd.Flags().StringVar(&payloadJSON, "payload-json", "", "stage payload JSON")
	return cmd
}

func caseHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <id>",
		Short: "Show the audit ledger for a case",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("case id required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				records, err := e.History(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(records)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Seq", "Transition", "From", "To", "Track", "Actor", "Role", "At"})
				for _, rec := range records {
					tw.AppendRow(table.Row{rec.Seq, rec.Transition, rec.FromState, rec.ToState, rec.Track, rec.ActorID, rec.ActorRole, rec.TS})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func channelCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "channel",
		Short: "Manage interaction channels",
		Long:  "Channels carry questions raised against a stage. An open channel blocks forward transitions out of that stage until someone responds or closes it.",
	}
	c.AddCommand(channelOpenCmd())
	c.AddCommand(channelListCmd())
	c.AddCommand(channelResolveCmd())
	c.AddCommand(channelCloseCmd())
	return c
}

func channelOpenCmd() *cobra.Command {
	var stage, targetRole, text string
	cmd := &cobra.Command{
		Use:   "open <case-id>",
		Short: "Open an interaction channel on a case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if text == "" {
				return fmt.Errorf("--text required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if stage == "" {
					c, err := e.Repo.GetCase(ctx, args[0])
					if err != nil {
						return err
					}
					stage = c.State
				}
				id, err := e.OpenInteractionChannel(ctx, args[0], stage, targetRole, text, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]string{"id": id})
			})
		},
	}
	cmd.Flags().StringVar(&stage, "stage", "", "stage the channel blocks (defaults to the case's current state)")
	cmd.Flags().StringVar(&targetRole, "target-role", "", "role asked to respond")
	cmd.Flags().StringVar(&text, "text", "", "request text")
	return cmd
}

func channelListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <case-id>",
		Short: "List a case's channels",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Channels.ListForCase(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Stage", "Status", "Target Role", "Raised By", "Text"})
				for _, ch := range items {
					tw.AppendRow(table.Row{ch.ID, ch.Stage, ch.Status, ch.TargetRole, ch.RaisedBy, ch.RequestText})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func channelResolveCmd() *cobra.Command {
	var response string
	cmd := &cobra.Command{
		Use:   "resolve <channel-id>",
		Short: "Respond to a channel, unblocking its stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if response == "" {
				return fmt.Errorf("--response required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ch, err := e.ResolveInteractionChannel(ctx, args[0], response, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(ch)
			})
		},
	}
	cmd.Flags().StringVar(&response, "response", "", "response text")
	return cmd
}

func channelCloseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "close <channel-id>",
		Short: "Close a channel permanently",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ch, err := e.CloseInteractionChannel(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(ch)
			})
		},
	}
	return cmd
}

func slaCmd() *cobra.Command {
	s := &cobra.Command{
		Use:   "sla",
		Short: "Manage SLA obligations",
	}
	s.AddCommand(slaListCmd())
	s.AddCommand(slaFulfilCmd())
	s.AddCommand(slaSweepCmd())
	return s
}

func slaListCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "list [case-id]",
		Short: "List SLA obligations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var entries []domain.SLAEntry
				var err error
				if all || len(args) == 0 {
					entries, err = e.Clock.ListOpen(ctx)
				} else {
					entries, err = e.Clock.ListForCase(ctx, args[0])
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(entries)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Case", "Obligation", "Due", "Fulfilled", "Overdue"})
				for _, entry := range entries {
					due := entry.DueAt
					if entry.Overdue {
						due = color.RedString(due)
					}
					tw.AppendRow(table.Row{entry.CaseID, entry.Obligation, due, entry.Fulfilled, entry.Overdue})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "list open obligations across all cases")
	return cmd
}

func slaFulfilCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fulfil <case-id> <obligation>",
		Short: "Mark an SLA obligation fulfilled",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.MarkSLAFulfilled(ctx, args[0], args[1]); err != nil {
					return err
				}
				fmt.Printf("%s %s fulfilled\n", args[0], args[1])
				return nil
			})
		},
	}
	return cmd
}

func slaSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Flag overdue obligations now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				flagged, err := e.Clock.MarkOverdue(ctx, time.Now().UTC())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(flagged)
				}
				for _, entry := range flagged {
					fmt.Printf("%s: %s overdue since %s\n", entry.CaseID, entry.Obligation, entry.DueAt)
				}
				if len(flagged) == 0 {
					fmt.Println("nothing overdue")
				}
				return nil
			})
		},
	}
	return cmd
}

func catalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Show the transition catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				specs := e.Catalog()
				if viper.GetBool("json") {
					return printJSON(specs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Transition", "From", "To", "Roles", "Classification", "Fan-out", "SLA"})
				for _, spec := range specs {
					tw.AppendRow(table.Row{
						spec.Name, spec.From, spec.To,
						strings.Join(spec.Roles, ","),
						spec.Classification,
						strings.Join(spec.Fanout, ","),
						spec.SLA,
					})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect workflow config",
		Long:  "Config is the rulebook: the transition catalog, fan-out tracks, SLA obligations, and notification targets, loaded from caseline.yml (falling back to built-in defaults).",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default caseline.yml into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := filepath.Join(viper.GetString("workspace"), "caseline.yml")
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.Config)
			})
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate workspace config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err == nil {
				err = cfg.Validate()
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
	return cmd
}

func apikeyCmd() *cobra.Command {
	a := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys for the HTTP server",
	}
	a.AddCommand(apikeyCreateCmd())
	a.AddCommand(apikeyRevokeCmd())
	return a
}

func apikeyCreateCmd() *cobra.Command {
	var actor, role, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Issue an API key (the raw key is shown once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if actor == "" || role == "" {
				return fmt.Errorf("--actor and --role required")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				raw, key, err := r.GenerateAPIKey(ctx, actor, role, name)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"key": raw, "id": key.ID})
				}
				fmt.Printf("API key %s for %s (%s):\n%s\n", key.ID, actor, role, raw)
				fmt.Println("Store it now; it cannot be recovered.")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "actor id the key acts as")
	cmd.Flags().StringVar(&role, "role", "", "role the key carries")
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func apikeyRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.RevokeAPIKey(ctx, args[0])
			})
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowLegacyAuth bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := config.Load(workspace)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)

			dispatcher := notify.NewDispatcher(cfg)
			e.Notify = func(n engine.Notification) {
				dispatcher.DispatchHook(notify.Event{
					CaseID:     n.CaseID,
					Seq:        n.Seq,
					Transition: n.Transition,
					FromState:  n.FromState,
					ToState:    n.ToState,
					ActorID:    n.ActorID,
					TS:         n.TS,
				})
			}
			if dispatcher.HasWebhooks() {
				watcher := &notify.Watcher{Ledger: e.Ledger, Dispatcher: dispatcher}
				go watcher.Run(cmd.Context())
			}
			if cfg.SLA.Sweep != "" {
				stop, err := e.Clock.StartSweeper(cfg.SLA.Sweep, func(caseID, obligation, dueAt string) {
					log.Printf("sla overdue case=%s obligation=%s due=%s", caseID, obligation, dueAt)
				})
				if err != nil {
					return err
				}
				defer stop()
			}

			authCfg := server.AuthConfig{
				JWTSecret:              os.Getenv("CASELINE_JWT_SECRET"),
				AllowLegacyActorHeader: allowLegacyAuth,
			}
			if authCfg.JWTSecret == "" && !allowLegacyAuth {
				return fmt.Errorf("CASELINE_JWT_SECRET is required for bearer auth (or pass --allow-legacy-auth)")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Caseline API on http://%s%s (OpenAPI at %s/openapi.json)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&allowLegacyAuth, "allow-legacy-auth", false, "accept X-Actor-ID/X-Actor-Role headers (dev only)")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.Load(workspace)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func parsePayload(raw string) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("invalid payload JSON: %w", err)
	}
	return payload, nil
}

func colorState(state string) string {
	switch state {
	case domain.StateClosed, domain.StateApproved:
		return color.GreenString(state)
	case domain.StateRejected, domain.StateClosureLegal:
		return color.RedString(state)
	case domain.StateDraft:
		return color.HiBlackString(state)
	default:
		return color.YellowString(state)
	}
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
