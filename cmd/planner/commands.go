package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/layer-3/planclient/adapters/tokenizer"
	"github.com/layer-3/planclient/core"
	"github.com/urfave/cli/v2"
)

func loginCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "sign in with email and password",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "email", Required: true},
			&cli.StringFlag{Name: "password", Required: true, EnvVars: []string{"PLANNER_PASSWORD"}},
		},
		Action: func(c *cli.Context) error {
			result, err := a.planner.Auth.Login(c.Context, c.String("email"), c.String("password"))
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "logged in as %s\n", displayName(result.User))
			return nil
		},
	}
}

func registerCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:  "register",
		Usage: "create an account",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Required: true},
			&cli.StringFlag{Name: "email", Required: true},
			&cli.StringFlag{Name: "password", Required: true, EnvVars: []string{"PLANNER_PASSWORD"}},
			&cli.StringFlag{Name: "confirm-password", Usage: "defaults to --password"},
		},
		Action: func(c *cli.Context) error {
			confirm := c.String("password")
			if c.IsSet("confirm-password") {
				confirm = c.String("confirm-password")
			}
			result, err := a.planner.Auth.Register(c.Context, core.RegisterRequest{
				Name:            c.String("name"),
				Email:           c.String("email"),
				Password:        c.String("password"),
				ConfirmPassword: confirm,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "registered %s\n", displayName(result.User))
			return nil
		},
	}
}

func logoutCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "forget the stored session",
		Action: func(c *cli.Context) error {
			if err := a.planner.Auth.Logout(c.Context); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "logged out")
			return nil
		},
	}
}

func statusCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "show the stored session",
		Action: func(c *cli.Context) error {
			state := a.planner.Auth.State(c.Context)
			fmt.Fprintf(a.out, "state:   %s\n", state)
			if state == core.StateAnonymous {
				return nil
			}

			fmt.Fprintf(a.out, "user:    %s\n", displayName(a.planner.Auth.CurrentUser(c.Context)))
			info, err := tokenizer.Inspect(a.planner.Tokens.AccessToken(c.Context))
			if err != nil {
				fmt.Fprintf(a.out, "access:  unreadable (%v)\n", err)
				return nil
			}
			expiry := "expires " + info.ExpiresAt.Local().Format(time.RFC3339)
			if info.Expired(time.Now()) {
				expiry = "expired, refreshed on next request"
			}
			fmt.Fprintf(a.out, "access:  %s\n", expiry)
			return nil
		},
	}
}

func notesCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:  "notes",
		Usage: "list and edit notes",
		Subcommands: []*cli.Command{
			{
				Name: "list",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "pinned", Usage: "only pinned notes"},
					&cli.StringFlag{Name: "date", Usage: "related date (YYYY-MM-DD)"},
				},
				Action: func(c *cli.Context) error {
					filter := core.NoteFilter{RelatedDate: c.String("date")}
					if c.Bool("pinned") {
						pinned := true
						filter.IsPinned = &pinned
					}
					notes, err := a.planner.Notes.List(c.Context, filter)
					if err != nil {
						return err
					}
					w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
					for _, n := range notes {
						pin := ""
						if n.IsPinned {
							pin = "*"
						}
						fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", n.ID, pin, n.Title, n.RelatedDate)
					}
					return w.Flush()
				},
			},
			{
				Name: "add",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "title", Required: true},
					&cli.StringFlag{Name: "content"},
					&cli.StringFlag{Name: "date", Usage: "related date (YYYY-MM-DD)"},
				},
				Action: func(c *cli.Context) error {
					n, err := a.planner.Notes.Create(c.Context, core.Note{
						Title:       c.String("title"),
						Content:     c.String("content"),
						RelatedDate: c.String("date"),
					})
					if err != nil {
						return err
					}
					fmt.Fprintln(a.out, n.ID)
					return nil
				},
			},
			{
				Name:      "pin",
				Usage:     "toggle the pin on a note",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					id, err := requireID(c)
					if err != nil {
						return err
					}
					n, err := a.planner.Notes.TogglePin(c.Context, id)
					if err != nil {
						return err
					}
					fmt.Fprintf(a.out, "%s pinned=%t\n", n.ID, n.IsPinned)
					return nil
				},
			},
		},
	}
}

func tasksCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:  "tasks",
		Usage: "list and edit tasks",
		Subcommands: []*cli.Command{
			{
				Name: "list",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "status"},
					&cli.StringFlag{Name: "priority"},
				},
				Action: func(c *cli.Context) error {
					tasks, err := a.planner.Tasks.List(c.Context, core.ActivityFilter{
						Status:   core.Status(c.String("status")),
						Priority: core.Priority(c.String("priority")),
					})
					if err != nil {
						return err
					}
					return printActivities(a, tasks)
				},
			},
			{
				Name: "add",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "title", Required: true},
					&cli.StringFlag{Name: "priority", Value: string(core.PriorityMedium)},
					&cli.StringFlag{Name: "date", Usage: "YYYY-MM-DD, defaults to today"},
				},
				Action: func(c *cli.Context) error {
					t, err := a.planner.Tasks.Create(c.Context, core.Activity{
						Title:    c.String("title"),
						Priority: core.Priority(c.String("priority")),
						Date:     c.String("date"),
					})
					if err != nil {
						return err
					}
					fmt.Fprintln(a.out, t.ID)
					return nil
				},
			},
			{
				Name:      "toggle",
				Usage:     "flip a task between done and pending",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					id, err := requireID(c)
					if err != nil {
						return err
					}
					current, err := a.planner.Activities.Get(c.Context, id)
					if err != nil {
						return err
					}
					t, err := a.planner.Tasks.ToggleStatus(c.Context, id, current.Status)
					if err != nil {
						return err
					}
					fmt.Fprintf(a.out, "%s %s\n", t.ID, t.Status)
					return nil
				},
			},
		},
	}
}

func activitiesCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:  "activities",
		Usage: "list and add scheduled activities",
		Subcommands: []*cli.Command{
			{
				Name: "list",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "date", Usage: "YYYY-MM-DD"},
				},
				Action: func(c *cli.Context) error {
					acts, err := a.planner.Activities.List(c.Context, core.ActivityFilter{Date: c.String("date")})
					if err != nil {
						return err
					}
					return printActivities(a, acts)
				},
			},
			{
				Name: "add",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "title", Required: true},
					&cli.StringFlag{Name: "date", Required: true, Usage: "YYYY-MM-DD"},
					&cli.StringFlag{Name: "start", Usage: "HH:MM"},
					&cli.StringFlag{Name: "end", Usage: "HH:MM"},
					&cli.StringFlag{Name: "priority", Value: string(core.PriorityMedium)},
				},
				Action: func(c *cli.Context) error {
					act, err := a.planner.Activities.Create(c.Context, core.Activity{
						Title:     c.String("title"),
						Date:      c.String("date"),
						StartTime: c.String("start"),
						EndTime:   c.String("end"),
						Priority:  core.Priority(c.String("priority")),
					})
					if err != nil {
						return err
					}
					fmt.Fprintln(a.out, act.ID)
					return nil
				},
			},
		},
	}
}

func planCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:      "plan",
		Usage:     "turn free text into tasks and notes",
		ArgsUsage: "<prompt>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "apply", Usage: "save the plan"},
		},
		Action: func(c *cli.Context) error {
			prompt := strings.Join(c.Args().Slice(), " ")
			plan, err := a.planner.AI.ParsePrompt(c.Context, prompt)
			if err != nil {
				return err
			}

			fmt.Fprintln(a.out, plan.Message)
			for _, w := range plan.Warnings {
				fmt.Fprintf(a.out, "warning: %s\n", w)
			}
			for _, act := range plan.Activities {
				fmt.Fprintf(a.out, "  [%s] %s\n", act.Type, act.Title)
			}
			for _, n := range plan.Notes {
				fmt.Fprintf(a.out, "  [note] %s\n", n.Title)
			}

			if !c.Bool("apply") || plan.Empty() {
				return nil
			}
			saved, err := a.planner.AI.ApplyPlan(c.Context, *plan)
			fmt.Fprintf(a.out, "saved %d item(s)\n", saved)
			return err
		},
	}
}

func printActivities(a *app, acts []core.Activity) error {
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	for _, act := range acts {
		when := act.Date
		if act.StartTime != "" {
			when += " " + act.StartTime
			if act.EndTime != "" {
				when += "-" + act.EndTime
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", act.ID, act.Status, act.Priority, when, act.Title)
	}
	return w.Flush()
}

func requireID(c *cli.Context) (string, error) {
	if c.NArg() != 1 {
		return "", cli.Exit("expected exactly one id", 2)
	}
	return c.Args().First(), nil
}

func displayName(u *core.UserProfile) string {
	if u == nil {
		return "unknown user"
	}
	if u.Email == "" {
		return u.Name
	}
	return fmt.Sprintf("%s <%s>", u.Name, u.Email)
}
