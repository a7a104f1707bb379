package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/reverie-app/reverie/internal/capsule"
	"github.com/reverie-app/reverie/internal/config"
	"github.com/reverie-app/reverie/internal/errors"
	"github.com/reverie-app/reverie/internal/gateway"
	"github.com/reverie-app/reverie/internal/learning"
	"github.com/reverie-app/reverie/internal/ops"
	"github.com/reverie-app/reverie/internal/redact"
	"github.com/reverie-app/reverie/internal/turn"
	"github.com/reverie-app/reverie/internal/web"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(db *sql.DB, cfg *config.Config) *cli.App {
	app := &cli.App{
		Name:    "reverie",
		Usage:   "Private voice reflection, kept local",
		Version: Version,
		Commands: []*cli.Command{
			captureCmd(db),
			importCmd(db),
			advanceCmd(db),
			readyCmd(db, cfg),
			failCmd(db),
			showCmd(db),
			listCmd(db),
			deleteCmd(db),
			reflectCmd(db, cfg),
			capsuleCmd(db, cfg),
			patternsCmd(db, cfg),
			uiCmd(db, cfg),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// captureCmd creates the capture command.
func captureCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "capture",
		Usage: "Queue a new audio capture turn",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "audio", Aliases: []string{"a"}, Usage: "Path of an existing audio file"},
			&cli.Int64Flag{Name: "recorded-at", Usage: "Unix timestamp of capture start (default: now)"},
			&cli.StringFlag{Name: "context", Aliases: []string{"c"}, Usage: "Capture context: handheld|handsfree|car|intent"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.CreateCapture(db, ops.CreateCaptureInput{
				AudioPath:  c.String("audio"),
				RecordedAt: c.Int64("recorded-at"),
				Context:    turn.Context(c.String("context")),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// importCmd creates the import command.
func importCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Import typed text as a finished turn (reads text from stdin)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "Title for the turn"},
		},
		Action: func(c *cli.Context) error {
			if !stdinHasData() {
				return outputError(errors.NewValidation("text must be piped via stdin"))
			}
			text, err := readStdin()
			if err != nil {
				return outputError(errors.NewInternal(err))
			}

			output, err := ops.CreateTextImport(db, ops.CreateTextImportInput{
				Text:  text,
				Title: c.String("title"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// advanceCmd creates the advance command.
func advanceCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:      "advance",
		Usage:     "Move a turn to an intermediate pipeline state",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "state", Aliases: []string{"s"}, Required: true, Usage: "Target state: recording|captured|transcribing|redacting|interrupted"},
			&cli.Int64Flag{Name: "audio-bytes", Usage: "Recorded audio size in bytes"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return outputError(errors.NewValidation("turn id is required"))
			}
			output, err := ops.Advance(db, ops.AdvanceInput{
				ID:         c.Args().First(),
				State:      turn.State(c.String("state")),
				AudioBytes: c.Int64("audio-bytes"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// readyCmd creates the ready command. The raw transcript is piped via
// stdin, redacted with the configured dictionary, and only the redacted
// form becomes the canonical transcript.
func readyCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "ready",
		Usage:     "Finalize a turn's transcript (reads raw transcript from stdin)",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "ended-at", Usage: "Unix timestamp of capture end (default: now)"},
			&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "Auto title (applied only if the turn has no user title)"},
			&cli.BoolFlag{Name: "partial", Usage: "Mark the transcript as incomplete"},
			&cli.BoolFlag{Name: "keep-raw", Usage: "Also store the pre-redaction transcript locally"},
			&cli.StringFlag{Name: "provider", Usage: "Transcription provider name"},
			&cli.StringFlag{Name: "locale", Usage: "Transcription locale"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return outputError(errors.NewValidation("turn id is required"))
			}
			if !stdinHasData() {
				return outputError(errors.NewValidation("raw transcript must be piped via stdin"))
			}
			raw, err := readStdin()
			if err != nil {
				return outputError(errors.NewInternal(err))
			}

			dict := cfg.RedactionDictionary()
			redacted, hash := redact.Redact(raw, dict)

			endedAt := c.Int64("ended-at")
			if endedAt == 0 {
				endedAt = time.Now().Unix()
			}

			input := ops.MarkReadyInput{
				ID:                 c.Args().First(),
				EndedAt:            endedAt,
				RedactedTranscript: redacted,
				RedactionVersion:   dict.Version,
				RedactionInputHash: &hash,
				AutoTitle:          c.String("title"),
				Partial:            c.Bool("partial"),
			}
			if c.Bool("keep-raw") {
				input.RawTranscript = &raw
			}
			if provider := c.String("provider"); provider != "" {
				input.TranscriptionProvider = &provider
			}
			if locale := c.String("locale"); locale != "" {
				input.TranscriptionLocale = &locale
			}

			output, err := ops.MarkReady(db, input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// failCmd creates the fail command.
func failCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:      "fail",
		Usage:     "Mark a turn as failed",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "message", Aliases: []string{"m"}, Required: true, Usage: "Debug message describing the failure"},
			&cli.StringFlag{Name: "domain", Usage: "Failure domain (default: capture)"},
			&cli.StringFlag{Name: "code", Usage: "Failure code (default: unknown)"},
			&cli.StringFlag{Name: "user-key", Usage: "Localization key for user-facing copy"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return outputError(errors.NewValidation("turn id is required"))
			}
			output, err := ops.MarkFailed(db, ops.MarkFailedInput{
				ID:           c.Args().First(),
				DebugMessage: c.String("message"),
				Domain:       c.String("domain"),
				Code:         c.String("code"),
				UserKey:      c.String("user-key"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// showCmd creates the show command.
func showCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Show a turn by id",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "raw", Usage: "Include the local-only raw transcript"},
			&cli.BoolFlag{Name: "redactions", Usage: "Include the redaction provenance history"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return outputError(errors.NewValidation("turn id is required"))
			}
			output, err := ops.Get(db, ops.GetInput{
				ID:                c.Args().First(),
				IncludeRaw:        c.Bool("raw"),
				IncludeRedactions: c.Bool("redactions"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// listCmd creates the list command.
func listCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List turns newest-first",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "state", Aliases: []string{"s"}, Usage: "Filter by state"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: 20, Usage: "Maximum items to return"},
			&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Value: 0, Usage: "Items to skip"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.List(db, ops.ListInput{
				State:  c.String("state"),
				Limit:  c.Int("limit"),
				Offset: c.Int("offset"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// deleteCmd creates the delete command.
func deleteCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete a turn and its audio file",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return outputError(errors.NewValidation("turn id is required"))
			}
			output, err := ops.Delete(db, ops.DeleteInput{ID: c.Args().First()})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// reflectCmd creates the reflect command. It sends the redacted transcript
// plus the bounded capsule snapshot to the gateway; when the gateway is not
// configured it falls back to a local seed prompt.
func reflectCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "reflect",
		Usage:     "Request a reflection prompt for a finished turn",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "continue", Usage: "Previous response id to continue an exchange"},
			&cli.StringFlag{Name: "text", Usage: "Follow-up text for --continue (reads stdin when piped)"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return outputError(errors.NewValidation("turn id is required"))
			}
			id := c.Args().First()

			got, err := ops.Get(db, ops.GetInput{ID: id})
			if err != nil {
				return outputError(err)
			}
			if got.Turn.TranscriptRedacted == "" {
				return outputError(errors.NewValidation("turn has no transcript to reflect on"))
			}

			store := learning.NewStore(db, cfg.HalfLifeDays)
			caps := capsule.NewService(db, store)
			cur, err := caps.Get()
			if err != nil {
				return outputError(err)
			}

			mode := capsule.ModeReflect
			if c.String("continue") != "" {
				mode = capsule.ModeTalk
			}
			patterns, err := caps.TopPatterns(capsule.MaxReflectCues, time.Now())
			if err != nil {
				return outputError(err)
			}
			snap := capsule.Project(cur, mode, patterns)

			text := got.Turn.TranscriptRedacted
			if c.String("continue") != "" {
				if follow := c.String("text"); follow != "" {
					text = follow
				} else if stdinHasData() {
					text, err = readStdin()
					if err != nil {
						return outputError(errors.NewInternal(err))
					}
				}
			}

			client := gateway.NewClient(cfg.GatewayBaseURL, cfg.GatewayAPIKey, cfg.ClientName, Version, nil)
			req := gateway.Request{
				Text:               text,
				RecordedAt:         got.Turn.RecordedAt,
				PreviousResponseID: c.String("continue"),
				Capsule:            &snap,
			}

			var resp *gateway.Response
			if c.String("continue") != "" {
				resp, err = client.Continue(context.Background(), req)
			} else {
				resp, err = client.Reflect(context.Background(), req)
			}
			if err != nil {
				// Gateway failures never block a reflection: unconfigured,
				// HTTP error, bad payload, or network failure all answer
				// from the local seed pool.
				if !errors.Is(err, errors.ErrGatewayUnavailable) {
					fmt.Fprintf(os.Stderr, "gateway error, using local seed: %v\n", err)
				}
				return outputJSON(map[string]any{
					"text":   gateway.SeedFor(got.Turn.TranscriptRedacted),
					"source": "seed",
				})
			}

			if err := ops.RecordReflection(db, id, snap.Hash(), resp.PromptVersion, "gateway"); err != nil {
				return outputError(err)
			}
			return outputJSON(map[string]any{
				"text":           resp.Text,
				"response_id":    resp.ResponseID,
				"prompt_version": resp.PromptVersion,
				"source":         "gateway",
			})
		},
	}
}

// capsuleCmd creates the capsule command group.
func capsuleCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	services := func() *capsule.Service {
		return capsule.NewService(db, learning.NewStore(db, cfg.HalfLifeDays))
	}

	return &cli.Command{
		Name:  "capsule",
		Usage: "Inspect and edit the preference capsule",
		Subcommands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Show the capsule",
				Action: func(c *cli.Context) error {
					cur, err := services().Get()
					if err != nil {
						return outputError(err)
					}
					return outputJSON(cur)
				},
			},
			{
				Name:  "set",
				Usage: "Merge preference edits",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "output-style", Usage: "Preferred output style"},
					&cli.StringFlag{Name: "no-therapy-framing", Usage: "true|false"},
					&cli.StringSliceFlag{Name: "extra", Usage: "Extra preference as key=value (repeatable)"},
					&cli.StringSliceFlag{Name: "remove-extra", Usage: "Extra preference key to remove (repeatable)"},
				},
				Action: func(c *cli.Context) error {
					edits := capsule.Edits{RemoveExtras: c.StringSlice("remove-extra")}
					if c.IsSet("output-style") {
						style := c.String("output-style")
						edits.OutputStyle = &style
					}
					if c.IsSet("no-therapy-framing") {
						v := c.String("no-therapy-framing") == "true"
						edits.NoTherapyFraming = &v
					}
					if extras := c.StringSlice("extra"); len(extras) > 0 {
						edits.Extras = make(map[string]string, len(extras))
						for _, kv := range extras {
							k, v, ok := strings.Cut(kv, "=")
							if !ok {
								return outputError(errors.NewValidation("extra must be key=value: " + kv))
							}
							edits.Extras[k] = v
						}
					}
					cur, err := services().Update(edits)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(cur)
				},
			},
			{
				Name:      "learning",
				Usage:     "Toggle pattern learning",
				ArgsUsage: "<on|off>",
				Action: func(c *cli.Context) error {
					switch c.Args().First() {
					case "on":
						cur, err := services().SetLearningEnabled(true)
						if err != nil {
							return outputError(err)
						}
						return outputJSON(cur)
					case "off":
						cur, err := services().SetLearningEnabled(false)
						if err != nil {
							return outputError(err)
						}
						return outputJSON(cur)
					default:
						return outputError(errors.NewValidation("expected 'on' or 'off'"))
					}
				},
			},
			{
				Name:  "reset-learned",
				Usage: "Erase all learned patterns (explicit preferences are kept)",
				Action: func(c *cli.Context) error {
					if err := services().ResetLearnedProfile(); err != nil {
						return outputError(err)
					}
					return outputJSON(map[string]any{"reset": true})
				},
			},
			{
				Name:  "snapshot",
				Usage: "Project the bounded snapshot sent with reasoning requests",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "mode", Value: "reflect", Usage: "Projection mode: reflect|talk"},
				},
				Action: func(c *cli.Context) error {
					mode := capsule.ModeReflect
					switch c.String("mode") {
					case "reflect":
					case "talk":
						mode = capsule.ModeTalk
					default:
						return outputError(errors.NewValidation("unknown snapshot mode: " + c.String("mode")))
					}
					svc := services()
					cur, err := svc.Get()
					if err != nil {
						return outputError(err)
					}
					patterns, err := svc.TopPatterns(capsule.MaxReflectCues, time.Now())
					if err != nil {
						return outputError(err)
					}
					snap := capsule.Project(cur, mode, patterns)
					return outputJSON(map[string]any{"snapshot": snap, "hash": snap.Hash()})
				},
			},
		},
	}
}

// patternsCmd creates the patterns command group.
func patternsCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "patterns",
		Usage: "Inspect and feed the pattern learning store",
		Subcommands: []*cli.Command{
			{
				Name:  "top",
				Usage: "List learned patterns by decayed score",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "kind", Aliases: []string{"k"}, Usage: "Filter by pattern kind"},
					&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: 20, Usage: "Maximum patterns to return"},
				},
				Action: func(c *cli.Context) error {
					store := learning.NewStore(db, cfg.HalfLifeDays)
					var kind *learning.Kind
					if s := c.String("kind"); s != "" {
						k := learning.Kind(s)
						if !k.Valid() {
							return outputError(errors.NewValidation("unknown pattern kind: " + s))
						}
						kind = &k
					}
					patterns, err := store.TopPatterns(kind, c.Int("limit"), time.Now())
					if err != nil {
						return outputError(err)
					}
					now := time.Now()
					items := make([]map[string]any, 0, len(patterns))
					for _, p := range patterns {
						items = append(items, map[string]any{
							"kind":           p.Kind,
							"key":            p.Key,
							"score":          p.ScoreAt(now),
							"evidence_count": p.Count,
							"last_seen_at":   p.LastSeenAt,
						})
					}
					return outputJSON(map[string]any{"patterns": items})
				},
			},
			{
				Name:      "observe",
				Usage:     "Record one pattern observation",
				ArgsUsage: "<kind> <key>",
				Flags: []cli.Flag{
					&cli.Float64Flag{Name: "weight", Aliases: []string{"w"}, Value: 1.0, Usage: "Observation weight"},
				},
				Action: func(c *cli.Context) error {
					if c.NArg() < 2 {
						return outputError(errors.NewValidation("kind and key are required"))
					}
					store := learning.NewStore(db, cfg.HalfLifeDays)
					err := store.Observe(learning.Kind(c.Args().Get(0)), c.Args().Get(1), c.Float64("weight"), time.Now())
					if err != nil {
						return outputError(err)
					}
					return outputJSON(map[string]any{"observed": true})
				},
			},
		},
	}
}

// uiCmd creates the ui command.
func uiCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "ui",
		Usage: "Serve the local review UI",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Bind address"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Value: 7345, Usage: "Listen port"},
		},
		Action: func(c *cli.Context) error {
			srv := web.NewServer(db, cfg, Version, c.String("bind"), c.Int("port"))
			return web.Run(srv)
		},
	}
}

// Helper functions

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if rErr, ok := err.(*errors.ReverieError); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", rErr.Code, rErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads all content from stdin.
func readStdin() (string, error) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
