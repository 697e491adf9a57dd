// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// sessions_cmd.go - session listing and management from the command line.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/term"

	"github.com/jeranaias/agentdeck/internal/agentd"
	"github.com/jeranaias/agentdeck/internal/config"
	"github.com/jeranaias/agentdeck/internal/model"
	"github.com/jeranaias/agentdeck/internal/storage"
	"github.com/jeranaias/agentdeck/internal/util"
)

// HandleSessions handles the sessions command and its subcommands.
func HandleSessions(args Args) error {
	cfg := config.Global()
	if args.Server != "" {
		cfg.Server.URL = args.Server
	}
	client := agentd.NewClient(cfg.Server.URL).
		WithMaxRetries(cfg.Server.MaxRetries).
		WithTimeout(time.Duration(cfg.Server.TimeoutSecs) * time.Second)

	switch args.Subcommand {
	case "show":
		if args.Session == "" {
			return fmt.Errorf("usage: agentdeck sessions show <id>")
		}
		return showSession(client, cfg, args)
	case "delete":
		if args.Session == "" {
			return fmt.Errorf("usage: agentdeck sessions delete <id>")
		}
		return deleteSession(client, args)
	default:
		return listSessions(client, cfg, args)
	}
}

// listSessions prints the session table. When the server is unreachable
// (or --offline was given) it falls back to the offline cache.
func listSessions(client *agentd.Client, cfg *config.Config, args Args) error {
	var metas []model.Meta
	fromCache := args.Offline

	if !args.Offline {
		infos, err := client.ListSessions(context.Background())
		if err != nil {
			if !errors.Is(err, agentd.ErrServerUnavailable) {
				return err
			}
			fromCache = true
		} else {
			for _, info := range infos {
				metas = append(metas, model.Meta{
					ID:        info.ID,
					Title:     info.Title,
					CreatedAt: info.CreatedAt,
					UpdatedAt: info.UpdatedAt,
				})
			}
		}
	}

	if fromCache {
		cache := openCache(cfg)
		if cache == nil {
			return fmt.Errorf("backend unreachable and no offline cache available")
		}
		cached, err := cache.Sessions()
		if err != nil {
			if errors.Is(err, storage.ErrNotCached) {
				return fmt.Errorf("backend unreachable and the offline cache is empty")
			}
			return err
		}
		metas = cached
		if !args.Quiet {
			fmt.Fprintln(os.Stderr, warningStyle.Render("[offline] showing cached sessions"))
		}
	}

	if args.JSON {
		return json.NewEncoder(os.Stdout).Encode(metas)
	}

	if len(metas) == 0 {
		fmt.Println("No sessions.")
		return nil
	}
	printSessionTable(metas)
	return nil
}

// printSessionTable renders sessions as a fixed-layout table sized to the
// terminal.
func printSessionTable(metas []model.Meta) {
	width := 80
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 40 {
		width = w
	}

	const idWidth = 42
	const timeWidth = 17
	titleWidth := width - idWidth - timeWidth - 4
	if titleWidth < 10 {
		titleWidth = 10
	}

	fmt.Printf("%s  %s  %s\n",
		headerStyle.Render(util.PadWidth("ID", idWidth)),
		headerStyle.Render(util.PadWidth("UPDATED", timeWidth)),
		headerStyle.Render("TITLE"))

	for _, meta := range metas {
		fmt.Printf("%s  %s  %s\n",
			util.PadWidth(util.TruncateWidth(meta.ID, idWidth), idWidth),
			util.PadWidth(meta.UpdatedAt.Format("2006-01-02 15:04"), timeWidth),
			util.TruncateWidth(util.Flatten(meta.Title), titleWidth))
	}
}

// showSession prints one session transcript, from the server or the
// offline cache.
func showSession(client *agentd.Client, cfg *config.Config, args Args) error {
	var msgs []*model.Message

	records, err := client.LoadMessages(context.Background(), args.Session)
	switch {
	case err == nil:
		for _, rec := range records {
			msgs = append(msgs, &model.Message{
				ID:        rec.ID,
				Role:      model.ParseRole(rec.Role),
				Content:   rec.Content,
				Timestamp: rec.Timestamp,
			})
		}
	case errors.Is(err, agentd.ErrServerUnavailable):
		cache := openCache(cfg)
		if cache == nil {
			return err
		}
		msgs, err = cache.Transcript(args.Session)
		if err != nil {
			return err
		}
		if !args.Quiet {
			fmt.Fprintln(os.Stderr, warningStyle.Render("[offline] showing cached transcript"))
		}
	default:
		return err
	}

	if args.JSON {
		return json.NewEncoder(os.Stdout).Encode(msgs)
	}

	for _, msg := range msgs {
		fmt.Printf("%s %s\n", dimStyle.Render(msg.Timestamp.Format("15:04:05")),
			promptStyle.Render(msg.Role.DisplayName()+":"))
		fmt.Println(msg.Content)
		fmt.Println()
	}
	return nil
}

// deleteSession removes a session on the server and drops its cached
// transcript.
func deleteSession(client *agentd.Client, args Args) error {
	if err := client.DeleteSession(context.Background(), args.Session); err != nil {
		return err
	}
	if cache := openCache(config.Global()); cache != nil {
		cache.DeleteTranscript(args.Session)
	}
	if !args.Quiet {
		fmt.Println("Deleted " + args.Session)
	}
	return nil
}
