// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// tasks_cmd.go - saved agent task listing and creation from the command line.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jeranaias/agentdeck/internal/agentd"
	"github.com/jeranaias/agentdeck/internal/config"
	"github.com/jeranaias/agentdeck/internal/util"
)

// HandleTasks handles the tasks command and its subcommands.
func HandleTasks(args Args) error {
	cfg := config.Global()
	if args.Server != "" {
		cfg.Server.URL = args.Server
	}
	client := agentd.NewClient(cfg.Server.URL).
		WithMaxRetries(cfg.Server.MaxRetries).
		WithTimeout(time.Duration(cfg.Server.TimeoutSecs) * time.Second)

	switch args.Subcommand {
	case "add":
		return addTask(client, args)
	default:
		return listTasks(client, args)
	}
}

// listTasks prints the saved agent tasks, newest first.
func listTasks(client *agentd.Client, args Args) error {
	tasks, err := client.ListAgentTasks(context.Background())
	if err != nil {
		return err
	}

	if args.JSON {
		return json.NewEncoder(os.Stdout).Encode(tasks)
	}

	if len(tasks) == 0 {
		fmt.Println("No agent tasks.")
		return nil
	}

	for _, task := range tasks {
		fmt.Printf("%s  %s\n",
			headerStyle.Render(task.Name),
			dimStyle.Render(task.ID))
		fmt.Printf("  %s\n", util.Flatten(task.Task))
		if task.Description != "" {
			fmt.Printf("  %s\n", dimStyle.Render(util.Flatten(task.Description)))
		}
		if task.LastResult != "" {
			fmt.Printf("  last: %s\n", util.TruncateRunes(util.Flatten(task.LastResult), 120))
		}
	}
	return nil
}

// addTask saves a new agent task from the command line: the first word is
// the name, the rest is the task text.
func addTask(client *agentd.Client, args Args) error {
	if len(args.Raw) < 2 {
		return fmt.Errorf("usage: agentdeck tasks add <name> <task...>")
	}
	name := args.Raw[0]
	task := strings.Join(args.Raw[1:], " ")

	id, err := client.CreateAgentTask(context.Background(), name, "", task)
	if err != nil {
		return err
	}
	if !args.Quiet {
		fmt.Println(dimStyle.Render("Created " + id))
	}
	return nil
}
