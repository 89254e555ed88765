// Command sketchsync-cli is a terminal client for poking at a relay:
// it joins a room, optionally draws a test stroke, and prints the
// reconciled scene and who else is present.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/eldtechnologies/sketchsync/clients/go/sketchsync"
	"github.com/eldtechnologies/sketchsync/internal/cache"
	"github.com/eldtechnologies/sketchsync/internal/models"
)

func main() {
	serverVar := flag.String("server", "ws://localhost:8080", "relay base URL")
	roomVar := flag.String("room", "demo", "room to join")
	userVar := flag.String("user", "cli", "display name")
	drawVar := flag.Bool("draw", false, "draw a test stroke after joining")
	cacheVar := flag.String("cache", "", "path to a local snapshot cache (optional)")
	flag.Parse()

	if err := run(*serverVar, *roomVar, *userVar, *cacheVar, *drawVar); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(server, room, user, cachePath string, draw bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	opts := sketchsync.Options{ServerURL: server, Room: room, User: user}
	if cachePath != "" {
		c, err := cache.New(ctx, cachePath, 0)
		if err != nil {
			return fmt.Errorf("open cache: %w", err)
		}
		defer c.Close()
		opts.Cache = c
	}

	client := sketchsync.New(opts)
	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer client.Close()

	if draw {
		strokeID := fmt.Sprintf("cli-%d", time.Now().UnixMilli())
		client.Draw(strokeID, models.StrokeStart, models.Point{X: 10, Y: 10}, nil, "#1e90ff", 3)
		client.Draw(strokeID, models.StrokeMove, models.Point{X: 50, Y: 40},
			[]models.Point{{X: 30, Y: 25}}, "#1e90ff", 3)
		client.Draw(strokeID, models.StrokeEnd, models.Point{X: 90, Y: 10}, nil, "#1e90ff", 3)
		fmt.Println("drew test stroke", strokeID)
	}

	client.Ping(&models.Point{X: 0, Y: 0}, nil, false)

	// Give the relay a beat to fan everything out.
	time.Sleep(500 * time.Millisecond)

	plan := client.RenderPlan()
	out, _ := json.MarshalIndent(plan, "", "  ")
	fmt.Println(string(out))

	fmt.Printf("present: %d client(s)\n", len(client.Awareness()))

	if opts.Cache != nil {
		if err := client.Save(ctx); err != nil {
			return fmt.Errorf("save snapshot: %w", err)
		}
		fmt.Println("snapshot saved")
	}
	return nil
}
