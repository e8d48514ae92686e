package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/bep/debounce"
	"github.com/chazu/linkage/pkg/config"
	"github.com/fsnotify/fsnotify"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to the TOML configuration")
	out := flag.String("out", "", "write the scene snapshot here instead of the configured output")
	watch := flag.Bool("watch", false, "rebuild whenever the product script changes")
	timeout := flag.Duration("timeout", 30*time.Second, "how long to wait for geometry before writing")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("%v", err)
	}
	if *out != "" {
		cfg.Output = *out
	}
	if *watch {
		cfg.Watch = true
	}

	app, err := NewApp(cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	if cfg.Watch {
		err = watchProduct(ctx, app, cfg)
	} else {
		err = writeSettled(ctx, app, cfg.Resolve(cfg.Output), *timeout)
		stop()
	}
	if runErr := <-done; runErr != nil && err == nil {
		err = runErr
	}
	if err != nil {
		log.Fatalf("%v", err)
	}
}

// writeSettled waits for the first complete build and writes its snapshot.
func writeSettled(ctx context.Context, app *App, path string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	snap, err := app.WaitSettled(ctx)
	if err != nil {
		log.Printf("Geometry still pending after %s: %v", timeout, snap.Pending)
	}
	return writeSnapshot(path, snap)
}

// watchProduct rewrites the snapshot after every build and reloads the
// product script when it changes on disk.
func watchProduct(ctx context.Context, app *App, cfg config.Config) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer watcher.Close()

	product := cfg.Resolve(cfg.Product)
	if product != "" {
		// Editors replace files on save, so watch the directory.
		if err := watcher.Add(filepath.Dir(product)); err != nil {
			return fmt.Errorf("watch: %w", err)
		}
		log.Printf("Watching %s", product)
	}

	reload := debounce.New(200 * time.Millisecond)
	output := cfg.Resolve(cfg.Output)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-app.Updates():
			if err := writeSnapshot(output, app.Snapshot()); err != nil {
				log.Printf("Write failed: %v", err)
			}
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(product) {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				reload(func() {
					if err := app.Reload(); err != nil {
						log.Printf("Reload failed: %v", err)
					}
				})
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("Watch error: %v", err)
		}
	}
}

// writeSnapshot writes snap as indented JSON to path, or to stdout when
// path is empty.
func writeSnapshot(path string, snap Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if path == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
