package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/schollz/progressbar/v3"

	"trane/client"
	"trane/cmd"
	"trane/config"
	"trane/types"
)

func main() {
	var (
		server   bool
		port     int
		register bool
		login    string
		password string
		logout   bool
		upload   string
		model    string
		stems    string
		watch    string
		list     bool
		rename   string
		name     string
		remove   string
		download string
		output   string
	)

	flag.BoolVar(&server, "server", false, "Start in web server mode")
	flag.IntVar(&port, "port", 8000, "Port for web server mode")
	flag.BoolVar(&register, "register", false, "Create a new account (with -login and -password)")
	flag.StringVar(&login, "login", "", "Username to log in with")
	flag.StringVar(&password, "password", "", "Password for -login/-register (or TRANE_PASSWORD)")
	flag.BoolVar(&logout, "logout", false, "Clear the persisted session")
	flag.StringVar(&upload, "upload", "", "Audio file to submit for separation")
	flag.StringVar(&model, "model", "htdemucs", "Separation model to use")
	flag.StringVar(&stems, "stems", "", "Comma-separated stem subset (default: all the model produces)")
	flag.StringVar(&watch, "watch", "", "Job ID to follow until it finishes")
	flag.BoolVar(&list, "list", false, "List all entries")
	flag.StringVar(&rename, "rename", "", "Entry ID to rename (with -name)")
	flag.StringVar(&name, "name", "", "New name for -rename")
	flag.StringVar(&remove, "delete", "", "Entry ID to delete")
	flag.StringVar(&download, "download", "", "Entry ID whose stems to download (with -out)")
	flag.StringVar(&output, "out", ".", "Output directory for -download")
	flag.Parse()

	// Server mode takes precedence
	if server {
		cmd.StartWebServer(port)
		return
	}

	session := client.NewSession(config.GetSessionFilePath())
	if err := session.Init(); err != nil {
		log.Fatalf("Failed to read session: %v", err)
	}
	api := client.NewClient(config.GetEndpoint(), session)
	ctx := context.Background()

	if password == "" {
		password = os.Getenv("TRANE_PASSWORD")
	}

	switch {
	case logout:
		if err := session.Teardown(); err != nil {
			log.Fatalf("Failed to clear session: %v", err)
		}
		fmt.Println("Logged out.")

	case register:
		if login == "" || password == "" {
			log.Fatalf("-register requires -login and -password")
		}
		runRegister(ctx, api, login, password)

	case login != "":
		if err := api.Login(ctx, login, password); err != nil {
			log.Fatalf("Login failed: %v", err)
		}
		fmt.Printf("Logged in as %s.\n", login)

	case upload != "":
		runUpload(ctx, api, upload, model, splitStems(stems))

	case watch != "":
		runWatch(ctx, api.BaseURL(), watch)

	case list:
		runList(ctx, api)

	case rename != "":
		if name == "" {
			log.Fatalf("-rename requires -name")
		}
		entry, err := api.Rename(ctx, rename, name)
		if err != nil {
			log.Fatalf("Rename failed: %v", err)
		}
		fmt.Printf("Renamed %s to %q.\n", entry.ID, entry.Name)

	case remove != "":
		if err := api.Delete(ctx, remove); err != nil {
			log.Fatalf("Delete failed: %v", err)
		}
		fmt.Printf("Deleted %s.\n", remove)

	case download != "":
		paths, err := api.FetchStems(ctx, download, output)
		if err != nil {
			log.Fatalf("Download failed: %v", err)
		}
		for _, path := range paths {
			fmt.Println(path)
		}

	default:
		flag.Usage()
	}
}

func runRegister(ctx context.Context, api *client.Client, username, password string) {
	if err := api.Register(ctx, username, password); err != nil {
		log.Fatalf("Registration failed: %v", err)
	}
	fmt.Printf("Registered and logged in as %s.\n", username)
}

func splitStems(value string) []string {
	if value == "" {
		return nil
	}
	var stems []string
	for _, stem := range strings.Split(value, ",") {
		if stem = strings.TrimSpace(stem); stem != "" {
			stems = append(stems, stem)
		}
	}
	return stems
}

// runUpload submits the file and follows its progress to a terminal state.
func runUpload(ctx context.Context, api *client.Client, path, model string, stems []string) {
	entry, err := api.Submit(ctx, path, types.SeparationOptions{Model: model, Stems: stems})
	if err != nil {
		var validation *client.ValidationError
		if errors.As(err, &validation) {
			for field, msg := range validation.Fields {
				fmt.Fprintf(os.Stderr, "%s: %s\n", field, msg)
			}
			os.Exit(1)
		}
		log.Fatalf("Upload failed: %v", err)
	}

	fmt.Printf("Queued job %s (%s, model %s)\n", entry.ID, entry.Filename, entry.Model)
	runWatch(ctx, api.BaseURL(), entry.ID)
}

// runWatch follows one job's status channel, rendering progress locally.
func runWatch(ctx context.Context, baseURL, taskID string) {
	registry := client.NewRegistry()
	channel, err := client.NewStatusChannel(baseURL, registry)
	if err != nil {
		log.Fatalf("Failed to open status channel: %v", err)
	}

	bar := progressbar.NewOptions(100,
		progressbar.OptionSetDescription("separating"),
		progressbar.OptionShowCount(),
	)
	channel.OnMessage = func(msg types.ProgressMessage) {
		_ = bar.Set(msg.Progress)
	}

	err = channel.Watch(ctx, taskID)
	fmt.Println()

	var failed *client.ProcessingFailed
	var lost *client.ConnectionLost
	switch {
	case err == nil:
		fmt.Println("Separation completed.")
	case errors.As(err, &failed):
		log.Fatalf("Separation failed: %s", failed.Reason)
	case errors.As(err, &lost):
		state, _ := registry.Get(taskID)
		log.Fatalf("Connection lost (last known: %d%% %s): %v", state.Progress, state.Status, err)
	default:
		log.Fatalf("Watch failed: %v", err)
	}
}

func runList(ctx context.Context, api *client.Client) {
	entries, err := api.List(ctx)
	if err != nil {
		log.Fatalf("Failed to list entries: %v", err)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"ID", "Name", "Model", "Status", "Progress", "Created"})
	for _, entry := range entries {
		t.AppendRow(table.Row{
			entry.ID,
			entry.Name,
			entry.Model,
			entry.Status,
			fmt.Sprintf("%d%%", entry.Progress),
			entry.CreatedAt.Format("2006-01-02 15:04"),
		})
	}
	t.Render()
}
