package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joshp123/vaillant2mqtt/internal/core"
	"github.com/joshp123/vaillant2mqtt/internal/hub"
)

// platformsCmd talks to the daemon's JSON API.
func platformsCmd(args []string) {
	if len(args) < 1 {
		usage()
		os.Exit(2)
	}

	switch args[0] {
	case "list":
		var summaries []core.PlatformSummary
		getJSON("/api/platforms", &summaries)
		rows := [][]string{{"ID", "NAME", "VERSION", "STATUS"}}
		for _, summary := range summaries {
			rows = append(rows, []string{summary.PlatformID, summary.DisplayName, summary.Version, summary.Status})
		}
		table(rows)
	case "describe":
		if len(args) < 2 {
			fatal("describe", fmt.Errorf("missing platform id"))
		}
		var descriptor core.PlatformDescriptor
		getJSON("/api/platforms/"+args[1], &descriptor)
		fmt.Printf("id: %s\n", descriptor.PlatformID)
		fmt.Printf("name: %s\n", descriptor.DisplayName)
		fmt.Printf("version: %s\n", descriptor.Version)
		fmt.Printf("status: %s\n", descriptor.Status)
		if descriptor.HealthMessage != "" {
			fmt.Printf("health: %s\n", descriptor.HealthMessage)
		}
		fmt.Println("entities:")
		for _, entity := range descriptor.Entities {
			fmt.Printf("  - %s\n", entity)
		}
		fmt.Println("dashboards:")
		for _, dash := range descriptor.Dashboards {
			fmt.Printf("  - %s (%s)\n", dash.Name, dash.Path)
		}
		fmt.Println("agents_md:")
		fmt.Println(descriptor.AgentsMD)
	default:
		usage()
		os.Exit(2)
	}
}

type deviceRecord struct {
	ID              string    `json:"id"`
	Model           string    `json:"model"`
	FirmwareVersion string    `json:"firmware_version"`
	Online          bool      `json:"online"`
	Attrs           hub.Attrs `json:"attrs"`
}

func devicesCmd(args []string) {
	var records []deviceRecord
	getJSON("/api/devices", &records)

	rows := [][]string{{"ID", "MODEL", "FIRMWARE", "ONLINE", "ATTRS"}}
	for _, record := range records {
		rows = append(rows, []string{
			record.ID,
			record.Model,
			record.FirmwareVersion,
			fmt.Sprintf("%t", record.Online),
			fmt.Sprintf("%d", len(record.Attrs)),
		})
	}
	table(rows)
}

func getJSON(path string, out any) {
	base := resolveHTTPAddr()
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(strings.TrimRight(base, "/") + path)
	if err != nil {
		fatal("http", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fatal("http", fmt.Errorf("%s returned %d", path, resp.StatusCode))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		fatal("decode", err)
	}
}
