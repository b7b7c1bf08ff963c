package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"smartalarm/internal/recurrence"
)

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	cfg := strings.Join([]string{
		"logging:",
		"  level: error",
		"alarms:",
		"  log_file: " + filepath.Join(dir, "log", "events.log"),
		"  timezone: UTC",
		"  poll_interval: 20ms",
		"history:",
		"  driver: file",
		"  path: " + filepath.Join(dir, "history.jsonl"),
		"  max_records: 10",
		"http:",
		"  addr: 127.0.0.1:0",
		"metrics:",
		"  enabled: true",
		"",
	}, "\n")
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func startApp(t *testing.T, path string) *App {
	t.Helper()
	a, err := NewApp(path)
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return a
}

func stopApp(a *App) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	a.Stop(ctx)
}

func TestApp_RestartRecoversAlarms(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir)

	at := time.Now().UTC().Add(2 * time.Hour).Truncate(time.Minute)
	a := startApp(t, path)
	if _, err := a.Store().Add("standup", at, recurrence.Daily); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := a.Store().Add("dentist", at.Add(time.Hour), recurrence.Once); err != nil {
		t.Fatalf("Add: %v", err)
	}
	stopApp(a)

	b, err := os.ReadFile(filepath.Join(dir, "log", "events.log"))
	if err != nil {
		t.Fatalf("journal missing: %v", err)
	}
	if n := strings.Count(string(b), "\n"); n != 2 {
		t.Fatalf("journal lines=%d want 2", n)
	}

	a = startApp(t, path)
	defer stopApp(a)
	got := a.Store().ListSortedByTime()
	if len(got) != 2 || got[0].Name != "standup" || got[1].Name != "dentist" {
		t.Fatalf("recovered=%+v", got)
	}
	if !got[0].TriggerTime.Equal(at) || got[0].Recurrence != recurrence.Daily {
		t.Fatalf("standup=%+v", got[0])
	}
}

func TestApp_HTTPCreateAndList(t *testing.T) {
	dir := t.TempDir()
	a := startApp(t, writeConfig(t, dir))
	defer stopApp(a)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	addr, err := a.Addr(ctx)
	if err != nil {
		t.Fatalf("Addr: %v", err)
	}
	base := "http://" + addr

	when := time.Now().UTC().Add(48 * time.Hour).Format("02/01/2006 15:04")
	body, _ := json.Marshal(map[string]string{"name": "party", "date_time": when, "recurrence": "Yearly"})
	resp, err := http.Post(base+"/alarms", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status=%d", resp.StatusCode)
	}

	resp, err = http.Get(base + "/alarms")
	if err != nil {
		t.Fatal(err)
	}
	var list []struct {
		Name       string `json:"name"`
		Recurrence string `json:"recurrence"`
	}
	err = json.NewDecoder(resp.Body).Decode(&list)
	resp.Body.Close()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Name != "party" || list[0].Recurrence != "Yearly" {
		t.Fatalf("list=%+v", list)
	}

	resp, err = http.Get(base + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	resp.Body.Close()
	if !strings.Contains(buf.String(), "smartalarm_alarms_active 1") {
		t.Fatalf("metrics missing active gauge:\n%s", buf.String())
	}
}

func TestApp_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("alarms:\n  timezone: Nowhere/Atlantis\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewApp(path); err == nil {
		t.Fatal("expected error for unknown timezone")
	}
}
