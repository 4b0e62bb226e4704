package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kailas-cloud/tokenguard/internal/domain/money"
	"github.com/kailas-cloud/tokenguard/internal/domain/pricing"
	"github.com/kailas-cloud/tokenguard/internal/domain/usage"
)

func TestRenderRates(t *testing.T) {
	o := pricing.NewOracle(pricing.DefaultSchedule())

	var buf bytes.Buffer
	if err := renderRates(&buf, o, time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"standard", "$0.2700 / 1M", "$1.1000 / 1M", "16:30-00:30 UTC"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	if err := renderRates(&buf, o, time.Date(2026, 6, 1, 17, 0, 0, 0, time.UTC)); err != nil {
		t.Fatal(err)
	}
	if out := buf.String(); !strings.Contains(out, "discount") || !strings.Contains(out, "$0.5500 / 1M") {
		t.Errorf("discount output:\n%s", out)
	}
}

func TestFillDays(t *testing.T) {
	since := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	got := fillDays([]usage.DaySummary{
		{Day: since.AddDate(0, 0, 1), Requests: 3, Cost: money.FromDollars(0.5)},
	}, since, 3)

	if len(got) != 3 {
		t.Fatalf("len = %d", len(got))
	}
	if got[0].Requests != 0 || !got[0].Day.Equal(since) {
		t.Errorf("day 0 = %+v", got[0])
	}
	if got[1].Requests != 3 {
		t.Errorf("day 1 = %+v", got[1])
	}
	if !got[2].Day.Equal(since.AddDate(0, 0, 2)) {
		t.Errorf("day 2 = %+v", got[2])
	}
}

func TestRenderSummary(t *testing.T) {
	since := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	days := fillDays([]usage.DaySummary{
		{Day: since, Requests: 2, InputTokens: 100, OutputTokens: 50, Cost: money.FromDollars(0.25)},
		{Day: since.AddDate(0, 0, 2), Requests: 1, InputTokens: 10, OutputTokens: 5, Cost: money.FromDollars(0.5)},
	}, since, 3)

	var buf bytes.Buffer
	if err := renderSummary(&buf, days); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"2026-06-01", "2026-06-03", "TOTAL", "$0.750000", "daily spend (USD)"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderSummary_SingleDayHasNoChart(t *testing.T) {
	var buf bytes.Buffer
	if err := renderSummary(&buf, []usage.DaySummary{{Day: time.Now().UTC()}}); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), "daily spend") {
		t.Error("chart rendered for a single point")
	}
}

func TestRenderRecent(t *testing.T) {
	var buf bytes.Buffer
	err := renderRecent(&buf, []usage.Record{{
		At: time.Date(2026, 6, 1, 17, 0, 0, 0, time.UTC), Principal: "acme",
		InputTokens: 10, OutputTokens: 20, Discounted: true, Cost: money.FromDollars(0.01),
	}})
	if err != nil {
		t.Fatal(err)
	}
	if out := buf.String(); !strings.Contains(out, "acme") || !strings.Contains(out, "discount") {
		t.Errorf("output:\n%s", out)
	}
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	versionCmd.Run(versionCmd, nil)
	if !strings.Contains(buf.String(), "tokenguard dev") {
		t.Errorf("version output:\n%s", buf.String())
	}
}

func TestLoadConfig_ExplicitPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tg.yaml")
	if err := os.WriteFile(path, []byte("http:\n  port: 9200\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	prevEnv, prevFile := envName, cfgFile
	t.Cleanup(func() { envName, cfgFile = prevEnv, prevFile })
	envName, cfgFile = "staging", path

	cfg, env, got, err := loadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if env != "staging" || got != path {
		t.Errorf("env, path = %q, %q", env, got)
	}
	if cfg.HTTP.Port != 9200 {
		t.Errorf("port = %d", cfg.HTTP.Port)
	}

	cfgFile = filepath.Join(t.TempDir(), "missing.yaml")
	if _, _, _, err := loadConfig(); err == nil {
		t.Error("expected error for missing config")
	}
}
