package main

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/ndbc-transfer/internal/domain"
	"github.com/couchcryptid/ndbc-transfer/internal/observability"
)

func init() {
	newMetrics = observability.NewMetricsForTesting
}

const waveInfo = `{"table":{
  "columnNames":["Row Type","Variable Name","Attribute Name","Data Type","Value"],
  "rows":[
    ["variable","time","","double",""],
    ["variable","significant_wave_height","","float",""],
    ["variable","significant_wave_period","","float",""],
    ["variable","mean_wave_direction","","float",""]
  ]}}`

const waveData = `{"table":{
  "columnNames":["time","mean_wave_direction","significant_wave_height","significant_wave_period"],
  "rows":[
    ["2024-05-01T14:30:00Z",null,1.8,9]
  ]}}`

func fakeUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/erddap/info/gi01sumo-wavss/index.json", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, waveInfo)
	})
	mux.HandleFunc("/erddap/tabledap/gi01sumo-wavss.json", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, waveData)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// setupEnv points every setting at temporary files and freezes the clock.
func setupEnv(t *testing.T, upstream string) string {
	t.Helper()
	dir := t.TempDir()
	stations := fmt.Sprintf(`
upstream:
  url: %s/erddap
stations:
  - id: GI01SUMO
    wmo: "44078"
    sensor_height: 4
    feeds:
      - sensor: WAVSS
        dataset: gi01sumo-wavss
`, upstream)
	stationsPath := filepath.Join(dir, "stations.yaml")
	require.NoError(t, os.WriteFile(stationsPath, []byte(stations), 0o600))

	stagingDir := filepath.Join(dir, "staging")
	t.Setenv("STATIONS_FILE", stationsPath)
	t.Setenv("CREDENTIALS_FILE", filepath.Join(dir, "missing-credentials.yaml"))
	t.Setenv("STAGING_DIR", stagingDir)
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("UPSTREAM_RATE_LIMIT", "0")
	t.Setenv("TRANSFER_TIMEOUT", "2s")

	domain.SetClock(clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 15, 0, 30, 0, time.UTC)))
	t.Cleanup(func() { domain.SetClock(nil) })
	return stagingDir
}

func TestExitCode(t *testing.T) {
	var stderr bytes.Buffer
	assert.Equal(t, 0, exitCode(nil, &stderr))
	assert.Equal(t, 2, exitCode(&exitError{code: 2}, &stderr))
	assert.Empty(t, stderr.String())

	assert.Equal(t, 1, exitCode(&exitError{code: 1, err: errors.New("config: LOOKBACK: bad")}, &stderr))
	assert.Contains(t, stderr.String(), "config: LOOKBACK: bad")

	assert.Equal(t, 1, exitCode(errors.New("unknown flag"), &stderr))
}

func TestRun_DryRunPrintsExchangeFile(t *testing.T) {
	stagingDir := setupEnv(t, fakeUpstream(t).URL)

	var stdout, stderr bytes.Buffer
	code := execute([]string{"run", "--dry-run"}, &stdout, &stderr)

	require.Equal(t, 0, code, stderr.String())
	assert.Equal(t, "<message>\n"+
		"<station>44078</station>\n"+
		"<date>05/01/2024 14:30:00</date>\n"+
		"<missing>-9999</missing>\n"+
		"<met>\n"+
		"    <dompd>9</dompd>\n"+
		"    <mwdir>-9999</mwdir>\n"+
		"    <wvhgt>1.8</wvhgt>\n"+
		"</met>\n"+
		"</message>\n", stdout.String())
	assert.Contains(t, stderr.String(), "SUCCESS")
	assert.Contains(t, stderr.String(), "44078_WAVSS_20240501150000.xml")

	_, err := os.Stat(stagingDir)
	assert.True(t, os.IsNotExist(err))
}

func closedPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func TestRun_UnreachableDestinationIsTotalFailure(t *testing.T) {
	setupEnv(t, fakeUpstream(t).URL)
	t.Setenv("NDBC_PROTOCOL", "ftp")
	t.Setenv("NDBC_HOST", "127.0.0.1")
	t.Setenv("NDBC_PORT", strconv.Itoa(closedPort(t)))
	t.Setenv("NDBC_USERNAME", "buoy")
	t.Setenv("NDBC_PASSWORD", "secret")

	var stdout, stderr bytes.Buffer
	code := execute([]string{"run"}, &stdout, &stderr)

	assert.Equal(t, 1, code)
	assert.Contains(t, stdout.String(), "TOTAL FAILURE")
	assert.Contains(t, stdout.String(), "connection_lost")
}

func TestRun_MissingCredentialsIsConfigError(t *testing.T) {
	setupEnv(t, fakeUpstream(t).URL)

	var stdout, stderr bytes.Buffer
	code := execute([]string{"run"}, &stdout, &stderr)

	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "config: password")
	assert.Empty(t, stdout.String())
}

func TestRun_InvalidSetting(t *testing.T) {
	setupEnv(t, "http://127.0.0.1:1")
	t.Setenv("LOOKBACK", "48h")

	var stdout, stderr bytes.Buffer
	assert.Equal(t, 1, execute([]string{"run", "--dry-run"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "config: LOOKBACK")
}

func TestCheckConfig(t *testing.T) {
	setupEnv(t, "https://erddap.example.org")

	var stdout, stderr bytes.Buffer
	code := execute([]string{"check-config", "--skip-credentials"}, &stdout, &stderr)

	require.Equal(t, 0, code, stderr.String())
	out := stdout.String()
	assert.Contains(t, out, "Upstream: https://erddap.example.org/erddap")
	assert.Contains(t, out, "gi01sumo-wavss")
	assert.Contains(t, out, "dompd,mwdir,wvhgt")
	assert.Contains(t, out, "1 stations, 1 feeds: OK")
}

func TestCleanStaging(t *testing.T) {
	stagingDir := setupEnv(t, "https://erddap.example.org")

	var stdout, stderr bytes.Buffer
	require.Equal(t, 0, execute([]string{"clean-staging"}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "Nothing to clean")

	require.NoError(t, os.MkdirAll(stagingDir, 0o750))
	stdout.Reset()
	require.Equal(t, 0, execute([]string{"clean-staging"}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "Removed")
	_, err := os.Stat(stagingDir)
	assert.True(t, os.IsNotExist(err))
}

func TestRenderSummary(t *testing.T) {
	s := domain.RunSummary{
		RunID:        "run-1",
		Status:       domain.StatusPartialFailure,
		WindowStart:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		WindowEnd:    time.Date(2024, 5, 1, 15, 0, 0, 0, time.UTC),
		RecordsBuilt: 18,
		FilesWritten: 1,
		Feeds: []domain.FeedStats{
			{Station: "44078", Sensor: "WAVSS", Readings: 54, Records: 18, File: "44078_WAVSS_20240501150000.xml"},
			{Station: "44077", Sensor: "METBK1"},
		},
		Failures: []domain.Failure{
			{Kind: domain.KindUpstreamUnavailable, Station: "44077", Sensor: "METBK1", Message: "upstream unavailable: status 503"},
		},
	}

	out := renderSummary(s)
	assert.Contains(t, out, "Run run-1: PARTIAL FAILURE")
	assert.Contains(t, out, "Window: 2024-05-01T12:00:00Z to 2024-05-01T15:00:00Z")
	assert.Contains(t, out, "Records: 18  Files written: 1  Files transferred: 0")
	assert.Contains(t, out, "44078_WAVSS_20240501150000.xml")
	assert.Contains(t, out, "upstream_unavailable")
	assert.Contains(t, out, "44077 METBK1")

	lines := strings.Split(out, "\n")
	assert.Greater(t, len(lines), 8)
}
