package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/ndbc-transfer/internal/domain"
)

const stationsYAML = `
upstream:
  url: https://erddap.example.org/erddap
stations:
  - id: GI01SUMO
    wmo: 44078
    deployment: D0009
    sensor_height: 4.05
    feeds:
      - sensor: METBK1
        dataset: ooi-gi01sumo-sbd11-06-metbka000
        constants:
          - tag: dp001
            value: 0.95
          - tag: fm64k1
            value: 7
      - sensor: wavss
        dataset: ooi-gi01sumo-sbd12-05-wavssa000
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func requireConfigError(t *testing.T, err error, key string) {
	t.Helper()
	require.Error(t, err)
	var cfgErr *Error
	require.True(t, errors.As(err, &cfgErr), "want *config.Error, got %T", err)
	assert.Equal(t, key, cfgErr.Key)
}

func TestLoadStations(t *testing.T) {
	path := writeFile(t, "stations.yaml", stationsYAML)

	s, err := LoadStations(path, domain.DefaultMapper())
	require.NoError(t, err)

	assert.Equal(t, "https://erddap.example.org/erddap", s.UpstreamURL)
	require.Len(t, s.Stations, 1)
	st := s.Stations[0]
	assert.Equal(t, "GI01SUMO", st.ID)
	assert.Equal(t, "44078", st.WMO)
	assert.Equal(t, "D0009", st.Deployment)
	assert.InDelta(t, 4.05, st.SensorHeight, 1e-9)
	require.Len(t, st.Feeds, 2)
	assert.Equal(t, domain.SensorMETBK1, st.Feeds[0].Sensor)
	assert.Equal(t, []domain.Constant{{Tag: "dp001", Value: 0.95}, {Tag: "fm64k1", Value: 7}}, st.Feeds[0].Constants)
	assert.Equal(t, domain.SensorWAVSS, st.Feeds[1].Sensor)
	assert.Equal(t, 2, s.Feeds())
}

func TestLoadStations_URLFromEnv(t *testing.T) {
	t.Setenv("ERDDAP_URL", "http://localhost:8080/erddap")
	path := writeFile(t, "stations.yaml", stationsYAML)

	s, err := LoadStations(path, domain.DefaultMapper())
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/erddap", s.UpstreamURL)
}

func TestLoadStations_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantKey string
	}{
		{"no url", "stations: [{id: A, wmo: '1', feeds: [{sensor: METBK1, dataset: d}]}]", "upstream.url"},
		{"relative url", "upstream: {url: erddap}\nstations: [{id: A, wmo: '1', feeds: [{sensor: METBK1, dataset: d}]}]", "upstream.url"},
		{"no stations", "upstream: {url: 'http://e/erddap'}", "stations"},
		{"no wmo", "upstream: {url: 'http://e/erddap'}\nstations: [{id: A, feeds: [{sensor: METBK1, dataset: d}]}]", "stations[0].wmo"},
		{"no feeds", "upstream: {url: 'http://e/erddap'}\nstations: [{id: A, wmo: '1'}]", "stations[0].feeds"},
		{"unknown sensor", "upstream: {url: 'http://e/erddap'}\nstations: [{id: A, wmo: '1', feeds: [{sensor: CTDBP, dataset: d}]}]", "stations[0].feeds[0].sensor"},
		{"no dataset", "upstream: {url: 'http://e/erddap'}\nstations: [{id: A, wmo: '1', feeds: [{sensor: METBK1}]}]", "stations[0].feeds[0].dataset"},
		{"blank constant tag", "upstream: {url: 'http://e/erddap'}\nstations: [{id: A, wmo: '1', feeds: [{sensor: METBK1, dataset: d, constants: [{tag: '', value: 1}]}]}]", "stations[0].feeds[0].constants[0].tag"},
		{"constant tag with markup", "upstream: {url: 'http://e/erddap'}\nstations: [{id: A, wmo: '1', feeds: [{sensor: METBK1, dataset: d, constants: [{tag: fm64k1, value: 7}, {tag: 'dp 001</met>', value: 1}]}]}]", "stations[0].feeds[0].constants[1].tag"},
		{"constant tag with leading digit", "upstream: {url: 'http://e/erddap'}\nstations: [{id: A, wmo: '1', feeds: [{sensor: METBK1, dataset: d, constants: [{tag: 1dp, value: 1}]}]}]", "stations[0].feeds[0].constants[0].tag"},
		{"duplicate feed", "upstream: {url: 'http://e/erddap'}\nstations: [{id: A, wmo: '1', feeds: [{sensor: METBK1, dataset: d}, {sensor: METBK1, dataset: e}]}]", "stations[0].feeds[1]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadStations(writeFile(t, "stations.yaml", tt.yaml), domain.DefaultMapper())
			requireConfigError(t, err, tt.wantKey)
		})
	}
}

func TestLoadStations_MissingFile(t *testing.T) {
	_, err := LoadStations(filepath.Join(t.TempDir(), "absent.yaml"), domain.DefaultMapper())
	requireConfigError(t, err, "STATIONS_FILE")
}

func TestLoadCredentials_FTP(t *testing.T) {
	path := writeFile(t, "credentials.yaml", "host: ftp.ndbc.example\nusername: buoy\npassword: secret\nremote_dir: /incoming\n")

	c, err := LoadCredentials(path)
	require.NoError(t, err)
	assert.Equal(t, ProtocolFTP, c.Protocol)
	assert.Equal(t, 21, c.Port)
	assert.Equal(t, "ftp.ndbc.example:21", c.Addr())
	assert.Equal(t, "/incoming", c.RemoteDir)
}

func TestLoadCredentials_EnvOverrides(t *testing.T) {
	path := writeFile(t, "credentials.yaml", "protocol: sftp\nhost: sftp.ndbc.example\nusername: buoy\npassword: from-file\n")
	t.Setenv("NDBC_PASSWORD", "from-env")
	t.Setenv("NDBC_PORT", "2222")

	c, err := LoadCredentials(path)
	require.NoError(t, err)
	assert.Equal(t, ProtocolSFTP, c.Protocol)
	assert.Equal(t, "from-env", c.Password)
	assert.Equal(t, 2222, c.Port)
}

func TestLoadCredentials_EnvOnly(t *testing.T) {
	t.Setenv("NDBC_HOST", "ftp.ndbc.example")
	t.Setenv("NDBC_USERNAME", "buoy")
	t.Setenv("NDBC_PASSWORD", "secret")

	c, err := LoadCredentials(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "ftp.ndbc.example", c.Host)
}

func TestLoadCredentials_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantKey string
	}{
		{"bad protocol", "protocol: scp\nhost: h\nusername: u\npassword: p\n", "protocol"},
		{"no host", "username: u\npassword: p\n", "host"},
		{"no username", "host: h\npassword: p\n", "username"},
		{"ftp without password", "host: h\nusername: u\n", "password"},
		{"sftp without secret", "protocol: sftp\nhost: h\nusername: u\n", "password"},
		{"sftp missing key file", "protocol: sftp\nhost: h\nusername: u\nprivate_key_file: /nonexistent/id_ed25519\n", "private_key_file"},
		{"port range", "host: h\nusername: u\npassword: p\nport: 70000\n", "port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadCredentials(writeFile(t, "credentials.yaml", tt.yaml))
			requireConfigError(t, err, tt.wantKey)
		})
	}
}
