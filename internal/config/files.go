package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/couchcryptid/ndbc-transfer/internal/domain"
)

// constantTag matches the element names an exchange file may carry.
var constantTag = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9]*$`)

// Stations is the parsed stations file.
type Stations struct {
	UpstreamURL string
	Stations    []domain.Station
}

// Feeds returns the number of configured feeds across all stations.
func (s *Stations) Feeds() int {
	n := 0
	for _, st := range s.Stations {
		n += len(st.Feeds)
	}
	return n
}

type stationsFile struct {
	Upstream struct {
		URL string `mapstructure:"url"`
	} `mapstructure:"upstream"`
	Stations []stationEntry `mapstructure:"stations"`
}

type stationEntry struct {
	ID           string      `mapstructure:"id"`
	WMO          string      `mapstructure:"wmo"`
	Deployment   string      `mapstructure:"deployment"`
	SensorHeight float64     `mapstructure:"sensor_height"`
	Feeds        []feedEntry `mapstructure:"feeds"`
}

type feedEntry struct {
	Sensor    string          `mapstructure:"sensor"`
	Dataset   string          `mapstructure:"dataset"`
	Constants []constantEntry `mapstructure:"constants"`
}

type constantEntry struct {
	Tag   string  `mapstructure:"tag"`
	Value float64 `mapstructure:"value"`
}

// LoadStations reads and validates the stations file. Sensor types must be
// known to mapper.
func LoadStations(path string, mapper *domain.Mapper) (*Stations, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.BindEnv("upstream.url", "ERDDAP_URL"); err != nil {
		return nil, fmt.Errorf("bind ERDDAP_URL: %w", err)
	}
	if err := v.ReadInConfig(); err != nil {
		return nil, &Error{Key: "STATIONS_FILE", Reason: err.Error()}
	}

	var raw stationsFile
	if err := v.Unmarshal(&raw); err != nil {
		return nil, &Error{Key: "STATIONS_FILE", Reason: fmt.Sprintf("decode %s: %v", path, err)}
	}
	raw.Upstream.URL = v.GetString("upstream.url")

	return raw.validate(mapper)
}

func (f *stationsFile) validate(mapper *domain.Mapper) (*Stations, error) {
	u, err := url.Parse(f.Upstream.URL)
	if f.Upstream.URL == "" || err != nil || u.Scheme == "" || u.Host == "" {
		return nil, &Error{Key: "upstream.url", Reason: fmt.Sprintf("must be an absolute URL, got %q", f.Upstream.URL)}
	}
	if len(f.Stations) == 0 {
		return nil, &Error{Key: "stations", Reason: "at least one station is required"}
	}

	out := &Stations{UpstreamURL: f.Upstream.URL}
	seen := make(map[string]bool)
	for i, s := range f.Stations {
		key := fmt.Sprintf("stations[%d]", i)
		switch {
		case s.ID == "":
			return nil, &Error{Key: key + ".id", Reason: "required"}
		case s.WMO == "":
			return nil, &Error{Key: key + ".wmo", Reason: "required"}
		case s.SensorHeight < 0:
			return nil, &Error{Key: key + ".sensor_height", Reason: "must not be negative"}
		case len(s.Feeds) == 0:
			return nil, &Error{Key: key + ".feeds", Reason: "at least one feed is required"}
		}

		st := domain.Station{
			ID:           s.ID,
			WMO:          s.WMO,
			Deployment:   s.Deployment,
			SensorHeight: s.SensorHeight,
		}
		for j, fe := range s.Feeds {
			fkey := fmt.Sprintf("%s.feeds[%d]", key, j)
			sensor := strings.ToUpper(strings.TrimSpace(fe.Sensor))
			if !mapper.Known(sensor) {
				return nil, &Error{Key: fkey + ".sensor", Reason: fmt.Sprintf("unknown sensor type %q", fe.Sensor)}
			}
			if fe.Dataset == "" {
				return nil, &Error{Key: fkey + ".dataset", Reason: "required"}
			}
			id := s.WMO + "/" + sensor
			if seen[id] {
				return nil, &Error{Key: fkey, Reason: fmt.Sprintf("duplicate feed %s", id)}
			}
			seen[id] = true

			feed := domain.Feed{Sensor: sensor, Dataset: fe.Dataset}
			for k, c := range fe.Constants {
				ckey := fmt.Sprintf("%s.constants[%d].tag", fkey, k)
				if c.Tag == "" {
					return nil, &Error{Key: ckey, Reason: "required"}
				}
				if !constantTag.MatchString(c.Tag) {
					return nil, &Error{Key: ckey, Reason: fmt.Sprintf("%q is not a valid element name", c.Tag)}
				}
				feed.Constants = append(feed.Constants, domain.Constant{Tag: c.Tag, Value: c.Value})
			}
			st.Feeds = append(st.Feeds, feed)
		}
		out.Stations = append(out.Stations, st)
	}
	return out, nil
}

// Transfer protocols.
const (
	ProtocolFTP  = "ftp"
	ProtocolSFTP = "sftp"
)

// Credentials locate and authenticate against the destination server.
type Credentials struct {
	Protocol       string `mapstructure:"protocol"`
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Username       string `mapstructure:"username"`
	Password       string `mapstructure:"password"`
	PrivateKeyFile string `mapstructure:"private_key_file"`
	Passphrase     string `mapstructure:"passphrase"`
	KnownHostsFile string `mapstructure:"known_hosts_file"`
	RemoteDir      string `mapstructure:"remote_dir"`
}

// Addr returns host:port.
func (c Credentials) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

var credentialKeys = []string{
	"protocol", "host", "port", "username", "password",
	"private_key_file", "passphrase", "known_hosts_file", "remote_dir",
}

func setCredentialDefaults(v *viper.Viper) {
	v.SetDefault("protocol", ProtocolFTP)
	v.SetDefault("port", 0)
	v.SetDefault("remote_dir", "")
}

// LoadCredentials reads the credentials file. Every key can be overridden by
// an NDBC_-prefixed environment variable (NDBC_PASSWORD, ...); the file may
// be absent when the environment supplies everything.
func LoadCredentials(path string) (*Credentials, error) {
	v := viper.New()
	setCredentialDefaults(v)
	v.SetEnvPrefix("NDBC")
	for _, k := range credentialKeys {
		if err := v.BindEnv(k); err != nil {
			return nil, fmt.Errorf("bind %s: %w", k, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil && !isNotExist(err) {
			return nil, &Error{Key: "CREDENTIALS_FILE", Reason: err.Error()}
		}
	}

	var c Credentials
	if err := v.Unmarshal(&c); err != nil {
		return nil, &Error{Key: "CREDENTIALS_FILE", Reason: fmt.Sprintf("decode %s: %v", path, err)}
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func isNotExist(err error) bool {
	var nf viper.ConfigFileNotFoundError
	return errors.Is(err, fs.ErrNotExist) || errors.As(err, &nf)
}

func (c *Credentials) validate() error {
	c.Protocol = strings.ToLower(strings.TrimSpace(c.Protocol))
	switch c.Protocol {
	case ProtocolFTP:
		if c.Port == 0 {
			c.Port = 21
		}
		if c.Password == "" {
			return &Error{Key: "password", Reason: "required for ftp"}
		}
	case ProtocolSFTP:
		if c.Port == 0 {
			c.Port = 22
		}
		if c.Password == "" && c.PrivateKeyFile == "" {
			return &Error{Key: "password", Reason: "sftp needs a password or private_key_file"}
		}
		if c.PrivateKeyFile != "" {
			if _, err := os.Stat(c.PrivateKeyFile); err != nil {
				return &Error{Key: "private_key_file", Reason: err.Error()}
			}
		}
	default:
		return &Error{Key: "protocol", Reason: fmt.Sprintf("must be ftp or sftp, got %q", c.Protocol)}
	}

	switch {
	case c.Host == "":
		return &Error{Key: "host", Reason: "required"}
	case c.Username == "":
		return &Error{Key: "username", Reason: "required"}
	case c.Port < 1 || c.Port > 65535:
		return &Error{Key: "port", Reason: fmt.Sprintf("out of range: %d", c.Port)}
	}
	return nil
}
