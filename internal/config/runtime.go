package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// File names produced by the generator next to the backend.
const (
	RuntimeFile  = "config.yaml"
	EndpointFile = "endpoint_config.yaml"
	DBFile       = "db_config.yaml"
	UsersFile    = "user_roles.yaml"
)

// BrokerConfig describes one message broker connection.
// Type is one of MQTT, AMQP or REDIS.
type BrokerConfig struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	VHost    string `yaml:"vhost"`
	Exchange string `yaml:"exchange"`
	DB       int    `yaml:"db"`
	SSL      bool   `yaml:"ssl"`
}

// ListenConfig is a host/port pair.
type ListenConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns host:port.
func (l ListenConfig) Addr() string {
	return fmt.Sprintf("%s:%d", l.Host, l.Port)
}

// TopicConfig binds a topic to the broker that carries it and the entity attributes
// that may be forwarded to browsers.
type TopicConfig struct {
	Topic      string   `yaml:"topic"`
	Broker     string   `yaml:"broker"`
	Attributes []string `yaml:"attributes"`
}

// RuntimeConfig mirrors the generated config.yaml.
type RuntimeConfig struct {
	Brokers      []BrokerConfig `yaml:"brokers"`
	WebSocket    ListenConfig   `yaml:"websocket"`
	API          ListenConfig   `yaml:"api"`
	TopicConfigs []TopicConfig  `yaml:"topic_configs"`
}

// RestAPIConfig is one named upstream REST API from endpoint_config.yaml.
type RestAPIConfig struct {
	Name     string            `yaml:"name"`
	Host     string            `yaml:"host"`
	Port     int               `yaml:"port"`
	Scheme   string            `yaml:"scheme"`
	BasePath string            `yaml:"base_path"`
	Headers  map[string]string `yaml:"headers"`
}

// EndpointConfig mirrors endpoint_config.yaml.
type EndpointConfig struct {
	RestAPIs []RestAPIConfig `yaml:"rest_apis"`
}

// DBConnConfig is one database connection from db_config.yaml.
type DBConnConfig struct {
	Name       string `yaml:"name"`
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	AuthSource string `yaml:"authSource"`
	SSLMode    string `yaml:"sslmode"`
	// Databases restricts the databases a request may name. Empty allows any.
	Databases []string `yaml:"databases"`
}

// DBConfig mirrors db_config.yaml.
type DBConfig struct {
	MySQL    []DBConnConfig `yaml:"mysql"`
	Postgres []DBConnConfig `yaml:"postgres"`
	Mongo    []DBConnConfig `yaml:"mongo"`
}

// UserConfig is one application user. Password holds a bcrypt hash.
type UserConfig struct {
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	Roles    []string `yaml:"roles"`
}

// UsersConfig mirrors user_roles.yaml.
type UsersConfig struct {
	Users []UserConfig `yaml:"users"`
}

// Runtime bundles every generated backend file.
type Runtime struct {
	RuntimeConfig
	Endpoints EndpointConfig
	Databases DBConfig
	Users     UsersConfig
}

// LoadRuntime reads the generated YAML files from dir. config.yaml is required,
// the other files are optional and yield empty sections when absent.
func LoadRuntime(dir string) (*Runtime, error) {
	rt := &Runtime{}
	if err := readYAML(filepath.Join(dir, RuntimeFile), &rt.RuntimeConfig, true); err != nil {
		return nil, err
	}
	if err := readYAML(filepath.Join(dir, EndpointFile), &rt.Endpoints, false); err != nil {
		return nil, err
	}
	if err := readYAML(filepath.Join(dir, DBFile), &rt.Databases, false); err != nil {
		return nil, err
	}
	if err := readYAML(filepath.Join(dir, UsersFile), &rt.Users, false); err != nil {
		return nil, err
	}
	rt.applyDefaults()
	if err := rt.Validate(); err != nil {
		return nil, err
	}
	return rt, nil
}

func (rt *Runtime) applyDefaults() {
	if rt.WebSocket.Host == "" {
		rt.WebSocket.Host = "0.0.0.0"
	}
	if rt.WebSocket.Port == 0 {
		rt.WebSocket.Port = 8765
	}
	if rt.API.Host == "" {
		rt.API.Host = "0.0.0.0"
	}
	if rt.API.Port == 0 {
		rt.API.Port = 8080
	}
	for i := range rt.Databases.Mongo {
		if rt.Databases.Mongo[i].AuthSource == "" {
			rt.Databases.Mongo[i].AuthSource = "admin"
		}
	}
	for i := range rt.Databases.MySQL {
		if rt.Databases.MySQL[i].Port == 0 {
			rt.Databases.MySQL[i].Port = 3306
		}
	}
	for i := range rt.Databases.Postgres {
		if rt.Databases.Postgres[i].Port == 0 {
			rt.Databases.Postgres[i].Port = 5432
		}
	}
}

// Validate checks cross references between sections.
func (rt *Runtime) Validate() error {
	brokers := make(map[string]bool, len(rt.Brokers))
	for _, b := range rt.Brokers {
		if b.Name == "" {
			return errors.New("broker without name")
		}
		if brokers[b.Name] {
			return fmt.Errorf("duplicate broker %q", b.Name)
		}
		brokers[b.Name] = true
	}
	for _, tc := range rt.TopicConfigs {
		if tc.Topic == "" {
			return errors.New("topic config without topic")
		}
		if !brokers[tc.Broker] {
			return fmt.Errorf("topic %q references unknown broker %q", tc.Topic, tc.Broker)
		}
	}
	return nil
}

// RestAPI returns the named REST API entry.
func (rt *Runtime) RestAPI(name string) (RestAPIConfig, bool) {
	for _, api := range rt.Endpoints.RestAPIs {
		if api.Name == name {
			return api, true
		}
	}
	return RestAPIConfig{}, false
}

// AllowedHosts lists the hosts of every configured REST API, lower-cased.
func (rt *Runtime) AllowedHosts() []string {
	hosts := make([]string, 0, len(rt.Endpoints.RestAPIs))
	for _, api := range rt.Endpoints.RestAPIs {
		hosts = append(hosts, strings.ToLower(api.Host))
	}
	return hosts
}

// TopicAttributes maps every topic to its allowed attribute names.
func (rt *Runtime) TopicAttributes() map[string][]string {
	out := make(map[string][]string, len(rt.TopicConfigs))
	for _, tc := range rt.TopicConfigs {
		out[tc.Topic] = append(out[tc.Topic], tc.Attributes...)
	}
	return out
}

func readYAML(path string, out any, required bool) error {
	b, err := os.ReadFile(path)
	if err != nil {
		if !required && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if err := yaml.Unmarshal(b, out); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return nil
}
