package configparser

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var ErrNoFilePath = errors.New("no file path provided")

// LoadAndParseYaml loads .env (if present) and the YAML file into the environment,
// then fills cfg from `env` / `default` struct tags.
// A missing YAML file is not an error: the environment and defaults are enough.
func LoadAndParseYaml(filepath string, cfg any) error {
	// .env is optional, just like in local development
	_ = godotenv.Load()

	if err := LoadYamlFile(filepath); err != nil && !errors.Is(err, os.ErrNotExist) && !errors.Is(err, ErrNoFilePath) {
		return err
	}

	return ParseEnv(cfg)
}

// LoadYamlFile reads a YAML file and loads variables into the environment.
// Nested keys are joined with "_" and upper-cased: server.port -> SERVER_PORT.
// Variables that are already set are never overridden.
func LoadYamlFile(filepath string) error {
	if filepath == "" {
		return ErrNoFilePath
	}

	data, err := os.ReadFile(filepath)
	if err != nil {
		return fmt.Errorf("could not open YAML file: %w", err)
	}

	var root map[string]any
	if err := yaml.Unmarshal(data, &root); err != nil {
		return fmt.Errorf("error reading YAML file: %w", err)
	}

	flat := make(map[string]string)
	flatten("", root, flat)

	for key, value := range flat {
		if os.Getenv(key) != "" {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("could not set env var %s: %w", key, err)
		}
	}

	return nil
}

func flatten(prefix string, node map[string]any, out map[string]string) {
	for k, v := range node {
		key := strings.ToUpper(k)
		if prefix != "" {
			key = prefix + "_" + key
		}

		switch val := v.(type) {
		case map[string]any:
			flatten(key, val, out)
		case nil:
			// empty values are sections without keys
		default:
			out[key] = substitute(fmt.Sprint(val))
		}
	}
}

// substitute handles ${VAR:-default} values
func substitute(value string) string {
	if !strings.HasPrefix(value, "${") || !strings.HasSuffix(value, "}") {
		return value
	}

	inner := value[2 : len(value)-1]
	name, def, found := strings.Cut(inner, ":-")
	if envValue := os.Getenv(strings.TrimSpace(name)); envValue != "" {
		return envValue
	}
	if found {
		return strings.TrimSpace(def)
	}
	return ""
}
