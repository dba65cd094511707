package conf

import (
	"fmt"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/file"
)

// LoadEnvFile reads KEY=VALUE pairs from a dotenv file.
func LoadEnvFile(path string) (map[string]string, error) {
	b, err := file.Provider(path).ReadBytes()
	if err != nil {
		return nil, err
	}

	values, err := dotenv.Parser().Unmarshal(b)
	if err != nil {
		return nil, fmt.Errorf("invalid env file %s: %w", path, err)
	}

	env := make(map[string]string, len(values))
	for k, v := range values {
		env[k] = fmt.Sprint(v)
	}

	return env, nil
}
