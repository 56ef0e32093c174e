package env

import (
	"fmt"

	"github.com/joho/godotenv"
)

// LoadDotEnv reads a .env file into a plain map, without touching the
// process environment.
func LoadDotEnv(path string) (map[string]string, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("loading env file %s: %w", path, err)
	}
	return values, nil
}

// LoadDotEnv merges a .env file into the resolver's variable table, so its
// keys resolve as plain {{NAME}} placeholders.
func (r *Resolver) LoadDotEnv(path string) error {
	values, err := LoadDotEnv(path)
	if err != nil {
		return err
	}
	vars := make(map[string]any, len(values))
	for k, v := range values {
		vars[k] = v
	}
	r.SetVariables(vars)
	return nil
}
