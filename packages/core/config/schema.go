package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/tidwall/jsonc"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// settingsSchema describes the accepted settings document shape. Unknown
// top-level keys are rejected so typos surface in `validate` instead of
// being silently ignored.
const settingsSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "timeoutMs": { "type": "integer" },
    "followRedirect": { "type": "boolean" },
    "proxy": { "type": "string" },
    "excludeHostsForProxy": {
      "type": "array",
      "items": { "type": "string", "minLength": 1 }
    },
    "proxyStrictSSL": { "type": "boolean" },
    "rememberCookiesForSubsequentRequests": { "type": "boolean" },
    "decodeEscapedUnicodeCharacters": { "type": "boolean" },
    "strictSSL": { "type": "boolean" },
    "cookieFile": { "type": "string" },
    "hostCertificates": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "additionalProperties": false,
        "properties": {
          "cert": { "type": "string" },
          "key": { "type": "string" },
          "pfx": { "type": "string" },
          "passphrase": { "type": "string" }
        }
      }
    }
  }
}`

// ValidateSettingsFile checks the settings document at path against the
// settings schema. It accepts the same formats as LoadSettings.
func ValidateSettingsFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var doc any
	if isYAMLFile(path) {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
	} else {
		if err := json.Unmarshal(jsonc.ToJSON(data), &doc); err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	return ValidateSettings(doc)
}

// ValidateSettings checks an already-decoded settings document against the
// settings schema.
func ValidateSettings(doc any) error {
	schemaLoader := gojsonschema.NewStringLoader(settingsSchema)
	documentLoader := gojsonschema.NewGoLoader(doc)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if result.Valid() {
		return nil
	}

	var problems []string
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}
	return fmt.Errorf("invalid settings: %s", strings.Join(problems, "; "))
}
