// Package config loads turnstream.yaml.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
)

// envRef matches ${VAR}, ${VAR:-default} and ${VAR:?message}.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::([-?])([^}]*))?\}`)

// MissingEnvError reports a ${VAR:?message} reference to an unset or empty variable.
type MissingEnvError struct {
	Name    string
	Message string
}

func (e *MissingEnvError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("environment variable %s is required", e.Name)
	}
	return fmt.Sprintf("environment variable %s is required: %s", e.Name, e.Message)
}

// ExpandEnv substitutes environment references in input.
//
// An unset or empty ${VAR} expands to "" and ${VAR:-default} to default.
// ${VAR:?message} fails with a *MissingEnvError; every missing
// required variable is reported, joined.
func ExpandEnv(input string) (string, error) {
	var errs []error
	out := envRef.ReplaceAllStringFunc(input, func(ref string) string {
		m := envRef.FindStringSubmatch(ref)
		name, op, arg := m[1], m[2], m[3]

		if v := os.Getenv(name); v != "" {
			return v
		}
		switch op {
		case "-":
			return arg
		case "?":
			errs = append(errs, &MissingEnvError{Name: name, Message: arg})
		}
		return ""
	})
	if len(errs) > 0 {
		return "", errors.Join(errs...)
	}
	return out, nil
}
