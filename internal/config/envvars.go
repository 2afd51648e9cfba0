package config

import (
	"strings"
	"unicode"

	"github.com/fatih/structs"
)

// GetEnvVars returns the environment variable key for every settable config
// field, in struct order. Used by the command line help text so the list never
// drifts from the struct itself.
func GetEnvVars() []string {
	config := Trampoline{}
	fields := structs.Fields(config)

	return getEnvVarsFromStruct("TRAMPOLINE_", fields)
}

func getEnvVarsFromStruct(prefix string, fields []*structs.Field) []string {
	vars := []string{}

	for _, field := range fields {
		// An explicit envconfig tag names the variable outright; these are the
		// keys borrowed from the surrounding CI system rather than our own prefix.
		if alt := field.Tag("envconfig"); alt != "" {
			vars = append(vars, strings.ToUpper(alt))
			continue
		}

		vars = append(vars, prefix+toScreamingSnake(field.Name()))
	}

	return vars
}

// toScreamingSnake mirrors envconfig's split_words conversion for the plain
// camel case field names used in this package.
func toScreamingSnake(name string) string {
	var builder strings.Builder

	for index, char := range name {
		if unicode.IsUpper(char) && index > 0 && !unicode.IsUpper(rune(name[index-1])) {
			builder.WriteByte('_')
		}

		builder.WriteRune(unicode.ToUpper(char))
	}

	return builder.String()
}
