package flagx

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterArgs(t *testing.T) {
	configFlags := []string{"-c", "-config"}

	tests := []struct {
		name    string
		args    []string
		allowed []string
		want    []string
	}{
		{"separate value", []string{"-c", "conf.json", "-a", ":8080"}, configFlags, []string{"-c", "conf.json"}},
		{"equals form", []string{"-config=alt.json", "-a", ":8080"}, configFlags, []string{"-config=alt.json"}},
		{"order preserved", []string{"-config=first.json", "-c", "second.json", "-d", "postgres://"}, configFlags,
			[]string{"-config=first.json", "-c", "second.json"}},
		{"nothing allowed present", []string{"-d", "postgres://", "-redis=localhost:6379", "positional"}, configFlags, []string{}},
		{"dangling flag", []string{"-c"}, configFlags, []string{"-c"}},
		{"next token is a flag", []string{"-c", "-a"}, configFlags, []string{"-c"}},
		{"equals value starting with dash", []string{"-config=--odd.json"}, configFlags, []string{"-config=--odd.json"}},
		{"server flags subset", []string{"-a", ":8080", "-c", "conf.json", "-jwt-secret", "s3cr3t"}, []string{"-a", "-jwt-secret"},
			[]string{"-a", ":8080", "-jwt-secret", "s3cr3t"}},
		{"empty", []string{}, configFlags, []string{}},
		{"repeated flag", []string{"-c", "one.json", "-c", "two.json"}, []string{"-c"}, []string{"-c", "one.json", "-c", "two.json"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterArgs(tt.args, tt.allowed)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConfigFilePath(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	tests := []struct {
		name string
		args []string
		env  string
		want string
	}{
		{name: "no flags", args: []string{"kajix"}},
		{name: "short flag", args: []string{"kajix", "-c", "/path/short.json"}, want: "/path/short.json"},
		{name: "long flag", args: []string{"kajix", "-config", "/path/long.json"}, want: "/path/long.json"},
		{name: "unrelated flags", args: []string{"kajix", "-a", ":8080", "-d", "postgres://"}},
		{name: "last wins", args: []string{"kajix", "-c", "/path/1.json", "-config", "/path/2.json"}, want: "/path/2.json"},
		{name: "env fallback", args: []string{"kajix", "-a", ":8080"}, env: "/etc/kajix.json", want: "/etc/kajix.json"},
		{name: "flag beats env", args: []string{"kajix", "-c", "/tmp/local.json"}, env: "/etc/kajix.json", want: "/tmp/local.json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(ConfigFileEnv, tt.env)
			os.Args = tt.args
			assert.Equal(t, tt.want, ConfigFilePath())
		})
	}
}
