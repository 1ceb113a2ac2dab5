package flagx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		allowed []string
		want    []string
	}{
		{
			name:    "separate value",
			args:    []string{"-c", "conf.json", "-a", ":8080"},
			allowed: []string{"-c"},
			want:    []string{"-c", "conf.json"},
		},
		{
			name:    "equals form",
			args:    []string{"-config=alt.json", "-a", ":8080"},
			allowed: []string{"-c", "-config"},
			want:    []string{"-config=alt.json"},
		},
		{
			name:    "unknown flags ignored",
			args:    []string{"-x", "1", "--y=2", "positional"},
			allowed: []string{"-c"},
			want:    []string{},
		},
		{
			name:    "dangling flag kept without value",
			args:    []string{"-l"},
			allowed: []string{"-l"},
			want:    []string{"-l"},
		},
		{
			name:    "next dash token is not a value",
			args:    []string{"-env", "-d", "postgres://x"},
			allowed: []string{"-env"},
			want:    []string{"-env"},
		},
		{
			name:    "several allowed flags keep order",
			args:    []string{"-l", "3", "-c", "conf.json", "-m", "48"},
			allowed: []string{"-m", "-l"},
			want:    []string{"-l", "3", "-m", "48"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FilterArgs(tt.args, tt.allowed))
		})
	}
}

func TestConfigFileFlag(t *testing.T) {
	assert.Equal(t, "a.json", ConfigFileFlag([]string{"-a", ":1", "-c", "a.json"}))
	assert.Equal(t, "b.json", ConfigFileFlag([]string{"-config=b.json"}))
	assert.Equal(t, "", ConfigFileFlag([]string{"-a", ":1"}))
}

func TestEnvFileFlag(t *testing.T) {
	assert.Equal(t, ".env.local", EnvFileFlag([]string{"-env", ".env.local", "-s", "k"}))
	assert.Equal(t, "", EnvFileFlag(nil))
}
