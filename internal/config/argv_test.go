package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseArgv(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []string
		wantErr string
	}{
		{name: "empty", input: "", want: nil},
		{name: "simple", input: "arecord -f S16_LE {output}", want: []string{"arecord", "-f", "S16_LE", "{output}"}},
		{name: "quoted spaces", input: `ffmpeg -f avfoundation -i ":Built-in Microphone" {output}`, want: []string{"ffmpeg", "-f", "avfoundation", "-i", ":Built-in Microphone", "{output}"}},
		{name: "single quote keeps backslash", input: `rec 'C:\mic' {output}`, want: []string{"rec", `C:\mic`, "{output}"}},
		{name: "escaped space", input: `rec my\ mic {output}`, want: []string{"rec", "my mic", "{output}"}},
		{name: "empty quoted argument", input: `rec "" {output}`, want: []string{"rec", "", "{output}"}},
		{name: "leading comment", input: `# arecord {output}`, want: nil},
		{name: "unterminated quote", input: `rec "oops`, wantErr: "unterminated quote"},
		{name: "unterminated escape", input: `rec hello\`, wantErr: "unterminated escape"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseArgv(tc.input)
			if tc.wantErr != "" {
				require.Error(t, err)
				require.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestCommandConfigUnmarshalText(t *testing.T) {
	var cmd CommandConfig
	require.NoError(t, cmd.UnmarshalText([]byte("  pw-record --rate 16000 {output} ")))
	require.Equal(t, "pw-record --rate 16000 {output}", cmd.Raw)
	require.Equal(t, []string{"pw-record", "--rate", "16000", "{output}"}, cmd.Argv)

	require.Error(t, cmd.UnmarshalText([]byte(`rec "broken`)))
}
