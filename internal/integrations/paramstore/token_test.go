package paramstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type errGetter struct{ err error }

func (g errGetter) GetParameter(context.Context, string) (string, error) { return "", g.err }

func TestToken(t *testing.T) {
	cases := []struct {
		name    string
		value   string
		want    string
		wantErr string
	}{
		{name: "json payload", value: `{"token":"sk-1"}`, want: "sk-1"},
		{name: "bare token", value: "  AIza-raw \n", want: "AIza-raw"},
		{name: "json without token", value: `{"other":"x"}`, wantErr: "empty"},
		{name: "malformed json", value: `{"token":`, wantErr: "unmarshal"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Token(context.Background(), Static{"/app/key": tc.value}, "/app/key")
			if tc.wantErr != "" {
				require.ErrorContains(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestToken_GetterFailures(t *testing.T) {
	_, err := Token(context.Background(), nil, "/app/key")
	require.Error(t, err)

	_, err = Token(context.Background(), Static{}, "  ")
	require.ErrorContains(t, err, "name is empty")

	_, err = Token(context.Background(), errGetter{err: errors.New("access denied")}, "/app/key")
	require.ErrorContains(t, err, "access denied")
}
