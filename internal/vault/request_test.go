// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package vault

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Unix(1700000000, 999_000_000).In(time.FixedZone("CET", 3600))

func scenarioCredentials() Credentials {
	return Credentials{
		ConfigurationID:       "cfg1",
		MerchantTransactionID: "m1",
		Segment:               "s1",
		Retention:             RetentionForever,
		Secret:                "abc",
	}
}

const scenarioBody = `{"id":42,"method":"get_session","params":[{"utcTimestamp":"1700000000","configurationId":"cfg1","mtid":"m1","retention":"forever","segment":"s1"}]}`

func TestCanonicalMatchesWireFormat(t *testing.T) {
	req := NewSessionRequest(42, fixedNow, scenarioCredentials())

	body, err := req.Canonical()
	require.NoError(t, err)
	require.Equal(t, scenarioBody, string(body))
}

func TestCanonicalDoesNotEscapeHTML(t *testing.T) {
	creds := scenarioCredentials()
	creds.Segment = "a&b<c>"
	body, err := NewSessionRequest(1, fixedNow, creds).Canonical()
	require.NoError(t, err)
	require.Contains(t, string(body), `"segment":"a&b<c>"`)
}

func TestTimestampIsWholeUTCSeconds(t *testing.T) {
	req := NewSessionRequest(1, fixedNow, scenarioCredentials())
	require.Equal(t, "1700000000", req.UTCTimestamp)
	require.Equal(t, MethodGetSession, req.Method)
}

func TestSessionRequestRoundTrip(t *testing.T) {
	cases := []SessionRequest{
		NewSessionRequest(1, fixedNow, scenarioCredentials()),
		NewSessionRequest(MaxAjaxID, time.Unix(0, 0), Credentials{
			ConfigurationID:       "ü-config",
			MerchantTransactionID: `quote"d`,
			Segment:               "",
			Retention:             RetentionBigYear,
		}),
	}
	for i, want := range cases {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			body, err := want.Canonical()
			require.NoError(t, err)

			got, err := ParseSessionRequest(body)
			require.NoError(t, err)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSessionRequestJSONMarshalerUsesEnvelope(t *testing.T) {
	req := NewSessionRequest(42, fixedNow, scenarioCredentials())
	body, err := json.Marshal(req)
	require.NoError(t, err)
	require.JSONEq(t, scenarioBody, string(body))

	var back SessionRequest
	require.NoError(t, json.Unmarshal(body, &back))
	require.Equal(t, req, back)
}

func TestParseSessionRequestRejectsMalformed(t *testing.T) {
	for name, body := range map[string]string{
		"no params":      `{"id":1,"method":"get_session","params":[]}`,
		"two params":     `{"id":1,"method":"get_session","params":[{},{}]}`,
		"unknown field":  `{"id":1,"method":"get_session","params":[{"bogus":1}]}`,
		"not json":       `{`,
		"id wrong type":  `{"id":"1","method":"get_session","params":[{}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseSessionRequest([]byte(body))
			require.Error(t, err)
		})
	}
}

func TestRandomAjaxIDRange(t *testing.T) {
	for i := 0; i < 10_000; i++ {
		id := RandomAjaxID()
		require.Greater(t, id, 0)
		require.LessOrEqual(t, id, MaxAjaxID)
	}
}

func TestCredentialsValidate(t *testing.T) {
	require.NoError(t, scenarioCredentials().Validate())

	creds := scenarioCredentials()
	creds.Secret = ""
	creds.Segment = ""
	err := creds.Validate()
	require.ErrorIs(t, err, ErrInvalidRequest)
	require.Contains(t, err.Error(), "Secret")
	require.Contains(t, err.Error(), "Segment")
}

func TestSecretIsMasked(t *testing.T) {
	creds := scenarioCredentials()
	require.Equal(t, "[REDACTED]", creds.Secret.String())
	require.NotContains(t, fmt.Sprintf("%v %+v %#v", creds, creds, creds), "abc")

	out, err := json.Marshal(struct{ Secret Secret }{Secret: "abc"})
	require.NoError(t, err)
	require.JSONEq(t, `{"Secret":"[REDACTED]"}`, string(out))
}
