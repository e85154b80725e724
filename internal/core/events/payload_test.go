package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/atvirokodosprendimai/activitylog/internal/core/domain"
)

func roundTrip[P Payload](t *testing.T, p P) {
	t.Helper()
	raw, err := Encode(p)
	require.NoError(t, err)
	got, err := Decode[P](raw)
	require.NoError(t, err)
	require.Equal(t, p, got)
}

func TestPayloadRoundTrip(t *testing.T) {
	h := NewHeader(testActor, time.Date(2024, 6, 30, 12, 15, 0, 123000, time.UTC))

	roundTrip(t, CreatedV1{Header: h, Title: "Old"})
	roundTrip(t, Created{Header: h, Name: "Acme", CurrentValues: map[string]string{"name": "Acme"}})
	roundTrip(t, Updated{Header: h, PreviousValues: map[string]string{"name": "A"}, CurrentValues: map[string]string{"name": "B"}})
	roundTrip(t, Deactivated{Header: h})
	roundTrip(t, Activated{Header: h})
	roundTrip(t, ContactLinked{Header: h, RelatedNames: []string{"John Roe"}})
	roundTrip(t, ContactUnlinked{Header: h, RelatedNames: []string{"John Roe"}})
	roundTrip(t, StateIDsAdded{Header: h, Codes: []string{"NY-123", "CA-456"}})
	roundTrip(t, StateIDsRemoved{Header: h, Codes: []string{"NY-123"}})
	roundTrip(t, RolesAssigned{Header: h, Roles: []string{"Admin"}, Count: 1})
	roundTrip(t, RolesRevoked{Header: h, Roles: []string{"Admin"}, Count: 1})
	roundTrip(t, MembersAdded{Header: h, RelatedNames: []string{"A", "B"}, Count: 2})
	roundTrip(t, MembersRemoved{Header: h, RelatedNames: []string{"A"}, Count: 1})
}

func TestPayloadRoundTripKeepsEmptyAndNilCollections(t *testing.T) {
	h := NewHeader(testActor, time.Date(2024, 6, 30, 12, 15, 0, 0, time.UTC))

	roundTrip(t, Created{Header: h, Name: "Acme", CurrentValues: map[string]string{}})
	roundTrip(t, Created{Header: h, Name: "Acme"})
	roundTrip(t, Updated{Header: h, PreviousValues: map[string]string{}, CurrentValues: nil})
	roundTrip(t, ContactLinked{Header: h, RelatedNames: []string{}})
	roundTrip(t, StateIDsAdded{Header: h})
	roundTrip(t, RolesRevoked{Header: h, Roles: []string{}})
	roundTrip(t, MembersAdded{Header: h, RelatedNames: nil})
}

func TestHeaderJSONFieldNames(t *testing.T) {
	raw, err := Encode(Deactivated{Header: NewHeader(testActor, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))})
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	require.Equal(t, testActor.ID.String(), m["actorId"])
	require.Equal(t, "Jane Doe", m["actorFullName"])
	require.Equal(t, "Admin", m["actorRoles"])
	require.Equal(t, "2024-01-01T00:00:00Z", m["occurredAt"])
}

func TestNewHeaderNormalisesToUTC(t *testing.T) {
	loc := time.FixedZone("EST", -5*3600)
	h := NewHeader(domain.Actor{FullName: "X", Roles: []string{"A", "B"}}, time.Date(2024, 1, 1, 7, 0, 0, 0, loc))
	require.Equal(t, time.UTC, h.OccurredAt.Location())
	require.Equal(t, 12, h.OccurredAt.Hour())
	require.Equal(t, "A, B", h.ActorRoles)
}

func TestCreatedTitleUpcaster(t *testing.T) {
	out, err := createdTitleUpcaster{}.Upcast(json.RawMessage(`{"title":"Acme","actorFullName":"Jane"}`))
	require.NoError(t, err)
	require.JSONEq(t, `{"name":"Acme","actorFullName":"Jane"}`, string(out))

	_, err = createdTitleUpcaster{}.Upcast(json.RawMessage(`null`))
	require.Error(t, err)
}
