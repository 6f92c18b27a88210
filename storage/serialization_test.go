// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package storage

import (
	"testing"
	"time"

	"github.com/poiesic/triage/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordSerialization_PreservesStageHistory(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	rec := core.NewProcessingRecord(core.Message{
		ID:         "msg-1",
		Sender:     "billing@vendor.example",
		Subject:    "Invoice INV-204",
		ReceivedAt: now.Add(-time.Hour),
	}, "run-a", now)
	rec.Facts = core.Facts{core.FactInvoiceNumber: {"INV-204"}}
	require.NoError(t, rec.Advance(core.StageClassified, now.Add(time.Second)))

	data, err := MarshalRecord(rec)
	require.NoError(t, err)

	got, err := UnmarshalRecord(data)
	require.NoError(t, err)

	assert.Equal(t, core.StageClassified, got.Stage)
	assert.Len(t, got.Transitions, 2)
	assert.Equal(t, "INV-204", got.Facts[core.FactInvoiceNumber][0])
	assert.True(t, got.ClaimedAt.Equal(now))
}

func TestUnmarshalRecord_NilFactsBecomeEmpty(t *testing.T) {
	got, err := UnmarshalRecord([]byte(`{"message_id":"m","stage":"ingested"}`))
	require.NoError(t, err)
	assert.NotNil(t, got.Facts)
}

func TestUnmarshal_Garbage(t *testing.T) {
	_, err := UnmarshalRecord([]byte("not json"))
	assert.ErrorIs(t, err, ErrSerializationFailed)

	_, err = UnmarshalEntry([]byte("{"))
	assert.ErrorIs(t, err, ErrSerializationFailed)

	_, err = UnmarshalLease([]byte("["))
	assert.ErrorIs(t, err, ErrSerializationFailed)
}
