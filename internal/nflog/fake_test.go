// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package nflog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeChannel_EmitAndReceive(t *testing.T) {
	ch := NewFakeChannel(4)
	ch.Emit(0, "dq_0")
	ch.Emit(1, "start_tq_0")

	first := <-ch.Events()
	second := <-ch.Events()

	assert.Equal(t, Event{Group: 0, Prefix: "dq_0"}, first)
	assert.Equal(t, Event{Group: 1, Prefix: "start_tq_0"}, second)
}

func TestFakeChannel_CloseStopsDelivery(t *testing.T) {
	ch := NewFakeChannel(1)
	require.NoError(t, ch.Close())

	ch.Emit(0, "dq_0") // must not panic or block after Close

	_, ok := <-ch.Events()
	assert.False(t, ok, "channel should be closed")
}
