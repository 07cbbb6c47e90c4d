/*
Copyright 2024 The Aibrix Team.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package arena

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	specacheerrors "github.com/vllm-project/specache/pkg/errors"
)

func newTestArena(t *testing.T) *Arena {
	t.Helper()
	dir := t.TempDir()
	a, err := Create(dir, "test_arena", 8<<20)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = a.Close()
		_ = a.Unlink()
	})
	return a
}

func TestCreateIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	a1, err := Create(dir, "idempotent", 4<<20)
	require.NoError(t, err)
	require.NoError(t, a1.Close())

	a2, err := Create(dir, "idempotent", 4<<20)
	require.NoError(t, err)
	defer func() {
		_ = a2.Close()
		_ = a2.Unlink()
	}()
	assert.Equal(t, int64(registryReservedBytes), a2.UsedBytes())
}

func TestAllocBulkBumpsCursor(t *testing.T) {
	a := newTestArena(t)

	ref1, err := a.AllocBulk(1024)
	require.NoError(t, err)
	assert.Equal(t, int64(registryReservedBytes), ref1.Offset)
	assert.Equal(t, int64(1024), ref1.Size)

	ref2, err := a.AllocBulk(2048)
	require.NoError(t, err)
	assert.Equal(t, ref1.Offset+ref1.Size, ref2.Offset)
}

func TestAllocBulkOutOfSpace(t *testing.T) {
	a := newTestArena(t)

	_, err := a.AllocBulk(a.Size())
	require.Error(t, err)
	assert.True(t, specacheerrors.IsError(err, specacheerrors.ErrorTypeArenaOutOfSpace))
}

func TestFreeDoesNotReclaimBytesButUpdatesLiveCount(t *testing.T) {
	a := newTestArena(t)

	ref, err := a.AllocBulk(4096)
	require.NoError(t, err)
	assert.Equal(t, int64(4096), a.LiveBytes())

	a.Free(ref)
	assert.Equal(t, int64(0), a.LiveBytes())

	// the cursor never rewinds: the next allocation starts past ref, not at it.
	ref2, err := a.AllocBulk(1)
	require.NoError(t, err)
	assert.Greater(t, ref2.Offset, ref.Offset)
}

func TestBytesViewIsWritableAndShared(t *testing.T) {
	a := newTestArena(t)

	ref, err := a.AllocBulk(16)
	require.NoError(t, err)

	view := a.Bytes(ref)
	view[0] = 0x42

	view2 := a.Bytes(ref)
	assert.Equal(t, byte(0x42), view2[0])
}

func TestOpenMissingArenaFails(t *testing.T) {
	dir := t.TempDir()
	_, err := Open(dir, "does_not_exist", 4<<20)
	require.Error(t, err)
	assert.True(t, specacheerrors.IsError(err, specacheerrors.ErrorTypeArenaUnavailable))
}

func TestLockUnlockRoundTrip(t *testing.T) {
	a := newTestArena(t)
	require.NoError(t, a.Lock())
	require.NoError(t, a.Unlock())
}
