// Copyright (C) 2014 The Pcapshuttle Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at http://mozilla.org/MPL/2.0/.

package types

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestActiveSinceLastScan(t *testing.T) {
	base := time.Now()
	rec := FileStateRecord{Size: 10, MtimeWall: base, PrevScanSize: 10, PrevScanMtime: base}
	require.False(t, rec.ActiveSinceLastScan())

	rec.Size = 20
	require.True(t, rec.ActiveSinceLastScan())

	rec.Size = 10
	rec.MtimeWall = base.Add(time.Second)
	require.True(t, rec.ActiveSinceLastScan())
}

func TestByMtimeThenSizeOrdering(t *testing.T) {
	base := time.Now()
	entries := []GatheredEntryData{
		{Path: "c", MtimeWall: base, Size: 20},
		{Path: "a", MtimeWall: base.Add(-time.Minute), Size: 5},
		{Path: "b", MtimeWall: base, Size: 10},
	}
	sort.Sort(ByMtimeThenSize(entries))

	require.Equal(t, []string{"a", "b", "c"}, []string{entries[0].Path, entries[1].Path, entries[2].Path})
}

func TestTailerEventConstructors(t *testing.T) {
	require.Equal(t, TailerEvent{Kind: EventCreated, Path: "p"}, Created("p"))
	require.Equal(t, TailerEvent{Kind: EventDeleted, Path: "p"}, Deleted("p"))
	require.Equal(t, TailerEvent{Kind: EventMoved, SrcPath: "a", DestPath: "b"}, Moved("a", "b"))
	require.Equal(t, "moved", EventMoved.String())
	require.Equal(t, "unknown", TailerEventKind(99).String())
}
