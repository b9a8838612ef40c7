package file

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/require"

	"offers-harvester/internal/observability"
	"offers-harvester/internal/offer"
	"offers-harvester/internal/storage"
)

func newTestWriter(t *testing.T, dir string) *Writer {
	t.Helper()
	malta, err := time.LoadLocation("Europe/Malta")
	require.NoError(t, err)

	w, err := NewWriter(dir, "lastupdate.txt", storage.TimestampFormat{
		Layout:   "02/01/2006, 15:04:05",
		Location: malta,
	}, observability.NewNopLogger())
	require.NoError(t, err)
	return w
}

func TestWriteCreatesDirectoryAndSnapshot(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "docs", "nested")
	w := newTestWriter(t, dir)

	offers := []offer.Derived{{
		Category:    "Drinks",
		Product:     "<a href='http://shop.example/productdetails?pid=P1' target='_blank'>Red &amp; White</a>",
		Image:       "<a href='x' target='_blank'><img class='product-image-img' src='y' loading='lazy'/></a>",
		NormalPrice: "€10",
		Discount:    "40% off",
		ActualPrice: "€6.00",
		Savings:     "€4.00",
	}}
	require.NoError(t, w.Write(context.Background(), "data_drinks", offers))

	raw, err := os.ReadFile(filepath.Join(dir, "data_drinks.json"))
	require.NoError(t, err)

	// Markup is stored verbatim, not as < escapes.
	require.Contains(t, string(raw), "<a href='http://shop.example/productdetails?pid=P1'")
	require.Contains(t, string(raw), `"NormalPrice":"€10"`)

	var got []offer.Derived
	require.NoError(t, json.Unmarshal(raw, &got))
	require.Equal(t, offers, got)
}

func TestWriteEmptySnapshotIsArray(t *testing.T) {
	dir := t.TempDir()
	w := newTestWriter(t, dir)

	require.NoError(t, w.Write(context.Background(), "data_general", nil))

	raw, err := os.ReadFile(w.Path("data_general"))
	require.NoError(t, err)
	require.JSONEq(t, "[]", string(raw))
}

func TestWriteReplacesWholeFile(t *testing.T) {
	dir := t.TempDir()
	w := newTestWriter(t, dir)
	ctx := context.Background()

	long := make([]offer.Derived, 20)
	for i := range long {
		long[i] = offer.Derived{Category: "Category with a long name", Product: "p"}
	}
	require.NoError(t, w.Write(ctx, "data_drinks", long))
	require.NoError(t, w.Write(ctx, "data_drinks", long[:1]))

	var got []offer.Derived
	raw, err := os.ReadFile(w.Path("data_drinks"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &got))
	require.Len(t, got, 1)

	// No temp files left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "data_drinks.json", entries[0].Name())
}

func TestWriteTimestamp(t *testing.T) {
	dir := t.TempDir()
	w := newTestWriter(t, dir)

	// 09:30 UTC is 11:30 in Malta during summer time.
	at := time.Date(2026, 7, 3, 9, 30, 5, 0, time.UTC)
	require.NoError(t, w.WriteTimestamp(context.Background(), at))

	raw, err := os.ReadFile(filepath.Join(dir, "lastupdate.txt"))
	require.NoError(t, err)
	require.Equal(t, "03/07/2026, 11:30:05", string(raw))
}

func TestWriteCanceledContext(t *testing.T) {
	dir := t.TempDir()
	w := newTestWriter(t, dir)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, w.Write(ctx, "data_drinks", nil), context.Canceled)
	_, err := os.Stat(w.Path("data_drinks"))
	require.True(t, os.IsNotExist(err))
}
