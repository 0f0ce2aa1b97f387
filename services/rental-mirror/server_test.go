package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func seedItems(t *testing.T, store *SQLiteStore) {
	t.Helper()
	now := time.Unix(1700000000, 0).UTC()
	items := []MirroredItem{
		{ID: 1, Owner: "gear1alice", Description: "cordless drill", RatePerPeriod: 200, Deposit: 50, Status: "ready", UpdatedAt: now},
		{ID: 2, Owner: "gear1alice", Description: "pressure washer", RatePerPeriod: 120, Deposit: 80, Status: "rented", Renter: "gear1bob", UpdatedAt: now},
		{ID: 3, Owner: "gear1carol", Description: "kayak", RatePerPeriod: 30, Deposit: 100, Status: "ready", UpdatedAt: now},
	}
	for _, item := range items {
		require.NoError(t, store.UpsertItem(context.Background(), item))
	}
}

func doGet(t *testing.T, server *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	return rec
}

func TestListItemsFilters(t *testing.T) {
	store := newTestStore(t)
	seedItems(t, store)
	server := NewServer(store)

	rec := doGet(t, server, "/items")
	require.Equal(t, http.StatusOK, rec.Code)
	var all []MirroredItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	require.Len(t, all, 3)
	require.Equal(t, uint64(1), all[0].ID)

	rec = doGet(t, server, "/items?status=ready")
	var ready []MirroredItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ready))
	require.Len(t, ready, 2)

	rec = doGet(t, server, "/items?owner=gear1alice&status=rented")
	var rented []MirroredItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rented))
	require.Len(t, rented, 1)
	require.Equal(t, "gear1bob", rented[0].Renter)

	rec = doGet(t, server, "/items?status=bogus")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetItemByID(t *testing.T) {
	store := newTestStore(t)
	seedItems(t, store)
	server := NewServer(store)

	rec := doGet(t, server, "/items/2")
	require.Equal(t, http.StatusOK, rec.Code)
	var item MirroredItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &item))
	require.Equal(t, "pressure washer", item.Description)

	rec = doGet(t, server, "/items/99")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = doGet(t, server, "/items/not-a-number")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListItemsEmptyIsJSONArray(t *testing.T) {
	store := newTestStore(t)
	server := NewServer(store)

	rec := doGet(t, server, "/items")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, "[]", rec.Body.String())
}

func TestRecentEventsEndpoint(t *testing.T) {
	store := newTestStore(t)
	now := time.Unix(1700000000, 0).UTC()
	for seq := uint64(1); seq <= 5; seq++ {
		require.NoError(t, store.InsertEvent(context.Background(), StoredEvent{
			Sequence:  seq,
			Type:      "rental.listed",
			Payload:   map[string]string{"id": "1"},
			CreatedAt: now,
		}))
	}
	server := NewServer(store)

	rec := doGet(t, server, "/events?limit=2")
	require.Equal(t, http.StatusOK, rec.Code)
	var events []eventView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events, 2)
	require.Equal(t, uint64(5), events[0].Sequence)

	rec = doGet(t, server, "/events?limit=-1")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthz(t *testing.T) {
	store := newTestStore(t)
	server := NewServer(store)
	rec := doGet(t, server, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
}
