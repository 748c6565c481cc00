package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/soltrace/soltrace/service/db"
	"github.com/soltrace/soltrace/service/temporal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterWallet_CreatesTemporalSchedule(t *testing.T) {
	store := setupTestStore(t)
	logger := testLogger()
	scheduler := temporal.NewMockScheduler()
	handler := handleRegisterWallet(store.Store, scheduler, logger)

	tests := []struct {
		name     string
		address  string
		interval string
		expected time.Duration
	}{
		{
			name:     "creates schedule with 30s interval",
			address:  "SysvarRent111111111111111111111111111111111",
			interval: "30s",
			expected: 30 * time.Second,
		},
		{
			name:     "creates schedule with 5m interval",
			address:  "SysvarC1ock11111111111111111111111111111111",
			interval: "5m",
			expected: 5 * time.Minute,
		},
		{
			name:     "creates schedule with 1h interval",
			address:  "Stake11111111111111111111111111111111111111",
			interval: "1h",
			expected: 1 * time.Hour,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := fmt.Sprintf(`{"address":"%s","poll_interval":"%s"}`, tt.address, tt.interval)
			req := httptest.NewRequest("POST", "/api/v1/wallets", strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, http.StatusCreated, w.Code)

			// Verify schedule was created
			assert.True(t, scheduler.ScheduleExists(tt.address), "schedule should exist for wallet")

			// Verify schedule has correct interval
			interval, exists := scheduler.ScheduleInterval(tt.address)
			require.True(t, exists)
			assert.Equal(t, tt.expected, interval)

			// Cleanup
			store.DeleteWallet(context.Background(), tt.address)
			scheduler.DeleteWalletSchedule(context.Background(), tt.address)
		})
	}
}

func TestRegisterWallet_TemporalFailure(t *testing.T) {
	store := setupTestStore(t)
	logger := testLogger()
	scheduler := temporal.NewMockScheduler()
	handler := handleRegisterWallet(store.Store, scheduler, logger)

	// Make scheduler return an error
	scheduler.SetCreateError(fmt.Errorf("temporal service unavailable"))

	address := "Config1111111111111111111111111111111111111"
	body := fmt.Sprintf(`{"address":"%s","poll_interval":"30s"}`, address)
	req := httptest.NewRequest("POST", "/api/v1/wallets", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	// Should return error when Temporal fails
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var errResp map[string]string
	err := json.NewDecoder(w.Body).Decode(&errResp)
	require.NoError(t, err)
	assert.Contains(t, errResp["error"], "failed to create schedule")

	// Verify wallet was not created in DB (rollback)
	exists, err := store.WalletExists(context.Background(), address)
	require.NoError(t, err)
	assert.False(t, exists, "wallet should not exist when schedule creation fails")
}

func TestUnregisterWallet_DeletesTemporalSchedule(t *testing.T) {
	store := setupTestStore(t)
	logger := testLogger()
	scheduler := temporal.NewMockScheduler()
	handler := handleUnregisterWallet(store.Store, scheduler, logger)

	address := "Vote111111111111111111111111111111111111111"

	// Create wallet and schedule
	_, err := store.CreateWallet(context.Background(), db.CreateWalletParams{
		Address:      address,
		PollInterval: 30 * time.Second,
		Status:       "active",
	})
	require.NoError(t, err)

	err = scheduler.CreateWalletSchedule(context.Background(), address, 30*time.Second)
	require.NoError(t, err)

	// Verify schedule exists
	assert.True(t, scheduler.ScheduleExists(address))

	// Unregister wallet
	req := httptest.NewRequest("DELETE", "/api/v1/wallets/"+address, nil)
	req.SetPathValue("address", address)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)

	// Verify schedule was deleted
	assert.False(t, scheduler.ScheduleExists(address), "schedule should be deleted")

	// Verify wallet was deleted from DB
	exists, err := store.WalletExists(context.Background(), address)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestUnregisterWallet_TemporalFailure(t *testing.T) {
	store := setupTestStore(t)
	logger := testLogger()
	scheduler := temporal.NewMockScheduler()
	handler := handleUnregisterWallet(store.Store, scheduler, logger)

	address := "ComputeBudget111111111111111111111111111111"

	// Create wallet and schedule
	_, err := store.CreateWallet(context.Background(), db.CreateWalletParams{
		Address:      address,
		PollInterval: 30 * time.Second,
		Status:       "active",
	})
	require.NoError(t, err)

	err = scheduler.CreateWalletSchedule(context.Background(), address, 30*time.Second)
	require.NoError(t, err)

	// Make scheduler return an error on delete
	scheduler.SetDeleteError(fmt.Errorf("temporal service unavailable"))

	// Unregister wallet
	req := httptest.NewRequest("DELETE", "/api/v1/wallets/"+address, nil)
	req.SetPathValue("address", address)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	// Should return error when Temporal fails
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var errResp map[string]string
	err = json.NewDecoder(w.Body).Decode(&errResp)
	require.NoError(t, err)
	assert.Contains(t, errResp["error"], "failed to delete schedule")

	// Verify wallet was NOT deleted from DB (rollback)
	exists, err := store.WalletExists(context.Background(), address)
	require.NoError(t, err)
	assert.True(t, exists, "wallet should still exist when schedule deletion fails")

	// Cleanup
	scheduler.SetDeleteError(nil)
	store.DeleteWallet(context.Background(), address)
	scheduler.DeleteWalletSchedule(context.Background(), address)
}

func TestRegisterWallet_DuplicateAddress(t *testing.T) {
	store := setupTestStore(t)
	logger := testLogger()
	scheduler := temporal.NewMockScheduler()
	handler := handleRegisterWallet(store.Store, scheduler, logger)

	address := "SysvarRent111111111111111111111111111111111"

	// First registration
	body := fmt.Sprintf(`{"address":"%s","poll_interval":"30s"}`, address)
	req := httptest.NewRequest("POST", "/api/v1/wallets", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, scheduler.ScheduleExists(address))

	// Second registration (duplicate)
	req = httptest.NewRequest("POST", "/api/v1/wallets", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	// Should return conflict
	assert.Equal(t, http.StatusConflict, w.Code)

	// Should still only have one schedule
	assert.Equal(t, 1, scheduler.ScheduleCount())

	// Cleanup
	store.DeleteWallet(context.Background(), address)
	scheduler.DeleteWalletSchedule(context.Background(), address)
}
