package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/astcode/simvibe3d/internal/services"
	"github.com/astcode/simvibe3d/internal/storage"
)

func TestHealthHandler_Healthy(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))

	mockStorage := storage.NewMockStorage()
	mockLLM := services.NewMockLLM()
	handler := NewHealthHandler(mockStorage, mockLLM, "llama3.2", logger)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}

	var response HealthResponse
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if response.Status != "healthy" {
		t.Errorf("Expected healthy, got %s", response.Status)
	}
	if response.Components["storage"] != "healthy" || response.Components["model"] != "healthy" {
		t.Errorf("Unexpected components: %v", response.Components)
	}
}

func TestHealthHandler_DegradedStorage(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))

	mockStorage := storage.NewMockStorage()
	mockStorage.SetPingError(errors.New("connection refused"))
	mockLLM := services.NewMockLLM()
	handler := NewHealthHandler(mockStorage, mockLLM, "llama3.2", logger)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected status 503, got %d", rr.Code)
	}

	var response HealthResponse
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if response.Status != "degraded" {
		t.Errorf("Expected degraded, got %s", response.Status)
	}
	if response.Components["storage"] != "unhealthy" {
		t.Errorf("Unexpected components: %v", response.Components)
	}
}
