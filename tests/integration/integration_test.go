package integration_test

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/fintrack/fintrack-go/internal/domain"
	"github.com/fintrack/fintrack-go/internal/handler"
	"github.com/fintrack/fintrack-go/internal/infra/localstate"
	"github.com/fintrack/fintrack-go/internal/infra/observability"
	"github.com/fintrack/fintrack-go/internal/infra/remote"
	"github.com/fintrack/fintrack-go/internal/infra/resilience"
	"github.com/fintrack/fintrack-go/internal/service"
	"github.com/fintrack/fintrack-go/internal/store"
	enginepkg "github.com/fintrack/fintrack-go/internal/sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// TestIntegration_OfflineOutage runs the full stack: a real server over a
// file store, a real remote client, and the reconciliation engine. The
// server goes away mid-test and comes back on the same address, the way a
// flaky connection looks from the agent's side.
func TestIntegration_OfflineOutage(t *testing.T) {
	logger := zap.NewNop()

	// --- Server ---
	st, err := store.New(filepath.Join(t.TempDir(), "transactions.json"), logger)
	if err != nil {
		t.Fatal(err)
	}
	ledger := service.NewLedger(st, observability.NewMetrics(), logger)
	router := handler.NewRouter(ledger, observability.NewMetrics(), logger)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	srv := httptest.NewUnstartedServer(router)
	srv.Listener.Close()
	srv.Listener = ln
	srv.Start()
	baseURL := "http://" + addr

	// --- Agent ---
	// A short probe TTL so the engine notices connectivity flips quickly.
	cb := resilience.NewCircuitBreaker("integration")
	cfg := resilience.Config{MaxRetries: 1, InitialBackoff: time.Millisecond}
	agentMetrics := observability.NewMetrics()
	remoteClient := remote.NewClient(&http.Client{Timeout: 2 * time.Second}, baseURL, cb, cfg, time.Millisecond, agentMetrics, logger)
	defer remoteClient.Close()

	local, err := localstate.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	engine, err := enginepkg.NewEngine(local, remoteClient, enginepkg.ClearAll, agentMetrics, logger)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()

	// --- Online create confirms against the server ---
	first, err := engine.Create(ctx, domain.Transaction{
		Amount:   decimal.RequireFromString("50.00"),
		Type:     domain.TypeIncome,
		Category: "Salary",
		Date:     domain.Today(),
	})
	if err != nil {
		t.Fatalf("online create failed: %v", err)
	}
	if !first.Synced {
		t.Fatal("online create must come back confirmed")
	}

	// --- Outage ---
	srv.Close()
	time.Sleep(5 * time.Millisecond) // let the probe result expire

	second, err := engine.Create(ctx, domain.Transaction{
		Amount:   decimal.RequireFromString("12.00"),
		Type:     domain.TypeExpense,
		Category: "Food",
		Date:     domain.Today(),
	})
	if err != nil {
		t.Fatalf("offline create failed: %v", err)
	}
	if second.Synced {
		t.Fatal("create during outage must stay unconfirmed")
	}
	if !engine.SyncNeeded() {
		t.Fatal("outage mutation must raise the sync flag")
	}
	if len(engine.Transactions()) != 2 {
		t.Fatalf("local view must hold both transactions, got %d", len(engine.Transactions()))
	}

	// --- Server comes back on the same address ---
	ln2 := relisten(t, addr)
	srv2 := httptest.NewUnstartedServer(router)
	srv2.Listener.Close()
	srv2.Listener = ln2
	srv2.Start()
	defer srv2.Close()
	time.Sleep(5 * time.Millisecond)

	if err := engine.Synchronize(ctx); err != nil {
		t.Fatalf("synchronize after recovery failed: %v", err)
	}
	if engine.SyncNeeded() {
		t.Error("sync flag must drop after a full cycle")
	}

	// The server now holds both, everything confirmed.
	resp, err := http.Get(baseURL + "/api?action=get")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var serverList []domain.Transaction
	if err := json.NewDecoder(resp.Body).Decode(&serverList); err != nil {
		t.Fatal(err)
	}
	if len(serverList) != 2 {
		t.Fatalf("expected 2 transactions on server, got %d", len(serverList))
	}
	for _, tx := range serverList {
		if !tx.Synced {
			t.Errorf("server copy of %s must be synced", tx.ID)
		}
	}

	for _, tx := range engine.Transactions() {
		if !tx.Synced {
			t.Errorf("local copy of %s must be synced after the cycle", tx.ID)
		}
	}
}

// relisten rebinds addr, retrying briefly while the kernel releases the port.
func relisten(t *testing.T, addr string) net.Listener {
	t.Helper()
	var lastErr error
	for i := 0; i < 50; i++ {
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			return ln
		}
		lastErr = err
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("could not rebind %s: %v", addr, lastErr)
	return nil
}
