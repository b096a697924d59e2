package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dropDatabas3/telepass/internal/domain"
	"github.com/dropDatabas3/telepass/internal/domain/repository"
)

func TestUpsert_KeyedByTelegramID(t *testing.T) {
	st := New()
	ctx := context.Background()

	first, created, err := st.Upsert(ctx, repository.UpsertIdentityInput{TelegramID: 42, DisplayName: "Ana"})
	if err != nil {
		t.Fatal(err)
	}
	if !created {
		t.Fatal("primer upsert debería crear")
	}
	if first.Role != domain.RoleUser {
		t.Fatalf("rol inicial: got %q", first.Role)
	}

	// mismo tg_id: refresca datos declarados, conserva id/rol/stamp
	if err := st.SetRole(ctx, first.ID, domain.RoleMerchant); err != nil {
		t.Fatal(err)
	}
	second, created, err := st.Upsert(ctx, repository.UpsertIdentityInput{TelegramID: 42, DisplayName: "Ana María"})
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Fatal("segundo upsert no debería crear")
	}
	if second.ID != first.ID {
		t.Fatalf("id cambió en upsert: %q vs %q", second.ID, first.ID)
	}
	if second.DisplayName != "Ana María" {
		t.Fatalf("display name no refrescado: %q", second.DisplayName)
	}
	if second.Role != domain.RoleMerchant {
		t.Fatalf("rol pisado por upsert: %q", second.Role)
	}
}

func TestRedeem_ExactlyOnceUnderConcurrency(t *testing.T) {
	st := New()
	ctx := context.Background()

	ident, _, err := st.Upsert(ctx, repository.UpsertIdentityInput{TelegramID: 7})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := st.Create(ctx, "tok-1", ident.ID, time.Now().Add(10*time.Minute)); err != nil {
		t.Fatal(err)
	}

	const attempts = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	successes, failures := 0, 0

	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := st.Redeem(ctx, "tok-1", time.Now())
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, repository.ErrTokenSpent):
				failures++
			default:
				t.Errorf("error inesperado: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("canjes exitosos: got %d want 1", successes)
	}
	if failures != attempts-1 {
		t.Fatalf("fallos: got %d want %d", failures, attempts-1)
	}
}

func TestRedeem_ExpiredAndUnknown(t *testing.T) {
	st := New()
	ctx := context.Background()

	ident, _, _ := st.Upsert(ctx, repository.UpsertIdentityInput{TelegramID: 8})
	if _, err := st.Create(ctx, "tok-viejo", ident.ID, time.Now().Add(-time.Minute)); err != nil {
		t.Fatal(err)
	}

	if _, err := st.Redeem(ctx, "tok-viejo", time.Now()); !errors.Is(err, repository.ErrTokenSpent) {
		t.Fatalf("token vencido: want ErrTokenSpent, got %v", err)
	}
	if _, err := st.Redeem(ctx, "tok-inexistente", time.Now()); !errors.Is(err, repository.ErrTokenSpent) {
		t.Fatalf("token desconocido: want ErrTokenSpent, got %v", err)
	}
}
