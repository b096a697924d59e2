package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dropDatabas3/telepass/internal/domain"
	"github.com/dropDatabas3/telepass/internal/domain/repository"
	memstore "github.com/dropDatabas3/telepass/internal/store/memory"
)

const testSecret = "una-clave-de-firma-para-tests-123"

func seedIdentity(t *testing.T, st *memstore.Store, tgID int64, role domain.Role) *domain.Identity {
	t.Helper()
	ident, _, err := st.Upsert(context.Background(), repository.UpsertIdentityInput{
		TelegramID:  tgID,
		DisplayName: "Test User",
		Username:    "testuser",
	})
	if err != nil {
		t.Fatalf("seed upsert: %v", err)
	}
	if err := st.SetRole(context.Background(), ident.ID, role); err != nil {
		t.Fatalf("seed role: %v", err)
	}
	ident.Role = role
	return ident
}

func newTestIssuer(st *memstore.Store) *Issuer {
	stamps := NewStampRegistry(st, nil)
	return NewIssuer(testSecret, "telepass", 24*time.Hour, 7*24*time.Hour, stamps)
}

func TestIssue_RoundTrip(t *testing.T) {
	st := memstore.New()
	iss := newTestIssuer(st)
	ident := seedIdentity(t, st, 1001, domain.RoleMerchant)

	token, exp, err := iss.Issue(context.Background(), ident)
	if err != nil {
		t.Fatalf("Issue err: %v", err)
	}
	if !exp.After(time.Now()) {
		t.Fatalf("exp en el pasado: %v", exp)
	}

	claims, err := iss.Verify(token)
	if err != nil {
		t.Fatalf("Verify err: %v", err)
	}
	if claims.Subject != ident.ID {
		t.Fatalf("sub: got %q want %q", claims.Subject, ident.ID)
	}
	if claims.Role != "merchant" {
		t.Fatalf("role: got %q", claims.Role)
	}
	if claims.Stamp == "" {
		t.Fatalf("stamp vacío en claims")
	}
}

func TestIssue_AssignsStampOnFirstLogin(t *testing.T) {
	st := memstore.New()
	iss := newTestIssuer(st)
	ident := seedIdentity(t, st, 1002, domain.RoleUser)
	if ident.SecurityStamp != "" {
		t.Fatalf("pre: stamp ya asignado")
	}

	if _, _, err := iss.Issue(context.Background(), ident); err != nil {
		t.Fatalf("Issue err: %v", err)
	}

	stored, err := st.GetByID(context.Background(), ident.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.SecurityStamp == "" {
		t.Fatalf("stamp no persistido tras primer login")
	}
	// invariante: nunca null después del primer login
	if ident.SecurityStamp != stored.SecurityStamp {
		t.Fatalf("stamp en memoria difiere del persistido")
	}
}

func TestIssue_RoleTiering(t *testing.T) {
	st := memstore.New()
	iss := newTestIssuer(st)
	now := time.Unix(1700000000, 0)
	iss.WithClock(func() time.Time { return now })

	admin := seedIdentity(t, st, 2001, domain.RoleAdmin)
	user := seedIdentity(t, st, 2002, domain.RoleUser)

	_, adminExp, err := iss.Issue(context.Background(), admin)
	if err != nil {
		t.Fatal(err)
	}
	_, userExp, err := iss.Issue(context.Background(), user)
	if err != nil {
		t.Fatal(err)
	}

	// emitidos en el mismo instante: el privilegiado expira estrictamente antes
	if !adminExp.Before(userExp) {
		t.Fatalf("tiering roto: admin exp %v, user exp %v", adminExp, userExp)
	}
	if got := adminExp.Sub(now); got != 24*time.Hour {
		t.Fatalf("tier privilegiado: got %v", got)
	}
	if got := userExp.Sub(now); got != 7*24*time.Hour {
		t.Fatalf("tier default: got %v", got)
	}
}

func TestVerify_RejectsTamperAndExpiry(t *testing.T) {
	st := memstore.New()
	iss := newTestIssuer(st)
	ident := seedIdentity(t, st, 3001, domain.RoleUser)

	token, _, err := iss.Issue(context.Background(), ident)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("payload alterado", func(t *testing.T) {
		parts := strings.Split(token, ".")
		tampered := parts[0] + "." + parts[1][:len(parts[1])-2] + "xx" + "." + parts[2]
		if _, err := iss.Verify(tampered); !errors.Is(err, ErrTokenInvalid) {
			t.Fatalf("want ErrTokenInvalid, got %v", err)
		}
	})

	t.Run("otro secreto", func(t *testing.T) {
		other := NewIssuer("otro-secreto", "telepass", time.Hour, time.Hour, NewStampRegistry(st, nil))
		if _, err := other.Verify(token); !errors.Is(err, ErrTokenInvalid) {
			t.Fatalf("want ErrTokenInvalid, got %v", err)
		}
	})

	t.Run("expirado", func(t *testing.T) {
		// correr el reloj más allá del tier largo
		iss.WithClock(func() time.Time { return time.Now().Add(8 * 24 * time.Hour) })
		defer iss.WithClock(time.Now)
		if _, err := iss.Verify(token); !errors.Is(err, ErrTokenInvalid) {
			t.Fatalf("want ErrTokenInvalid, got %v", err)
		}
	})
}

func TestStampRegistry_RotateInvalidatesCurrent(t *testing.T) {
	st := memstore.New()
	stamps := NewStampRegistry(st, nil)
	ident := seedIdentity(t, st, 4001, domain.RoleUser)

	first, err := stamps.Ensure(context.Background(), ident.ID)
	if err != nil {
		t.Fatal(err)
	}
	second, err := stamps.Rotate(context.Background(), ident.ID)
	if err != nil {
		t.Fatal(err)
	}
	if first == second {
		t.Fatalf("rotate devolvió el mismo stamp")
	}
	cur, err := stamps.Current(context.Background(), ident.ID)
	if err != nil {
		t.Fatal(err)
	}
	if cur != second {
		t.Fatalf("current: got %q want %q", cur, second)
	}
}
